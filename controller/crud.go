/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package controller

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/tomoncle/crudkit"
	"github.com/tomoncle/crudkit/types"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Registrar mounts routes on a router.
type Registrar interface {
	Register(router fiber.Router)
}

type settings struct {
	timeout  time.Duration
	validate *validator.Validate
}

type Option func(*settings)

// WithTimeout bounds each manager call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

func WithValidator(v *validator.Validate) Option {
	return func(s *settings) {
		if v != nil {
			s.validate = v
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout, validate: NewValidator()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewValidator returns a validator reporting json field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReadController serves the GET routes of /api/{name}.
type ReadController[D any, ID comparable] struct {
	name    string
	manager crudkit.ReadManager[D, ID]
	parseID IDParser[ID]
	settings
}

func NewReadController[D any, ID comparable](name string, m crudkit.ReadManager[D, ID], parseID IDParser[ID], opts ...Option) *ReadController[D, ID] {
	return &ReadController[D, ID]{name: name, manager: m, parseID: parseID, settings: newSettings(opts)}
}

func (rc *ReadController[D, ID]) Name() string { return rc.name }

func (rc *ReadController[D, ID]) Register(router fiber.Router) {
	g := router.Group("/api/" + rc.name)
	g.Get("/", rc.GetPage)
	g.Get("/export", rc.Export)
	g.Get("/:id", rc.GetByID)
}

func (rc *ReadController[D, ID]) messages() *types.MessageCatalog { return rc.manager.Messages() }

func (rc *ReadController[D, ID]) GetPage(c *fiber.Ctx) error {
	req, err := ParsePageRequest(c, rc.manager.HasColumn)
	if err != nil {
		return badRequest(c, rc.messages(), err)
	}
	return RunWithTimeout(c, rc.timeout, rc.messages(), func(ctx context.Context) types.OperationResult[*types.PagedData[D]] {
		return rc.manager.GetPage(ctx, req)
	})
}

func (rc *ReadController[D, ID]) GetByID(c *fiber.Ctx) error {
	id, err := rc.parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, rc.messages(), err)
	}
	return RunWithTimeout(c, rc.timeout, rc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return rc.manager.GetByID(ctx, id)
	})
}

// CrudController adds the write routes and /api/bulk/{name}.
type CrudController[D any, ID comparable] struct {
	*ReadController[D, ID]
	manager crudkit.Manager[D, ID]
}

func NewCrudController[D any, ID comparable](name string, m crudkit.Manager[D, ID], parseID IDParser[ID], opts ...Option) *CrudController[D, ID] {
	return &CrudController[D, ID]{ReadController: NewReadController[D, ID](name, m, parseID, opts...), manager: m}
}

func (cc *CrudController[D, ID]) Register(router fiber.Router) {
	cc.ReadController.Register(router)
	g := router.Group("/api/" + cc.name)
	g.Post("/", cc.Create)
	g.Put("/:id", cc.Update)
	g.Delete("/:id", cc.Delete)

	bulk := router.Group("/api/bulk/" + cc.name)
	bulk.Post("/", cc.CreateMany)
	bulk.Put("/", cc.UpdateMany)
	bulk.Delete("/", cc.DeleteMany)
}

func (cc *CrudController[D, ID]) Create(c *fiber.Ctx) error {
	dto, err := cc.bindOne(c)
	if err != nil || dto == nil {
		return err
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return cc.manager.Create(ctx, dto)
	})
}

func (cc *CrudController[D, ID]) Update(c *fiber.Ctx) error {
	id, err := cc.parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, cc.messages(), err)
	}
	dto, err := cc.bindOne(c)
	if err != nil || dto == nil {
		return err
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return cc.manager.Update(ctx, id, dto)
	})
}

func (cc *CrudController[D, ID]) Delete(c *fiber.Ctx) error {
	id, err := cc.parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, cc.messages(), err)
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return cc.manager.Delete(ctx, id)
	})
}

func (cc *CrudController[D, ID]) CreateMany(c *fiber.Ctx) error {
	dtos, err := cc.bindMany(c)
	if err != nil || dtos == nil {
		return err
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[[]*D] {
		return cc.manager.CreateMany(ctx, dtos)
	})
}

func (cc *CrudController[D, ID]) UpdateMany(c *fiber.Ctx) error {
	dtos, err := cc.bindMany(c)
	if err != nil || dtos == nil {
		return err
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[[]*D] {
		return cc.manager.UpdateMany(ctx, dtos)
	})
}

// DeleteMany takes a JSON array of ids as body.
func (cc *CrudController[D, ID]) DeleteMany(c *fiber.Ctx) error {
	var ids []ID
	if err := decodeBody(c, &ids); err != nil {
		return badRequest(c, cc.messages(), err)
	}
	if len(ids) == 0 {
		return badRequest(c, cc.messages(), errors.New("no ids to delete"))
	}
	return RunWithTimeout(c, cc.timeout, cc.messages(), func(ctx context.Context) types.OperationResult[int64] {
		return cc.manager.DeleteMany(ctx, ids)
	})
}

// bindOne decodes and validates a single DTO. A nil DTO with a nil error
// means the failure response was already sent.
func (cc *CrudController[D, ID]) bindOne(c *fiber.Ctx) (*D, error) {
	dto := new(D)
	if err := decodeBody(c, dto); err != nil {
		return nil, badRequest(c, cc.messages(), err)
	}
	if res := validate(cc.validate, cc.messages(), dto); res != nil {
		return nil, Send(c, *res)
	}
	return dto, nil
}

func (cc *CrudController[D, ID]) bindMany(c *fiber.Ctx) ([]*D, error) {
	var dtos []*D
	if err := decodeBody(c, &dtos); err != nil {
		return nil, badRequest(c, cc.messages(), err)
	}
	if len(dtos) == 0 {
		return nil, badRequest(c, cc.messages(), errors.New("body must be a non-empty array"))
	}
	for _, dto := range dtos {
		if dto == nil {
			return nil, badRequest(c, cc.messages(), errors.New("array items cannot be null"))
		}
		if res := validate(cc.validate, cc.messages(), dto); res != nil {
			return nil, Send(c, *res)
		}
	}
	return dtos, nil
}

func decodeBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return errors.New("body cannot be empty")
	}
	if err := c.App().Config().JSONDecoder(c.Body(), out); err != nil {
		return errors.New("body is not valid JSON: " + err.Error())
	}
	return nil
}

// SoftController adds restore and hard delete routes for soft-removable
// resources.
type SoftController[D any, ID comparable] struct {
	*CrudController[D, ID]
	soft crudkit.SoftManager[D, ID]
}

func NewSoftController[D any, ID comparable](name string, m crudkit.SoftManager[D, ID], parseID IDParser[ID], opts ...Option) *SoftController[D, ID] {
	return &SoftController[D, ID]{CrudController: NewCrudController[D, ID](name, m, parseID, opts...), soft: m}
}

func (sc *SoftController[D, ID]) Register(router fiber.Router) {
	g := router.Group("/api/" + sc.name)
	g.Post("/:id/restore", sc.Restore)
	g.Delete("/:id/hard", sc.HardDelete)
	sc.CrudController.Register(router)
}

func (sc *SoftController[D, ID]) Restore(c *fiber.Ctx) error {
	id, err := sc.parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, sc.messages(), err)
	}
	return RunWithTimeout(c, sc.timeout, sc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return sc.soft.Restore(ctx, id)
	})
}

func (sc *SoftController[D, ID]) HardDelete(c *fiber.Ctx) error {
	id, err := sc.parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, sc.messages(), err)
	}
	return RunWithTimeout(c, sc.timeout, sc.messages(), func(ctx context.Context) types.OperationResult[*D] {
		return sc.soft.HardDelete(ctx, id)
	})
}
