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
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/crudkit/storage"
	"github.com/tomoncle/crudkit/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Query parameters of the file routes. Any other parameter is passed to
// the backend as an additional parameter. Values read from the request are
// copied before they reach a manager call, which may outlive the handler.
const (
	QueryPath  = "path"
	QueryToken = "token"
	FormFile   = "file"
)

// FilesController exposes a storage.FileManager under /api/files/:source.
type FilesController struct {
	files    storage.FileManager
	messages *types.MessageCatalog
	timeout  time.Duration
}

func NewFilesController(files storage.FileManager, messages *types.MessageCatalog, timeout time.Duration) *FilesController {
	if messages == nil {
		messages = types.DefaultMessages()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FilesController{files: files, messages: messages, timeout: timeout}
}

func (fc *FilesController) Register(router fiber.Router) {
	g := router.Group("/api/files/:source")
	g.Get("/", fc.List)
	g.Get("/content", fc.Read)
	g.Post("/", fc.Create)
	g.Delete("/", fc.Delete)
}

func (fc *FilesController) List(c *fiber.Ctx) error {
	size := 0
	if raw := c.Query(QuerySize); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, fc.messages, errors.New("query parameter size must be an integer"))
		}
		size = v
	}
	source, p, params := utils.CopyString(c.Params("source")), utils.CopyString(c.Query(QueryPath)), additionalParams(c)
	opts := storage.ListOptions{PageSize: size, ContinuationToken: utils.CopyString(c.Query(QueryToken))}
	return RunWithTimeout(c, fc.timeout, fc.messages, func(ctx context.Context) types.OperationResult[*storage.Listing] {
		return fc.files.List(ctx, source, p, opts, params)
	})
}

// Read streams the file body with its content type; failures are sent as
// JSON results.
func (fc *FilesController) Read(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), fc.timeout)
	defer cancel()
	res := fc.files.Read(ctx, c.Params("source"), c.Query(QueryPath), additionalParams(c))
	if !res.Success {
		return Send(c, res)
	}
	c.Attachment(res.Data.Info.Name)
	if res.Data.Info.ContentType != "" {
		c.Set(fiber.HeaderContentType, res.Data.Info.ContentType)
	}
	return c.Status(fiber.StatusOK).Send(res.Data.Content)
}

// Create stores the multipart "file" field at path. A path ending in "/"
// or left empty is completed with the uploaded file name.
func (fc *FilesController) Create(c *fiber.Ctx) error {
	fh, err := c.FormFile(FormFile)
	if err != nil {
		return badRequest(c, fc.messages, errors.New("multipart field file is required"))
	}
	src, err := fh.Open()
	if err != nil {
		return badRequest(c, fc.messages, err)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return badRequest(c, fc.messages, err)
	}

	p := utils.CopyString(c.Query(QueryPath))
	if p == "" || strings.HasSuffix(p, "/") {
		p += fh.Filename
	}
	source, params := utils.CopyString(c.Params("source")), additionalParams(c)
	contentType := fh.Header.Get(fiber.HeaderContentType)
	return RunWithTimeout(c, fc.timeout, fc.messages, func(ctx context.Context) types.OperationResult[*storage.FileInfo] {
		return fc.files.Create(ctx, source, p, bytes.NewReader(content), int64(len(content)), contentType, params)
	})
}

func (fc *FilesController) Delete(c *fiber.Ctx) error {
	source, p, params := utils.CopyString(c.Params("source")), utils.CopyString(c.Query(QueryPath)), additionalParams(c)
	if p == "" {
		return badRequest(c, fc.messages, errors.New("query parameter path is required"))
	}
	return RunWithTimeout(c, fc.timeout, fc.messages, func(ctx context.Context) types.OperationResult[bool] {
		return fc.files.Delete(ctx, source, p, params)
	})
}

func additionalParams(c *fiber.Ctx) storage.Params {
	params := storage.Params{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		switch key := string(k); key {
		case QueryPath, QueryToken, QuerySize:
		default:
			params[key] = string(v)
		}
	})
	return params
}
