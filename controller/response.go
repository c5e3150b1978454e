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
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/crudkit/types"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const DefaultTimeout = 30 * time.Second

// Send writes res as JSON with its code as the HTTP status.
func Send[T any](c *fiber.Ctx, res types.OperationResult[T]) error {
	return c.Status(res.Code).JSON(res)
}

func badRequest(c *fiber.Ctx, messages *types.MessageCatalog, err error) error {
	return Send(c, types.Fail[any](fiber.StatusBadRequest,
		messages.Format(types.MsgInvalidRequest, types.MessageArgs{Error: err.Error()})))
}

// RunWithTimeout runs fn under a deadline derived from the request context
// and sends its result. When the deadline passes first a 408 result is sent
// and fn keeps running detached; fn must not touch c.
func RunWithTimeout[T any](c *fiber.Ctx, timeout time.Duration, messages *types.MessageCatalog, fn func(ctx context.Context) types.OperationResult[T]) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	done := make(chan types.OperationResult[T], 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		return Send(c, types.Fail[T](fiber.StatusRequestTimeout, messages.Format(types.MsgTimeout, types.MessageArgs{})))
	case res := <-done:
		return Send(c, res)
	}
}

// validate checks the validate struct tags of v.
func validate(v *validator.Validate, messages *types.MessageCatalog, value interface{}) *types.OperationResult[any] {
	err := v.Struct(value)
	if err == nil {
		return nil
	}
	detail := err.Error()
	if errs, ok := err.(validator.ValidationErrors); ok {
		detail = validationDetail(errs)
	}
	res := types.Fail[any](fiber.StatusBadRequest,
		messages.Format(types.MsgValidationFailed, types.MessageArgs{Error: detail}))
	return &res
}

func validationDetail(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "min", "max", "len", "gt", "gte", "lt", "lte":
			msgs = append(msgs, fmt.Sprintf("field %s must satisfy %s=%s", e.Field(), e.ActualTag(), e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of [%s]", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
