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

package crudkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
)

// ErrInvalidInput marks failures caused by the caller's data.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Classify maps err to an HTTP-like status and the message key describing
// it. op is the key used when nothing more specific applies.
func Classify(err error, op types.MessageKey) (int, types.MessageKey) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, types.MsgTimeout
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, types.MsgInvalidRequest
	}
	if is, kind := database.IsSqlError(err); is {
		switch kind {
		case database.NoRowsErr:
			return http.StatusNotFound, types.MsgEntityNotFound
		case database.DuplicateKeyErr:
			return http.StatusConflict, types.MsgDuplicateEntity
		case database.ForeignKeyViolationErr, database.CheckConstraintViolationErr:
			return http.StatusConflict, types.MsgConflict
		case database.NotNullViolationErr, database.DataTruncatedErr, database.InvalidTypeCastErr:
			return http.StatusBadRequest, op
		}
	}
	return http.StatusInternalServerError, op
}
