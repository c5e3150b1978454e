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

package types

import "net/http"

// OperationResult wraps the outcome of a manager call: a success flag, an
// HTTP-like status code, a human readable message and the payload.
type OperationResult[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Ok returns a successful result with status 200.
func Ok[T any](data T, message string) OperationResult[T] {
	return OperationResult[T]{Success: true, Code: http.StatusOK, Message: message, Data: data}
}

// Created returns a successful result with status 201.
func Created[T any](data T, message string) OperationResult[T] {
	return OperationResult[T]{Success: true, Code: http.StatusCreated, Message: message, Data: data}
}

// Fail returns a failed result carrying the zero payload.
func Fail[T any](code int, message string) OperationResult[T] {
	var zero T
	return OperationResult[T]{Success: false, Code: code, Message: message, Data: zero}
}

// FailFrom re-types a failed result for a different payload type.
func FailFrom[T any, S any](src OperationResult[S]) OperationResult[T] {
	return Fail[T](src.Code, src.Message)
}
