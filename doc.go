// Package crudkit provides generic managers that expose bun-backed entities
// as DTOs through create, read, update and delete operations, including
// batch variants and soft-removable resources. Every operation returns a
// types.OperationResult carrying an HTTP-like status code and a message
// rendered from a types.MessageCatalog.
package crudkit
