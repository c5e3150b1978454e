// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, querying, pagination, transactions, upsert support and
// soft-removable entities.
package repository
