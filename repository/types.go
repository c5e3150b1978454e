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

package repository

import (
	"context"

	"github.com/tomoncle/crudkit/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	GetMany(ctx context.Context, ids []any) ([]*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Exists(ctx context.Context, id any) (bool, error)

	Create(ctx context.Context, entity ...*T) error

	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	UpdateMany(ctx context.Context, entity ...*T) error

	Delete(ctx context.Context, id any) error

	DeleteMany(ctx context.Context, ids []any) (int64, error)
}

// TransactionRepository defines CRUD operations executed within a transaction.
type TransactionRepository[T any] interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	GetOneWithTx(ctx context.Context, tx *bun.Tx, id any) (*T, error)
	CreateWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error
	UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error
	UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error
	DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.PagedData[T], error)
}

// MetadataRepository exposes the bun table metadata of the entity.
type MetadataRepository[T any] interface {
	// TableName returns the SQL table name.
	TableName() string
	// PrimaryKeyColumn returns the single primary key column name.
	PrimaryKeyColumn() string
	// PrimaryKey reads the primary key value of entity.
	PrimaryKey(entity *T) any
	// SetPrimaryKey assigns id to the primary key of entity.
	SetPrimaryKey(entity *T, id any) error
	// HasColumn reports whether name is a mapped column.
	HasColumn(name string) bool
}

// Repository combines CRUD, pagination, and transactional operations and
// exposes Bun query builders for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	TransactionRepository[T]
	MetadataRepository[T]
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}

// SoftRemovableRepository hides flagged rows from every read and turns
// deletes into flag updates.
type SoftRemovableRepository[T any] interface {
	Repository[T]
	Restore(ctx context.Context, id any) error
	HardDelete(ctx context.Context, id any) error
	GetOneWithRemoved(ctx context.Context, id any) (*T, error)
}
