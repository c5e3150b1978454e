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
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/crudkit/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

const defaultPrimaryKey = "id"

type baseRepositoryImpl[T any] struct {
	db    *bun.DB
	table *schema.Table
	// scope narrows every select, e.g. to hide soft-removed rows.
	scope func(q *bun.SelectQuery) *bun.SelectQuery
}

// NewRepository returns a generic repository backed by the provided Bun DB.
func NewRepository[T any](db *bun.DB) Repository[T] {
	return newBaseRepository[T](db)
}

func newBaseRepository[T any](db *bun.DB) *baseRepositoryImpl[T] {
	return &baseRepositoryImpl[T]{db: db, table: db.Table(reflect.TypeFor[T]())}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) TableName() string { return r.table.Name }

func (r *baseRepositoryImpl[T]) PrimaryKeyColumn() string {
	if len(r.table.PKs) == 0 {
		return defaultPrimaryKey
	}
	return r.table.PKs[0].Name
}

func (r *baseRepositoryImpl[T]) HasColumn(name string) bool {
	_, ok := r.table.FieldMap[name]
	return ok
}

func (r *baseRepositoryImpl[T]) PrimaryKey(entity *T) any {
	if entity == nil || len(r.table.PKs) == 0 {
		return nil
	}
	return r.table.PKs[0].Value(reflect.ValueOf(entity).Elem()).Interface()
}

func (r *baseRepositoryImpl[T]) SetPrimaryKey(entity *T, id any) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	if len(r.table.PKs) == 0 {
		return fmt.Errorf("table %s has no primary key", r.table.Name)
	}
	fv := r.table.PKs[0].Value(reflect.ValueOf(entity).Elem())
	v := reflect.ValueOf(id)
	if !v.IsValid() {
		return fmt.Errorf("primary key value cannot be nil")
	}
	// int -> string is convertible in reflect but yields a rune, not digits.
	if (v.Kind() == reflect.String) != (fv.Kind() == reflect.String) || !v.Type().ConvertibleTo(fv.Type()) {
		return fmt.Errorf("cannot assign %T to primary key of type %s", id, fv.Type())
	}
	fv.Set(v.Convert(fv.Type()))
	return nil
}

func (r *baseRepositoryImpl[T]) ValsToSlice(entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

func (r *baseRepositoryImpl[T]) selectModel(model interface{}) *bun.SelectQuery {
	return r.selectModelOn(r.db, model)
}

func (r *baseRepositoryImpl[T]) selectModelOn(db bun.IDB, model interface{}) *bun.SelectQuery {
	query := db.NewSelect().Model(model)
	if r.scope != nil {
		query = r.scope(query)
	}
	return query
}

func (r *baseRepositoryImpl[T]) wherePK(id any) (string, []interface{}) {
	return "? = ?", []interface{}{bun.Ident(r.PrimaryKeyColumn()), id}
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	var entity T
	where, args := r.wherePK(id)
	err := r.selectModel(&entity).Where(where, args...).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) GetMany(ctx context.Context, ids []any) ([]*T, error) {
	entities := make([]*T, 0)
	if len(ids) == 0 {
		return entities, nil
	}
	err := r.selectModel(&entities).
		Where("? IN (?)", bun.Ident(r.PrimaryKeyColumn()), bun.In(ids)).
		Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	var entities []*T
	err := r.selectModel(&entities).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	var entities []*T
	query := r.selectModel(&entities)
	if filter != nil && filter.Schema != "" {
		query = query.Where(filter.Schema, filter.Args...)
	}
	err := query.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entities, err
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	var entities []*T
	err := r.selectModel(&entities).Where(query, args...).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	query := r.selectModel((*T)(nil))
	if filter != nil && filter.Schema != "" {
		query = query.Where(filter.Schema, filter.Args...)
	}
	return query.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, id any) (bool, error) {
	where, args := r.wherePK(id)
	return r.selectModel((*T)(nil)).Where(where, args...).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.PagedData[T], error) {
	var entities []*T
	query := r.selectModel(&entities)
	if f := pageRequest.GetFilter(); f != nil && f.Schema != "" {
		query = query.Where(f.Schema, f.Args...)
	}
	total, err := query.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.NewEmptyPagedData[T](pageRequest.GetPage(), pageRequest.GetPageSize()), nil
	}
	orders := pageRequest.GetOrders()
	if len(orders) == 0 {
		orders = []string{r.PrimaryKeyColumn() + " ASC"}
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(orders...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewPagedData(pageRequest.GetPage(), pageRequest.GetPageSize(), total, entities), nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := r.ValsToSlice(entity...)
	_, err := r.db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, nil, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	res, err := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *baseRepositoryImpl[T]) UpdateMany(ctx context.Context, entity ...*T) error {
	return r.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for _, e := range entity {
			if err := r.UpdateWithTx(ctx, &tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	where, args := r.wherePK(id)
	res, err := r.db.NewDelete().Model((*T)(nil)).Where(where, args...).Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *baseRepositoryImpl[T]) DeleteMany(ctx context.Context, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().Model((*T)(nil)).
		Where("? IN (?)", bun.Ident(r.PrimaryKeyColumn()), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, fn)
}

func (r *baseRepositoryImpl[T]) GetOneWithTx(ctx context.Context, tx *bun.Tx, id any) (*T, error) {
	var entity T
	where, args := r.wherePK(id)
	err := r.selectModelOn(tx, &entity).Where(where, args...).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := r.ValsToSlice(entity...)
	_, err := tx.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, tx, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error {
	res, err := tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	where, args := r.wherePK(id)
	res, err := tx.NewDelete().Model((*T)(nil)).Where(where, args...).Exec(ctx)
	return affectedOrNoRows(res, err)
}

// affectedOrNoRows reports sql.ErrNoRows when a keyed write touched nothing.
func affectedOrNoRows(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *baseRepositoryImpl[T]) multipleUpsert(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}

	var insertQuery *bun.InsertQuery
	if tx != nil {
		insertQuery = tx.NewInsert()
	} else {
		insertQuery = r.db.NewInsert()
	}

	entities := r.ValsToSlice(entity...)

	if r.db.HasFeature(feature.InsertOnConflict) {
		return r.upsertOnConflict(ctx, insertQuery, fields, duplicateKeys, entities)
	} else if r.db.HasFeature(feature.InsertOnDuplicateKey) {
		return r.upsertOnDuplicateKey(ctx, insertQuery, fields, entities)
	}
	return r.upsertFallback(ctx, entities)
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{r.PrimaryKeyColumn()}
	}
	keyNames := strings.Join(duplicateKeys, ",")
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	_, err := insertQuery.
		Model(&entities).
		On("CONFLICT (" + keyNames + ") DO UPDATE").
		Set(strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		_, err := r.db.NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			_, updateErr := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %v", err, updateErr)
			}
		}
	}
	return nil
}
