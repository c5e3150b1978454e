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
	"fmt"
	"time"

	"github.com/tomoncle/crudkit/types"

	"github.com/uptrace/bun"
)

const deletedAtColumn = "deleted_at"

type softRemovableRepositoryImpl[T any] struct {
	*baseRepositoryImpl[T]
	now func() time.Time
}

// NewSoftRemovableRepository returns a repository for entities embedding
// types.SoftDeleteModel. It panics when the entity has no is_deleted column.
func NewSoftRemovableRepository[T any](db *bun.DB) SoftRemovableRepository[T] {
	base := newBaseRepository[T](db)
	if !base.HasColumn(types.SoftDeleteColumn) {
		panic(fmt.Sprintf("repository: table %s has no %s column", base.TableName(), types.SoftDeleteColumn))
	}
	base.scope = func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("? = ?", bun.Ident(types.SoftDeleteColumn), false)
	}
	return &softRemovableRepositoryImpl[T]{baseRepositoryImpl: base, now: time.Now}
}

func (r *softRemovableRepositoryImpl[T]) markQuery(db bun.IDB, removed bool) *bun.UpdateQuery {
	query := db.NewUpdate().Model((*T)(nil)).
		Set("? = ?", bun.Ident(types.SoftDeleteColumn), removed).
		Where("? = ?", bun.Ident(types.SoftDeleteColumn), !removed)
	if r.HasColumn(deletedAtColumn) {
		if removed {
			query = query.Set("? = ?", bun.Ident(deletedAtColumn), r.now())
		} else {
			query = query.Set("? = NULL", bun.Ident(deletedAtColumn))
		}
	}
	return query
}

func (r *softRemovableRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	where, args := r.wherePK(id)
	res, err := r.markQuery(r.db, true).Where(where, args...).Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *softRemovableRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	where, args := r.wherePK(id)
	res, err := r.markQuery(tx, true).Where(where, args...).Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *softRemovableRepositoryImpl[T]) DeleteMany(ctx context.Context, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.markQuery(r.db, true).
		Where("? IN (?)", bun.Ident(r.PrimaryKeyColumn()), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *softRemovableRepositoryImpl[T]) Restore(ctx context.Context, id any) error {
	where, args := r.wherePK(id)
	res, err := r.markQuery(r.db, false).Where(where, args...).Exec(ctx)
	return affectedOrNoRows(res, err)
}

func (r *softRemovableRepositoryImpl[T]) HardDelete(ctx context.Context, id any) error {
	return r.baseRepositoryImpl.Delete(ctx, id)
}

func (r *softRemovableRepositoryImpl[T]) GetOneWithRemoved(ctx context.Context, id any) (*T, error) {
	var entity T
	where, args := r.wherePK(id)
	err := r.db.NewSelect().Model(&entity).Where(where, args...).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
