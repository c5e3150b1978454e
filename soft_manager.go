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
	"net/http"

	"github.com/tomoncle/crudkit/events"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/types"
)

// SoftRemovableModelManager is a ModelManager whose deletes only flag rows.
// Flagged rows are invisible to every read until restored.
type SoftRemovableModelManager[E any, D any, ID comparable] struct {
	*ModelManager[E, D, ID]
	soft repository.SoftRemovableRepository[E]
}

var _ SoftManager[struct{}, int64] = (*SoftRemovableModelManager[struct{}, struct{}, int64])(nil)

func NewSoftRemovableModelManager[E any, D any, ID comparable](repo repository.SoftRemovableRepository[E], opts ...Option) *SoftRemovableModelManager[E, D, ID] {
	return &SoftRemovableModelManager[E, D, ID]{
		ModelManager: NewModelManager[E, D, ID](repo, opts...),
		soft:         repo,
	}
}

func (m *SoftRemovableModelManager[E, D, ID]) WithMapper(mapper Mapper[E, D]) *SoftRemovableModelManager[E, D, ID] {
	m.ModelManager.WithMapper(mapper)
	return m
}

// Restore clears the removal flag of id. Restoring a row that is not
// flagged is a conflict.
func (m *SoftRemovableModelManager[E, D, ID]) Restore(ctx context.Context, id ID) types.OperationResult[*D] {
	entity, err := m.soft.GetOneWithRemoved(ctx, id)
	if err != nil {
		return failed[*D](m.fail(types.MsgUpdateFailed, id, err))
	}
	if r, ok := any(entity).(types.SoftRemovable); ok && !r.IsRemoved() {
		message := m.msg(types.MsgEntityNotRemoved, types.MessageArgs{ID: id})
		m.logger.Warn(message, "entity", m.entity, "id", id)
		return failed[*D](http.StatusConflict, message)
	}
	err = m.soft.Restore(ctx, id)
	if err == nil {
		entity, err = m.soft.GetOne(ctx, id)
	}
	if err != nil {
		return failed[*D](m.fail(types.MsgUpdateFailed, id, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgUpdateFailed, id, err))
	}
	m.publish(ctx, m.event(events.ActionRestored, out, id))
	return types.Ok(out, m.msg(types.MsgEntityRestored, types.MessageArgs{ID: id}))
}

// HardDelete physically removes id, flagged or not.
func (m *SoftRemovableModelManager[E, D, ID]) HardDelete(ctx context.Context, id ID) types.OperationResult[*D] {
	entity, err := m.soft.GetOneWithRemoved(ctx, id)
	if err == nil {
		err = m.soft.HardDelete(ctx, id)
	}
	if err != nil {
		return failed[*D](m.fail(types.MsgDeleteFailed, id, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgDeleteFailed, id, err))
	}
	if r, ok := any(entity).(types.SoftRemovable); !ok || !r.IsRemoved() {
		m.publish(ctx, m.event(events.ActionDeleted, out, id))
	}
	return types.Ok(out, m.msg(types.MsgEntityDeleted, types.MessageArgs{ID: id}))
}
