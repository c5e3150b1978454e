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
	"reflect"
	"time"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/events"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/types"

	"github.com/uptrace/bun"
)

// ReadManager is the read side of a manager, enough for read-only endpoints.
type ReadManager[D any, ID comparable] interface {
	// GetByID returns the DTO with the given id, or a 404 result.
	GetByID(ctx context.Context, id ID) types.OperationResult[*D]
	// GetPage returns one page of DTOs.
	GetPage(ctx context.Context, req *types.PageRequest) types.OperationResult[*types.PagedData[D]]
	EntityName() string
	// HasColumn reports whether name can be used for sorting and filtering.
	HasColumn(name string) bool
	Messages() *types.MessageCatalog
}

// Manager is the full CRUD surface served by the REST controllers.
type Manager[D any, ID comparable] interface {
	ReadManager[D, ID]
	Create(ctx context.Context, dto *D) types.OperationResult[*D]
	CreateMany(ctx context.Context, dtos []*D) types.OperationResult[[]*D]
	Update(ctx context.Context, id ID, dto *D) types.OperationResult[*D]
	UpdateMany(ctx context.Context, dtos []*D) types.OperationResult[[]*D]
	Delete(ctx context.Context, id ID) types.OperationResult[*D]
	DeleteMany(ctx context.Context, ids []ID) types.OperationResult[int64]
}

// SoftManager adds the operations of soft-removable resources.
type SoftManager[D any, ID comparable] interface {
	Manager[D, ID]
	Restore(ctx context.Context, id ID) types.OperationResult[*D]
	HardDelete(ctx context.Context, id ID) types.OperationResult[*D]
}

// ModelManager implements Manager for entity E exposed as DTO D with key ID.
// Failures never escape as errors: they are logged and returned as failed
// OperationResult values.
type ModelManager[E any, D any, ID comparable] struct {
	repo      repository.Repository[E]
	mapper    Mapper[E, D]
	logger    database.Logger
	publisher events.Publisher
	messages  *types.MessageCatalog
	entity    string
	idGen     func() (any, error)
	now       func() time.Time
}

var _ Manager[struct{}, int64] = (*ModelManager[struct{}, struct{}, int64])(nil)

func NewModelManager[E any, D any, ID comparable](repo repository.Repository[E], opts ...Option) *ModelManager[E, D, ID] {
	o := newOptions(opts)
	m := &ModelManager[E, D, ID]{
		repo:      repo,
		mapper:    CopyMapper[E, D]{},
		logger:    o.logger,
		publisher: o.publisher,
		messages:  o.messages,
		entity:    o.entity,
		idGen:     o.idGen,
		now:       o.now,
	}
	if m.entity == "" {
		m.entity = repo.TableName()
	}
	if m.logger == nil {
		m.logger = defaultLogger
	}
	if m.publisher == nil {
		m.publisher = events.NopPublisher{}
	}
	if m.messages == nil {
		m.messages = types.DefaultMessages()
	}
	return m
}

// WithMapper replaces the default CopyMapper.
func (m *ModelManager[E, D, ID]) WithMapper(mapper Mapper[E, D]) *ModelManager[E, D, ID] {
	if mapper != nil {
		m.mapper = mapper
	}
	return m
}

func (m *ModelManager[E, D, ID]) Repository() repository.Repository[E] { return m.repo }

func (m *ModelManager[E, D, ID]) EntityName() string { return m.entity }

func (m *ModelManager[E, D, ID]) HasColumn(name string) bool { return m.repo.HasColumn(name) }

func (m *ModelManager[E, D, ID]) Messages() *types.MessageCatalog { return m.messages }

func (m *ModelManager[E, D, ID]) Create(ctx context.Context, dto *D) types.OperationResult[*D] {
	entity, err := m.newEntity(dto)
	if err == nil {
		err = m.repo.Create(ctx, entity)
	}
	if err != nil {
		return failed[*D](m.fail(types.MsgCreateFailed, nil, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgCreateFailed, nil, err))
	}
	id := m.repo.PrimaryKey(entity)
	m.publish(ctx, m.event(events.ActionCreated, out, id))
	return types.Created(out, m.msg(types.MsgEntityCreated, types.MessageArgs{ID: id}))
}

func (m *ModelManager[E, D, ID]) CreateMany(ctx context.Context, dtos []*D) types.OperationResult[[]*D] {
	if len(dtos) == 0 {
		return failed[[]*D](m.fail(types.MsgCreateFailed, nil, invalidInput("no items to create")))
	}
	entities := make([]*E, 0, len(dtos))
	for i, dto := range dtos {
		entity, err := m.newEntity(dto)
		if err != nil {
			return failed[[]*D](m.fail(types.MsgCreateFailed, nil, invalidInput("item %d: %v", i, err)))
		}
		entities = append(entities, entity)
	}
	err := m.repo.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return m.repo.CreateWithTx(ctx, &tx, entities...)
	})
	if err != nil {
		return failed[[]*D](m.fail(types.MsgCreateFailed, nil, err))
	}
	out, err := m.toDTOs(entities)
	if err != nil {
		return failed[[]*D](m.fail(types.MsgCreateFailed, nil, err))
	}
	evs := make([]events.ChangeEvent, len(entities))
	for i, e := range entities {
		evs[i] = m.event(events.ActionCreated, out[i], m.repo.PrimaryKey(e))
	}
	m.publish(ctx, evs...)
	return types.Created(out, m.msg(types.MsgEntitiesCreated, types.MessageArgs{Count: len(out)}))
}

// Update replaces the DTO fields of the entity stored under id. The id
// argument wins over any id carried by dto.
func (m *ModelManager[E, D, ID]) Update(ctx context.Context, id ID, dto *D) types.OperationResult[*D] {
	var entity *E
	err := m.repo.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		entity, err = m.applyUpdate(ctx, &tx, id, dto)
		return err
	})
	if err != nil {
		return failed[*D](m.fail(types.MsgUpdateFailed, id, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgUpdateFailed, id, err))
	}
	m.publish(ctx, m.event(events.ActionUpdated, out, id))
	return types.Ok(out, m.msg(types.MsgEntityUpdated, types.MessageArgs{ID: id}))
}

// UpdateMany updates every DTO in one transaction; each must carry its id.
func (m *ModelManager[E, D, ID]) UpdateMany(ctx context.Context, dtos []*D) types.OperationResult[[]*D] {
	if len(dtos) == 0 {
		return failed[[]*D](m.fail(types.MsgUpdateFailed, nil, invalidInput("no items to update")))
	}
	ids := make([]any, len(dtos))
	for i, dto := range dtos {
		probe, err := ToEntity(m.mapper, dto)
		if err != nil {
			return failed[[]*D](m.fail(types.MsgUpdateFailed, nil, invalidInput("item %d: %v", i, err)))
		}
		ids[i] = m.repo.PrimaryKey(probe)
		if isZero(ids[i]) {
			return failed[[]*D](m.fail(types.MsgUpdateFailed, nil, invalidInput("item %d has no id", i)))
		}
	}

	entities := make([]*E, len(dtos))
	err := m.repo.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for i, dto := range dtos {
			entity, err := m.applyUpdate(ctx, &tx, ids[i], dto)
			if err != nil {
				return err
			}
			entities[i] = entity
		}
		return nil
	})
	if err != nil {
		return failed[[]*D](m.fail(types.MsgUpdateFailed, nil, err))
	}
	out, err := m.toDTOs(entities)
	if err != nil {
		return failed[[]*D](m.fail(types.MsgUpdateFailed, nil, err))
	}
	evs := make([]events.ChangeEvent, len(out))
	for i := range out {
		evs[i] = m.event(events.ActionUpdated, out[i], ids[i])
	}
	m.publish(ctx, evs...)
	return types.Ok(out, m.msg(types.MsgEntitiesUpdated, types.MessageArgs{Count: len(out)}))
}

// Delete removes the entity and returns its last state.
func (m *ModelManager[E, D, ID]) Delete(ctx context.Context, id ID) types.OperationResult[*D] {
	entity, err := m.repo.GetOne(ctx, id)
	if err == nil {
		err = m.repo.Delete(ctx, id)
	}
	if err != nil {
		return failed[*D](m.fail(types.MsgDeleteFailed, id, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgDeleteFailed, id, err))
	}
	m.publish(ctx, m.event(events.ActionDeleted, out, id))
	return types.Ok(out, m.msg(types.MsgEntityDeleted, types.MessageArgs{ID: id}))
}

// DeleteMany removes the given ids and reports how many rows were affected.
// Unknown ids are skipped.
func (m *ModelManager[E, D, ID]) DeleteMany(ctx context.Context, ids []ID) types.OperationResult[int64] {
	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = id
	}
	found, err := m.repo.GetMany(ctx, keys)
	if err != nil {
		return failed[int64](m.fail(types.MsgDeleteFailed, nil, err))
	}
	count, err := m.repo.DeleteMany(ctx, keys)
	if err != nil {
		return failed[int64](m.fail(types.MsgDeleteFailed, nil, err))
	}
	evs := make([]events.ChangeEvent, 0, len(found))
	for _, e := range found {
		if dto, err := m.mapper.ToDTO(e); err == nil {
			evs = append(evs, m.event(events.ActionDeleted, dto, m.repo.PrimaryKey(e)))
		}
	}
	m.publish(ctx, evs...)
	return types.Ok(count, m.msg(types.MsgEntitiesDeleted, types.MessageArgs{Count: int(count)}))
}

func (m *ModelManager[E, D, ID]) GetByID(ctx context.Context, id ID) types.OperationResult[*D] {
	entity, err := m.repo.GetOne(ctx, id)
	if err != nil {
		return failed[*D](m.fail(types.MsgReadFailed, id, err))
	}
	out, err := m.mapper.ToDTO(entity)
	if err != nil {
		return failed[*D](m.fail(types.MsgReadFailed, id, err))
	}
	return types.Ok(out, m.msg(types.MsgEntityFound, types.MessageArgs{ID: id}))
}

func (m *ModelManager[E, D, ID]) GetPage(ctx context.Context, req *types.PageRequest) types.OperationResult[*types.PagedData[D]] {
	if req == nil {
		req = types.NewDefaultPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	page, err := m.repo.Page(ctx, req)
	if err != nil {
		return failed[*types.PagedData[D]](m.fail(types.MsgReadFailed, nil, err))
	}
	out, err := types.MapPagedData(page, m.mapper.ToDTO)
	if err != nil {
		return failed[*types.PagedData[D]](m.fail(types.MsgReadFailed, nil, err))
	}
	return types.Ok(out, m.msg(types.MsgEntitiesFound, types.MessageArgs{Count: len(out.Items)}))
}

func (m *ModelManager[E, D, ID]) newEntity(dto *D) (*E, error) {
	if dto == nil {
		return nil, invalidInput("body cannot be empty")
	}
	entity, err := ToEntity(m.mapper, dto)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	if m.idGen != nil && isZero(m.repo.PrimaryKey(entity)) {
		id, err := m.idGen()
		if err != nil {
			return nil, err
		}
		if err := m.repo.SetPrimaryKey(entity, id); err != nil {
			return nil, err
		}
	}
	if t, ok := any(entity).(types.Trackable); ok {
		t.Touch(m.now(), true)
	}
	return entity, nil
}

func (m *ModelManager[E, D, ID]) applyUpdate(ctx context.Context, tx *bun.Tx, id any, dto *D) (*E, error) {
	if dto == nil {
		return nil, invalidInput("body cannot be empty")
	}
	entity, err := m.repo.GetOneWithTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var createdAt time.Time
	tracked, isTracked := any(entity).(types.Trackable)
	if isTracked {
		createdAt = tracked.GetCreatedAt()
	}
	if err := m.mapper.Apply(entity, dto); err != nil {
		return nil, invalidInput("%v", err)
	}
	if err := m.repo.SetPrimaryKey(entity, id); err != nil {
		return nil, err
	}
	if isTracked {
		tracked.SetCreatedAt(createdAt)
		tracked.Touch(m.now(), false)
	}
	if err := m.repo.UpdateWithTx(ctx, tx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (m *ModelManager[E, D, ID]) toDTOs(entities []*E) ([]*D, error) {
	out := make([]*D, 0, len(entities))
	for _, e := range entities {
		dto, err := m.mapper.ToDTO(e)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

func (m *ModelManager[E, D, ID]) msg(key types.MessageKey, args types.MessageArgs) string {
	args.Entity = m.entity
	return m.messages.Format(key, args)
}

// fail logs err and returns the status and message of the failed result.
func (m *ModelManager[E, D, ID]) fail(op types.MessageKey, id any, err error) (int, string) {
	code, key := Classify(err, op)
	message := m.msg(key, types.MessageArgs{ID: id, Error: err.Error()})
	fields := []interface{}{"entity", m.entity, "code", code, "error", err}
	if id != nil {
		fields = append(fields, "id", id)
	}
	if code >= 500 {
		m.logger.Error(message, fields...)
	} else {
		m.logger.Warn(message, fields...)
	}
	return code, message
}

func (m *ModelManager[E, D, ID]) event(action events.Action, payload any, id any) events.ChangeEvent {
	return events.ChangeEvent{
		Resource: m.entity,
		Action:   action,
		ID:       id,
		Payload:  payload,
		At:       m.now(),
	}
}

// publish hands every event of one operation to the publisher in a single call.
func (m *ModelManager[E, D, ID]) publish(ctx context.Context, evs ...events.ChangeEvent) {
	if len(evs) == 0 {
		return
	}
	if err := m.publisher.Publish(ctx, evs...); err != nil {
		m.logger.Warn("Failed to publish change events", "entity", m.entity, "action", evs[0].Action, "count", len(evs), "error", err)
	}
}

func failed[T any](code int, message string) types.OperationResult[T] {
	return types.Fail[T](code, message)
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
