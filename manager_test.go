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
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tomoncle/crudkit/events"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Title string `bun:"title,notnull,unique"`
	Body  string `bun:"body"`
}

type noteDTO struct {
	ID    int64
	Title string
	Body  string
}

type task struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID    int64  `bun:"id,pk" json:"id"`
	Label string `bun:"label,notnull" json:"label"`
	types.TrackedModel
}

type taskDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

type memo struct {
	bun.BaseModel `bun:"table:memos,alias:m"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Text string `bun:"text"`
	types.SoftDeleteModel
}

type memoDTO struct {
	ID   int64
	Text string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ChangeEvent
	calls  int
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.events = append(p.events, evs...)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []events.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Action, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

func newTestDB(t *testing.T, models ...interface{}) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, m := range models {
		_, err := db.NewDropTable().Model(m).IfExists().Exec(ctx)
		require.NoError(t, err)
		_, err = db.NewCreateTable().Model(m).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newNoteManager(t *testing.T, opts ...Option) *ModelManager[note, noteDTO, int64] {
	db := newTestDB(t, (*note)(nil))
	opts = append([]Option{WithEntityName("note")}, opts...)
	return NewModelManager[note, noteDTO, int64](repository.NewRepository[note](db), opts...)
}

func TestModelManagerCreateAndRead(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newNoteManager(t, WithPublisher(pub))

	res := m.Create(ctx, &noteDTO{Title: "first", Body: "hello"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, "note created", res.Message)
	require.NotZero(t, res.Data.ID)

	got := m.GetByID(ctx, res.Data.ID)
	require.True(t, got.Success)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "hello", got.Data.Body)

	missing := m.GetByID(ctx, 999)
	assert.False(t, missing.Success)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "note with id 999 was not found", missing.Message)
	assert.Nil(t, missing.Data)

	dup := m.Create(ctx, &noteDTO{Title: "first"})
	assert.False(t, dup.Success)
	assert.Equal(t, http.StatusConflict, dup.Code)

	empty := m.Create(ctx, nil)
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	assert.Equal(t, []events.Action{events.ActionCreated}, pub.actions())
	assert.Equal(t, "note", pub.events[0].Resource)
	assert.Equal(t, res.Data.ID, pub.events[0].ID)
}

func TestModelManagerDefaultsToTableName(t *testing.T) {
	db := newTestDB(t, (*note)(nil))
	m := NewModelManager[note, noteDTO, int64](repository.NewRepository[note](db))
	assert.Equal(t, "notes", m.EntityName())
	assert.True(t, m.HasColumn("title"))
	assert.False(t, m.HasColumn("Title"))
	assert.NotNil(t, m.Messages())
	assert.NotNil(t, m.Repository())
}

func TestModelManagerCreateMany(t *testing.T) {
	ctx := context.Background()
	m := newNoteManager(t)

	res := m.CreateMany(ctx, []*noteDTO{{Title: "a"}, {Title: "b"}})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusCreated, res.Code)
	require.Len(t, res.Data, 2)
	assert.NotZero(t, res.Data[0].ID)
	assert.NotEqual(t, res.Data[0].ID, res.Data[1].ID)
	assert.Equal(t, "2 note record(s) created", res.Message)

	// the duplicate in the batch rolls back the whole insert
	bad := m.CreateMany(ctx, []*noteDTO{{Title: "c"}, {Title: "a"}})
	assert.Equal(t, http.StatusConflict, bad.Code)
	page := m.GetPage(ctx, nil)
	require.True(t, page.Success)
	assert.Equal(t, 2, page.Data.Total)

	assert.Equal(t, http.StatusBadRequest, m.CreateMany(ctx, nil).Code)
	assert.Equal(t, http.StatusBadRequest, m.CreateMany(ctx, []*noteDTO{nil}).Code)
}

func TestModelManagerUpdate(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newNoteManager(t, WithPublisher(pub))
	created := m.Create(ctx, &noteDTO{Title: "draft", Body: "v1"})
	require.True(t, created.Success)
	id := created.Data.ID

	// the path id wins over the body id
	res := m.Update(ctx, id, &noteDTO{ID: 12345, Title: "final", Body: "v2"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, id, res.Data.ID)
	assert.Equal(t, "final", res.Data.Title)

	got := m.GetByID(ctx, id)
	require.True(t, got.Success)
	assert.Equal(t, "v2", got.Data.Body)

	missing := m.Update(ctx, 777, &noteDTO{Title: "x"})
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.False(t, missing.Success)

	assert.Equal(t, http.StatusBadRequest, m.Update(ctx, id, nil).Code)
	assert.Equal(t, []events.Action{events.ActionCreated, events.ActionUpdated}, pub.actions())
}

func TestModelManagerUpdateMany(t *testing.T) {
	ctx := context.Background()
	m := newNoteManager(t)
	created := m.CreateMany(ctx, []*noteDTO{{Title: "a"}, {Title: "b"}})
	require.True(t, created.Success)
	a, b := created.Data[0], created.Data[1]

	res := m.UpdateMany(ctx, []*noteDTO{{ID: a.ID, Title: "a2"}, {ID: b.ID, Title: "b2"}})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "2 note record(s) updated", res.Message)

	noID := m.UpdateMany(ctx, []*noteDTO{{Title: "x"}})
	assert.Equal(t, http.StatusBadRequest, noID.Code)

	rollback := m.UpdateMany(ctx, []*noteDTO{{ID: a.ID, Title: "a3"}, {ID: 4242, Title: "zz"}})
	assert.Equal(t, http.StatusNotFound, rollback.Code)
	got := m.GetByID(ctx, a.ID)
	require.True(t, got.Success)
	assert.Equal(t, "a2", got.Data.Title)

	assert.Equal(t, http.StatusBadRequest, m.UpdateMany(ctx, nil).Code)
}

func TestModelManagerDelete(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newNoteManager(t, WithPublisher(pub))
	created := m.CreateMany(ctx, []*noteDTO{{Title: "a"}, {Title: "b"}, {Title: "c"}})
	require.True(t, created.Success)

	res := m.Delete(ctx, created.Data[0].ID)
	require.True(t, res.Success)
	assert.Equal(t, "a", res.Data.Title)
	assert.Equal(t, http.StatusNotFound, m.GetByID(ctx, created.Data[0].ID).Code)
	assert.Equal(t, http.StatusNotFound, m.Delete(ctx, created.Data[0].ID).Code)

	many := m.DeleteMany(ctx, []int64{created.Data[1].ID, created.Data[2].ID, 9999})
	require.True(t, many.Success)
	assert.EqualValues(t, 2, many.Data)
	assert.Equal(t, "2 note record(s) deleted", many.Message)

	none := m.DeleteMany(ctx, nil)
	require.True(t, none.Success)
	assert.EqualValues(t, 0, none.Data)

	assert.Equal(t, []events.Action{
		events.ActionCreated, events.ActionCreated, events.ActionCreated,
		events.ActionDeleted, events.ActionDeleted, events.ActionDeleted,
	}, pub.actions())
}

func TestModelManagerGetPage(t *testing.T) {
	ctx := context.Background()
	m := newNoteManager(t)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		body := "odd"
		if title == "b" || title == "d" {
			body = "even"
		}
		require.True(t, m.Create(ctx, &noteDTO{Title: title, Body: body}).Success)
	}

	res := m.GetPage(ctx, types.NewPageRequestWithOrders(1, 2, []string{"title DESC"}))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 5, res.Data.Total)
	assert.Equal(t, 3, res.Data.TotalPages)
	require.Len(t, res.Data.Items, 2)
	assert.Equal(t, "e", res.Data.Items[0].Title)
	assert.Equal(t, "2 note record(s) retrieved", res.Message)

	filtered := m.GetPage(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("body = ?", "even")))
	require.True(t, filtered.Success)
	assert.Equal(t, 2, filtered.Data.Total)

	beyond := m.GetPage(ctx, types.NewDefaultPageRequest(9, 10))
	require.True(t, beyond.Success)
	assert.Empty(t, beyond.Data.Items)
	assert.Equal(t, 5, beyond.Data.Total)

	bad := m.GetPage(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("missing = ?", 1)))
	assert.False(t, bad.Success)
	assert.Equal(t, http.StatusInternalServerError, bad.Code)
}

func TestModelManagerTrackedTimestampsAndIDs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, (*task)(nil))
	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewModelManager[task, taskDTO, int64](repository.NewRepository[task](db),
		WithIDGenerator(SnowflakeIDs),
		WithClock(func() time.Time { return clock }),
	).WithMapper(JSONMapper[task, taskDTO]{})

	res := m.Create(ctx, &taskDTO{Name: "write"})
	require.True(t, res.Success, res.Message)
	require.NotZero(t, res.Data.ID)
	assert.True(t, res.Data.CreatedAt.Equal(clock))

	clock = clock.Add(time.Hour)
	updated := m.Update(ctx, res.Data.ID, &taskDTO{Name: "rewrite"})
	require.True(t, updated.Success, updated.Message)
	assert.Equal(t, "rewrite", updated.Data.Name)

	stored, err := m.Repository().GetOne(ctx, res.Data.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(clock.Add(-time.Hour)))
	assert.True(t, stored.UpdatedAt.Equal(clock))
}

func TestModelManagerPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := newNoteManager(t, WithPublisher(pub))
	res := m.Create(context.Background(), &noteDTO{Title: "still saved"})
	assert.True(t, res.Success)
	assert.Len(t, pub.events, 1)
}

func TestModelManagerBulkPublishesOnce(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newNoteManager(t, WithPublisher(pub))

	dtos := make([]*noteDTO, 0, 25)
	for i := 0; i < 25; i++ {
		dtos = append(dtos, &noteDTO{Title: "note-" + strconv.Itoa(i)})
	}
	created := m.CreateMany(ctx, dtos)
	require.True(t, created.Success, created.Message)
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, pub.events, 25)

	updates := make([]*noteDTO, 0, len(created.Data))
	ids := make([]int64, 0, len(created.Data))
	for _, d := range created.Data {
		updates = append(updates, &noteDTO{ID: d.ID, Title: d.Title + "-v2"})
		ids = append(ids, d.ID)
	}
	updated := m.UpdateMany(ctx, updates)
	require.True(t, updated.Success, updated.Message)
	assert.Equal(t, 2, pub.calls)
	assert.Len(t, pub.events, 50)

	deleted := m.DeleteMany(ctx, ids)
	require.True(t, deleted.Success, deleted.Message)
	assert.Equal(t, 3, pub.calls)
	assert.Len(t, pub.events, 75)
	assert.Equal(t, events.ActionDeleted, pub.events[50].Action)

	// nothing matched, nothing published
	assert.True(t, m.DeleteMany(ctx, []int64{ids[0]}).Success)
	assert.Equal(t, 3, pub.calls)
}

func TestModelManagerCustomMessages(t *testing.T) {
	catalog := types.DefaultMessages()
	require.NoError(t, catalog.Set(types.MsgEntityNotFound, "no {{.Entity}} #{{.ID}}"))
	m := newNoteManager(t, WithMessages(catalog))
	assert.Equal(t, "no note #5", m.GetByID(context.Background(), 5).Message)
}

func newMemoManager(t *testing.T, pub events.Publisher) *SoftRemovableModelManager[memo, memoDTO, int64] {
	db := newTestDB(t, (*memo)(nil))
	return NewSoftRemovableModelManager[memo, memoDTO, int64](
		repository.NewSoftRemovableRepository[memo](db),
		WithEntityName("memo"), WithPublisher(pub),
	).WithMapper(CopyMapper[memo, memoDTO]{})
}

func TestSoftRemovableModelManager(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newMemoManager(t, pub)

	created := m.CreateMany(ctx, []*memoDTO{{Text: "keep"}, {Text: "drop"}, {Text: "purge"}})
	require.True(t, created.Success, created.Message)
	keep, drop, purge := created.Data[0], created.Data[1], created.Data[2]

	require.True(t, m.Delete(ctx, drop.ID).Success)
	assert.Equal(t, http.StatusNotFound, m.GetByID(ctx, drop.ID).Code)
	page := m.GetPage(ctx, nil)
	require.True(t, page.Success)
	assert.Equal(t, 2, page.Data.Total)

	// a flagged row cannot be updated or flagged again
	assert.Equal(t, http.StatusNotFound, m.Update(ctx, drop.ID, &memoDTO{Text: "x"}).Code)
	assert.Equal(t, http.StatusNotFound, m.Delete(ctx, drop.ID).Code)

	restored := m.Restore(ctx, drop.ID)
	require.True(t, restored.Success, restored.Message)
	assert.Equal(t, "drop", restored.Data.Text)
	assert.Equal(t, "memo with id "+strconv.FormatInt(drop.ID, 10)+" restored", restored.Message)
	active := m.Restore(ctx, keep.ID)
	assert.Equal(t, http.StatusConflict, active.Code)
	assert.Equal(t, "memo with id "+strconv.FormatInt(keep.ID, 10)+" is not deleted", active.Message)
	assert.Equal(t, http.StatusNotFound, m.Restore(ctx, 424242).Code)

	require.True(t, m.Delete(ctx, purge.ID).Success)
	hard := m.HardDelete(ctx, purge.ID)
	require.True(t, hard.Success, hard.Message)
	assert.Equal(t, "purge", hard.Data.Text)
	assert.Equal(t, http.StatusNotFound, m.Restore(ctx, purge.ID).Code)
	assert.Equal(t, http.StatusNotFound, m.HardDelete(ctx, purge.ID).Code)

	many := m.DeleteMany(ctx, []int64{keep.ID, drop.ID})
	require.True(t, many.Success)
	assert.EqualValues(t, 2, many.Data)
	assert.Equal(t, 0, m.GetPage(ctx, nil).Data.Total)

	assert.Equal(t, []events.Action{
		events.ActionCreated, events.ActionCreated, events.ActionCreated,
		events.ActionDeleted, events.ActionRestored, events.ActionDeleted,
		events.ActionDeleted, events.ActionDeleted,
	}, pub.actions())
}
