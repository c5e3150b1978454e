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

import (
	"math"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewDefaultPageRequest(3, 5000)
	assert.Equal(t, MaxPageSize, p.GetPageSize())
	assert.Equal(t, 2*MaxPageSize, p.GetOffset())

	p = NewDefaultPageRequest(math.MaxInt, MaxPageSize)
	assert.Equal(t, MaxPage, p.GetPage())
	assert.Equal(t, (MaxPage-1)*MaxPageSize, p.GetOffset())
	assert.Positive(t, p.GetOffset())
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, size, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 5, 5},
		{5, 0, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TotalPages(c.total, c.size), "total=%d size=%d", c.total, c.size)
	}
}

func TestMapPagedData(t *testing.T) {
	a, b := 1, 2
	src := NewPagedData(2, 2, 4, []*int{&a, &b})
	out, err := MapPagedData(src, func(v *int) (*string, error) {
		s := string(rune('a' + *v))
		return &s, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalPages)
	assert.Equal(t, "b", *out.Items[0])
	assert.Equal(t, "c", *out.Items[1])
}

func TestQueryFilterAnd(t *testing.T) {
	var none *QueryFilter
	f := NewQueryFilter("a = ?", 1)
	assert.Same(t, f, none.And(f))
	assert.Same(t, f, f.And(nil))

	joined := f.And(NewQueryFilter("b = ?", 2))
	assert.Equal(t, "(a = ?) AND (b = ?)", joined.Schema)
	assert.Equal(t, []interface{}{1, 2}, joined.Args)
}

func TestSortDirection(t *testing.T) {
	d, ok := ParseSortDirection("DESC")
	require.True(t, ok)
	assert.Equal(t, SortDesc, d)
	assert.Equal(t, "desc", d.Name())
	assert.Equal(t, "name DESC", OrderClause("name", d))

	_, ok = ParseSortDirection("sideways")
	assert.False(t, ok)
	assert.Equal(t, IllegalValue, SortDirection(7).Number())
}

func TestOperationResult(t *testing.T) {
	r := Created("x", "made")
	assert.True(t, r.Success)
	assert.Equal(t, http.StatusCreated, r.Code)

	f := FailFrom[int](Fail[string](http.StatusNotFound, "gone"))
	assert.False(t, f.Success)
	assert.Equal(t, http.StatusNotFound, f.Code)
	assert.Equal(t, "gone", f.Message)
}

func TestMessageCatalog(t *testing.T) {
	c := NewMessageCatalog()
	msg := c.Format(MsgEntityNotFound, MessageArgs{Entity: "Product", ID: 42})
	assert.Equal(t, "Product with id 42 was not found", msg)
	assert.Equal(t, "nope", c.Format(MessageKey("nope"), MessageArgs{}))

	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entity_not_found: \"no {{.Entity}} #{{.ID}}\"\n"), 0o644))
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, "no Product #7", c.Format(MsgEntityNotFound, MessageArgs{Entity: "Product", ID: 7}))

	assert.Error(t, c.Set(MsgEntityCreated, "{{.Entity"))
}

func TestJsonObjectScan(t *testing.T) {
	var obj JsonObject
	require.NoError(t, obj.Scan(`{"a":1}`))
	assert.EqualValues(t, 1, obj["a"])
	assert.Error(t, obj.Scan(12))

	v, err := obj.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(v.([]byte)))
}

func TestModelMixins(t *testing.T) {
	var s SoftDeleteModel
	now := time.Now()
	s.MarkRemoved(now)
	assert.True(t, s.IsRemoved())
	s.Restore()
	assert.False(t, s.IsRemoved())
	assert.Nil(t, s.DeletedAt)

	var tr TrackedModel
	tr.Touch(now, true)
	later := now.Add(time.Minute)
	tr.Touch(later, false)
	assert.Equal(t, now, tr.CreatedAt)
	assert.Equal(t, later, tr.UpdatedAt)
}

func TestNextID(t *testing.T) {
	a, err := NextID()
	require.NoError(t, err)
	b, err := NextID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)
}
