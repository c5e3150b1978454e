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

package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerValidatesSources(t *testing.T) {
	_, err := NewManager([]SourceConfig{{Type: SourceLocal}})
	assert.Error(t, err)
	_, err = NewManager([]SourceConfig{{Name: "a", Type: SourceLocal}, {Name: "a", Type: SourceS3}})
	assert.ErrorContains(t, err, "duplicate")
	_, err = NewManager([]SourceConfig{{Name: "a", Type: "ftp"}})
	assert.ErrorContains(t, err, "unsupported")

	m, err := NewManager([]SourceConfig{{Name: "b", Type: SourceS3}, {Name: "a", Type: SourceLocal}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Sources())
}

func TestManagerCachesBackends(t *testing.T) {
	var built atomic.Int32
	m, err := NewManager(
		[]SourceConfig{{Name: "disk", Type: SourceLocal, Root: t.TempDir()}},
		WithFactory(SourceLocal, func(cfg SourceConfig) (Backend, error) {
			built.Add(1)
			return NewLocalBackend(cfg)
		}),
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Backend, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := m.Backend("disk")
			assert.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()
	for _, b := range results {
		assert.Same(t, results[0], b)
	}
	b, err := m.Backend("disk")
	require.NoError(t, err)
	assert.Same(t, results[0], b)
	assert.GreaterOrEqual(t, built.Load(), int32(1))

	_, err = m.Backend("nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestManagerFactoryError(t *testing.T) {
	m, err := NewManager(
		[]SourceConfig{{Name: "broken", Type: SourceMinio}},
		WithFactory(SourceMinio, func(SourceConfig) (Backend, error) { return nil, errors.New("dial failed") }),
	)
	require.NoError(t, err)
	res := m.List(context.Background(), "broken", "", ListOptions{}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Contains(t, res.Message, "dial failed")
}

func TestManagerOperationResults(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager([]SourceConfig{
		{Name: "disk", Type: SourceLocal, Root: t.TempDir()},
		{Name: "bucketless", Type: SourceS3},
	})
	require.NoError(t, err)

	created := m.Create(ctx, "disk", "notes/hello.txt", strings.NewReader("hi"), 2, "text/plain", nil)
	require.True(t, created.Success, created.Message)
	assert.Equal(t, http.StatusCreated, created.Code)
	assert.Equal(t, "file notes/hello.txt created in disk", created.Message)

	listed := m.List(ctx, "disk", "notes", ListOptions{}, nil)
	require.True(t, listed.Success)
	assert.Equal(t, "1 item(s) listed in disk:notes", listed.Message)

	read := m.Read(ctx, "disk", "notes/hello.txt", nil)
	require.True(t, read.Success)
	assert.Equal(t, "hi", string(read.Data.Content))

	missing := m.Read(ctx, "disk", "notes/none.txt", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "file notes/none.txt was not found in disk", missing.Message)

	unknown := m.Read(ctx, "nope", "x", nil)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, "storage source nope is not configured", unknown.Message)

	invalid := m.Read(ctx, "disk", "../x", nil)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	noBucket := m.List(ctx, "bucketless", "", ListOptions{}, nil)
	assert.Equal(t, http.StatusBadRequest, noBucket.Code)
	assert.Equal(t, "storage source bucketless requires a bucket", noBucket.Message)

	deleted := m.Delete(ctx, "disk", "notes/", nil)
	require.True(t, deleted.Success)
	assert.True(t, deleted.Data)
	assert.Equal(t, http.StatusNotFound, m.Delete(ctx, "disk", "notes/", nil).Code)
}
