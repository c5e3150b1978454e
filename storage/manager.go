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
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

var defaultFactories = map[SourceType]BackendFactory{
	SourceLocal: NewLocalBackend,
	SourceS3:    NewS3Backend,
	SourceMinio: NewMinioBackend,
}

// Manager routes file operations to the backend of each named source.
// Backends are built on first use and cached for the life of the manager.
type Manager struct {
	sources   map[string]SourceConfig
	factories map[SourceType]BackendFactory
	clients   *xsync.MapOf[string, Backend]
	messages  *types.MessageCatalog
	logger    *logrus.Logger
}

var _ FileManager = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithFactory replaces the backend constructor of a source type.
func WithFactory(t SourceType, f BackendFactory) ManagerOption {
	return func(m *Manager) { m.factories[t] = f }
}

func WithMessages(c *types.MessageCatalog) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.messages = c
		}
	}
}

func WithLogger(l *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(sources []SourceConfig, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		sources:   make(map[string]SourceConfig, len(sources)),
		factories: make(map[SourceType]BackendFactory, len(defaultFactories)),
		clients:   xsync.NewMapOf[string, Backend](),
		messages:  types.DefaultMessages(),
		logger:    utils.NewLogger("STORAGE"),
	}
	for t, f := range defaultFactories {
		m.factories[t] = f
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range sources {
		if s.Name == "" {
			return nil, errors.New("storage source without name")
		}
		if _, dup := m.sources[s.Name]; dup {
			return nil, fmt.Errorf("duplicate storage source %q", s.Name)
		}
		if _, ok := m.factories[s.Type]; !ok {
			return nil, fmt.Errorf("storage source %q has unsupported type %q", s.Name, s.Type)
		}
		m.sources[s.Name] = s
	}
	return m, nil
}

// Sources returns the configured source names in order.
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend returns the cached client of source, creating it when needed.
func (m *Manager) Backend(source string) (Backend, error) {
	if b, ok := m.clients.Load(source); ok {
		return b, nil
	}
	cfg, ok := m.sources[source]
	if !ok {
		return nil, ErrUnknownSource
	}
	b, err := m.factories[cfg.Type](cfg)
	if err != nil {
		return nil, err
	}
	actual, loaded := m.clients.LoadOrStore(source, b)
	if !loaded {
		m.logger.WithFields(logrus.Fields{"source": source, "type": cfg.Type}).Info("Storage client created")
	}
	return actual, nil
}

func (m *Manager) List(ctx context.Context, source, path string, opts ListOptions, params Params) types.OperationResult[*Listing] {
	b, err := m.Backend(source)
	if err != nil {
		return failResult[*Listing](m, source, path, err)
	}
	listing, err := b.List(ctx, path, opts, params)
	if err != nil {
		return failResult[*Listing](m, source, path, err)
	}
	count := len(listing.Directories) + len(listing.Files)
	return types.Ok(listing, m.messages.Format(types.MsgFilesListed, types.MessageArgs{Source: source, Path: path, Count: count}))
}

func (m *Manager) Read(ctx context.Context, source, path string, params Params) types.OperationResult[*File] {
	b, err := m.Backend(source)
	if err != nil {
		return failResult[*File](m, source, path, err)
	}
	f, err := b.Read(ctx, path, params)
	if err != nil {
		return failResult[*File](m, source, path, err)
	}
	return types.Ok(f, m.messages.Format(types.MsgFileRead, types.MessageArgs{Source: source, Path: path}))
}

func (m *Manager) Create(ctx context.Context, source, path string, body io.Reader, size int64, contentType string, params Params) types.OperationResult[*FileInfo] {
	b, err := m.Backend(source)
	if err != nil {
		return failResult[*FileInfo](m, source, path, err)
	}
	info, err := b.Create(ctx, path, body, size, contentType, params)
	if err != nil {
		return failResult[*FileInfo](m, source, path, err)
	}
	m.logger.WithFields(logrus.Fields{"source": source, "path": info.Path, "size": info.Size}).Info("File created")
	return types.Created(info, m.messages.Format(types.MsgFileCreated, types.MessageArgs{Source: source, Path: path}))
}

func (m *Manager) Delete(ctx context.Context, source, path string, params Params) types.OperationResult[bool] {
	b, err := m.Backend(source)
	if err != nil {
		return failResult[bool](m, source, path, err)
	}
	if err := b.Delete(ctx, path, params); err != nil {
		return failResult[bool](m, source, path, err)
	}
	m.logger.WithFields(logrus.Fields{"source": source, "path": path}).Info("File deleted")
	return types.Ok(true, m.messages.Format(types.MsgFileDeleted, types.MessageArgs{Source: source, Path: path}))
}

func failResult[T any](m *Manager, source, path string, err error) types.OperationResult[T] {
	code, key := http.StatusInternalServerError, types.MsgFileOperationError
	switch {
	case errors.Is(err, ErrUnknownSource):
		code, key = http.StatusNotFound, types.MsgUnknownSource
	case errors.Is(err, ErrNotFound):
		code, key = http.StatusNotFound, types.MsgFileNotFound
	case errors.Is(err, ErrBucketRequired):
		code, key = http.StatusBadRequest, types.MsgBucketRequired
	case errors.Is(err, ErrInvalidPath):
		code, key = http.StatusBadRequest, types.MsgInvalidPath
	case errors.Is(err, context.DeadlineExceeded):
		code, key = http.StatusRequestTimeout, types.MsgTimeout
	}
	msg := m.messages.Format(key, types.MessageArgs{Source: source, Path: path, Error: err.Error()})
	entry := m.logger.WithFields(logrus.Fields{"source": source, "path": path, "code": code}).WithError(err)
	if code >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}
	return types.Fail[T](code, msg)
}
