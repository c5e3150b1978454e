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
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBackend serves files below a root folder. Listing pages are ordered
// by name and the continuation token is the last name returned.
type LocalBackend struct {
	root string
}

func NewLocalBackend(cfg SourceConfig) (Backend, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("local source %q has no root", cfg.Name)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root of source %q: %w", cfg.Name, err)
	}
	return &LocalBackend{root: root}, nil
}

// resolve maps a slash separated path onto the file system. Paths escaping
// the root are rejected.
func (b *LocalBackend) resolve(p string) (string, string, error) {
	slashed := strings.ReplaceAll(p, "\\", "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", "", ErrInvalidPath
		}
	}
	rel := strings.Trim(path.Clean("/"+slashed), "/")
	full := filepath.Join(b.root, filepath.FromSlash(rel))
	if r, err := filepath.Rel(b.root, full); err != nil || strings.HasPrefix(r, "..") {
		return "", "", ErrInvalidPath
	}
	return full, rel, nil
}

func (b *LocalBackend) List(_ context.Context, p string, opts ListOptions, _ Params) (*Listing, error) {
	full, rel, err := b.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, notFound(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	listing := &Listing{Path: rel, Directories: []FileInfo{}, Files: []FileInfo{}}
	limit := opts.size()
	count, last := 0, ""
	for _, e := range entries {
		if opts.ContinuationToken != "" && e.Name() <= opts.ContinuationToken {
			continue
		}
		if count == limit {
			listing.NextToken = last
			break
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fi := localInfo(path.Join(rel, e.Name()), info)
		if fi.IsDir {
			listing.Directories = append(listing.Directories, fi)
		} else {
			listing.Files = append(listing.Files, fi)
		}
		count++
		last = e.Name()
	}
	return listing, nil
}

func (b *LocalBackend) Read(_ context.Context, p string, _ Params) (*File, error) {
	full, rel, err := b.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, notFound(err)
	}
	if info.IsDir() {
		return nil, ErrInvalidPath
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, notFound(err)
	}
	fi := localInfo(rel, info)
	if fi.ContentType == "" {
		fi.ContentType = http.DetectContentType(content)
	}
	return &File{Info: fi, Content: content}, nil
}

func (b *LocalBackend) Create(_ context.Context, p string, body io.Reader, _ int64, _ string, _ Params) (*FileInfo, error) {
	if isDirPath(p) {
		return nil, ErrInvalidPath
	}
	full, rel, err := b.resolve(p)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, ErrInvalidPath
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	fi := localInfo(rel, info)
	return &fi, nil
}

func (b *LocalBackend) Delete(_ context.Context, p string, _ Params) error {
	full, rel, err := b.resolve(p)
	if err != nil {
		return err
	}
	if rel == "" {
		return ErrInvalidPath
	}
	info, err := os.Stat(full)
	if err != nil {
		return notFound(err)
	}
	if isDirPath(p) {
		if !info.IsDir() {
			return ErrNotFound
		}
		return os.RemoveAll(full)
	}
	if info.IsDir() {
		return ErrInvalidPath
	}
	return os.Remove(full)
}

func localInfo(rel string, info fs.FileInfo) FileInfo {
	fi := FileInfo{
		Name:       info.Name(),
		Path:       rel,
		ModifiedAt: info.ModTime().UTC(),
		IsDir:      info.IsDir(),
	}
	if !fi.IsDir {
		fi.Size = info.Size()
		fi.ContentType = mime.TypeByExtension(filepath.Ext(fi.Name))
	}
	return fi
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
