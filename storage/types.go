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
	"io"
	"strings"
	"time"

	"github.com/tomoncle/crudkit/types"
)

// SourceType selects the backend serving a source.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceS3    SourceType = "s3"
	SourceMinio SourceType = "minio"
)

// BucketParam is the additional parameter overriding a source's bucket.
const BucketParam = "bucket"

const (
	DefaultListSize = 100
	MaxListSize     = 1000
)

var (
	ErrNotFound       = errors.New("file not found")
	ErrUnknownSource  = errors.New("unknown storage source")
	ErrBucketRequired = errors.New("bucket is required")
	ErrInvalidPath    = errors.New("invalid path")
)

// SourceConfig describes one named storage source.
type SourceConfig struct {
	Name string     `yaml:"name" json:"name"`
	Type SourceType `yaml:"type" json:"type"`
	// Root is the base folder of a local source.
	Root      string `yaml:"root" json:"root,omitempty"`
	Endpoint  string `yaml:"endpoint" json:"endpoint,omitempty"`
	Region    string `yaml:"region" json:"region,omitempty"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	// Bucket is used when a call carries no bucket parameter.
	Bucket    string `yaml:"bucket" json:"bucket,omitempty"`
	UseSSL    bool   `yaml:"use_ssl" json:"useSSL"`
	PathStyle bool   `yaml:"path_style" json:"pathStyle"`
}

type FileInfo struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt,omitempty"`
	IsDir       bool      `json:"isDir"`
}

// Listing is one page of a folder or pseudo-directory.
type Listing struct {
	Path        string     `json:"path"`
	Directories []FileInfo `json:"directories"`
	Files       []FileInfo `json:"files"`
	// NextToken is empty on the last page.
	NextToken string `json:"nextToken,omitempty"`
}

type File struct {
	Info    FileInfo `json:"info"`
	Content []byte   `json:"content"`
}

type ListOptions struct {
	PageSize          int
	ContinuationToken string
}

func (o ListOptions) size() int {
	switch {
	case o.PageSize < 1:
		return DefaultListSize
	case o.PageSize > MaxListSize:
		return MaxListSize
	default:
		return o.PageSize
	}
}

// Params carries backend specific parameters such as the bucket.
type Params map[string]string

// FileManager is the file operation contract served for every source.
type FileManager interface {
	List(ctx context.Context, source, path string, opts ListOptions, params Params) types.OperationResult[*Listing]
	Read(ctx context.Context, source, path string, params Params) types.OperationResult[*File]
	Create(ctx context.Context, source, path string, body io.Reader, size int64, contentType string, params Params) types.OperationResult[*FileInfo]
	// Delete removes a file, or a whole folder when path ends with "/".
	Delete(ctx context.Context, source, path string, params Params) types.OperationResult[bool]
}

// Backend is a client bound to one source.
type Backend interface {
	List(ctx context.Context, path string, opts ListOptions, params Params) (*Listing, error)
	Read(ctx context.Context, path string, params Params) (*File, error)
	Create(ctx context.Context, path string, body io.Reader, size int64, contentType string, params Params) (*FileInfo, error)
	Delete(ctx context.Context, path string, params Params) error
}

// BackendFactory builds the client of a source.
type BackendFactory func(cfg SourceConfig) (Backend, error)

// dirPrefix turns a folder path into an object key prefix: "" or "a/b/".
func dirPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// objectKey normalizes a file path into an object key.
func objectKey(p string) (string, error) {
	key := strings.Trim(strings.TrimSpace(p), "/")
	if key == "" {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	return key, nil
}

func isDirPath(p string) bool {
	return strings.HasSuffix(p, "/")
}

// baseName is the last segment of a key, without any trailing slash.
func baseName(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func bucketOf(cfg SourceConfig, params Params) (string, error) {
	if b := strings.TrimSpace(params[BucketParam]); b != "" {
		return b, nil
	}
	if cfg.Bucket != "" {
		return cfg.Bucket, nil
	}
	return "", ErrBucketRequired
}
