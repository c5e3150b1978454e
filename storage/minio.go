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
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI narrows *minio.Client to what MinioBackend calls. The lazy
// *minio.Object of GetObject is resolved by the adapter.
type minioAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, minio.ObjectInfo, error)
	StatObject(ctx context.Context, bucket, key string) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

type minioClient struct {
	client *minio.Client
}

func (c minioClient) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return c.client.ListObjects(ctx, bucket, opts)
}

func (c minioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, minio.ObjectInfo, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

func (c minioClient) StatObject(ctx context.Context, bucket, key string) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
}

func (c minioClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	return c.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
}

func (c minioClient) RemoveObject(ctx context.Context, bucket, key string) error {
	return c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// MinioBackend serves a MinIO server. Listing pages resume after the last
// returned key (StartAfter).
type MinioBackend struct {
	client minioAPI
	cfg    SourceConfig
}

func NewMinioBackend(cfg SourceConfig) (Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio source %q has no endpoint", cfg.Name)
	}
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if i := strings.Index(endpoint, "://"); i >= 0 {
		secure = strings.HasPrefix(endpoint, "https")
		endpoint = endpoint[i+3:]
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %q: %w", cfg.Name, err)
	}
	return &MinioBackend{client: minioClient{client: client}, cfg: cfg}, nil
}

func (b *MinioBackend) List(ctx context.Context, p string, opts ListOptions, params Params) (*Listing, error) {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return nil, err
	}
	prefix := dirPrefix(p)
	ctx, cancel := context.WithCancel(ctx)
	// stops the listing goroutine once the page is full
	defer cancel()

	objects := b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		StartAfter: opts.ContinuationToken,
		Recursive:  false,
	})
	listing := &Listing{Path: strings.TrimSuffix(prefix, "/"), Directories: []FileInfo{}, Files: []FileInfo{}}
	limit := opts.size()
	count, last := 0, ""
	for obj := range objects {
		if obj.Err != nil {
			return nil, minioError(obj.Err)
		}
		// a page ending on a directory resumes inside it, which lists it again
		if obj.Key == prefix || (opts.ContinuationToken != "" && obj.Key == opts.ContinuationToken) {
			continue
		}
		if count == limit {
			listing.NextToken = last
			break
		}
		if strings.HasSuffix(obj.Key, "/") {
			listing.Directories = append(listing.Directories, FileInfo{
				Name:  baseName(obj.Key),
				Path:  strings.TrimSuffix(obj.Key, "/"),
				IsDir: true,
			})
		} else {
			listing.Files = append(listing.Files, minioInfo(obj))
		}
		count++
		last = obj.Key
	}
	return listing, nil
}

func (b *MinioBackend) Read(ctx context.Context, p string, params Params) (*File, error) {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return nil, err
	}
	key, err := objectKey(p)
	if err != nil {
		return nil, err
	}
	body, info, err := b.client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, minioError(err)
	}
	defer body.Close()
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, minioError(err)
	}
	fi := minioInfo(info)
	fi.Size = int64(len(content))
	return &File{Info: fi, Content: content}, nil
}

func (b *MinioBackend) Create(ctx context.Context, p string, body io.Reader, size int64, contentType string, params Params) (*FileInfo, error) {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return nil, err
	}
	if isDirPath(p) {
		return nil, ErrInvalidPath
	}
	key, err := objectKey(p)
	if err != nil {
		return nil, err
	}
	up, err := b.client.PutObject(ctx, bucket, key, body, size, contentType)
	if err != nil {
		return nil, minioError(err)
	}
	return &FileInfo{
		Name:        baseName(key),
		Path:        key,
		Size:        up.Size,
		ContentType: contentType,
		ModifiedAt:  up.LastModified,
	}, nil
}

func (b *MinioBackend) Delete(ctx context.Context, p string, params Params) error {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return err
	}
	if isDirPath(p) {
		return b.deletePrefix(ctx, bucket, dirPrefix(p))
	}
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	if _, err := b.client.StatObject(ctx, bucket, key); err != nil {
		return minioError(err)
	}
	return minioError(b.client.RemoveObject(ctx, bucket, key))
}

func (b *MinioBackend) deletePrefix(ctx context.Context, bucket, prefix string) error {
	if prefix == "" {
		return ErrInvalidPath
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make([]string, 0)
	for obj := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return minioError(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return ErrNotFound
	}
	for _, key := range keys {
		if err := b.client.RemoveObject(ctx, bucket, key); err != nil {
			return minioError(err)
		}
	}
	return nil
}

func minioInfo(obj minio.ObjectInfo) FileInfo {
	return FileInfo{
		Name:        baseName(obj.Key),
		Path:        obj.Key,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		ModifiedAt:  obj.LastModified,
	}
}

func minioError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	case "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
