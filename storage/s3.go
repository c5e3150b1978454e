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
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	s3Delimiter     = "/"
	s3DeleteBatch   = 1000
	s3DefaultRegion = "us-east-1"
)

// s3API is the part of *s3.Client used by S3Backend.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Backend serves an S3 compatible object store. Folders are key prefixes
// and listings page through ListObjectsV2 continuation tokens.
type S3Backend struct {
	client s3API
	cfg    SourceConfig
}

func NewS3Backend(cfg SourceConfig) (Backend, error) {
	region := cfg.Region
	if region == "" {
		region = s3DefaultRegion
	}
	awsCfg := aws.Config{Region: region}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Backend{client: client, cfg: cfg}, nil
}

func endpointURL(endpoint string, ssl bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if ssl {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (b *S3Backend) List(ctx context.Context, p string, opts ListOptions, params Params) (*Listing, error) {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return nil, err
	}
	prefix := dirPrefix(p)
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(s3Delimiter),
		MaxKeys:   aws.Int32(int32(opts.size())),
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	out, err := b.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, s3Error(err)
	}

	listing := &Listing{Path: strings.TrimSuffix(prefix, "/"), Directories: []FileInfo{}, Files: []FileInfo{}}
	for _, cp := range out.CommonPrefixes {
		key := aws.ToString(cp.Prefix)
		listing.Directories = append(listing.Directories, FileInfo{
			Name:  baseName(key),
			Path:  strings.TrimSuffix(key, "/"),
			IsDir: true,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// folder placeholder objects
		if key == prefix || strings.HasSuffix(key, "/") {
			continue
		}
		listing.Files = append(listing.Files, FileInfo{
			Name:       baseName(key),
			Path:       key,
			Size:       aws.ToInt64(obj.Size),
			ModifiedAt: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		listing.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return listing, nil
}

func (b *S3Backend) Read(ctx context.Context, p string, params Params) (*File, error) {
	bucket, err := bucketOf(b.cfg, params)
	if err != nil {
		return nil, err
	}
	key, err := objectKey(p)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, s3Error(err)
	}
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return &File{
		Info: FileInfo{
			Name:        baseName(key),
			Path:        key,
			Size:        int64(len(content)),
			ContentType: aws.ToString(out.ContentType),
			ModifiedAt:  aws.ToTime(out.LastModified),
		},
		Content: content,
	}, nil
}

func (b *S3Backend) Create(ctx context.Context, p string, body io.Reader, size int64, contentType string, params Params) (*FileInfo, error) {
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
	in := &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: body}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return nil, s3Error(err)
	}
	return &FileInfo{Name: baseName(key), Path: key, Size: size, ContentType: contentType}, nil
}

func (b *S3Backend) Delete(ctx context.Context, p string, params Params) error {
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
	// DeleteObject succeeds for missing keys
	if _, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return s3Error(err)
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return s3Error(err)
}

func (b *S3Backend) deletePrefix(ctx context.Context, bucket, prefix string) error {
	if prefix == "" {
		return ErrInvalidPath
	}
	var token *string
	deleted := 0
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(s3DeleteBatch),
			ContinuationToken: token,
		})
		if err != nil {
			return s3Error(err)
		}
		if len(out.Contents) > 0 {
			ids := make([]s3types.ObjectIdentifier, 0, len(out.Contents))
			for _, obj := range out.Contents {
				ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
			}
			res, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return s3Error(err)
			}
			if len(res.Errors) > 0 {
				e := res.Errors[0]
				return fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
			}
			deleted += len(ids)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func s3Error(err error) error {
	if err == nil {
		return nil
	}
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return err
}
