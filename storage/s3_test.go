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
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectsOutput)
	return out, args.Error(1)
}

func newS3(bucket string) (*S3Backend, *mockS3) {
	m := &mockS3{}
	return &S3Backend{client: m, cfg: SourceConfig{Name: "s3", Type: SourceS3, Bucket: bucket}}, m
}

func TestS3BackendListGroupsPrefixes(t *testing.T) {
	b, m := newS3("default")
	m.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "photos" &&
			aws.ToString(in.Prefix) == "docs/" &&
			aws.ToString(in.Delimiter) == "/" &&
			aws.ToInt32(in.MaxKeys) == 2 &&
			aws.ToString(in.ContinuationToken) == "prev"
	})).Return(&s3.ListObjectsV2Output{
		CommonPrefixes: []s3types.CommonPrefix{{Prefix: aws.String("docs/img/")}},
		Contents: []s3types.Object{
			{Key: aws.String("docs/"), Size: aws.Int64(0)},
			{Key: aws.String("docs/a.txt"), Size: aws.Int64(5)},
		},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
	}, nil).Once()

	listing, err := b.List(context.Background(), "/docs", ListOptions{PageSize: 2, ContinuationToken: "prev"}, Params{BucketParam: "photos"})
	require.NoError(t, err)
	assert.Equal(t, "docs", listing.Path)
	require.Len(t, listing.Directories, 1)
	assert.Equal(t, FileInfo{Name: "img", Path: "docs/img", IsDir: true}, listing.Directories[0])
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "a.txt", listing.Files[0].Name)
	assert.EqualValues(t, 5, listing.Files[0].Size)
	assert.Equal(t, "next", listing.NextToken)
	m.AssertExpectations(t)
}

func TestS3BackendListLastPage(t *testing.T) {
	b, m := newS3("default")
	m.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "default" && aws.ToString(in.Prefix) == "" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []s3types.Object{{Key: aws.String("root.txt"), Size: aws.Int64(1)}},
		IsTruncated: aws.Bool(false),
	}, nil)

	listing, err := b.List(context.Background(), "", ListOptions{}, nil)
	require.NoError(t, err)
	assert.Empty(t, listing.NextToken)
	assert.Len(t, listing.Files, 1)
}

func TestS3BackendRequiresBucket(t *testing.T) {
	b, m := newS3("")
	_, err := b.List(context.Background(), "x", ListOptions{}, nil)
	assert.ErrorIs(t, err, ErrBucketRequired)
	_, err = b.Read(context.Background(), "x", Params{})
	assert.ErrorIs(t, err, ErrBucketRequired)
	m.AssertNotCalled(t, "ListObjectsV2", mock.Anything, mock.Anything)
}

func TestS3BackendRead(t *testing.T) {
	b, m := newS3("bucket")
	m.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "docs/a.txt"
	})).Return(&s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader("hello")),
		ContentType: aws.String("text/plain"),
	}, nil)
	m.On("GetObject", mock.Anything, mock.Anything).Return(nil, &s3types.NoSuchKey{})

	f, err := b.Read(context.Background(), "/docs/a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(f.Content))
	assert.Equal(t, "a.txt", f.Info.Name)
	assert.Equal(t, "text/plain", f.Info.ContentType)
	assert.EqualValues(t, 5, f.Info.Size)

	_, err = b.Read(context.Background(), "docs/missing.txt", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3BackendCreate(t *testing.T) {
	b, m := newS3("bucket")
	m.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "up/file.bin" &&
			aws.ToInt64(in.ContentLength) == 3 &&
			aws.ToString(in.ContentType) == "application/octet-stream"
	})).Return(&s3.PutObjectOutput{}, nil)

	info, err := b.Create(context.Background(), "up/file.bin", strings.NewReader("abc"), 3, "application/octet-stream", nil)
	require.NoError(t, err)
	assert.Equal(t, "file.bin", info.Name)
	assert.EqualValues(t, 3, info.Size)

	_, err = b.Create(context.Background(), "up/", strings.NewReader("abc"), 3, "", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
	m.AssertExpectations(t)
}

func TestS3BackendDeleteFile(t *testing.T) {
	b, m := newS3("bucket")
	m.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "a.txt"
	})).Return(&s3.HeadObjectOutput{}, nil)
	m.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &s3types.NotFound{})
	m.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, b.Delete(context.Background(), "a.txt", nil))
	assert.ErrorIs(t, b.Delete(context.Background(), "b.txt", nil), ErrNotFound)
	m.AssertExpectations(t)
}

func TestS3BackendDeletePrefixPages(t *testing.T) {
	b, m := newS3("bucket")
	m.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil && in.Delimiter == nil && aws.ToString(in.Prefix) == "tmp/"
	})).Return(&s3.ListObjectsV2Output{
		Contents:              []s3types.Object{{Key: aws.String("tmp/1")}, {Key: aws.String("tmp/2")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page2"),
	}, nil).Once()
	m.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "page2"
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []s3types.Object{{Key: aws.String("tmp/sub/3")}},
		IsTruncated: aws.Bool(false),
	}, nil).Once()
	var deleted []string
	m.On("DeleteObjects", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.DeleteObjectsInput)
		for _, id := range in.Delete.Objects {
			deleted = append(deleted, aws.ToString(id.Key))
		}
	}).Return(&s3.DeleteObjectsOutput{}, nil).Twice()

	require.NoError(t, b.Delete(context.Background(), "tmp/", nil))
	assert.Equal(t, []string{"tmp/1", "tmp/2", "tmp/sub/3"}, deleted)
	m.AssertExpectations(t)
}

func TestS3BackendDeleteEmptyPrefix(t *testing.T) {
	b, m := newS3("bucket")
	m.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}, nil)
	assert.ErrorIs(t, b.Delete(context.Background(), "nothing/", nil), ErrNotFound)
	assert.ErrorIs(t, b.Delete(context.Background(), "/", nil), ErrInvalidPath)
}

type apiError struct{ code string }

func (e apiError) Error() string     { return e.code }
func (e apiError) ErrorCode() string { return e.code }

func TestS3ErrorMapping(t *testing.T) {
	assert.NoError(t, s3Error(nil))
	assert.ErrorIs(t, s3Error(apiError{"NoSuchKey"}), ErrNotFound)
	assert.ErrorIs(t, s3Error(apiError{"NoSuchBucket"}), ErrNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, s3Error(other))
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
}

func TestNewS3Backend(t *testing.T) {
	b, err := NewS3Backend(SourceConfig{Name: "s3", Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", PathStyle: true})
	require.NoError(t, err)
	assert.IsType(t, &S3Backend{}, b)
}
