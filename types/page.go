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
	"strings"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 1000

	// MaxPage keeps the row offset of any page within int.
	MaxPage = math.MaxInt/MaxPageSize + 1
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// And joins two filters with AND. Either side may be nil.
func (f *QueryFilter) And(other *QueryFilter) *QueryFilter {
	if f == nil || f.Schema == "" {
		return other
	}
	if other == nil || other.Schema == "" {
		return f
	}
	args := make([]interface{}, 0, len(f.Args)+len(other.Args))
	args = append(args, f.Args...)
	args = append(args, other.Args...)
	return &QueryFilter{Schema: "(" + f.Schema + ") AND (" + other.Schema + ")", Args: args}
}

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	if p.pageSize > MaxPageSize {
		p.pageSize = MaxPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPage
	}
	if p.page > MaxPage {
		p.page = MaxPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// WithFilter returns a copy of the request whose filter is ANDed with f.
func (p *PageRequest) WithFilter(f *QueryFilter) *PageRequest {
	return &PageRequest{p.page, p.pageSize, p.filter.And(f), p.orders}
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(page, pageSize, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// PagedData holds one page of items along with pagination metadata.
type PagedData[T any] struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	Items      []*T `json:"items"`
}

// NewPagedData constructs a page and derives its page count.
func NewPagedData[T any](page int, pageSize int, total int, items []*T) *PagedData[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &PagedData[T]{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: TotalPages(total, pageSize),
		Items:      items,
	}
}

// NewEmptyPagedData constructs an empty page container.
func NewEmptyPagedData[T any](page int, pageSize int) *PagedData[T] {
	return NewPagedData[T](page, pageSize, 0, nil)
}

// TotalPages returns ceil(total/pageSize), or 0 for an empty set.
func TotalPages(total int, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// MapPagedData converts the items of a page while keeping its metadata.
func MapPagedData[S any, T any](src *PagedData[S], fn func(*S) (*T, error)) (*PagedData[T], error) {
	items := make([]*T, 0, len(src.Items))
	for _, it := range src.Items {
		v, err := fn(it)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return &PagedData[T]{
		Page:       src.Page,
		PageSize:   src.PageSize,
		Total:      src.Total,
		TotalPages: src.TotalPages,
		Items:      items,
	}, nil
}

// OrderClause renders a column and direction as an ORDER BY fragment.
func OrderClause(column string, dir SortDirection) string {
	return strings.TrimSpace(column) + " " + dir.String()
}
