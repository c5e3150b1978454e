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

package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomoncle/crudkit/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Query parameter names of paged endpoints.
const (
	QueryPage   = "page"
	QuerySize   = "size"
	QuerySort   = "sort"
	QueryFilter = "filter"
)

// IDParser converts the :id path segment into a key.
type IDParser[ID comparable] func(raw string) (ID, error)

func Int64ID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not an integer", raw)
	}
	return id, nil
}

func StringID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	return strings.Clone(raw), nil
}

func UUIDID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("id %q is not a uuid", raw)
	}
	return id, nil
}

var filterOps = map[string]string{
	"eq":   "? = ?",
	"ne":   "? <> ?",
	"gt":   "? > ?",
	"gte":  "? >= ?",
	"lt":   "? < ?",
	"lte":  "? <= ?",
	"like": "? LIKE ?",
	"in":   "? IN (?)",
}

// ParseSort reads "name,-price,created_at:desc" into ORDER BY fragments.
// Every field must satisfy allowed.
func ParseSort(raw string, allowed func(string) bool) ([]string, error) {
	orders := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir := part, types.SortAsc
		if strings.HasPrefix(field, "-") {
			field, dir = field[1:], types.SortDesc
		} else if i := strings.Index(field, ":"); i >= 0 {
			d, ok := types.ParseSortDirection(field[i+1:])
			if !ok {
				return nil, fmt.Errorf("invalid sort direction in %q", part)
			}
			field, dir = field[:i], d
		}
		if !allowed(field) {
			return nil, fmt.Errorf("cannot sort by %q", field)
		}
		orders = append(orders, types.OrderClause(field, dir))
	}
	return orders, nil
}

// ParseFilter reads "field:op:value" conditions separated by commas and
// joins them with AND. Values of the in operator are separated by "|".
func ParseFilter(raw string, allowed func(string) bool) (*types.QueryFilter, error) {
	var filter *types.QueryFilter
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.SplitN(part, ":", 3)
		if len(pieces) != 3 {
			return nil, fmt.Errorf("filter %q must look like field:op:value", part)
		}
		field, op, value := strings.TrimSpace(pieces[0]), strings.ToLower(strings.TrimSpace(pieces[1])), pieces[2]
		schema, ok := filterOps[op]
		if !ok {
			return nil, fmt.Errorf("unknown filter operator %q", op)
		}
		if !allowed(field) {
			return nil, fmt.Errorf("cannot filter by %q", field)
		}
		var arg interface{} = value
		if op == "in" {
			arg = bun.In(strings.Split(value, "|"))
		}
		filter = filter.And(types.NewQueryFilter(schema, bun.Ident(field), arg))
	}
	return filter, nil
}

// ParsePageRequest reads page, size, sort and filter from the query string.
func ParsePageRequest(c *fiber.Ctx, allowed func(string) bool) (*types.PageRequest, error) {
	page, err := queryInt(c, QueryPage, types.DefaultPage)
	if err != nil {
		return nil, err
	}
	if page > types.MaxPage {
		return nil, fmt.Errorf("query parameter %s must not exceed %d", QueryPage, types.MaxPage)
	}
	size, err := queryInt(c, QuerySize, types.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	orders, err := ParseSort(utils.CopyString(c.Query(QuerySort)), allowed)
	if err != nil {
		return nil, err
	}
	filter, err := ParseFilter(utils.CopyString(c.Query(QueryFilter)), allowed)
	if err != nil {
		return nil, err
	}
	return types.NewPageRequest(page, size, filter, orders), nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer", key)
	}
	return v, nil
}
