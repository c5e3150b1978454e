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
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tomoncle/crudkit/types"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export sends the requested page as an xlsx workbook, one row per item.
func (rc *ReadController[D, ID]) Export(c *fiber.Ctx) error {
	req, err := ParsePageRequest(c, rc.manager.HasColumn)
	if err != nil {
		return badRequest(c, rc.messages(), err)
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), rc.timeout)
	defer cancel()

	res := rc.manager.GetPage(ctx, req)
	if !res.Success {
		return Send(c, res)
	}
	buf, err := WriteWorkbook(rc.name, res.Data.Items)
	if err != nil {
		return Send(c, types.Fail[any](fiber.StatusInternalServerError,
			rc.messages().Format(types.MsgReadFailed, types.MessageArgs{Entity: rc.name, Error: err.Error()})))
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, rc.name))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// WriteWorkbook renders items into a single sheet named after the resource.
// Columns follow the json names of D; nested values are written as JSON.
func WriteWorkbook[D any](name string, items []*D) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(name)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		row := map[string]interface{}{}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	columns := exportColumns(reflect.TypeOf((*D)(nil)).Elem(), rows)

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for r, row := range rows {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	return f.WriteToBuffer()
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "Sheet1"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

// exportColumns lists the json names of t in declaration order, then any
// other key found in rows in sorted order.
func exportColumns(t reflect.Type, rows []map[string]interface{}) []string {
	columns := jsonNames(t)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	extra := make([]string, 0)
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func jsonNames(t reflect.Type) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" {
			names = append(names, jsonNames(f.Type)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if tag == "" {
			tag = f.Name
		}
		names = append(names, tag)
	}
	return names
}

func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case json.Number:
		// integers beyond 2^53 lose precision as spreadsheet numbers
		if i, err := val.Int64(); err == nil && i < 1<<53 && i > -(1<<53) {
			return i
		}
		if _, err := val.Int64(); err == nil {
			return val.String()
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return val
	}
}
