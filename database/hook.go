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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// QueryLogEnv overrides the query hook at runtime: "0" disables it,
// "1" logs failures only, "2" logs every query.
const QueryLogEnv = "CRUDKIT_SQL_LOG"

var silentMode atomic.Bool

// EnableBunSqlSilent mutes both hooks, e.g. while migrations run.
func EnableBunSqlSilent(b bool) {
	silentMode.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var (
	tagColor   = color.New(color.FgCyan)
	slowColor  = color.New(color.FgYellow, color.Bold)
	errorColor = color.New(color.BgRed, color.FgWhite)
	otherColor = color.New(color.FgRed)
)

// QueryHook prints every executed statement, colored by operation.
type QueryHook struct {
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(w io.Writer) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{verbose: true, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silentMode.Load() {
		return
	}
	verbose := h.verbose
	if env, ok := os.LookupEnv(QueryLogEnv); ok {
		if env == "" || env == "0" {
			return
		}
		verbose = env == "2"
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		tagColor.Sprintf("%8s", "[BUN]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		colorizeQuery(event),
	}
	if event.Err != nil {
		args = append(args, errorColor.Sprintf(" %s: %s ", reflect.TypeOf(event.Err).String(), event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func colorizeQuery(event *bun.QueryEvent) string {
	if c, ok := operationColors[event.Operation()]; ok {
		return c.Sprint(event.Query)
	}
	return otherColor.Sprint(event.Query)
}

// SlowQueryHook warns through the database logger when a successful query
// takes longer than the threshold.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{threshold: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silentMode.Load() || event.Err != nil {
		return
	}
	if duration := time.Since(event.StartTime); duration > h.threshold {
		h.logger.Warn(slowColor.Sprint("Database slow query detected"),
			"duration", duration.Round(time.Microsecond),
			"threshold", h.threshold,
			"query", event.Query,
		)
	}
}
