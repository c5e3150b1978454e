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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type note struct {
	bun.BaseModel `bun:"table:notes"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Body string `bun:"body,notnull"`
}

type tag struct {
	bun.BaseModel `bun:"table:tags"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

func memoryConfig(name string) *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.SlowQueryTime = 0
	return cfg
}

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"no rows", fmt.Errorf("wrapped: %w", sql.ErrNoRows), true, NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true, DuplicateKeyErr},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, true, ForeignKeyViolationErr},
		{"mysql too long", &mysql.MySQLError{Number: 1406}, true, DataTruncatedErr},
		{"mysql other", &mysql.MySQLError{Number: 9999}, true, UnknownErr},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true, DuplicateKeyErr},
		{"pgx not null", &pgconn.PgError{Code: "23502"}, true, NotNullViolationErr},
		{"pq fk", &pq.Error{Code: "23503"}, true, ForeignKeyViolationErr},
		{"pq bad text", &pq.Error{Code: "22P02"}, true, InvalidTypeCastErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: tags.name (2067)"), true, DuplicateKeyErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: notes.body"), true, NotNullViolationErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: ghosts (1)"), true, NoTableErr},
		{"plain", errors.New("connection refused"), false, UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is, kind := IsSqlError(tc.err)
			assert.Equal(t, tc.is, is)
			assert.Equal(t, tc.kind, kind, kind.String())
		})
	}
}

func TestSqliteDSN(t *testing.T) {
	dsn, memory := sqliteDSN("")
	assert.Equal(t, "file::memory:?cache=shared", dsn)
	assert.True(t, memory)

	dsn, memory = sqliteDSN("data/app")
	assert.Equal(t, "data/app.db", dsn)
	assert.False(t, memory)

	dsn, _ = sqliteDSN("app.db")
	assert.Equal(t, "app.db", dsn)
	assert.Equal(t, "pgx", postgresDriverName("PGX"))
	assert.Equal(t, "postgres", postgresDriverName(""))
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	dm := NewDatabaseManager(memoryConfig("lifecycle"))
	require.NoError(t, dm.Connect(ctx))
	require.NoError(t, dm.Connect(ctx))
	require.NotNil(t, dm.GetDB())
	require.NoError(t, dm.Ping(ctx))

	status := dm.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.MaxOpenConns)
	assert.Equal(t, 1, dm.GetStats().MaxOpenConns)

	require.NoError(t, dm.Reconnect(ctx))
	require.NoError(t, dm.Disconnect())
	assert.Nil(t, dm.GetDB())
	assert.Error(t, dm.Ping(ctx))
	assert.False(t, dm.HealthCheck(ctx).Healthy)
}

func TestUnsupportedType(t *testing.T) {
	_, err := NewDatabaseFactory().CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	assert.Error(t, err)

	dm := NewDatabaseManager(&ConnectionConfig{Type: "oracle"})
	assert.Error(t, dm.Connect(context.Background()))
}

func TestMigrationManager(t *testing.T) {
	ctx := context.Background()
	dm := NewDatabaseManager(memoryConfig("migrations"))
	require.NoError(t, dm.Connect(ctx))
	defer func() { _ = dm.Disconnect() }()

	registry := NewModelRegistry()
	registry.Register(NewModelAdapter((*tag)(nil), 2))
	registry.Register(NewModelAdapter((*note)(nil), 1))
	registry.Register(NewModelAdapter((*note)(nil), 5))
	require.Len(t, registry.Models(), 2)
	assert.Equal(t, (*note)(nil), registry.Instances()[0])

	var seeded int
	mm := NewMigrationManager(dm.GetDB(), nil).WithRegistry(registry).
		AddMigration(MigrationItem{
			Version: "100_seed_tags",
			Name:    "seed_tags",
			Up: func(ctx context.Context, db bun.IDB) error {
				seeded++
				_, err := db.NewInsert().Model(&tag{Name: "default"}).Exec(ctx)
				return err
			},
		})
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))
	assert.Equal(t, 1, seeded)

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "000_create_notes", applied[0].Version)
	assert.Equal(t, "000_create_tags", applied[1].Version)
	assert.Equal(t, "100_seed_tags", applied[2].Version)

	count, err := dm.GetDB().NewSelect().Model((*tag)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	dm := NewDatabaseManager(memoryConfig("rollback"))
	require.NoError(t, dm.Connect(ctx))
	defer func() { _ = dm.Disconnect() }()

	mm := NewMigrationManager(dm.GetDB(), nil).WithRegistry(NewModelRegistry()).
		AddMigration(MigrationItem{
			Version: "001_broken",
			Up: func(ctx context.Context, db bun.IDB) error {
				return errors.New("boom")
			},
		})
	assert.Error(t, mm.RunMigrations(ctx))
	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestInitDB(t *testing.T) {
	ctx := context.Background()
	RegisterModel((*note)(nil), 0)
	db, err := InitDB(ctx, &Config{
		ConnectionConfig:  *memoryConfig("global"),
		DataMigrateConfig: DataMigrateConfig{EnableMigrateOnStartup: true},
	})
	require.NoError(t, err)
	assert.Same(t, db, GetDB())
	assert.True(t, GetHealthStatus(ctx).Healthy)

	_, err = db.NewInsert().Model(&note{Body: "hi"}).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, GetHealthStatus(ctx).Healthy)
	assert.Equal(t, &DBStats{}, GetDatabaseStats())
}

func TestQueryHook(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	hook := NewQueryHook(&buf)
	event := &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()}

	hook.AfterQuery(context.Background(), event)
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	EnableBunSqlSilent(true)
	hook.AfterQuery(context.Background(), event)
	EnableBunSqlSilent(false)
	assert.Empty(t, buf.String())

	buf.Reset()
	t.Setenv(QueryLogEnv, "1")
	hook.AfterQuery(context.Background(), event)
	assert.Empty(t, buf.String())
	event.Err = errors.New("syntax error")
	hook.AfterQuery(context.Background(), event)
	assert.Contains(t, buf.String(), "syntax error")
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) SetLevel(LogLevel) {}
func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{}) {}
func (l *recordingLogger) Error(string, ...interface{}) {}
func (l *recordingLogger) Warn(msg string, _ ...interface{}) { l.warnings = append(l.warnings, msg) }

func TestSlowQueryHook(t *testing.T) {
	log := &recordingLogger{}
	hook := NewSlowQueryHook(time.Millisecond, log)
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(time.Minute)})
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 3", StartTime: time.Now().Add(-time.Second), Err: errors.New("x")})
	assert.Len(t, log.warnings, 1)
}

func TestToFields(t *testing.T) {
	fields := toFields([]interface{}{"a", 1, "b"})
	assert.Len(t, fields, 1)
	assert.Equal(t, 1, fields["a"])
}
