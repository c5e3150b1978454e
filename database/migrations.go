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
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager creates tables for registered models and runs custom
// migrations, recording each applied version in crudkit_migrations.
type MigrationManager struct {
	db       *bun.DB
	logger   Logger
	registry ModelRegistry
	custom   []MigrationItem
}

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:crudkit_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, registry: defaultRegistry}
}

func (mm *MigrationManager) WithRegistry(r ModelRegistry) *MigrationManager {
	if r != nil {
		mm.registry = r
	}
	return mm
}

// AddMigration queues a custom migration; versions sort after table creation.
func (mm *MigrationManager) AddMigration(item MigrationItem) *MigrationManager {
	mm.custom = append(mm.custom, item)
	return mm
}

// RunMigrations applies every migration that has no record yet.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range mm.migrations() {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed")
	return nil
}

// migrations lists one create-table step per registered model, in registry
// order, followed by the custom migrations sorted by version.
func (mm *MigrationManager) migrations() []MigrationItem {
	var items []MigrationItem
	for _, instance := range mm.registry.Instances() {
		model := instance
		table := mm.db.Table(reflectType(model))
		items = append(items, MigrationItem{
			Version:     "000_create_" + table.Name,
			Name:        "create_table_" + table.Name,
			Description: fmt.Sprintf("Create table %s", table.Name),
			Up: func(ctx context.Context, db bun.IDB) error {
				_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
				return err
			},
		})
	}
	custom := make([]MigrationItem, len(mm.custom))
	copy(custom, mm.custom)
	sort.SliceStable(custom, func(i, j int) bool { return custom[i].Version < custom[j].Version })
	return append(items, custom...)
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
