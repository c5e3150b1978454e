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
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SoftDeleteColumn is the flag column used by soft-removable models.
const SoftDeleteColumn = "is_deleted"

// Identifiable is implemented by entities that expose their primary key.
type Identifiable[ID comparable] interface {
	GetID() ID
}

// SoftRemovable is implemented by entities that are flagged instead of deleted.
type SoftRemovable interface {
	IsRemoved() bool
	MarkRemoved(at time.Time)
	Restore()
}

// Trackable is implemented by entities carrying audit timestamps.
type Trackable interface {
	Touch(now time.Time, created bool)
	GetCreatedAt() time.Time
	SetCreatedAt(at time.Time)
}

// SoftDeleteModel is embedded by entities to make them SoftRemovable.
type SoftDeleteModel struct {
	IsDeleted bool       `bun:"is_deleted,notnull,default:false" json:"-"`
	DeletedAt *time.Time `bun:"deleted_at,nullzero" json:"-"`
}

func (m *SoftDeleteModel) IsRemoved() bool { return m.IsDeleted }

func (m *SoftDeleteModel) MarkRemoved(at time.Time) {
	m.IsDeleted = true
	m.DeletedAt = &at
}

func (m *SoftDeleteModel) Restore() {
	m.IsDeleted = false
	m.DeletedAt = nil
}

// TrackedModel is embedded by entities to make them Trackable.
type TrackedModel struct {
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

func (m *TrackedModel) Touch(now time.Time, created bool) {
	if created || m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

func (m *TrackedModel) GetCreatedAt() time.Time { return m.CreatedAt }

func (m *TrackedModel) SetCreatedAt(at time.Time) { m.CreatedAt = at }

var (
	idNodeOnce sync.Once
	idNode     *snowflake.Node
	idNodeErr  error
	idNodeNum  int64 = 1
)

// SetIDNode selects the snowflake node number. It must be called before the
// first NextID call to take effect.
func SetIDNode(node int64) {
	idNodeNum = node
}

// NextID returns a new snowflake identifier for int64 primary keys.
func NextID() (int64, error) {
	idNodeOnce.Do(func() {
		idNode, idNodeErr = snowflake.NewNode(idNodeNum)
	})
	if idNodeErr != nil {
		return 0, idNodeErr
	}
	return idNode.Generate().Int64(), nil
}
