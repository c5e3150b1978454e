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

package crudkit

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
)

// Mapper converts between an entity E and its DTO D.
type Mapper[E any, D any] interface {
	// ToDTO builds a new DTO from entity.
	ToDTO(entity *E) (*D, error)
	// Apply writes the DTO fields onto an existing or zero entity. Entity
	// fields without a DTO counterpart are left untouched.
	Apply(dst *E, dto *D) error
}

// ToEntity builds a fresh entity from dto with m.
func ToEntity[E any, D any](m Mapper[E, D], dto *D) (*E, error) {
	entity := new(E)
	if err := m.Apply(entity, dto); err != nil {
		return nil, err
	}
	return entity, nil
}

// CopyMapper copies same-named fields by reflection.
type CopyMapper[E any, D any] struct{}

func (CopyMapper[E, D]) ToDTO(entity *E) (*D, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	dto := new(D)
	if err := deepcopy.Copy(dto, entity); err != nil {
		return nil, fmt.Errorf("failed to copy entity to dto: %w", err)
	}
	return dto, nil
}

func (CopyMapper[E, D]) Apply(dst *E, dto *D) error {
	if dto == nil {
		return fmt.Errorf("dto cannot be nil")
	}
	if err := deepcopy.Copy(dst, dto); err != nil {
		return fmt.Errorf("failed to copy dto to entity: %w", err)
	}
	return nil
}

// JSONMapper converts through the JSON encoding of each side, so json tags
// decide which fields correspond. Use it when the DTO renames fields or
// carries types such as decimals that marshal to JSON natively.
type JSONMapper[E any, D any] struct{}

func (JSONMapper[E, D]) ToDTO(entity *E) (*D, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	dto := new(D)
	if err := json.Unmarshal(raw, dto); err != nil {
		return nil, fmt.Errorf("failed to decode dto: %w", err)
	}
	return dto, nil
}

func (JSONMapper[E, D]) Apply(dst *E, dto *D) error {
	if dto == nil {
		return fmt.Errorf("dto cannot be nil")
	}
	raw, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("failed to encode dto: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode entity: %w", err)
	}
	return nil
}

// FuncMapper delegates to caller-supplied conversion functions.
type FuncMapper[E any, D any] struct {
	ToDTOFunc func(entity *E) (*D, error)
	ApplyFunc func(dst *E, dto *D) error
}

func (m FuncMapper[E, D]) ToDTO(entity *E) (*D, error) {
	return m.ToDTOFunc(entity)
}

func (m FuncMapper[E, D]) Apply(dst *E, dto *D) error {
	return m.ApplyFunc(dst, dto)
}
