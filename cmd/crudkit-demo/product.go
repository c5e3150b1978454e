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

package main

import (
	"time"

	"github.com/tomoncle/crudkit/types"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is the stored row. Removal only flags it.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID    int64           `bun:"id,pk" json:"id"`
	SKU   string          `bun:"sku,notnull,unique" json:"sku"`
	Name  string          `bun:"name,notnull" json:"name"`
	Price decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	Stock int             `bun:"stock,notnull,default:0" json:"stock"`
	types.TrackedModel
	types.SoftDeleteModel
}

// ProductDTO is the API shape of a product.
type ProductDTO struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock" validate:"gte=0"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
