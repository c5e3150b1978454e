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
	"time"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/events"
	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"
)

type options struct {
	logger    database.Logger
	publisher events.Publisher
	messages  *types.MessageCatalog
	entity    string
	idGen     func() (any, error)
	now       func() time.Time
}

// Option customizes a manager.
type Option func(*options)

func WithLogger(l database.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublisher sends a change event after every successful write.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithMessages(c *types.MessageCatalog) Option {
	return func(o *options) { o.messages = c }
}

// WithEntityName sets the name used in messages and events; the table name
// is used otherwise.
func WithEntityName(name string) Option {
	return func(o *options) { o.entity = name }
}

// WithIDGenerator assigns keys to new entities whose primary key is zero.
func WithIDGenerator(gen func() (any, error)) Option {
	return func(o *options) { o.idGen = gen }
}

// SnowflakeIDs is an id generator backed by types.NextID.
func SnowflakeIDs() (any, error) {
	return types.NextID()
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

var defaultLogger = database.NewDefaultLogger(utils.NewLogger("CRUDKIT"))

func newOptions(opts []Option) *options {
	o := &options{
		logger:    defaultLogger,
		publisher: events.NopPublisher{},
		messages:  types.DefaultMessages(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
