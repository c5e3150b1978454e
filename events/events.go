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

// Package events publishes entity change notifications after successful writes.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	sdk "github.com/segmentio/kafka-go"
)

type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionRestored Action = "restored"
)

// ChangeEvent describes one written entity.
type ChangeEvent struct {
	Resource string      `json:"resource"`
	Action   Action      `json:"action"`
	ID       interface{} `json:"id"`
	Payload  interface{} `json:"payload,omitempty"`
	At       time.Time   `json:"at"`
}

// Key is the partition key: events of one entity stay ordered.
func (e ChangeEvent) Key() string {
	return fmt.Sprintf("%s:%v", e.Resource, e.ID)
}

type Publisher interface {
	Publish(ctx context.Context, events ...ChangeEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...ChangeEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// KafkaParams configures NewKafkaPublisher.
type KafkaParams struct {
	Brokers []string
	Topic   string
	// BatchTimeout bounds how long the writer buffers before flushing.
	BatchTimeout time.Duration
}

func (p KafkaParams) Validate() error {
	if len(p.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if p.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...sdk.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by resource:id.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(p KafkaParams) (*KafkaPublisher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	batchTimeout := p.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writer := &sdk.Writer{
		Addr:         sdk.TCP(p.Brokers...),
		Topic:        p.Topic,
		RequiredAcks: sdk.RequireAll,
		Balancer:     &sdk.Hash{},
		BatchTimeout: batchTimeout,
	}
	return &KafkaPublisher{writer: writer}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]sdk.Message, 0, len(events))
	for _, e := range events {
		msg, err := ToMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d event(s): %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ToMessage serializes e into a kafka message with an action header.
func ToMessage(e ChangeEvent) (sdk.Message, error) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return sdk.Message{}, fmt.Errorf("failed to serialize %s event: %w", e.Resource, err)
	}
	return sdk.Message{
		Key:     []byte(e.Key()),
		Value:   value,
		Time:    e.At,
		Headers: []sdk.Header{{Key: "action", Value: []byte(e.Action)}},
	}, nil
}
