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
	"bytes"
	"fmt"
	"os"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// MessageKey identifies a message template in a MessageCatalog.
type MessageKey string

const (
	MsgEntityNotFound     MessageKey = "entity_not_found"
	MsgEntityFound        MessageKey = "entity_found"
	MsgEntitiesFound      MessageKey = "entities_found"
	MsgEntityCreated      MessageKey = "entity_created"
	MsgEntitiesCreated    MessageKey = "entities_created"
	MsgEntityUpdated      MessageKey = "entity_updated"
	MsgEntitiesUpdated    MessageKey = "entities_updated"
	MsgEntityDeleted      MessageKey = "entity_deleted"
	MsgEntitiesDeleted    MessageKey = "entities_deleted"
	MsgEntityRestored     MessageKey = "entity_restored"
	MsgEntityNotRemoved   MessageKey = "entity_not_removed"
	MsgCreateFailed       MessageKey = "create_failed"
	MsgUpdateFailed       MessageKey = "update_failed"
	MsgDeleteFailed       MessageKey = "delete_failed"
	MsgReadFailed         MessageKey = "read_failed"
	MsgDuplicateEntity    MessageKey = "duplicate_entity"
	MsgConflict           MessageKey = "conflict"
	MsgInvalidRequest     MessageKey = "invalid_request"
	MsgValidationFailed   MessageKey = "validation_failed"
	MsgTimeout            MessageKey = "timeout"
	MsgFilesListed        MessageKey = "files_listed"
	MsgFileRead           MessageKey = "file_read"
	MsgFileNotFound       MessageKey = "file_not_found"
	MsgFileCreated        MessageKey = "file_created"
	MsgFileDeleted        MessageKey = "file_deleted"
	MsgFileOperationError MessageKey = "file_operation_failed"
	MsgUnknownSource      MessageKey = "unknown_source"
	MsgBucketRequired     MessageKey = "bucket_required"
	MsgInvalidPath        MessageKey = "invalid_path"
)

// MessageArgs are the values available to a template.
type MessageArgs struct {
	Entity string
	ID     interface{}
	Count  int
	Error  string
	Source string
	Path   string
}

var defaultMessages = map[MessageKey]string{
	MsgEntityNotFound:     "{{.Entity}} with id {{.ID}} was not found",
	MsgEntityFound:        "{{.Entity}} retrieved",
	MsgEntitiesFound:      "{{.Count}} {{.Entity}} record(s) retrieved",
	MsgEntityCreated:      "{{.Entity}} created",
	MsgEntitiesCreated:    "{{.Count}} {{.Entity}} record(s) created",
	MsgEntityUpdated:      "{{.Entity}} with id {{.ID}} updated",
	MsgEntitiesUpdated:    "{{.Count}} {{.Entity}} record(s) updated",
	MsgEntityDeleted:      "{{.Entity}} with id {{.ID}} deleted",
	MsgEntitiesDeleted:    "{{.Count}} {{.Entity}} record(s) deleted",
	MsgEntityRestored:     "{{.Entity}} with id {{.ID}} restored",
	MsgEntityNotRemoved:   "{{.Entity}} with id {{.ID}} is not deleted",
	MsgCreateFailed:       "failed to create {{.Entity}}: {{.Error}}",
	MsgUpdateFailed:       "failed to update {{.Entity}}: {{.Error}}",
	MsgDeleteFailed:       "failed to delete {{.Entity}}: {{.Error}}",
	MsgReadFailed:         "failed to read {{.Entity}}: {{.Error}}",
	MsgDuplicateEntity:    "{{.Entity}} already exists: {{.Error}}",
	MsgConflict:           "{{.Entity}} conflicts with existing data: {{.Error}}",
	MsgInvalidRequest:     "invalid request: {{.Error}}",
	MsgValidationFailed:   "validation failed: {{.Error}}",
	MsgTimeout:            "request timed out",
	MsgFilesListed:        "{{.Count}} item(s) listed in {{.Source}}:{{.Path}}",
	MsgFileRead:           "file {{.Path}} read from {{.Source}}",
	MsgFileNotFound:       "file {{.Path}} was not found in {{.Source}}",
	MsgFileCreated:        "file {{.Path}} created in {{.Source}}",
	MsgFileDeleted:        "{{.Path}} deleted from {{.Source}}",
	MsgFileOperationError: "file operation on {{.Source}}:{{.Path}} failed: {{.Error}}",
	MsgUnknownSource:      "storage source {{.Source}} is not configured",
	MsgBucketRequired:     "storage source {{.Source}} requires a bucket",
	MsgInvalidPath:        "path {{.Path}} is not valid",
}

// MessageCatalog renders templated messages. It is safe for concurrent use.
type MessageCatalog struct {
	mu        sync.RWMutex
	templates map[MessageKey]*template.Template
}

// NewMessageCatalog returns a catalog loaded with the default templates.
func NewMessageCatalog() *MessageCatalog {
	c := &MessageCatalog{templates: make(map[MessageKey]*template.Template, len(defaultMessages))}
	for k, v := range defaultMessages {
		c.templates[k] = template.Must(template.New(string(k)).Parse(v))
	}
	return c
}

var defaultCatalog = NewMessageCatalog()

// DefaultMessages returns the process-wide catalog.
func DefaultMessages() *MessageCatalog {
	return defaultCatalog
}

// Set replaces the template for key.
func (c *MessageCatalog) Set(key MessageKey, text string) error {
	tpl, err := template.New(string(key)).Parse(text)
	if err != nil {
		return fmt.Errorf("invalid template for %s: %w", key, err)
	}
	c.mu.Lock()
	c.templates[key] = tpl
	c.mu.Unlock()
	return nil
}

// LoadFile applies overrides from a YAML file of key: template pairs.
func (c *MessageCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse message file: %w", err)
	}
	for k, v := range overrides {
		if err := c.Set(MessageKey(k), v); err != nil {
			return err
		}
	}
	return nil
}

// Format renders key with args. Unknown keys render as the key itself.
func (c *MessageCatalog) Format(key MessageKey, args MessageArgs) string {
	c.mu.RLock()
	tpl, ok := c.templates[key]
	c.mu.RUnlock()
	if !ok {
		return string(key)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, args); err != nil {
		return string(key)
	}
	return buf.String()
}
