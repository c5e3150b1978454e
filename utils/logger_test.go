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

package utils

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		"DEBUG":   logrus.DebugLevel,
		" warn ":  logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewLoggerRegistry(t *testing.T) {
	a := NewLogger("REGISTRY")
	b := NewLogger("REGISTRY")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("REGISTRY", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("MISSING", "error"))
}

func TestConsoleFormatter(t *testing.T) {
	color.NoColor = true
	f := &ConsoleFormatter{LoggerName: "CRUDKIT", NameWidth: 10}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "entity created",
		Data:    logrus.Fields{"id": 7, "entity": "product"},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.Contains(t, line, "2025-01-02 03:04:05.000")
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "[   CRUDKIT]")
	assert.Contains(t, line, "entity created entity=product id=7")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "HTTP"}
	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.WarnLevel,
		Message: "request",
		Data: logrus.Fields{
			FieldMethod:  "GET",
			FieldPath:    "/api/products",
			FieldStatus:  404,
			FieldLatency: 15 * time.Millisecond,
			"error":      errors.New("boom"),
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "HTTP", rec["logger"])
	assert.Equal(t, "GET", rec["method"])
	assert.Equal(t, "/api/products", rec["path"])
	assert.EqualValues(t, 404, rec["status_code"])
	assert.Equal(t, "15ms", rec["latency_time"])
	assert.Equal(t, map[string]interface{}{"error": "boom"}, rec["fields"])
}

func TestConfigureOutput(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput(&buf)
	defer ConfigureOutput(&bytes.Buffer{})

	l := NewLogger("OUTPUT")
	l.SetLevel(logrus.InfoLevel)
	l.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("CRUDKIT_TEST_STR", "x")
	t.Setenv("CRUDKIT_TEST_BOOL", "notabool")
	assert.Equal(t, "x", EnvDefaultString("CRUDKIT_TEST_STR", "y"))
	assert.Equal(t, "y", EnvDefaultString("CRUDKIT_TEST_UNSET", "y"))
	assert.True(t, EnvDefaultBool("CRUDKIT_TEST_BOOL", true))
	assert.False(t, EnvDefaultBool("CRUDKIT_TEST_UNSET", false))
}
