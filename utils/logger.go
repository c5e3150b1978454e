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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Logger is the named logrus logger handed out by NewLogger.
type Logger = logrus.Logger

// Request fields recognised by the JSON formatter and set by the HTTP access log.
const (
	FieldMethod   = "req_method"
	FieldPath     = "req_uri"
	FieldStatus   = "status_code"
	FieldLatency  = "latency_time"
	FieldClientIP = "client_ip"
)

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	registryMu     sync.RWMutex
	registry       = map[string]*logrus.Logger{}
	baseLevel      = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleFormat  = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	output         io.Writer = os.Stdout
	levelColorFunc           = map[logrus.Level]func(a ...interface{}) string{
		logrus.PanicLevel: color.New(color.FgRed, color.Bold).SprintFunc(),
		logrus.FatalLevel: color.New(color.FgRed, color.Bold).SprintFunc(),
		logrus.ErrorLevel: color.New(color.FgRed).SprintFunc(),
		logrus.WarnLevel:  color.New(color.FgYellow).SprintFunc(),
		logrus.InfoLevel:  color.New(color.FgGreen).SprintFunc(),
		logrus.DebugLevel: color.New(color.FgBlue).SprintFunc(),
		logrus.TraceLevel: color.New(color.FgMagenta).SprintFunc(),
	}
	nameColor  = color.New(color.FgCyan).SprintFunc()
	faintColor = color.New(color.Faint).SprintFunc()
)

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}
	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(baseLevel)
	l.SetReportCaller(true)
	l.SetFormatter(newFormatter(name, consoleFormat))
	registry[name] = l
	return l
}

func newFormatter(name, format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &JSONLogFormatter{LoggerName: name, TimestampFormat: defaultTimestampFormat}
	}
	return &ConsoleFormatter{LoggerName: name, TimestampFormat: defaultTimestampFormat, NameWidth: 10}
}

// ConfigureOutput redirects every registered logger, and those created later, to w.
func ConfigureOutput(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	output = w
	for _, l := range registry {
		l.SetOutput(w)
	}
}

// ConfigureConsoleLogFormat switches registered loggers between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	consoleFormat = format
	for name, l := range registry {
		l.SetFormatter(newFormatter(name, format))
	}
}

// ConfigureLogLevel sets the level of every registered logger and the default
// for loggers created later.
func ConfigureLogLevel(levelStr string) {
	SetAllLoggersLevel(ParseLogLevel(levelStr))
}

func SetAllLoggersLevel(lvl logrus.Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	baseLevel = lvl
	for _, l := range registry {
		l.SetLevel(lvl)
	}
}

// SetLoggerLevel changes one named logger; false when the name is unknown.
func SetLoggerLevel(name string, lvlStr string) bool {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(lvlStr))
	return true
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConsoleFormatter renders log4j-like colored lines:
//
//	2025-01-02 15:04:05.000    INFO 4242   - [    CRUDKIT] manager.go:88 : message k=v
type ConsoleFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
}

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	if fn, ok := levelColorFunc[entry.Level]; ok {
		lvl = fn(lvl)
	}
	name := f.LoggerName
	if f.NameWidth > 0 {
		if r := []rune(name); len(r) > f.NameWidth {
			name = string(r[:f.NameWidth])
		}
		name = fmt.Sprintf("%*s", f.NameWidth, name)
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteByte(' ')
	b.WriteString(lvl)
	b.WriteString(fmt.Sprintf(" %-6d - [", os.Getpid()))
	b.WriteString(nameColor(name))
	b.WriteByte(']')
	if entry.Caller != nil {
		b.WriteByte(' ')
		b.WriteString(faintColor(fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)))
	}
	b.WriteString(faintColor(" :"))
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one JSON object per line. Request fields are lifted
// to the top level; any other entry data lands under "fields".
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

type jsonLogRecord struct {
	Time        string                 `json:"time"`
	Level       string                 `json:"level"`
	Logger      string                 `json:"logger"`
	Caller      string                 `json:"caller,omitempty"`
	Message     string                 `json:"message"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	Method      string                 `json:"method,omitempty"`
	Path        string                 `json:"path,omitempty"`
	StatusCode  int                    `json:"status_code,omitempty"`
	LatencyTime string                 `json:"latency_time,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFormat),
		Level:   entry.Level.String(),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	extra := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		switch k {
		case FieldMethod:
			rec.Method = fmt.Sprint(v)
		case FieldPath:
			rec.Path = fmt.Sprint(v)
		case FieldClientIP:
			rec.ClientIP = fmt.Sprint(v)
		case FieldLatency:
			if d, ok := v.(time.Duration); ok {
				rec.LatencyTime = d.String()
			} else {
				rec.LatencyTime = fmt.Sprint(v)
			}
		case FieldStatus:
			switch n := v.(type) {
			case int:
				rec.StatusCode = n
			case int64:
				rec.StatusCode = int(n)
			default:
				extra[k] = v
			}
		default:
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		rec.Fields = extra
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
