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

// Package config loads the application settings from an optional YAML
// file and the environment.
//
// Every field with an env tag can be overridden by that variable, and a
// .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/events"
	"github.com/tomoncle/crudkit/storage"
	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// PathEnv names the variable holding the YAML file path.
const PathEnv = "CONFIG_PATH"

type Config struct {
	Env          string                 `yaml:"env" env:"APP_ENV" env-default:"dev"`
	MessagesFile string                 `yaml:"messages_file" env:"MESSAGES_FILE"`
	IDNode       int64                  `yaml:"id_node" env:"ID_NODE" env-default:"1"`
	Log          Log                    `yaml:"log"`
	HTTP         HTTP                   `yaml:"http"`
	GRPC         GRPC                   `yaml:"grpc"`
	Database     Database               `yaml:"database"`
	Kafka        Kafka                  `yaml:"kafka"`
	Storage      []storage.SourceConfig `yaml:"storage"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"CONSOLE_LOG_FORMAT" env-default:"text"`
}

type HTTP struct {
	Addr        string        `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
	BodyLimit   int           `yaml:"body_limit" env:"HTTP_BODY_LIMIT" env-default:"8388608"`
	CORSOrigins string        `yaml:"cors_origins" env:"HTTP_CORS_ORIGINS" env-default:"*"`
}

type GRPC struct {
	Enabled bool          `yaml:"enabled" env:"GRPC_ENABLED" env-default:"true"`
	Addr    string        `yaml:"address" env:"GRPC_ADDR" env-default:":50051"`
	Timeout time.Duration `yaml:"timeout" env:"GRPC_TIMEOUT" env-default:"60s"`
}

type Database struct {
	Type            string        `yaml:"type" env:"DB_TYPE" env-default:"sqlite"`
	Driver          string        `yaml:"driver" env:"DB_DRIVER"`
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	Username        string        `yaml:"username" env:"DB_USERNAME"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Name            string        `yaml:"name" env:"DB_NAME" env-default:":memory:"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	EnableQueryLog  bool          `yaml:"enable_query_log" env:"DB_ENABLE_QUERY_LOG"`
	QueryLogStyle   string        `yaml:"query_log_style" env:"DB_QUERY_LOG_STYLE"`
	SlowQueryTime   time.Duration `yaml:"slow_query_time" env:"DB_SLOW_QUERY_TIME"`
	Migrate         bool          `yaml:"migrate_on_startup" env:"DB_MIGRATE_ON_STARTUP" env-default:"true"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic        string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"crudkit.changes"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"KAFKA_BATCH_TIMEOUT"`
}

// LoadDotEnv loads the given .env files, ".env" by default. Missing files
// are ignored and variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path, when set, then the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
		return &cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return &cfg, nil
}

// MustLoad loads .env, then the file named by CONFIG_PATH or the -config
// flag, and exits on failure.
func MustLoad() *Config {
	logger := utils.NewLogger("CONFIG")
	if err := LoadDotEnv(); err != nil {
		logger.Fatalf("cannot load .env: %v", err)
	}
	path := os.Getenv(PathEnv)
	if path == "" {
		f := flag.String("config", "", "path to the YAML configuration file")
		flag.Parse()
		path = *f
	}
	cfg, err := Load(path)
	if err != nil {
		logger.Fatalf("cannot load config: %v", err)
	}
	return cfg
}

// ApplyLogging configures every utils logger from the Log section.
func (c *Config) ApplyLogging() {
	utils.ConfigureConsoleLogFormat(c.Log.Format)
	utils.ConfigureLogLevel(c.Log.Level)
}

// DatabaseConfig overlays the configured values on the database defaults.
func (c *Config) DatabaseConfig() *database.Config {
	conn := database.DefaultConnectionConfig()
	d := c.Database
	conn.Type = d.Type
	conn.Driver = d.Driver
	conn.Host = d.Host
	conn.Port = d.Port
	conn.Username = d.Username
	conn.Password = d.Password
	conn.DBName = d.Name
	conn.SSLMode = d.SSLMode
	conn.EnableQueryLog = d.EnableQueryLog
	if d.MaxIdleConns > 0 {
		conn.MaxIdleConns = d.MaxIdleConns
	}
	if d.MaxOpenConns > 0 {
		conn.MaxOpenConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetime > 0 {
		conn.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.QueryLogStyle != "" {
		conn.QueryLogStyle = d.QueryLogStyle
	}
	if d.SlowQueryTime > 0 {
		conn.SlowQueryTime = d.SlowQueryTime
	}
	return &database.Config{
		ConnectionConfig:  *conn,
		DataMigrateConfig: database.DataMigrateConfig{EnableMigrateOnStartup: d.Migrate},
	}
}

// Publisher returns a kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (c *Config) Publisher() (events.Publisher, error) {
	if len(c.Kafka.Brokers) == 0 {
		return events.NopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(events.KafkaParams{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		BatchTimeout: c.Kafka.BatchTimeout,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Messages returns the default catalog with the overrides of MessagesFile.
func (c *Config) Messages() (*types.MessageCatalog, error) {
	catalog := types.NewMessageCatalog()
	if c.MessagesFile == "" {
		return catalog, nil
	}
	if err := catalog.LoadFile(c.MessagesFile); err != nil {
		return nil, err
	}
	return catalog, nil
}

// StorageManager builds the file storage router for the configured sources.
func (c *Config) StorageManager(messages *types.MessageCatalog) (*storage.Manager, error) {
	return storage.NewManager(c.Storage, storage.WithMessages(messages))
}
