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

package controller

import (
	"context"
	"errors"
	"time"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const (
	HealthPath  = "/health"
	OpenAPIPath = "/api/openapi.json"
)

// AppConfig configures NewApp. Nil Health and OpenAPI leave the matching
// route unregistered.
type AppConfig struct {
	Name        string
	BodyLimit   int
	CORSOrigins string
	Messages    *types.MessageCatalog
	Logger      *logrus.Logger
	Health      func(ctx context.Context) *database.HealthStatus
	OpenAPI     func() ([]byte, error)
}

// NewApp builds a fiber app with recover, CORS and request logging, the
// health and OpenAPI routes, and every registrar mounted at the root.
func NewApp(cfg AppConfig, registrars ...Registrar) *fiber.App {
	if cfg.Messages == nil {
		cfg.Messages = types.DefaultMessages()
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.NewLogger("HTTP")
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.Name,
		BodyLimit:    cfg.BodyLimit,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: errorHandler(cfg.Messages),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	app.Use(requestLogger(cfg.Logger))

	if cfg.Health != nil {
		app.Get(HealthPath, healthHandler(cfg.Health))
	}
	if cfg.OpenAPI != nil {
		app.Get(OpenAPIPath, func(c *fiber.Ctx) error {
			doc, err := cfg.OpenAPI()
			if err != nil {
				return err
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Send(doc)
		})
	}
	for _, r := range registrars {
		r.Register(app)
	}
	return app
}

// errorHandler renders errors escaping the handlers as failed results.
func errorHandler(messages *types.MessageCatalog) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		msg := err.Error()
		if code >= fiber.StatusInternalServerError {
			msg = messages.Format(types.MsgReadFailed, types.MessageArgs{Entity: "request", Error: err.Error()})
		}
		return Send(c, types.Fail[any](code, msg))
	}
}

func requestLogger(logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()
		entry := logger.WithFields(logrus.Fields{
			utils.FieldMethod:   c.Method(),
			utils.FieldPath:     c.OriginalURL(),
			utils.FieldStatus:   status,
			utils.FieldLatency:  time.Since(start).String(),
			utils.FieldClientIP: c.IP(),
		})
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("request failed")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
		return nil
	}
}

func healthHandler(check func(ctx context.Context) *database.HealthStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		status := check(ctx)
		if status == nil || !status.Healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		return c.JSON(status)
	}
}
