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

// Command crudkit-demo serves a soft-removable product catalog over REST
// and gRPC, together with the configured file storage sources.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomoncle/crudkit"
	"github.com/tomoncle/crudkit/config"
	"github.com/tomoncle/crudkit/controller"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/grpcservice"
	"github.com/tomoncle/crudkit/openapi"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"

	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoad()
	cfg.ApplyLogging()
	logger := utils.NewLogger("DEMO")
	types.SetIDNode(cfg.IDNode)

	messages, err := cfg.Messages()
	if err != nil {
		logger.Fatalf("cannot load messages: %v", err)
	}

	database.RegisterModel((*Product)(nil), 10)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg.DatabaseConfig())
	if err != nil {
		logger.Fatalf("cannot initialize database: %v", err)
	}
	defer func() { _ = database.CloseDB() }()

	publisher, err := cfg.Publisher()
	if err != nil {
		logger.Fatalf("cannot create event publisher: %v", err)
	}
	defer func() { _ = publisher.Close() }()

	products := crudkit.NewSoftRemovableModelManager[Product, ProductDTO, int64](
		repository.NewSoftRemovableRepository[Product](db),
		crudkit.WithEntityName("product"),
		crudkit.WithMessages(messages),
		crudkit.WithPublisher(publisher),
		crudkit.WithIDGenerator(crudkit.SnowflakeIDs),
	).WithMapper(crudkit.JSONMapper[Product, ProductDTO]{})

	files, err := cfg.StorageManager(messages)
	if err != nil {
		logger.Fatalf("cannot configure storage: %v", err)
	}

	app := controller.NewApp(controller.AppConfig{
		Name:        "crudkit-demo",
		BodyLimit:   cfg.HTTP.BodyLimit,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Messages:    messages,
		Health:      database.GetHealthStatus,
		OpenAPI: openapi.Provider(openapi.Info{Title: "crudkit demo", Version: "1.0.0"},
			openapi.Soft[ProductDTO, int64]("products"),
			openapi.Files(),
		),
	},
		controller.NewSoftController[ProductDTO, int64]("products", products, controller.Int64ID,
			controller.WithTimeout(cfg.HTTP.Timeout)),
		controller.NewFilesController(files, messages, cfg.HTTP.Timeout),
	)

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			logger.Fatalf("cannot listen on %s: %v", cfg.GRPC.Addr, err)
		}
		grpcServer = grpcservice.NewServer(nil, []grpcservice.Service{
			grpcservice.NewReadService[ProductDTO, int64]("products", products, controller.Int64ID, cfg.GRPC.Timeout),
		})
		go func() {
			logger.Infof("gRPC server listening on %s", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Errorf("gRPC server stopped: %v", err)
			}
		}()
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	if grpcServer != nil {
		stopGRPC(grpcServer)
	}
	logger.Info("stopped")
}

// stopGRPC drains in-flight calls, forcing the stop after shutdownTimeout.
func stopGRPC(s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.Stop()
	}
}
