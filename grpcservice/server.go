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

package grpcservice

import (
	"context"
	"strconv"
	"time"

	"github.com/tomoncle/crudkit/utils"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service is a read service ready to be registered.
type Service interface {
	ReadServer
	ServiceDesc() *grpc.ServiceDesc
}

// NewServer returns a gRPC server with request logging and reflection,
// serving every given service.
func NewServer(logger *logrus.Logger, services []Service, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = utils.NewLogger("GRPC")
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryLogger(logger)))
	s := grpc.NewServer(opts...)
	Register(s, services...)
	reflection.Register(s)
	return s
}

func Register(r grpc.ServiceRegistrar, services ...Service) {
	for _, svc := range services {
		r.RegisterService(svc.ServiceDesc(), svc)
	}
}

// UnaryLogger logs every unary call with its status code and latency.
func UnaryLogger(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		st := status.Convert(err)
		entry := logger.WithFields(logrus.Fields{
			utils.FieldPath:    info.FullMethod,
			utils.FieldStatus:  st.Code().String(),
			utils.FieldLatency: time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc handled")
		}
		return resp, err
	}
}

// Client calls the read service of one resource.
type Client struct {
	cc      grpc.ClientConnInterface
	service string
}

func NewClient(cc grpc.ClientConnInterface, resource string) *Client {
	return &Client{cc: cc, service: ServiceName(resource)}
}

func (c *Client) ReadMany(ctx context.Context, req map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodReadMany, req, opts)
}

// ReadOne fetches one item. Integer ids a float64 cannot hold exactly are
// sent as strings.
func (c *Client) ReadOne(ctx context.Context, id interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodReadOne, map[string]interface{}{"id": wireID(id)}, opts)
}

func wireID(id interface{}) interface{} {
	switch v := id.(type) {
	case int64:
		if v > maxExactInt || v < -maxExactInt {
			return strconv.FormatInt(v, 10)
		}
	case int:
		if int64(v) > maxExactInt || int64(v) < -maxExactInt {
			return strconv.Itoa(v)
		}
	case uint64:
		if v > maxExactInt {
			return strconv.FormatUint(v, 10)
		}
	}
	return id
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]interface{}, opts []grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+c.service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
