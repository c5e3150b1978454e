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
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/crudkit"
	"github.com/tomoncle/crudkit/controller"
	"github.com/tomoncle/crudkit/types"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	MethodReadMany = "ReadMany"
	MethodReadOne  = "ReadOne"

	DefaultTimeout = 60 * time.Second
)

// ReadServer is implemented by every read service.
type ReadServer interface {
	ReadMany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReadOne(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceName returns the fully qualified gRPC service name of a resource.
func ServiceName(resource string) string {
	return "crudkit." + resource + ".ReadService"
}

// ReadService serves one resource over gRPC with Struct messages.
type ReadService[D any, ID comparable] struct {
	name    string
	manager crudkit.ReadManager[D, ID]
	parseID controller.IDParser[ID]
	timeout time.Duration
}

func NewReadService[D any, ID comparable](name string, m crudkit.ReadManager[D, ID], parseID controller.IDParser[ID], timeout time.Duration) *ReadService[D, ID] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReadService[D, ID]{name: name, manager: m, parseID: parseID, timeout: timeout}
}

func (s *ReadService[D, ID]) Name() string { return ServiceName(s.name) }

// ServiceDesc describes the service for grpc.ServiceRegistrar.
func (s *ReadService[D, ID]) ServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: s.Name(),
		HandlerType: (*ReadServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: MethodReadMany, Handler: unaryHandler(s.Name(), MethodReadMany, ReadServer.ReadMany)},
			{MethodName: MethodReadOne, Handler: unaryHandler(s.Name(), MethodReadOne, ReadServer.ReadOne)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "crudkit/read_service.proto",
	}
}

// ReadMany reads {page, size, sort, filter} and answers with the paged
// data: {page, pageSize, total, totalPages, items}.
func (s *ReadService[D, ID]) ReadMany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	page, err := intField(fields, "page", types.DefaultPage)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if page > types.MaxPage {
		return nil, status.Errorf(codes.InvalidArgument, "field page must not exceed %d", types.MaxPage)
	}
	size, err := intField(fields, "size", types.DefaultPageSize)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	orders, err := controller.ParseSort(fields["sort"].GetStringValue(), s.manager.HasColumn)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	filter, err := controller.ParseFilter(fields["filter"].GetStringValue(), s.manager.HasColumn)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res := s.manager.GetPage(ctx, types.NewPageRequest(page, size, filter, orders))
	if !res.Success {
		return nil, statusFrom(res.Code, res.Message)
	}
	return toStruct(res.Data)
}

// ReadOne reads {id} and answers with the DTO.
func (s *ReadService[D, ID]) ReadOne(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, ok := req.GetFields()["id"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "field id is required")
	}
	rawID, err := valueString(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "field id: "+err.Error())
	}
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res := s.manager.GetByID(ctx, id)
	if !res.Success {
		return nil, statusFrom(res.Code, res.Message)
	}
	return toStruct(res.Data)
}

func unaryHandler(service, method string, call func(ReadServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReadServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ReadServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// statusFrom maps a failed result code onto a gRPC status.
func statusFrom(code int, message string) error {
	switch code {
	case http.StatusNotFound:
		return status.Error(codes.NotFound, message)
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, message)
	case http.StatusConflict:
		return status.Error(codes.AlreadyExists, message)
	case http.StatusRequestTimeout:
		return status.Error(codes.DeadlineExceeded, message)
	default:
		return status.Error(codes.Internal, message)
	}
}

// maxExactInt is the largest integer a protobuf number holds exactly.
const maxExactInt = 1 << 53

// toStruct converts v through its JSON form. Integers a float64 cannot hold
// exactly are emitted as strings.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := map[string]interface{}{}
	if err := dec.Decode(&fields); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(exactNumbers(fields).(map[string]interface{}))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func exactNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = exactNumbers(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = exactNumbers(item)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			if n > maxExactInt || n < -maxExactInt {
				return t.String()
			}
			return float64(n)
		}
		if strings.ContainsAny(t.String(), ".eE") {
			if f, err := t.Float64(); err == nil {
				return f
			}
		}
		// integers beyond int64
		return t.String()
	default:
		return v
	}
}

// valueString renders an id or integer field. Numbers must be integral and
// exactly representable; larger keys travel as strings.
func valueString(v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("number %v is not an integer", n)
		}
		if n > maxExactInt || n < -maxExactInt {
			return "", fmt.Errorf("number %v is too large, send it as a string", n)
		}
		return strconv.FormatInt(int64(n), 10), nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue), nil
	default:
		return "", nil
	}
}

func intField(fields map[string]*structpb.Value, key string, def int) (int, error) {
	v, ok := fields[key]
	if !ok {
		return def, nil
	}
	raw, err := valueString(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field %s must be an integer", key)
	}
	return n, nil
}
