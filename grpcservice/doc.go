// Package grpcservice serves the read side of a manager over gRPC using
// google.protobuf.Struct messages.
package grpcservice
