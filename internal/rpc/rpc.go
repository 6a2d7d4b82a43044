// Package rpc serves unary gRPC methods whose request and response are
// google.protobuf.Struct. Service descriptors are built at runtime and
// registered globally so server reflection and grpcurl can discover them.
package rpc

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const structType = ".google.protobuf.Struct"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler serves one method.
type Handler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

type Method struct {
	Name    string
	Handler Handler
}

// Service is a fully qualified service name such as "solarcloud.registry.v1.Registry"
// and its methods.
type Service struct {
	Name    string
	Methods []Method
}

func (s Service) split() (pkg, name string, err error) {
	idx := strings.LastIndex(s.Name, ".")
	if idx <= 0 || idx == len(s.Name)-1 {
		return "", "", fmt.Errorf("service name %q must be package qualified", s.Name)
	}
	return s.Name[:idx], s.Name[idx+1:], nil
}

// FileName is the synthetic proto file path the service is registered under.
func (s Service) FileName() string {
	pkg, name, err := s.split()
	if err != nil {
		return s.Name + ".proto"
	}
	return strings.ReplaceAll(pkg, ".", "/") + "/" + strings.ToLower(name) + ".proto"
}

func (s Service) fileDescriptor() (*descriptorpb.FileDescriptorProto, error) {
	pkg, name, err := s.split()
	if err != nil {
		return nil, err
	}
	if len(s.Methods) == 0 {
		return nil, fmt.Errorf("service %s has no methods", s.Name)
	}

	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(name)}
	seen := make(map[string]bool, len(s.Methods))
	for _, m := range s.Methods {
		if m.Name == "" || m.Handler == nil {
			return nil, fmt.Errorf("service %s: method needs a name and handler", s.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("service %s: duplicate method %s", s.Name, m.Name)
		}
		seen[m.Name] = true
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.Name),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(s.FileName()),
		Package:    proto.String(pkg),
		Dependency: []string{"google/protobuf/struct.proto"},
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
		Syntax:     proto.String("proto3"),
	}, nil
}

// Describe registers the service descriptor in protoregistry.GlobalFiles. It is
// a no-op when the service is already known.
func Describe(s Service) (protoreflect.ServiceDescriptor, error) {
	if desc, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(s.Name)); err == nil {
		sd, ok := desc.(protoreflect.ServiceDescriptor)
		if !ok {
			return nil, fmt.Errorf("%s is registered but is not a service", s.Name)
		}
		return sd, nil
	}

	fdp, err := s.fileDescriptor()
	if err != nil {
		return nil, err
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("build descriptor for %s: %w", s.Name, err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register descriptor for %s: %w", s.Name, err)
	}
	return fd.Services().Get(0), nil
}

// Register describes s and attaches its handlers to server.
func Register(server *grpc.Server, s Service) error {
	if _, err := Describe(s); err != nil {
		return err
	}

	desc := &grpc.ServiceDesc{
		ServiceName: s.Name,
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    s.FileName(),
	}
	for _, m := range s.Methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.Name,
			Handler:    unaryHandler(m.Handler, "/"+s.Name+"/"+m.Name),
		})
	}
	server.RegisterService(desc, s)
	return nil
}

// MustRegister is Register for use during startup wiring.
func MustRegister(server *grpc.Server, s Service) {
	if err := Register(server, s); err != nil {
		panic(err)
	}
}

func unaryHandler(h Handler, fullMethod string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(ctx, req.(*structpb.Struct))
		})
	}
}

// Invoke calls service/method on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode converts any JSON-marshalable value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// Decode fills out from a Struct using JSON field names.
func Decode(s *structpb.Struct, out any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
