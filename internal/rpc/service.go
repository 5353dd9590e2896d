// Package rpc exposes the cipher engine as the magiccipher.v1.MagicCipher
// gRPC service. Messages travel as google.protobuf.Struct so that no generated
// code is required; Client converts them to and from typed Go structs.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "magiccipher.v1.MagicCipher"

const (
	methodEncrypt = "Encrypt"
	methodDecrypt = "Decrypt"
	methodSquare  = "Square"
)

// MagicCipherServer is the server API for the MagicCipher service.
type MagicCipherServer interface {
	Encrypt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decrypt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Square(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the MagicCipher service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MagicCipherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodEncrypt, Handler: unaryHandler(methodEncrypt, MagicCipherServer.Encrypt)},
		{MethodName: methodDecrypt, Handler: unaryHandler(methodDecrypt, MagicCipherServer.Decrypt)},
		{MethodName: methodSquare, Handler: unaryHandler(methodSquare, MagicCipherServer.Square)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "magiccipher/v1/magiccipher.proto",
}

// RegisterMagicCipherServer registers srv with s.
func RegisterMagicCipherServer(s grpc.ServiceRegistrar, srv MagicCipherServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(MagicCipherServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MagicCipherServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MagicCipherServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls the MagicCipher service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Encrypt encrypts req.Text on the server.
func (c *Client) Encrypt(ctx context.Context, req EncryptRequest, opts ...grpc.CallOption) (EncryptResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return EncryptResponse{}, err
	}
	out, err := c.invoke(ctx, methodEncrypt, in, opts...)
	if err != nil {
		return EncryptResponse{}, err
	}
	return encryptResponseFromStruct(out)
}

// Decrypt recovers the plaintext on the server.
func (c *Client) Decrypt(ctx context.Context, req DecryptRequest, opts ...grpc.CallOption) (DecryptResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return DecryptResponse{}, err
	}
	out, err := c.invoke(ctx, methodDecrypt, in, opts...)
	if err != nil {
		return DecryptResponse{}, err
	}
	return DecryptResponse{Text: stringField(out, "text")}, nil
}

// Square requests a magic square.
func (c *Client) Square(ctx context.Context, req SquareRequest, opts ...grpc.CallOption) (SquareResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return SquareResponse{}, err
	}
	out, err := c.invoke(ctx, methodSquare, in, opts...)
	if err != nil {
		return SquareResponse{}, err
	}
	return squareResponseFromStruct(out)
}
