package blobrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "blob.BlobService"

const getMethod = "/" + ServiceName + "/Get"

// BlobServiceServer is the server API for the blob service.
type BlobServiceServer interface {
	// Get streams the blob stored for holder, one chunk per Send.
	Get(holder string, stream GetServer) error
}

// GetServer is the server side of a Get stream.
type GetServer interface {
	Send(chunk []byte) error
	Context() context.Context
}

type getServer struct {
	grpc.ServerStream
}

func (s *getServer) Send(chunk []byte) error {
	return s.ServerStream.SendMsg(wrapperspb.Bytes(chunk))
}

func getHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(BlobServiceServer).Get(req.GetValue(), &getServer{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BlobServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Get",
			Handler:       getHandler,
			ServerStreams: true,
		},
	},
	Metadata: "blob.proto",
}

// RegisterBlobServiceServer registers srv with the gRPC service registrar.
func RegisterBlobServiceServer(s grpc.ServiceRegistrar, srv BlobServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}
