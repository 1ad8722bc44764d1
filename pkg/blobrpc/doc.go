// Package blobrpc binds the blob service's streaming Get call to gRPC.
//
// The service is "blob.BlobService" with a single server-streaming method,
// Get. The request carries the holder string in field 1 and every response
// carries one chunk of bytes in field 1. The stream ends when the server
// returns from the handler; there is no end-of-stream message. The
// wrapperspb StringValue and BytesValue messages have exactly this wire
// shape, so no generated code is needed.
//
// # Client
//
//	client, err := blobrpc.Dial(ctx, "blob.example.com:50053", blobrpc.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	stream, err := client.Get(ctx, holder)
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// # Server
//
// [BucketServer] implements the service on top of a gocloud.dev/blob
// bucket. Holders name plain objects, or sharded blobs when a manifest
// exists (see package sharded). [Serve] runs a grpc.Server until its
// context is done.
package blobrpc
