package blobget

import (
	"context"

	"github.com/ligustah/blobget/pkg/blobrpc"
)

// DialFunc opens a connection to the blob service. Initialize calls it once
// per session.
type DialFunc func(ctx context.Context) (Conn, error)

// Conn is a connection to the blob service owned by one session.
type Conn interface {
	// Get opens the chunk stream for holder. The stream ends when ctx is done.
	Get(ctx context.Context, holder string) (Stream, error)
	Close() error
}

// Stream yields the chunks of one blob. Recv returns io.EOF after the last
// chunk.
type Stream interface {
	Recv() ([]byte, error)
}

// GRPCDialer returns a DialFunc that connects to the gRPC blob service at
// target.
func GRPCDialer(target string, opts blobrpc.Options) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		client, err := blobrpc.Dial(ctx, target, opts)
		if err != nil {
			return nil, err
		}
		return grpcConn{client}, nil
	}
}

type grpcConn struct {
	client *blobrpc.Client
}

func (c grpcConn) Get(ctx context.Context, holder string) (Stream, error) {
	stream, err := c.client.Get(ctx, holder)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c grpcConn) Close() error {
	return c.client.Close()
}
