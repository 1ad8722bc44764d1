package blobrpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrUnavailable is returned when the blob service cannot be reached.
var ErrUnavailable = errors.New("blobrpc: blob service unavailable")

// Options configures the blob service client.
type Options struct {
	// ConnectTimeout bounds Dial.
	// Default: 10s
	ConnectTimeout time.Duration

	// RetryAttempts is the number of failed connection attempts tolerated
	// before Dial gives up.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial reconnect backoff.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum reconnect backoff.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// MaxRecvMsgSize caps the size of a single received chunk message.
	// Default: 16MiB
	MaxRecvMsgSize int

	// TLS enables transport security with the given config.
	// Nil means plaintext.
	TLS *tls.Config

	// DialOptions are appended to the options built from the fields above.
	DialOptions []grpc.DialOption
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
		MaxRecvMsgSize:  16 * 1024 * 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = d.RetryMaxBackoff
	}
	if o.MaxRecvMsgSize <= 0 {
		o.MaxRecvMsgSize = d.MaxRecvMsgSize
	}
	return o
}

// Client is a connection to the blob service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the blob service at target and waits until the
// connection is ready. It fails once RetryAttempts connection attempts have
// failed or ConnectTimeout expires, whichever comes first.
func Dial(ctx context.Context, target string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	creds := insecure.NewCredentials()
	if opts.TLS != nil {
		creds = credentials.NewTLS(opts.TLS)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  opts.RetryBackoff,
				Multiplier: 2,
				Jitter:     0.5,
				MaxDelay:   opts.RetryMaxBackoff,
			},
			MinConnectTimeout: opts.ConnectTimeout,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(opts.MaxRecvMsgSize)),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("blobrpc: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	if err := waitReady(ctx, conn, opts.RetryAttempts); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, target, err)
	}

	return &Client{conn: conn}, nil
}

// waitReady drives conn to READY. Each TRANSIENT_FAILURE counts as one
// failed attempt.
func waitReady(ctx context.Context, conn *grpc.ClientConn, attempts int) error {
	conn.Connect()

	failures := 0
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("connection shut down")
		case connectivity.Idle:
			conn.Connect()
		case connectivity.TransientFailure:
			failures++
			if failures > attempts {
				return fmt.Errorf("connection failed after %d attempts", failures)
			}
		}

		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// Get opens a Get stream for holder. The stream lives until ctx is done or
// the server closes it.
func (c *Client) Get(ctx context.Context, holder string) (*GetStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], getMethod)
	if err != nil {
		return nil, fmt.Errorf("blobrpc: open get stream: %w", err)
	}
	if err := stream.SendMsg(wrapperspb.String(holder)); err != nil {
		return nil, fmt.Errorf("blobrpc: send get request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("blobrpc: close send: %w", err)
	}
	return &GetStream{stream: stream}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetStream is the client side of a Get stream.
type GetStream struct {
	stream grpc.ClientStream
}

// Recv returns the next chunk. It returns io.EOF when the server closed the
// stream cleanly; any other error is a gRPC status error.
func (s *GetStream) Recv() ([]byte, error) {
	msg := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg.GetValue(), nil
}
