package blobrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ligustah/blobget/internal/testutils"
)

const bufSize = 1024 * 1024

// startServer serves impl over an in-memory listener and returns a client
// connected to it. Both are torn down when the test ends.
func startServer(t *testing.T, impl BlobServiceServer) *Client {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	RegisterBlobServiceServer(srv, impl)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "test", srv, lis) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	client, err := Dial(context.Background(), "passthrough:///bufnet", Options{
		ConnectTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func newBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func recvAll(t *testing.T, stream *GetStream) ([][]byte, error) {
	t.Helper()
	var chunks [][]byte
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestGetPlainObject(t *testing.T) {
	ctx := context.Background()
	bucket := newBucket(t)

	data := testutils.GenerateTestData(t, 2*1024+512)
	require.NoError(t, bucket.WriteAll(ctx, "holder-plain", data, nil))

	client := startServer(t, &BucketServer{Bucket: bucket, ChunkSize: 1024, Logger: logr.Discard()})

	stream, err := client.Get(ctx, "holder-plain")
	require.NoError(t, err)

	chunks, err := recvAll(t, stream)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 1024)
	require.Len(t, chunks[2], 512)
	testutils.CompareChunksToData(t, chunks, data)
}

func TestGetShardedObject(t *testing.T) {
	ctx := context.Background()
	bucket := newBucket(t)

	data := testutils.GenerateTestData(t, 10*1000+7)
	_, err := testutils.WriteShardedBlob(ctx, bucket, "holder-sharded", data, 3000)
	require.NoError(t, err)

	client := startServer(t, &BucketServer{Bucket: bucket, ChunkSize: 4096, VerifyChecksum: true})

	stream, err := client.Get(ctx, "holder-sharded")
	require.NoError(t, err)

	chunks, err := recvAll(t, stream)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	testutils.CompareChunksToData(t, chunks, data)
}

func TestGetEmptyObject(t *testing.T) {
	ctx := context.Background()
	bucket := newBucket(t)
	require.NoError(t, bucket.WriteAll(ctx, "holder-empty", nil, nil))

	client := startServer(t, &BucketServer{Bucket: bucket})

	stream, err := client.Get(ctx, "holder-empty")
	require.NoError(t, err)

	chunks, err := recvAll(t, stream)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, &BucketServer{Bucket: newBucket(t)})

	stream, err := client.Get(ctx, "missing")
	require.NoError(t, err)

	_, err = stream.Recv()
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetEmptyHolder(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, &BucketServer{Bucket: newBucket(t)})

	stream, err := client.Get(ctx, "")
	require.NoError(t, err)

	_, err = stream.Recv()
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// blockingServer sends one chunk and then waits for the client to go away.
type blockingServer struct{}

func (blockingServer) Get(holder string, stream GetServer) error {
	if err := stream.Send([]byte(holder)); err != nil {
		return err
	}
	<-stream.Context().Done()
	return stream.Context().Err()
}

func TestGetCancel(t *testing.T) {
	client := startServer(t, blockingServer{})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Get(ctx, "holder")
	require.NoError(t, err)

	chunk, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("holder"), chunk)

	cancel()
	_, err = stream.Recv()
	require.Equal(t, codes.Canceled, status.Code(err))
}

func TestDialUnavailable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	start := time.Now()
	_, err = Dial(context.Background(), addr, Options{
		ConnectTimeout: 2 * time.Second,
		RetryAttempts:  0,
		RetryBackoff:   10 * time.Millisecond,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{RetryAttempts: -1}.withDefaults()
	def := DefaultOptions()

	require.Equal(t, def.ConnectTimeout, opts.ConnectTimeout)
	require.Equal(t, 0, opts.RetryAttempts)
	require.Equal(t, def.RetryBackoff, opts.RetryBackoff)
	require.Equal(t, def.RetryMaxBackoff, opts.RetryMaxBackoff)
	require.Equal(t, def.MaxRecvMsgSize, opts.MaxRecvMsgSize)
}
