package blobget_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ligustah/blobget/internal/testutils"
	"github.com/ligustah/blobget/pkg/blobget"
	"github.com/ligustah/blobget/pkg/blobrpc"
)

// startBucketServer serves bucket over an in-memory listener and returns a
// DialFunc for it.
func startBucketServer(t *testing.T, bucket *blob.Bucket, chunkSize int) blobget.DialFunc {
	t.Helper()

	lis := bufconn.Listen(4 * 1024 * 1024)
	srv := grpc.NewServer()
	blobrpc.RegisterBlobServiceServer(srv, &blobrpc.BucketServer{Bucket: bucket, ChunkSize: chunkSize})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- blobrpc.Serve(ctx, "test", srv, lis) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	return blobget.GRPCDialer("passthrough:///bufnet", blobrpc.Options{
		ConnectTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
}

func TestBridgeOverGRPC(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	const chunkSize = 256 * 1024
	plain := testutils.GenerateTestData(t, 3*chunkSize)
	require.NoError(t, bucket.WriteAll(ctx, "blob-123", plain, nil))

	shardedData := testutils.GenerateTestData(t, 2*chunkSize+100)
	_, err = testutils.WriteShardedBlob(ctx, bucket, "blob-456", shardedData, 100*1024)
	require.NoError(t, err)

	bridge := blobget.New(startBucketServer(t, bucket, chunkSize))
	t.Cleanup(func() { require.NoError(t, bridge.Close()) })

	for holder, want := range map[string][]byte{"blob-123": plain, "blob-456": shardedData} {
		t.Run(holder, func(t *testing.T) {
			require.NoError(t, bridge.Initialize(holder))

			var chunks [][]byte
			for {
				chunk, err := bridge.BlockingRead(holder)
				require.NoError(t, err)
				if len(chunk) == 0 {
					break
				}
				require.LessOrEqual(t, len(chunk), chunkSize)
				chunks = append(chunks, chunk)
			}
			require.Len(t, chunks, 3)
			testutils.CompareChunksToData(t, chunks, want)

			require.NoError(t, bridge.Terminate(holder))
			_, err := bridge.BlockingRead(holder)
			require.ErrorIs(t, err, blobget.ErrNoSession)
		})
	}
}

func TestBridgeOverGRPCNotFound(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	bridge := blobget.New(startBucketServer(t, bucket, 0))
	t.Cleanup(func() { bridge.Close() })

	require.NoError(t, bridge.Initialize("missing"))
	_, err = bridge.BlockingRead("missing")
	require.Error(t, err)
	require.True(t, blobget.IsKind(err, blobget.KindProtocol), "error = %v", err)
	require.Contains(t, err.Error(), "not found")
	require.NoError(t, bridge.Terminate("missing"))
}

func TestBridgeOverGRPCTerminateMidStream(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	data := testutils.GenerateTestData(t, 64*1024)
	require.NoError(t, bucket.WriteAll(ctx, "big", data, nil))

	bridge := blobget.New(startBucketServer(t, bucket, 1024), blobget.WithQueueCapacity(1))
	t.Cleanup(func() { require.NoError(t, bridge.Close()) })

	require.NoError(t, bridge.Initialize("big"))
	chunk, err := bridge.BlockingRead("big")
	require.NoError(t, err)
	require.True(t, bytes.Equal(chunk, data[:1024]))

	require.NoError(t, bridge.Terminate("big"))
	require.False(t, bridge.Active("big"))
}
