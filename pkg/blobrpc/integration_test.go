//go:build integration

package blobrpc

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ligustah/blobget/internal/testutils"
)

func TestIntegrationBucketServerMinio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := testutils.StartMinioContainer(t, ctx, "blobs")
	bucket, err := env.OpenBucket(ctx)
	require.NoError(t, err)
	defer bucket.Close()

	plain := testutils.GenerateTestData(t, 5*1024*1024+123)
	require.NoError(t, bucket.WriteAll(ctx, "plain", plain, nil))

	shardedData := testutils.GenerateTestData(t, 12*1024*1024)
	_, err = testutils.WriteShardedBlob(ctx, bucket, "sharded", shardedData, 5*1024*1024)
	require.NoError(t, err)

	client := startServer(t, &BucketServer{
		Bucket:         bucket,
		ChunkSize:      1024 * 1024,
		VerifyChecksum: true,
		Logger:         logr.Discard(),
	})

	for holder, want := range map[string][]byte{"plain": plain, "sharded": shardedData} {
		t.Run(holder, func(t *testing.T) {
			stream, err := client.Get(ctx, holder)
			require.NoError(t, err)

			chunks, err := recvAll(t, stream)
			require.NoError(t, err)
			testutils.CompareChunksToData(t, chunks, want)
		})
	}

	stream, err := client.Get(ctx, "absent")
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Equal(t, codes.NotFound, status.Code(err))
}
