// Package testutils provides shared test infrastructure.
//
// The MinIO helpers are only built with the integration tag.
package testutils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"gocloud.dev/blob"

	"github.com/ligustah/blobget/pkg/sharded"
)

// GenerateTestData returns size bytes of data. Small payloads use a
// deterministic pattern; larger ones are seeded pseudo-random so mismatched
// offsets are easy to spot.
func GenerateTestData(t testing.TB, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 251)
		}
		return data
	}
	rnd := rand.New(rand.NewSource(int64(size)))
	rnd.Read(data)
	return data
}

// WriteShardedBlob stores data in bucket using the sharded layout read by
// package sharded: shards under sharded.PartsPrefix(dest) and a manifest at
// sharded.ManifestKey(dest).
func WriteShardedBlob(ctx context.Context, bucket *blob.Bucket, dest string, data []byte, shardSize int64) (*sharded.Manifest, error) {
	if shardSize <= 0 {
		return nil, fmt.Errorf("shard size must be positive, got %d", shardSize)
	}

	manifest := &sharded.Manifest{
		TotalSize:   int64(len(data)),
		ShardSize:   shardSize,
		PartsPrefix: sharded.PartsPrefix(dest),
		CompletedAt: time.Now().UTC(),
	}

	for idx, offset := 0, int64(0); offset < int64(len(data)); idx++ {
		end := min(offset+shardSize, int64(len(data)))
		part := data[offset:end]
		sum := sha256.Sum256(part)

		info := sharded.ShardInfo{
			Object:   sharded.ShardObject(idx),
			Offset:   offset,
			Size:     int64(len(part)),
			Checksum: hex.EncodeToString(sum[:]),
		}
		if err := bucket.WriteAll(ctx, manifest.PartsPrefix+info.Object, part, nil); err != nil {
			return nil, fmt.Errorf("write shard %d: %w", idx, err)
		}
		manifest.Shards = append(manifest.Shards, info)
		offset = end
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := bucket.WriteAll(ctx, sharded.ManifestKey(dest), raw, nil); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

// CompareChunksToData checks that chunks concatenate to expected, reporting
// the first mismatching offset.
func CompareChunksToData(t testing.TB, chunks [][]byte, expected []byte) {
	t.Helper()

	offset := 0
	for i, chunk := range chunks {
		if offset+len(chunk) > len(expected) {
			t.Fatalf("chunk %d overruns expected data: offset=%d, n=%d, expected len=%d",
				i, offset, len(chunk), len(expected))
		}
		if !bytes.Equal(chunk, expected[offset:offset+len(chunk)]) {
			t.Fatalf("data mismatch in chunk %d at offset %d", i, offset)
		}
		offset += len(chunk)
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
