package sharded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotSharded is returned when no manifest exists for a blob.
var ErrNotSharded = errors.New("sharded: no manifest")

// Manifest describes a completed sharded blob.
type Manifest struct {
	TotalSize   int64             `json:"total_size"`
	ShardSize   int64             `json:"shard_size"`
	PartsPrefix string            `json:"parts_prefix"`
	Shards      []ShardInfo       `json:"shards"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ShardInfo describes a single shard in the manifest.
// The index is implicit from the array position.
type ShardInfo struct {
	Object   string `json:"object"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// Options configures sharded reads.
type Options struct {
	VerifyChecksum bool
}

// Option is a functional option for configuring sharded reads.
type Option func(*Options)

// WithVerifyChecksum enables checksum verification during reads.
// Shards without a stored checksum are not verified.
func WithVerifyChecksum(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksum = verify
	}
}

// ManifestKey returns the object key of the manifest for dest.
func ManifestKey(dest string) string {
	return dest + ".manifest.json"
}

// PartsPrefix returns the default key prefix for the shards of dest.
func PartsPrefix(dest string) string {
	return dest + ".shards/"
}

// ShardObject returns the object name of the shard at idx.
func ShardObject(idx int) string {
	return fmt.Sprintf("shard-%06d", idx)
}

// IsSharded reports whether dest is stored as a sharded blob.
func IsSharded(ctx context.Context, bucket *blob.Bucket, dest string) (bool, error) {
	ok, err := bucket.Exists(ctx, ManifestKey(dest))
	if err != nil {
		return false, fmt.Errorf("sharded: check manifest: %w", err)
	}
	return ok, nil
}

// LoadManifest reads and decodes the manifest for dest.
func LoadManifest(ctx context.Context, bucket *blob.Bucket, dest string) (*Manifest, error) {
	data, err := bucket.ReadAll(ctx, ManifestKey(dest))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotSharded, dest)
		}
		return nil, fmt.Errorf("sharded: read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("sharded: unmarshal manifest: %w", err)
	}
	return &manifest, nil
}
