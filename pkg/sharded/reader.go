package sharded

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"gocloud.dev/blob"
)

// Reader reads a sharded blob, streaming all shards in order.
type Reader struct {
	ctx      context.Context
	bucket   *blob.Bucket
	manifest *Manifest
	opts     Options

	currentShard  int
	currentReader io.ReadCloser
	hash          hash.Hash
	closed        bool
}

// ReadFromBucket opens the sharded blob dest in bucket.
// The bucket stays owned by the caller; ctx bounds every shard open.
func ReadFromBucket(ctx context.Context, bucket *blob.Bucket, dest string, options ...Option) (*Reader, error) {
	opts := Options{}
	for _, opt := range options {
		opt(&opts)
	}

	manifest, err := LoadManifest(ctx, bucket, dest)
	if err != nil {
		return nil, err
	}

	return &Reader{
		ctx:      ctx,
		bucket:   bucket,
		manifest: manifest,
		opts:     opts,
	}, nil
}

// Read reads data from the sharded blob.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		if r.currentReader != nil {
			n, err = r.currentReader.Read(p)
			if n > 0 && r.hash != nil {
				r.hash.Write(p[:n])
			}
			if err == io.EOF {
				if err := r.finishShard(); err != nil {
					return n, err
				}
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		if r.currentShard >= len(r.manifest.Shards) {
			return 0, io.EOF
		}

		shard := r.manifest.Shards[r.currentShard]
		reader, err := r.bucket.NewReader(r.ctx, r.manifest.PartsPrefix+shard.Object, nil)
		if err != nil {
			return 0, fmt.Errorf("sharded: open shard %d: %w", r.currentShard, err)
		}

		r.currentReader = reader
		r.currentShard++
		if r.opts.VerifyChecksum && shard.Checksum != "" {
			r.hash = sha256.New()
		}
	}
}

// finishShard closes the exhausted shard and verifies its checksum.
func (r *Reader) finishShard() error {
	idx := r.currentShard - 1
	r.currentReader.Close()
	r.currentReader = nil

	if r.hash == nil {
		return nil
	}
	actual := hex.EncodeToString(r.hash.Sum(nil))
	r.hash = nil

	expected := r.manifest.Shards[idx].Checksum
	if actual != expected {
		return fmt.Errorf("sharded: checksum mismatch for shard %d: expected %s, got %s", idx, expected, actual)
	}
	return nil
}

// Close releases the open shard. The bucket is not closed.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.currentReader != nil {
		err := r.currentReader.Close()
		r.currentReader = nil
		return err
	}
	return nil
}

// Manifest returns the manifest for the sharded blob.
func (r *Reader) Manifest() *Manifest {
	return r.manifest
}
