package blobrpc

import (
	"context"
	"errors"
	"io"

	"github.com/go-logr/logr"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ligustah/blobget/internal/logging"
	"github.com/ligustah/blobget/internal/metrics"
	"github.com/ligustah/blobget/pkg/sharded"
)

// DefaultChunkSize is the chunk size used when BucketServer.ChunkSize is unset.
const DefaultChunkSize = 1024 * 1024

// BucketServer serves blobs stored in a gocloud.dev/blob bucket.
//
// A holder names the object key. When "<holder>.manifest.json" exists the
// blob is read as a sharded file instead.
type BucketServer struct {
	Bucket *blob.Bucket

	// ChunkSize is the payload size of each streamed message. The last
	// chunk of a blob may be shorter.
	ChunkSize int

	// VerifyChecksum checks shard checksums of sharded blobs while streaming.
	VerifyChecksum bool

	Logger logr.Logger
}

var _ BlobServiceServer = (*BucketServer)(nil)

func (s *BucketServer) chunkSize() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

// Get streams the blob stored for holder.
func (s *BucketServer) Get(holder string, stream GetServer) error {
	if holder == "" {
		return status.Error(codes.InvalidArgument, "holder is required")
	}

	ctx := stream.Context()
	logger := s.Logger.WithValues("holder", holder)

	r, err := s.open(ctx, logger, holder)
	if err != nil {
		logger.V(logging.VERBOSE).Info("open failed", "err", err)
		return err
	}
	defer r.Close()

	size := s.chunkSize()
	var sent int64
	for {
		// Send may hold on to the message, so every chunk gets its own buffer.
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := stream.Send(buf[:n]); sendErr != nil {
				return sendErr
			}
			sent += int64(n)
			metrics.RecordChunkSent(n)
			logger.V(logging.TRACE).Info("chunk sent", "bytes", n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			logger.V(logging.DEBUG).Info("blob streamed", "bytes", sent)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return status.FromContextError(ctx.Err()).Err()
			}
			return status.Errorf(codes.Internal, "read %s: %v", holder, err)
		}
	}
}

func (s *BucketServer) open(ctx context.Context, logger logr.Logger, holder string) (io.ReadCloser, error) {
	isSharded, err := sharded.IsSharded(ctx, s.Bucket, holder)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "check manifest for %s: %v", holder, err)
	}

	if isSharded {
		r, err := sharded.ReadFromBucket(ctx, s.Bucket, holder, sharded.WithVerifyChecksum(s.VerifyChecksum))
		if err != nil {
			return nil, bucketStatus(holder, err)
		}
		m := r.Manifest()
		logger.V(logging.DEBUG).Info("streaming sharded blob", "shards", len(m.Shards), "size", m.TotalSize)
		return r, nil
	}

	r, err := s.Bucket.NewReader(ctx, holder, nil)
	if err != nil {
		return nil, bucketStatus(holder, err)
	}
	return r, nil
}

func bucketStatus(holder string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return status.Errorf(codes.NotFound, "blob %q not found", holder)
	}
	return status.Errorf(codes.Internal, "open %s: %v", holder, err)
}
