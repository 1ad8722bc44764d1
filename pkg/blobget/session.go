package blobget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ligustah/blobget/internal/logging"
	"github.com/ligustah/blobget/internal/metrics"
)

type session struct {
	holder string
	id     string
	queue  chan []byte
	cancel context.CancelFunc
	done   chan struct{}
	conn   Conn

	// Set before cancel by Terminate and Close, so a closed queue is not
	// mistaken for the end of the stream.
	terminated atomic.Bool
}

// receive drains the Get stream for s into s.queue until the stream ends,
// fails, or ctx is cancelled. Cancellation is not a failure.
func (b *Bridge) receive(ctx context.Context, s *session) {
	defer b.wg.Done()
	defer close(s.done)
	defer s.conn.Close()
	defer close(s.queue)
	defer func() {
		if r := recover(); r != nil {
			b.record(KindChannel, "get", s.holder, fmt.Errorf("receiver panicked: %v", r))
		}
	}()

	logger := b.logger.WithValues("holder", s.holder, "session", s.id)

	stream, err := s.conn.Get(ctx, s.holder)
	if err != nil {
		if ctx.Err() == nil {
			b.record(KindConnection, "get", s.holder, fmt.Errorf("could not open get stream: %w", err))
		}
		return
	}

	var chunks, bytes int
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.V(logging.DEBUG).Info("stream finished", "chunks", chunks, "bytes", bytes)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.V(logging.DEBUG).Info("receiver cancelled")
				return
			}
			kind := KindProtocol
			if status.Code(err) == codes.Unavailable {
				kind = KindConnection
			}
			b.record(kind, "get", s.holder, err)
			return
		}

		// An empty payload would read as end of stream.
		if len(chunk) == 0 {
			continue
		}

		select {
		case s.queue <- chunk:
			chunks++
			bytes += len(chunk)
			metrics.RecordChunkReceived(len(chunk))
			logger.V(logging.TRACE).Info("chunk queued", "bytes", len(chunk))
		case <-ctx.Done():
			logger.V(logging.DEBUG).Info("receiver cancelled")
			return
		}
	}
}
