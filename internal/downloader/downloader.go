package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"gocloud.dev/blob"

	"github.com/ligustah/blobget/internal/progress"
)

// ErrStorage wraps failures writing to the destination bucket.
var ErrStorage = errors.New("downloader: storage error")

// Source is the session API Download drives. *blobget.Bridge implements it.
type Source interface {
	InitializeContext(ctx context.Context, holder string) error
	ReadContext(ctx context.Context, holder string) ([]byte, error)
	TerminateContext(ctx context.Context, holder string) error
}

// Options configures the downloader.
type Options struct {
	// Workers is the number of holders downloaded in parallel.
	Workers int

	// Prefix is prepended to each holder to form the object key.
	Prefix string

	// MaxConsecutiveFailures is the number of consecutive holder failures
	// before the circuit breaker trips and stops the download.
	// Default: 10
	MaxConsecutiveFailures int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// FailedHolder records a holder that could not be downloaded.
type FailedHolder struct {
	Holder string
	Error  error
}

// CircuitBreakerError is returned when too many consecutive failures occur.
// Use errors.As to extract it and inspect FailedHolders.
type CircuitBreakerError struct {
	ConsecutiveFailures int
	FailedHolders       []FailedHolder
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failures", e.ConsecutiveFailures)
}

func (e *CircuitBreakerError) Unwrap() []error {
	return holderErrors(e.FailedHolders)
}

// DownloadError is returned when some holders failed.
type DownloadError struct {
	Total         int
	FailedHolders []FailedHolder
}

func (e *DownloadError) Error() string {
	names := make([]string, len(e.FailedHolders))
	for i, f := range e.FailedHolders {
		names[i] = f.Holder
	}
	return fmt.Sprintf("%d of %d holders failed: %s", len(e.FailedHolders), e.Total, strings.Join(names, ", "))
}

func (e *DownloadError) Unwrap() []error {
	return holderErrors(e.FailedHolders)
}

func holderErrors(failed []FailedHolder) []error {
	errs := make([]error, len(failed))
	for i, f := range failed {
		errs[i] = f.Error
	}
	return errs
}

// Download fetches every holder from src and writes it to bucket under
// opts.Prefix+holder.
func Download(ctx context.Context, src Source, holders []string, bucket *blob.Bucket, opts Options) error {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 10
	}

	// Two sessions for one holder would replace each other.
	holders = uniqueHolders(holders)

	// Circuit breaker state
	var (
		cbMu                  sync.Mutex
		consecutiveFailures   int
		failed                []FailedHolder
		circuitBreakerTripped bool
	)

	cbCtx, cbCancel := context.WithCancel(ctx)
	defer cbCancel()

	jobs := make(chan string, opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for holder := range jobs {
				err := downloadHolder(cbCtx, src, bucket, opts.Prefix+holder, holder, opts.Progress)

				cbMu.Lock()
				if err != nil {
					consecutiveFailures++
					failed = append(failed, FailedHolder{Holder: holder, Error: err})

					if consecutiveFailures >= opts.MaxConsecutiveFailures {
						circuitBreakerTripped = true
						cbCancel()
					}
				} else {
					consecutiveFailures = 0
				}
				tripped := circuitBreakerTripped
				cbMu.Unlock()

				if tripped {
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, holder := range holders {
			select {
			case jobs <- holder:
			case <-cbCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	cbMu.Lock()
	defer cbMu.Unlock()

	if circuitBreakerTripped {
		return &CircuitBreakerError{
			ConsecutiveFailures: consecutiveFailures,
			FailedHolders:       failed,
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(failed) > 0 {
		return &DownloadError{Total: len(holders), FailedHolders: failed}
	}
	return nil
}

func uniqueHolders(holders []string) []string {
	seen := make(map[string]struct{}, len(holders))
	unique := make([]string, 0, len(holders))
	for _, h := range holders {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, h)
	}
	return unique
}

// downloadHolder copies one holder into the object key. The object is only
// committed when the whole stream was read.
func downloadHolder(ctx context.Context, src Source, bucket *blob.Bucket, key, holder string, reporter *progress.Reporter) error {
	if reporter != nil {
		reporter.SessionStarted()
	}

	err := writeHolder(ctx, src, bucket, key, holder, reporter)
	if reporter != nil {
		if err != nil {
			reporter.SessionFailed()
		} else {
			reporter.SessionCompleted()
		}
	}
	return err
}

func writeHolder(ctx context.Context, src Source, bucket *blob.Bucket, key, holder string, reporter *progress.Reporter) error {
	if err := src.InitializeContext(ctx, holder); err != nil {
		return err
	}
	// The session is cancelled by Terminate, so the join is prompt even
	// after ctx is done.
	terminate := func() error {
		return src.TerminateContext(context.WithoutCancel(ctx), holder)
	}

	// Cancelling wctx before Close discards the partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return multierr.Append(fmt.Errorf("%w: open %s: %v", ErrStorage, key, err), terminate())
	}

	_, copyErr := Copy(ctx, src, holder, w, reporter)
	if copyErr != nil {
		cancel()
		w.Close()
		return multierr.Append(copyErr, terminate())
	}

	if err := w.Close(); err != nil {
		return multierr.Append(fmt.Errorf("%w: write %s: %v", ErrStorage, key, err), terminate())
	}
	return terminate()
}

// Copy reads every chunk of holder's open session and writes it to w. It
// returns the number of bytes written.
func Copy(ctx context.Context, src Source, holder string, w io.Writer, reporter *progress.Reporter) (int64, error) {
	var written int64
	for {
		chunk, err := src.ReadContext(ctx, holder)
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("%w: write %s: %v", ErrStorage, holder, err)
		}
		if reporter != nil {
			reporter.ChunkReceived(n)
		}
	}
}
