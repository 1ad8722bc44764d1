package blobget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ligustah/blobget/internal/logging"
	"github.com/ligustah/blobget/internal/metrics"
)

// DefaultQueueCapacity is the number of chunks buffered per session.
const DefaultQueueCapacity = 100

type options struct {
	queueCapacity int
	logger        logr.Logger
	scope         Scope
}

// Option configures a Bridge.
type Option func(*options)

// WithQueueCapacity sets the number of chunks a receiver may buffer ahead of
// the reader. Values below 1 are ignored.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithErrorScope selects which calls observe a receiver failure.
// The default is ScopeSession.
func WithErrorScope(scope Scope) Option {
	return func(o *options) {
		o.scope = scope
	}
}

// Bridge owns the download sessions of one process or component.
type Bridge struct {
	dial   DialFunc
	opts   options
	logger logr.Logger
	errs   *ErrorLog

	// Root of every receiver context; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards sessions and closed. It is never held across I/O or a
	// channel operation.
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// New returns a Bridge that opens connections with dial.
func New(dial DialFunc, opts ...Option) *Bridge {
	o := options{
		queueCapacity: DefaultQueueCapacity,
		logger:        logr.Discard(),
		scope:         ScopeSession,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		dial:     dial,
		opts:     o,
		logger:   o.logger,
		errs:     NewErrorLog(o.scope),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
}

// Initialize opens a session for holder, replacing any existing one.
func (b *Bridge) Initialize(holder string) error {
	return b.InitializeContext(context.Background(), holder)
}

// BlockingRead returns the next chunk for holder, blocking until one is
// available. An empty, non-nil chunk with a nil error marks the end of the
// stream.
func (b *Bridge) BlockingRead(holder string) ([]byte, error) {
	chunk, err := b.ReadContext(context.Background(), holder)
	if errors.Is(err, io.EOF) {
		return []byte{}, nil
	}
	return chunk, err
}

// Terminate tears down the session for holder and waits for its receiver.
// It succeeds when there is no session.
func (b *Bridge) Terminate(holder string) error {
	return b.TerminateContext(context.Background(), holder)
}

// InitializeContext opens a session for holder. An existing session is
// terminated first and its error, if any, is returned without opening a new
// one. ctx bounds the dial only; the session outlives it.
func (b *Bridge) InitializeContext(ctx context.Context, holder string) error {
	if b.lookup(holder) != nil {
		if err := b.TerminateContext(ctx, holder); err != nil {
			return err
		}
	}
	if b.lookup(holder) != nil {
		return &Error{Kind: KindState, Op: "initialize", Holder: holder, Err: ErrSessionExists}
	}

	conn, err := b.dial(ctx)
	if err != nil {
		metrics.RecordError(KindConnection.String())
		return &Error{
			Kind:   KindConnection,
			Op:     "initialize",
			Holder: holder,
			Err:    fmt.Errorf("could not connect to the blob service: %w", err),
		}
	}

	sctx, cancel := context.WithCancel(b.ctx)
	s := &session{
		holder: holder,
		id:     uuid.NewString(),
		queue:  make(chan []byte, b.opts.queueCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		conn.Close()
		return &Error{Kind: KindState, Op: "initialize", Holder: holder, Err: ErrClosed}
	}
	if _, exists := b.sessions[holder]; exists {
		b.mu.Unlock()
		cancel()
		conn.Close()
		return &Error{Kind: KindState, Op: "initialize", Holder: holder, Err: ErrSessionExists}
	}
	b.sessions[holder] = s
	b.wg.Add(1)
	b.mu.Unlock()

	metrics.RecordSessionOpened()
	b.logger.V(logging.VERBOSE).Info("session opened", "holder", holder, "session", s.id)

	go b.receive(sctx, s)
	return nil
}

// ReadContext returns the next chunk for holder. It returns io.EOF once the
// stream has ended and every chunk has been read. A read still waiting when
// the session is terminated fails with ErrTerminated.
func (b *Bridge) ReadContext(ctx context.Context, holder string) ([]byte, error) {
	if err := b.errs.Check(holder); err != nil {
		return nil, err
	}

	s := b.lookup(holder)
	if s == nil {
		return nil, &Error{Kind: KindState, Op: "read", Holder: holder, Err: ErrNoSession}
	}

	var (
		chunk []byte
		ok    bool
	)
	select {
	case chunk, ok = <-s.queue:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The receiver records before closing the queue, so a failure that ended
	// the stream is always visible here.
	if err := b.errs.Check(holder); err != nil {
		return nil, err
	}
	if !ok {
		if s.terminated.Load() {
			return nil, &Error{Kind: KindState, Op: "read", Holder: holder, Err: ErrTerminated}
		}
		return nil, io.EOF
	}
	return chunk, nil
}

// TerminateContext removes the session for holder, cancels its receiver and
// waits for it to exit or for ctx to be done. A failure pending before the
// call is still returned after teardown, combined with anything recorded
// while tearing down.
func (b *Bridge) TerminateContext(ctx context.Context, holder string) error {
	pending := b.errs.Check(holder)

	b.mu.Lock()
	s, ok := b.sessions[holder]
	delete(b.sessions, holder)
	b.mu.Unlock()

	if !ok {
		return pending
	}
	metrics.RecordSessionClosed()

	s.terminated.Store(true)
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return multierr.Append(pending, &Error{
			Kind:   KindChannel,
			Op:     "terminate",
			Holder: holder,
			Err:    fmt.Errorf("wait for receiver: %w", ctx.Err()),
		})
	}

	if b.lookup(holder) != nil {
		panic(fmt.Sprintf("blobget: session for %q still registered after terminate", holder))
	}
	b.logger.V(logging.VERBOSE).Info("session closed", "holder", holder, "session", s.id)

	return multierr.Append(pending, b.errs.Check(holder))
}

// Close terminates every session and waits for all receivers. Failures that
// nobody consumed are returned. The Bridge cannot be used afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	n := len(b.sessions)
	for _, s := range b.sessions {
		s.terminated.Store(true)
	}
	b.sessions = make(map[string]*session)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	for i := 0; i < n; i++ {
		metrics.RecordSessionClosed()
	}

	return b.errs.Drain()
}

// Active reports whether a session exists for holder.
func (b *Bridge) Active(holder string) bool {
	return b.lookup(holder) != nil
}

// Len returns the number of live sessions.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Errors returns the bridge's error log.
func (b *Bridge) Errors() *ErrorLog {
	return b.errs
}

func (b *Bridge) lookup(holder string) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[holder]
}

func (b *Bridge) record(kind Kind, op, holder string, err error) {
	b.logger.V(logging.DEFAULT).Info("receiver failed", "holder", holder, "op", op, "kind", kind.String(), "err", err.Error())
	metrics.RecordError(kind.String())
	b.errs.Record(holder, op, &Error{Kind: kind, Op: op, Holder: holder, Err: err})
}
