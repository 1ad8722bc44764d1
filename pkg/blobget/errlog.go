package blobget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Scope controls which calls observe a recorded failure.
type Scope int

const (
	// ScopeSession surfaces a failure only on calls for the holder that
	// produced it.
	ScopeSession Scope = iota
	// ScopeShared surfaces any failure on the next call for any holder.
	ScopeShared
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeShared:
		return "shared"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope parses "session" or "shared".
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "session":
		return ScopeSession, nil
	case "shared":
		return ScopeShared, nil
	default:
		return 0, fmt.Errorf("unknown error scope %q", s)
	}
}

// Entry is one recorded failure.
type Entry struct {
	Holder string
	Op     string
	Err    error
	Time   time.Time
}

// ErrorLog collects failures from receivers until a caller consumes them.
// It is safe for concurrent use.
type ErrorLog struct {
	mu      sync.Mutex
	scope   Scope
	entries []Entry
}

// NewErrorLog returns an empty log with the given scope.
func NewErrorLog(scope Scope) *ErrorLog {
	return &ErrorLog{scope: scope}
}

// Record appends a failure observed for holder during op.
func (l *ErrorLog) Record(holder, op string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Holder: holder,
		Op:     op,
		Err:    err,
		Time:   time.Now(),
	})
}

// Check removes the failures visible to holder and returns them combined,
// oldest first. It returns nil when there are none.
func (l *ErrorLog) Check(holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}

	var errs []error
	kept := l.entries[:0]
	for _, e := range l.entries {
		if l.scope == ScopeShared || e.Holder == holder {
			errs = append(errs, e.Err)
			continue
		}
		kept = append(kept, e)
	}
	clear(l.entries[len(kept):])
	l.entries = kept

	return multierr.Combine(errs...)
}

// Drain removes every entry and returns them combined.
func (l *ErrorLog) Drain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	errs := make([]error, 0, len(l.entries))
	for _, e := range l.entries {
		errs = append(errs, e.Err)
	}
	l.entries = nil
	return multierr.Combine(errs...)
}

// Entries returns a copy of the pending entries.
func (l *ErrorLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of pending entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
