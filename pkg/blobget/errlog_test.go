package blobget

import (
	"errors"
	"testing"

	"go.uber.org/multierr"
)

func TestErrorLogSessionScope(t *testing.T) {
	log := NewErrorLog(ScopeSession)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	log.Record("a", "get", errA)
	log.Record("b", "get", errB)

	if err := log.Check("c"); err != nil {
		t.Fatalf("Check(c) = %v, want nil", err)
	}
	if err := log.Check("a"); !errors.Is(err, errA) || errors.Is(err, errB) {
		t.Fatalf("Check(a) = %v, want only %v", err, errA)
	}
	if err := log.Check("a"); err != nil {
		t.Fatalf("second Check(a) = %v, want nil", err)
	}
	if got := log.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if err := log.Check("b"); !errors.Is(err, errB) {
		t.Fatalf("Check(b) = %v, want %v", err, errB)
	}
}

func TestErrorLogSharedScope(t *testing.T) {
	log := NewErrorLog(ScopeShared)
	errA := errors.New("a failed")

	log.Record("a", "get", errA)

	if err := log.Check("b"); !errors.Is(err, errA) {
		t.Fatalf("Check(b) = %v, want %v", err, errA)
	}
	if err := log.Check("a"); err != nil {
		t.Fatalf("Check(a) after drain = %v, want nil", err)
	}
}

func TestErrorLogOrder(t *testing.T) {
	log := NewErrorLog(ScopeSession)
	first := errors.New("first")
	second := errors.New("second")

	log.Record("h", "get", first)
	log.Record("h", "terminate", second)

	errs := multierr.Errors(log.Check("h"))
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if errs[0] != first || errs[1] != second {
		t.Errorf("errors = %v, want [first second]", errs)
	}
}

func TestErrorLogIgnoresNil(t *testing.T) {
	log := NewErrorLog(ScopeShared)
	log.Record("h", "get", nil)
	if got := log.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestErrorLogEntriesAndDrain(t *testing.T) {
	log := NewErrorLog(ScopeSession)
	log.Record("a", "get", errors.New("a"))
	log.Record("b", "get", errors.New("b"))

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].Holder != "a" || entries[0].Op != "get" || entries[0].Time.IsZero() {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	if err := log.Drain(); len(multierr.Errors(err)) != 2 {
		t.Fatalf("Drain() = %v, want 2 errors", err)
	}
	if got := log.Len(); got != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", got)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeSession, false},
		{"session", ScopeSession, false},
		{"shared", ScopeShared, false},
		{"global", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScope(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorFormat(t *testing.T) {
	err := &Error{Kind: KindState, Op: "read", Holder: "blob-123", Err: ErrNoSession}
	if got, want := err.Error(), "read blob-123: state error: no session"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrNoSession) {
		t.Error("errors.Is(err, ErrNoSession) = false")
	}
	if !IsKind(err, KindState) || IsKind(err, KindProtocol) {
		t.Error("IsKind mismatch")
	}
}
