package blobget

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindConnection means the blob service could not be reached or the
	// stream could not be opened.
	KindConnection Kind = iota + 1
	// KindProtocol means the stream failed mid-transfer.
	KindProtocol
	// KindState means the call needs a session that does not exist.
	KindState
	// KindChannel means the receiver could not hand chunks over or did not
	// shut down properly.
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindChannel:
		return "channel"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	// ErrNoSession is wrapped by errors from calls on a holder without a session.
	ErrNoSession = errors.New("no session")

	// ErrClosed is wrapped by errors from Initialize after Close.
	ErrClosed = errors.New("bridge closed")

	// ErrTerminated is wrapped by errors from a read whose session was
	// terminated while the read was waiting.
	ErrTerminated = errors.New("session terminated")

	// ErrSessionExists is wrapped by errors from an Initialize that raced
	// another Initialize for the same holder and lost.
	ErrSessionExists = errors.New("session already exists")
)

// Error is the error type returned by Bridge operations.
type Error struct {
	Kind   Kind
	Op     string
	Holder string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s error: %v", e.Op, e.Holder, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's tree is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
