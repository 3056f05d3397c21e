// Package xerr classifies errors crossing the executor and exchange-sync
// boundary into a closed set of kinds, generalizing the store/redis
// circuit-breaker's single ErrCircuitOpen sentinel into a small enum so
// callers can branch on how to react instead of string-matching.
package xerr

import "fmt"

// Kind classifies why an operation failed.
type Kind int

const (
	// Transient failures are expected to clear on retry (timeouts, 429s,
	// connection resets).
	Transient Kind = iota
	// Fatal failures mean the caller should stop trying this operation.
	Fatal
	// StateCorruption means local state disagrees with itself and cannot
	// be trusted until repaired (e.g. a position file that failed its
	// checksum).
	StateCorruption
	// Drift means local state disagrees with the exchange's truth and
	// needs reconciliation.
	Drift
	// Stale means the data backing a decision is older than its freshness
	// budget.
	Stale
	// Kill means the caller must halt trading entirely (daily loss limit,
	// operator kill switch).
	Kill
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case StateCorruption:
		return "state_corruption"
	case Drift:
		return "drift"
	case Stale:
		return "stale"
	case Kill:
		return "kill"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewTransient(op string, err error) *Error       { return New(Transient, op, err) }
func NewFatal(op string, err error) *Error           { return New(Fatal, op, err) }
func NewStateCorruption(op string, err error) *Error { return New(StateCorruption, op, err) }
func NewDrift(op string, err error) *Error           { return New(Drift, op, err) }
func NewStale(op string, err error) *Error           { return New(Stale, op, err) }
func NewKill(op string, err error) *Error            { return New(Kill, op, err) }

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var xe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			xe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return xe != nil && xe.Kind == k
}

// Result is a lightweight Ok/error pairing for a Kind-tagged error that
// travels alongside a value rather than being returned bare.
type Result[T any] struct {
	Value T
	Err   *Error
}

// Ok builds a successful Result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Failed builds a failed Result of the given kind.
func Failed[T any](kind Kind, op string, err error) Result[T] {
	return Result[T]{Err: New(kind, op, err)}
}

// IsOk reports whether the result carries no error.
func (r Result[T]) IsOk() bool { return r.Err == nil }
