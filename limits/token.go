// Package limits implements the cancellation token and per-query
// resource caps (spec.md §4.11, component C11). There is no teacher
// equivalent (sopp has no query engine to cancel); the design follows
// spec.md §9's explicit guidance: "cancellation via tokens, not
// exceptions" and polling at a bounded cadence, built on stdlib
// context.Context — the ecosystem-standard cancellation primitive in
// Go, not a stdlib fallback (no pack repo supplies a bespoke one).
package limits

import (
	"context"
	"time"
)

// Token is passed top-down through every solution iterator. Operators
// must check it at a bounded cadence (spec.md §4.11 "every N yielded
// rows") and stop promptly once it is observed cancelled.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken returns a token that never expires on its own; call
// Cancel to flip it.
func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// NewDeadlineToken returns a token that flips automatically after d
// (spec.md §4.11 "Time-based deadlines are implemented as a token
// that flips at expiry").
func NewDeadlineToken(d time.Duration) *Token {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	return &Token{ctx: ctx, cancel: cancel}
}

// FromContext adapts a caller-supplied context.Context (e.g. one tied
// to an HTTP request, out of scope for this module) into a Token.
func FromContext(ctx context.Context) *Token {
	cctx, cancel := context.WithCancel(ctx)
	return &Token{ctx: cctx, cancel: cancel}
}

// Cancelled reports whether the token has been flipped.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel flips the token.
func (t *Token) Cancel() { t.cancel() }

// Done returns a channel closed when the token is flipped, for
// selecting alongside other channel operations.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Checkpoint is a cadence counter: operators call Tick on every row
// (or loop iteration) and only actually poll the token every
// `every` calls, keeping the check itself cheap on hot paths.
type Checkpoint struct {
	every uint32
	n     uint32
}

// NewCheckpoint returns a Checkpoint polling the token every `every`
// calls to Tick. every < 1 is treated as 1 (poll every call).
func NewCheckpoint(every uint32) *Checkpoint {
	if every < 1 {
		every = 1
	}
	return &Checkpoint{every: every}
}

// Tick increments the internal counter and, when it wraps, checks
// tok. It returns true if the caller should stop.
func (c *Checkpoint) Tick(tok *Token) bool {
	c.n++
	if c.n < c.every {
		return false
	}
	c.n = 0
	return tok.Cancelled()
}
