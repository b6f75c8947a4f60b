package limits

import "fmt"

// ResourceExceeded reports that a query or update tripped one of the
// caps in Caps (spec.md §4.11 "queries/updates exceeding a configured
// resource cap fail with ResourceExceeded rather than exhausting
// memory").
type ResourceExceeded struct {
	Cap   string
	Limit uint64
	Got   uint64
}

func (e *ResourceExceeded) Error() string {
	return fmt.Sprintf("limits: %s exceeded (limit %d, got %d)", e.Cap, e.Limit, e.Got)
}

// Caps bounds the resources a single query or update may consume.
// Zero means unbounded for that dimension.
type Caps struct {
	// MaxBindings caps the number of solution rows materialized by any
	// single blocking operator (ORDER BY, GROUP BY, DISTINCT hash set).
	MaxBindings uint64

	// MaxBufferBytes holds a byte budget for buffered intermediate
	// state; no operator in this module reads it, so buffer sizes are
	// not checked against it.
	MaxBufferBytes uint64

	// MaxRegexPatternBytes caps the length of a REGEX() or REPLACE()
	// pattern literal, guarding against catastrophic regexp
	// compilation cost.
	MaxRegexPatternBytes uint64
}

// DefaultCaps returns generous but finite defaults, so an
// unconfigured store still fails closed rather than growing without
// bound on adversarial input.
func DefaultCaps() Caps {
	return Caps{
		MaxBindings:          10_000_000,
		MaxBufferBytes:       1 << 30, // 1 GiB
		MaxRegexPatternBytes: 4096,
	}
}

// Counter tracks one running resource total against its cap,
// returning ResourceExceeded the instant the cap is crossed.
type Counter struct {
	name  string
	limit uint64
	n     uint64
}

func NewCounter(name string, limit uint64) *Counter {
	return &Counter{name: name, limit: limit}
}

// Add increments the counter by delta and checks it against the cap.
// A zero limit means unbounded.
func (c *Counter) Add(delta uint64) error {
	c.n += delta
	if c.limit > 0 && c.n > c.limit {
		return &ResourceExceeded{Cap: c.name, Limit: c.limit, Got: c.n}
	}
	return nil
}

func (c *Counter) Value() uint64 { return c.n }

// CheckRegexPattern enforces Caps.MaxRegexPatternBytes up front, before
// handing the pattern to regexp.Compile.
func CheckRegexPattern(caps Caps, pattern string) error {
	if caps.MaxRegexPatternBytes > 0 && uint64(len(pattern)) > caps.MaxRegexPatternBytes {
		return &ResourceExceeded{Cap: "regex_pattern_bytes", Limit: caps.MaxRegexPatternBytes, Got: uint64(len(pattern))}
	}
	return nil
}
