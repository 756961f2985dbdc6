/*
Package trace builds and propagates W3C-style trace context across the
chained worker calls of a journey.

The wire format is the standard traceparent header:

	00-<32 hex trace id>-<16 hex span id>-<2 hex flags>

A trace id is created once per chain; every hop regenerates the span id,
with the prior span id becoming the parent.
*/
package trace

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HeaderTraceparent is the canonical header name.
const HeaderTraceparent = "traceparent"

// FlagsSampled is the flags byte used when synthesizing a new context.
const FlagsSampled = "01"

var traceparentRe = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// Context is the (traceId, spanId, parentSpanId) triple threaded through a
// call chain. Immutable per hop; use Builder.NextHop to advance.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Sampled      bool
}

// Header renders the context in traceparent wire format.
func (c Context) Header() string {
	flags := "00"
	if c.Sampled {
		flags = FlagsSampled
	}
	return fmt.Sprintf("00-%s-%s-%s", c.TraceID, c.SpanID, flags)
}

// Valid reports whether a header string is a well-formed traceparent.
func Valid(header string) bool {
	return traceparentRe.MatchString(header)
}

// Parse extracts a Context from a traceparent header.
func Parse(header string) (Context, bool) {
	if !Valid(header) {
		return Context{}, false
	}
	return Context{
		TraceID: header[3:35],
		SpanID:  header[36:52],
		Sampled: header[53:55] != "00",
	}, true
}

// Builder creates trace contexts. The zero value is not usable; call New.
type Builder struct {
	rand io.Reader
	seq  atomic.Uint64
	now  func() time.Time
}

// Option configures the builder.
type Option func(*Builder)

// WithRandReader overrides the randomness source (tests, or environments
// where crypto/rand is unavailable).
func WithRandReader(r io.Reader) Option {
	return func(b *Builder) { b.rand = r }
}

// WithClock overrides the time source used by the deterministic fallback.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a trace context builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		rand: rand.Reader,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the context for the current hop. A valid inbound header
// keeps its trace id and its span id becomes the parent; anything else
// starts a fresh trace. Build never fails: when the randomness source is
// unavailable it falls back to hashing a correlation id plus current time.
func (b *Builder) Build(inbound string) Context {
	if parent, ok := Parse(inbound); ok {
		return Context{
			TraceID:      parent.TraceID,
			SpanID:       b.randomHex(8),
			ParentSpanID: parent.SpanID,
			Sampled:      parent.Sampled,
		}
	}
	return Context{
		TraceID: b.randomHex(16),
		SpanID:  b.randomHex(8),
		Sampled: true,
	}
}

// NextHop advances a context one hop: fresh span id, prior span becomes
// the parent. Trace id and sampling are preserved.
func (b *Builder) NextHop(c Context) Context {
	return Context{
		TraceID:      c.TraceID,
		SpanID:       b.randomHex(8),
		ParentSpanID: c.SpanID,
		Sampled:      c.Sampled,
	}
}

// NewCorrelationID returns a fresh correlation id for a journey chain.
func NewCorrelationID() string {
	return uuid.NewString()
}

// randomHex returns n random bytes hex-encoded, degrading to a
// hash-derived value so id generation cannot fail.
func (b *Builder) randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.rand, buf); err == nil {
		return hex.EncodeToString(buf)
	}
	// uuid would panic on a dead entropy source, so the seed is built
	// from the clock and a process-local counter only.
	seed := fmt.Sprintf("journeysim-%d-%d", b.now().UnixNano(), b.seq.Add(1))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:n])
}
