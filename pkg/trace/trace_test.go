package trace

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var headerRe = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

func TestBuilder_Build(t *testing.T) {
	b := New()

	t.Run("synthesizes a well-formed header", func(t *testing.T) {
		c := b.Build("")
		assert.Regexp(t, headerRe, c.Header())
		assert.True(t, c.Sampled)
		assert.Empty(t, c.ParentSpanID)
	})

	t.Run("reuses the inbound trace id", func(t *testing.T) {
		inbound := "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
		c := b.Build(inbound)
		assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", c.TraceID)
		assert.Equal(t, "b7ad6b7169203331", c.ParentSpanID)
		assert.NotEqual(t, "b7ad6b7169203331", c.SpanID)
		assert.Regexp(t, headerRe, c.Header())
	})

	t.Run("ignores malformed inbound headers", func(t *testing.T) {
		for _, inbound := range []string{
			"garbage",
			"00-short-b7ad6b7169203331-01",
			"00-0AF7651916CD43DD8448EB211C80319C-b7ad6b7169203331-01", // uppercase
			"01-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", // wrong version
		} {
			c := b.Build(inbound)
			assert.Empty(t, c.ParentSpanID, "input %q must start a fresh trace", inbound)
			assert.Regexp(t, headerRe, c.Header())
		}
	})

	t.Run("distinct builds get distinct ids", func(t *testing.T) {
		c1 := b.Build("")
		c2 := b.Build("")
		assert.NotEqual(t, c1.TraceID, c2.TraceID)
		assert.NotEqual(t, c1.SpanID, c2.SpanID)
	})
}

func TestBuilder_NextHop(t *testing.T) {
	b := New()
	first := b.Build("")

	second := b.NextHop(first)
	assert.Equal(t, first.TraceID, second.TraceID)
	assert.Equal(t, first.SpanID, second.ParentSpanID)
	assert.NotEqual(t, first.SpanID, second.SpanID)
	assert.Equal(t, first.Sampled, second.Sampled)

	third := b.NextHop(second)
	assert.Equal(t, first.TraceID, third.TraceID)
	assert.Equal(t, second.SpanID, third.ParentSpanID)
}

func TestBuilder_FallbackWithoutEntropy(t *testing.T) {
	// Id generation must not fail even with a dead randomness source.
	b := New(
		WithRandReader(failingReader{}),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)

	c1 := b.Build("")
	c2 := b.Build("")
	assert.Regexp(t, headerRe, c1.Header())
	assert.Regexp(t, headerRe, c2.Header())

	// The process-local counter keeps ids unique under a frozen clock.
	assert.NotEqual(t, c1.TraceID, c2.TraceID)
	assert.NotEqual(t, c1.SpanID, c2.SpanID)
}

func TestParse(t *testing.T) {
	c, ok := Parse("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.True(t, ok)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", c.TraceID)
	assert.Equal(t, "b7ad6b7169203331", c.SpanID)
	assert.True(t, c.Sampled)

	c, ok = Parse("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-00")
	require.True(t, ok)
	assert.False(t, c.Sampled)

	_, ok = Parse("not-a-header")
	assert.False(t, ok)
}

func TestNewCorrelationID(t *testing.T) {
	id1 := NewCorrelationID()
	id2 := NewCorrelationID()
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}
