package portalloc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bizobs/journeysim/internal/logging"
	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBindTester records every bind test and answers from a fixed table
// (missing ports count as free).
type countingBindTester struct {
	mu    sync.Mutex
	busy  map[int]bool
	calls map[int]int
}

func newCountingBindTester() *countingBindTester {
	return &countingBindTester{
		busy:  make(map[int]bool),
		calls: make(map[int]int),
	}
}

func (c *countingBindTester) test(port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[port]++
	return !c.busy[port]
}

func (c *countingBindTester) setBusy(port int, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy[port] = busy
}

func (c *countingBindTester) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func newTestAllocator(min, max int, bt BindTester) *Allocator {
	return New(
		WithRange(min, max),
		WithBindTester(bt),
		WithLogger(logging.NewNop()),
	)
}

func TestAllocator_Allocate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns distinct ports from the range", func(t *testing.T) {
		bt := newCountingBindTester()
		a := newTestAllocator(9001, 9010, bt.test)

		seen := make(map[int]bool)
		for _, owner := range []string{"a:Acme", "b:Acme", "c:Acme"} {
			port, err := a.Allocate(ctx, domain.OwnerKey(owner))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, port, 9001)
			assert.LessOrEqual(t, port, 9010)
			assert.False(t, seen[port], "port %d handed out twice", port)
			seen[port] = true
		}
	})

	t.Run("is idempotent per owner without a new bind test", func(t *testing.T) {
		bt := newCountingBindTester()
		a := newTestAllocator(9001, 9010, bt.test)
		owner := domain.NewOwnerKey("DiscoveryService", "Acme")

		first, err := a.Allocate(ctx, owner)
		require.NoError(t, err)
		callsAfterFirst := bt.totalCalls()

		second, err := a.Allocate(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, callsAfterFirst, bt.totalCalls(),
			"repeat allocation must not re-run the bind test")
	})

	t.Run("skips externally held ports", func(t *testing.T) {
		bt := newCountingBindTester()
		bt.setBusy(9001, true)
		bt.setBusy(9002, true)
		a := newTestAllocator(9001, 9010, bt.test)

		port, err := a.Allocate(ctx, "svc:Acme")
		require.NoError(t, err)
		assert.Equal(t, 9003, port)

		// The failed candidates are recorded as externally allocated.
		status := a.Status()
		owners := make(map[int]domain.OwnerKey)
		for _, res := range status.Allocated {
			owners[res.Port] = res.Owner
		}
		assert.Equal(t, domain.ExternalOwner, owners[9001])
		assert.Equal(t, domain.ExternalOwner, owners[9002])
	})

	t.Run("collapses concurrent allocations for one key", func(t *testing.T) {
		bt := newCountingBindTester()
		a := newTestAllocator(9001, 9010, bt.test)
		owner := domain.NewOwnerKey("CheckoutProcessor", "Acme")

		const callers = 8
		results := make(chan int, callers)
		var wg sync.WaitGroup
		for n := 0; n < callers; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				port, err := a.Allocate(ctx, owner)
				assert.NoError(t, err)
				results <- port
			}()
		}
		wg.Wait()
		close(results)

		first := <-results
		for port := range results {
			assert.Equal(t, first, port, "all concurrent callers must share one port")
		}
		assert.Equal(t, 1, bt.totalCalls(),
			"collapsed allocations must share a single bind test")
	})

	t.Run("fails with ErrPortsExhausted when the range is full", func(t *testing.T) {
		bt := newCountingBindTester()
		a := newTestAllocator(9001, 9002, bt.test)

		_, err := a.Allocate(ctx, "a:Acme")
		require.NoError(t, err)
		_, err = a.Allocate(ctx, "b:Acme")
		require.NoError(t, err)

		// All ports still genuinely bound, so the sweep frees nothing.
		bt.setBusy(9001, true)
		bt.setBusy(9002, true)
		_, err = a.Allocate(ctx, "c:Acme")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrPortsExhausted))
	})
}

func TestAllocator_Sweep(t *testing.T) {
	ctx := context.Background()

	// Fill a two-port range, then let both reservations go stale: the bind
	// test reports them free again, so the exhaustion sweep reclaims them.
	bt := newCountingBindTester()
	a := newTestAllocator(9001, 9002, bt.test)

	p1, err := a.Allocate(ctx, "a:Acme")
	require.NoError(t, err)
	_, err = a.Allocate(ctx, "b:Acme")
	require.NoError(t, err)

	port, err := a.Allocate(ctx, "c:Acme")
	require.NoError(t, err)
	assert.Contains(t, []int{9001, 9002}, port)

	// The swept owner lost its reservation; releasing is now a no-op.
	assert.False(t, a.Release(p1, "a:Acme"))
}

func TestAllocator_Release(t *testing.T) {
	ctx := context.Background()
	bt := newCountingBindTester()
	a := newTestAllocator(9001, 9001, bt.test)

	port, err := a.Allocate(ctx, "a:Acme")
	require.NoError(t, err)

	t.Run("rejects the wrong owner", func(t *testing.T) {
		assert.False(t, a.Release(port, "b:Acme"))
	})

	t.Run("frees the port for reuse", func(t *testing.T) {
		assert.True(t, a.Release(port, "a:Acme"))

		again, err := a.Allocate(ctx, "b:Acme")
		require.NoError(t, err)
		assert.Equal(t, port, again)
	})
}

func TestAllocator_Status(t *testing.T) {
	ctx := context.Background()
	bt := newCountingBindTester()
	a := newTestAllocator(9001, 9004, bt.test)

	_, err := a.Allocate(ctx, "a:Acme")
	require.NoError(t, err)
	_, err = a.Allocate(ctx, "b:Acme")
	require.NoError(t, err)

	status := a.Status()
	assert.Len(t, status.Allocated, 2)
	assert.Equal(t, 2, status.Available)
	assert.Empty(t, status.Pending)
	// Snapshot is sorted by port.
	assert.Less(t, status.Allocated[0].Port, status.Allocated[1].Port)
}
