package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newGuard() (*Guard, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	return NewGuard(NewMemoryCounter(), Options{MaxAttempts: 5, Window: 15 * time.Minute, Now: clk.Now}), clk
}

func TestGuardLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	g, clk := newGuard()
	key := Key("1020304050", "10.0.0.7")
	assert.Equal(t, "1020304050-10.0.0.7", key)

	for i := 1; i <= 4; i++ {
		locked, err := g.Fail(ctx, key)
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d", i)
		clk.Advance(time.Minute)
	}
	locked, err := g.Fail(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = g.Locked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	other, err := g.Locked(ctx, Key("1020304050", "10.0.0.8"))
	require.NoError(t, err)
	assert.False(t, other, "lockout is per document and address")
}

func TestGuardUnlocksAfterWindow(t *testing.T) {
	ctx := context.Background()
	g, clk := newGuard()
	key := Key("doc", "ip")
	for i := 0; i < 5; i++ {
		_, err := g.Fail(ctx, key)
		require.NoError(t, err)
	}

	clk.Advance(15*time.Minute - time.Second)
	locked, err := g.Locked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	clk.Advance(time.Second)
	locked, err = g.Locked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)

	// The record expired with the window, so the count starts over.
	locked, err = g.Fail(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestGuardSucceedClears(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard()
	key := Key("doc", "ip")
	for i := 0; i < 5; i++ {
		_, err := g.Fail(ctx, key)
		require.NoError(t, err)
	}
	require.NoError(t, g.Succeed(ctx, key))
	locked, err := g.Locked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestParseAttempts(t *testing.T) {
	a, err := parseAttempts([]any{nil, nil})
	require.NoError(t, err)
	assert.Zero(t, a.Count)

	a, err = parseAttempts([]any{"3", "1772442000000"})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, int64(1772442000000), a.Last.UnixMilli())

	_, err = parseAttempts([]any{"x", nil})
	require.Error(t, err)
}
