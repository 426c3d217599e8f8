package keepawake

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInhibitor struct {
	inhibits atomic.Int32
	releases atomic.Int32
	err      error
}

func (c *countingInhibitor) Name() string { return "counting" }

func (c *countingInhibitor) Inhibit(string, time.Duration) (func(), error) {
	if c.err != nil {
		return nil, c.err
	}
	c.inhibits.Add(1)
	return func() { c.releases.Add(1) }, nil
}

func TestAcquireIsExclusive(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock(), nil)

	h, err := m.Acquire("countdown", 12*time.Second)
	require.NoError(t, err)
	assert.True(t, m.Held())

	_, err = m.Acquire("countdown", time.Second)
	assert.ErrorIs(t, err, ErrHoldBusy)

	h.Release()
	assert.False(t, m.Held())

	h2, err := m.Acquire("countdown", time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, h.ID, h2.ID)
}

func TestReleaseIsIdempotent(t *testing.T) {
	inh := &countingInhibitor{}
	m := NewManager(clockwork.NewFakeClock(), inh)

	h, err := m.Acquire("countdown", time.Minute)
	require.NoError(t, err)

	h.Release()
	h.Release()
	assert.Equal(t, int32(1), inh.inhibits.Load())
	assert.Equal(t, int32(1), inh.releases.Load())
}

func TestHoldExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inh := &countingInhibitor{}
	m := NewManager(clock, inh)

	h, err := m.Acquire("countdown", 12*time.Second)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(12*time.Second), h.ExpiresAt)

	clock.Advance(11 * time.Second)
	assert.True(t, m.Held())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return inh.releases.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, m.Held())

	// Releasing after expiry is a no-op.
	h.Release()
	assert.Equal(t, int32(1), inh.releases.Load())
}

func TestInhibitorFailureKeepsLease(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock(), &countingInhibitor{err: errors.New("no logind")})

	h, err := m.Acquire("countdown", time.Second)
	require.NoError(t, err)
	assert.True(t, m.Held())
	h.Release()
	assert.False(t, m.Held())
}

func TestAcquireRejectsNonPositive(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock(), nil)
	_, err := m.Acquire("countdown", 0)
	assert.Error(t, err)
}
