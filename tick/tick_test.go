package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Advance(t *testing.T) {
	s := New()
	var fast, slow []time.Duration
	var order []string
	require.NoError(t, s.Every("fast", time.Millisecond, TaskFunc(func(d time.Duration) {
		fast = append(fast, d)
		order = append(order, "fast")
	})))
	require.NoError(t, s.Every("slow", 10*time.Millisecond, TaskFunc(func(d time.Duration) {
		slow = append(slow, d)
		order = append(order, "slow")
	})))

	s.Advance(25 * time.Millisecond)
	assert.Len(t, fast, 25)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, slow)
	assert.Equal(t, 25*time.Millisecond, s.Now())
	// tasks due on the same tick run in registration order
	assert.Equal(t, []string{"fast", "slow"}, order[9:11])

	s.Advance(5 * time.Millisecond)
	assert.Len(t, slow, 3)
}

func TestScheduler_SubTick(t *testing.T) {
	s := New()
	calls := 0
	require.NoError(t, s.Every("t", time.Millisecond, TaskFunc(func(time.Duration) { calls++ })))
	s.Advance(500 * time.Microsecond)
	assert.Zero(t, calls)
	assert.Zero(t, s.Now())
}

func TestScheduler_InvalidPeriod(t *testing.T) {
	s := New()
	assert.Error(t, s.Every("t", 0, TaskFunc(func(time.Duration) {})))
	assert.Error(t, s.Every("t", 500*time.Microsecond, TaskFunc(func(time.Duration) {})))
}

func TestScheduler_Run(t *testing.T) {
	s := New()
	var calls atomic.Int32
	require.NoError(t, s.Every("t", time.Millisecond, TaskFunc(func(time.Duration) { calls.Add(1) })))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, calls.Load())
}
