package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestRun_NeverExceedsMaxInFlight tests that the number of concurrently
// active tasks never exceeds maxInFlight.
func TestRun_NeverExceedsMaxInFlight(t *testing.T) {
	tests := []struct {
		name        string
		tasks       int
		maxInFlight int
		wantPeak    int32
	}{
		{"chunks of three", 10, 3, 3},
		{"limit above task count", 4, 16, 4},
		{"serial", 5, 1, 1},
		{"zero treated as one", 3, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var active, peak atomic.Int32
			tasks := make([]Task[int], tt.tasks)
			for i := range tasks {
				tasks[i] = func(context.Context) (int, error) {
					n := active.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					active.Add(-1)
					return i, nil
				}
			}

			_, err := Run(context.Background(), tasks, tt.maxInFlight)

			require.NoError(t, err)
			assert.LessOrEqual(t, peak.Load(), tt.wantPeak)
			assert.Equal(t, int32(0), active.Load())
		})
	}
}

// TestRun_PreservesSubmissionOrder tests that results come back in
// submission order even when later tasks finish first.
func TestRun_PreservesSubmissionOrder(t *testing.T) {
	tasks := make([]Task[string], 6)
	for i := range tasks {
		tasks[i] = func(context.Context) (string, error) {
			time.Sleep(time.Duration(6-i) * time.Millisecond)
			return string(rune('a' + i)), nil
		}
	}

	got, err := Run(context.Background(), tasks, 3)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

// TestRun_ChunkBarrier tests that no task of chunk N+1 starts before every
// task of chunk N has returned.
func TestRun_ChunkBarrier(t *testing.T) {
	var mu sync.Mutex
	var events []string

	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	tasks := []Task[int]{
		func(context.Context) (int, error) { time.Sleep(20 * time.Millisecond); record("end0"); return 0, nil },
		func(context.Context) (int, error) { record("end1"); return 1, nil },
		func(context.Context) (int, error) { record("start2"); return 2, nil },
	}

	_, err := Run(context.Background(), tasks, 2)

	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "start2", events[2])
}

// TestRun_ReturnsEveryError tests that every failing task is reported with
// its index and that siblings still run.
func TestRun_ReturnsEveryError(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var ran atomic.Int32

	tasks := []Task[int]{
		func(context.Context) (int, error) { ran.Add(1); return 0, errA },
		func(context.Context) (int, error) { ran.Add(1); return 7, nil },
		func(context.Context) (int, error) { ran.Add(1); return 0, errB },
	}

	got, err := Run(context.Background(), tasks, 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "task 0: a failed")
	assert.Contains(t, err.Error(), "task 2: b failed")
	assert.Equal(t, []int{0, 7, 0}, got)
	assert.Equal(t, int32(3), ran.Load())

	var te *TaskError
	require.ErrorAs(t, err, &te)
}

// TestRun_StopsBetweenChunksOnCancel tests that a cancelled context stops
// later chunks from starting while the running chunk completes.
func TestRun_StopsBetweenChunksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran atomic.Int32

	tasks := make([]Task[int], 4)
	for i := range tasks {
		tasks[i] = func(context.Context) (int, error) {
			ran.Add(1)
			if i == 0 {
				cancel()
			}
			return i + 1, nil
		}
	}

	got, err := Run(ctx, tasks, 2)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, []int{1, 2, 0, 0}, got)
}

func TestRun_Empty(t *testing.T) {
	got, err := Run[int](context.Background(), nil, 3)

	require.NoError(t, err)
	assert.Empty(t, got)
}
