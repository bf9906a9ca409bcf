package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookEngine_SequentialOrder(t *testing.T) {
	e := NewHookEngine(testLogger())
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		e.Bind(BeforeStart, "b", func(ctx context.Context, args ...any) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, e.Call(context.Background(), BeforeStart, CallOptions{}))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestHookEngine_ReverseOrder(t *testing.T) {
	e := NewHookEngine(testLogger())
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		e.Bind(BeforeTerminate, "b", func(ctx context.Context, args ...any) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, e.Call(context.Background(), BeforeTerminate, CallOptions{Reverse: true}))
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestHookEngine_StartKindAbortsOnFirstFailure(t *testing.T) {
	e := NewHookEngine(testLogger())
	var ran int32
	e.Bind(BeforeStart, "first", func(ctx context.Context, args ...any) error {
		return errors.New("boom")
	})
	e.Bind(BeforeStart, "second", func(ctx context.Context, args ...any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	err := e.Call(context.Background(), BeforeStart, CallOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestHookEngine_StopKindLogsAndContinues(t *testing.T) {
	e := NewHookEngine(testLogger())
	var ran int32
	e.Bind(BeforeStop, "first", func(ctx context.Context, args ...any) error {
		return errors.New("boom")
	})
	e.Bind(BeforeStop, "second", func(ctx context.Context, args ...any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	err := e.Call(context.Background(), BeforeStop, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestHookEngine_ConcurrentStartAggregatesErrors(t *testing.T) {
	e := NewHookEngine(testLogger())
	e.Bind(BeforeStart, "a", func(ctx context.Context, args ...any) error {
		return errors.New("a failed")
	})
	e.Bind(BeforeStart, "b", func(ctx context.Context, args ...any) error {
		return errors.New("b failed")
	})

	err := e.Call(context.Background(), BeforeStart, CallOptions{Concurrent: true})
	require.Error(t, err)
}

func TestHookEngine_ConcurrentStopRunsAllBindings(t *testing.T) {
	e := NewHookEngine(testLogger())
	var count int32
	for i := 0; i < 5; i++ {
		e.Bind(AfterStop, "b", func(ctx context.Context, args ...any) error {
			atomic.AddInt32(&count, 1)
			return errors.New("irrelevant")
		})
	}

	require.NoError(t, e.Call(context.Background(), AfterStop, CallOptions{Concurrent: true}))
	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
}
