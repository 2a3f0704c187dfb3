package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsAllTasksBeforeClose(t *testing.T) {
	q := NewQueue(3, 16, nil)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, int32(10), ran.Load())
}

func TestQueue_FailingAndPanickingTasksDoNotStopWorkers(t *testing.T) {
	q := NewQueue(1, 8, nil)

	var ran atomic.Int32
	require.NoError(t, q.Submit("fail", func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, q.Submit("panic", func(ctx context.Context) error { panic("kaboom") }))
	require.NoError(t, q.Submit("ok", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}))

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), ran.Load())
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close(context.Background()))

	err := q.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(1, 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, q.Submit("queued", func(ctx context.Context) error { return nil }))
	err := q.Submit("overflow", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, q.Close(context.Background()))
}
