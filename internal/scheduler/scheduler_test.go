package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every morning", func(context.Context) error { return nil }, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestNew_AcceptsStandardAndDescriptors(t *testing.T) {
	for _, spec := range []string{"0 6 * * 1-5", "*/15 * * * *", "@daily", "@every 1h"} {
		s, err := New(spec, func(context.Context) error { return nil }, nil)
		require.NoError(t, err, spec)
		s.Stop()
	}
}

func TestTrigger_RunsJob(t *testing.T) {
	var calls atomic.Int32
	s, err := New("@hourly", func(context.Context) error {
		calls.Add(1)
		return errors.New("source down")
	}, nil)
	require.NoError(t, err)
	defer s.Stop()

	s.trigger()
	s.trigger()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(2), s.Runs())
}

func TestTrigger_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	s, err := New("@hourly", func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}, nil)
	require.NoError(t, err)

	go s.trigger()
	<-started
	s.trigger()
	close(release)
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestStop_CancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s, err := New("@hourly", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, nil)
	require.NoError(t, err)

	go s.trigger()
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, cancelled.Load())
}

func TestNext(t *testing.T) {
	s, err := New("@hourly", func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	next := s.Next()
	assert.True(t, next.After(time.Now()))
	assert.WithinDuration(t, time.Now(), next, time.Hour)
	assert.Zero(t, next.Minute())
}
