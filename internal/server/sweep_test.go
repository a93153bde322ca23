package server

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func TestSweepServiceRunsOnInterval(t *testing.T) {
	sw := &countingSweeper{}
	svc := NewSweepService(sw, 5*time.Millisecond, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	svc.Stop()
	assert.NoError(t, <-done)
}

func TestSweepServiceDisabled(t *testing.T) {
	sw := &countingSweeper{}
	svc := NewSweepService(sw, 0, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	time.Sleep(20 * time.Millisecond)
	svc.Stop()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(0), sw.calls.Load())
}
