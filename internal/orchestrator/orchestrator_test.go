package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daemonflow/daemonflow/internal/platform/config"
)

func testDaemonConfig() config.DaemonConfig {
	return config.DaemonConfig{
		UpdateScheduledRefresh:       time.Hour,
		UpdateTimedOutWorkersRefresh: time.Hour,
		HealthCheckInterval:          time.Hour,
		DrainGracePeriod:             100 * time.Millisecond,
	}
}

func TestAddLoopRunsAlongsideBuiltins(t *testing.T) {
	sup := NewSupervisor(testDaemonConfig(), "", "", testLogger{})
	o := New(testDaemonConfig(), nil, sup, testLogger{}, nil)

	var ran int32
	done := make(chan struct{})
	o.AddLoop(func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		close(done)
		<-ctx.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("extra loop never ran")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestShutdownCancelsRunContext(t *testing.T) {
	sup := NewSupervisor(testDaemonConfig(), "", "", testLogger{})
	o := New(testDaemonConfig(), nil, sup, testLogger{}, nil)

	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	o.Shutdown()

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestRunRestartableRecoversFromPanic(t *testing.T) {
	sup := NewSupervisor(testDaemonConfig(), "", "", testLogger{})
	o := New(testDaemonConfig(), nil, sup, testLogger{}, nil)

	var calls int32
	panicker := func(ctx context.Context) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	o.wg.Add(1)
	o.runRestartable(ctx, "panicker", panicker)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}
