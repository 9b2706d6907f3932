package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/config"
)

type countingTask struct {
	name     string
	interval time.Duration
	calls    atomic.Int32
	failNext bool
}

func (t *countingTask) Name() string           { return t.name }
func (t *countingTask) Interval() time.Duration { return t.interval }
func (t *countingTask) Run(ctx context.Context) (int, error) {
	t.calls.Add(1)
	if t.failNext {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func TestManager_RunsEachTaskOnItsOwnTicker(t *testing.T) {
	fast := &countingTask{name: "fast", interval: 10 * time.Millisecond}
	slow := &countingTask{name: "slow", interval: time.Hour}

	m := NewManager(testConfig(), fast, slow)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	require.Eventually(t, func() bool { return fast.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, slow.calls.Load(), "slow task's hour-long interval must not have fired yet")

	cancel()
	m.Wait()
}

func TestManager_RecordsErrorsInMetrics(t *testing.T) {
	failing := &countingTask{name: "failing", interval: 10 * time.Millisecond, failNext: true}

	m := NewManager(testConfig(), failing)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	require.Eventually(t, func() bool {
		snap := m.Snapshot()["failing"]
		return snap.Invocations >= 1 && snap.Errors >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	m.Wait()

	snap := m.Snapshot()["failing"]
	assert.Equal(t, "boom", snap.LastError)
}

func TestManager_StopsAllTasksOnContextCancel(t *testing.T) {
	task := &countingTask{name: "t", interval: 5 * time.Millisecond}
	m := NewManager(testConfig(), task)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	require.Eventually(t, func() bool { return task.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not shut down after context cancellation")
	}
}

// testConfig disables the metrics reporter (interval 0) so these tests
// only ever observe the registered tasks' own ticks.
func testConfig() config.TasksConfig {
	return config.TasksConfig{}
}
