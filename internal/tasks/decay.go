package tasks

import (
	"context"
	"time"
)

// DecayRunner is the narrow decay.Engine slice this task drives.
type DecayRunner interface {
	Run(ctx context.Context) (int, error)
}

// DecayTask runs the Decay Engine (C7) sweep on a fixed cadence. The
// engine itself iterates active sessions and analyses internally, so
// this task is a thin ticker wrapper around a single call.
type DecayTask struct {
	engine   DecayRunner
	interval time.Duration
}

func NewDecayTask(engine DecayRunner, interval time.Duration) *DecayTask {
	return &DecayTask{engine: engine, interval: interval}
}

func (t *DecayTask) Name() string           { return "decay" }
func (t *DecayTask) Interval() time.Duration { return t.interval }

func (t *DecayTask) Run(ctx context.Context) (int, error) {
	return t.engine.Run(ctx)
}
