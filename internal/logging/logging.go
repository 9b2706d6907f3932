// Package logging provides config-driven, categorized structured logging
// for Mira, built on top of go.uber.org/zap. Each subsystem gets a
// *zap.SugaredLogger scoped with a "category" field, mirroring the
// teacher's per-category logger registry but backed by a real structured
// logging library instead of a hand-rolled file writer.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names the subsystem emitting a log line.
type Category string

const (
	CategoryPipeline  Category = "pipeline"
	CategoryEmbedding Category = "embedding"
	CategoryRecall    Category = "recall"
	CategoryDecay     Category = "decay"
	CategoryCodeIntel Category = "codeintel"
	CategoryTasks     Category = "tasks"
	CategoryOperation Category = "operation"
	CategoryHooks     Category = "hooks"
	CategorySession   Category = "session"
	CategoryStore     Category = "store"
	CategoryVectorStore Category = "vectorstore"
	CategoryLLM       Category = "llm"
	CategoryAnonymize Category = "anonymize"
)

var (
	mu       sync.RWMutex
	base     *zap.Logger = zap.NewNop()
	enabled  = map[Category]bool{}
	allOn    = true
)

// Configure installs the process-wide base logger and the set of enabled
// categories. Passing a nil categories map enables every category.
func Configure(debug bool, categories map[string]bool) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	base = l

	if categories == nil {
		allOn = true
		return
	}
	allOn = false
	enabled = map[Category]bool{}
	for k, v := range categories {
		enabled[Category(k)] = v
	}
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Get returns a logger scoped to category. If the category has been
// disabled via Configure, the returned logger is a no-op.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()

	if !allOn && !enabled[category] {
		return zap.NewNop().Sugar()
	}
	return base.Sugar().With("category", string(category))
}

// Timer measures and logs the duration of an operation on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op within category. Call Stop when done.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debugw("operation completed", "op", t.op, "duration_ms", time.Since(t.start).Milliseconds())
}
