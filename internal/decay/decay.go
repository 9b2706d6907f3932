// Package decay implements the Decay Engine (C7): a periodic pass that
// applies time- and recall-weighted salience decay to message analyses.
//
// The periodic-sweep-over-active-sessions shape and its log-on-completion
// style are grounded on theRebelliousNerd-codenerd/internal/store/learning.go's
// LearningStore.DecayConfidence, which reduces confidence on a shardType's
// learnings older than 7 days by a flat multiplicative factor in one SQL
// UPDATE. The formula this engine implements (salience ← max(floor,
// original_salience · exp(-λ·age_days) · boost(recall_count))) needs
// per-row exponential arithmetic over original_salience and recall_count,
// which a flat SQL multiply can't express, so the per-session, per-analysis
// loop below is Go-side rather than a single batch UPDATE; the
// rows-affected-style summary log line is kept in that idiom regardless.
package decay

import (
	"context"
	"math"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
)

const (
	activeWindowDays = 7
	churnThreshold   = 0.02

	floorWithErrorOrCode = 0.05
	floorDefault         = 0.01

	// lambdaErrorOrCode is the decay rate for analyses marked
	// contains_error or contains_code: these are disproportionately
	// likely to be referenced again (a fix revisited, a snippet
	// reused), so they decay slowly. Half-life ≈ ln(2)/λ ≈ 35 days.
	lambdaErrorOrCode = 0.02
	// lambdaTechnical is the decay rate for analyses with a technical
	// intent or a non-empty topic set that aren't already covered by
	// the error/code category above. Half-life ≈ 17 days.
	lambdaTechnical = 0.04
	// lambdaDefault is the decay rate for everything else — small
	// talk, acknowledgements, routine turns. Half-life ≈ 9 days.
	lambdaDefault = 0.08
)

// Store is the narrow store.Store slice the decay pass needs.
type Store interface {
	ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error)
	AnalysesForSession(ctx context.Context, sessionID string) ([]model.Analysis, error)
	UpsertAnalysis(ctx context.Context, a model.Analysis) error
}

// Engine is the Decay Engine (C7).
type Engine struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Run executes one decay pass over every session active within the past
// 7 days, writing back any analysis whose salience moved by at least
// churnThreshold. It returns the number of analyses it rewrote.
func (e *Engine) Run(ctx context.Context) (int, error) {
	sessions, err := e.store.ActiveSessionIDs(ctx, activeWindowDays*24*time.Hour)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, sessionID := range sessions {
		n, err := e.decaySession(ctx, sessionID)
		if err != nil {
			logging.Get(logging.CategoryDecay).Errorf("decay: session %s: %v", sessionID, err)
			continue
		}
		written += n
	}
	logging.Get(logging.CategoryDecay).Infof("decay: rewrote salience on %d analyses across %d active sessions", written, len(sessions))
	return written, nil
}

func (e *Engine) decaySession(ctx context.Context, sessionID string) (int, error) {
	analyses, err := e.store.AnalysesForSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	written := 0
	now := e.now()
	for _, a := range analyses {
		newSalience := decayedSalience(a, now)
		if math.Abs(newSalience-a.Salience) < churnThreshold {
			continue
		}
		a.Salience = newSalience
		if err := e.store.UpsertAnalysis(ctx, a); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// decayedSalience applies the decay formula to a single analysis. It
// reads original_salience rather than the already-decayed salience, so
// repeated passes compound against a stable baseline instead of each
// other. The result is capped at original_salience, so neither the recall
// boost nor the floor can raise salience above it.
func decayedSalience(a model.Analysis, now time.Time) float64 {
	ageDays := now.Sub(a.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	lambda := lambdaFor(a)
	boost := 1 + 0.05*math.Min(float64(a.RecallCount), 10)
	salience := a.OriginalSalience * math.Exp(-lambda*ageDays) * boost

	floor := floorDefault
	if a.ContainsError || a.ContainsCode {
		floor = floorWithErrorOrCode
	}
	return math.Min(math.Max(floor, salience), a.OriginalSalience)
}

func lambdaFor(a model.Analysis) float64 {
	if a.ContainsError || a.ContainsCode {
		return lambdaErrorOrCode
	}
	if len(a.Topics) > 0 || (a.Intent != nil && *a.Intent != "") {
		return lambdaTechnical
	}
	return lambdaDefault
}
