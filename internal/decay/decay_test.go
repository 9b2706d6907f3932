package decay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

type fakeStore struct {
	sessions  []string
	analyses  map[string][]model.Analysis
	upserted  []model.Analysis
}

func newFakeStore() *fakeStore {
	return &fakeStore{analyses: make(map[string][]model.Analysis)}
}

func (f *fakeStore) ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error) {
	return f.sessions, nil
}

func (f *fakeStore) AnalysesForSession(ctx context.Context, sessionID string) ([]model.Analysis, error) {
	return f.analyses[sessionID], nil
}

func (f *fakeStore) UpsertAnalysis(ctx context.Context, a model.Analysis) error {
	f.upserted = append(f.upserted, a)
	return nil
}

func TestDecayedSalience_ErrorOrCodeDecaysSlowerThanDefault(t *testing.T) {
	now := time.Now()
	old := now.AddDate(0, 0, -30)

	codeAnalysis := model.Analysis{OriginalSalience: 0.8, CreatedAt: old, ContainsCode: true}
	plainAnalysis := model.Analysis{OriginalSalience: 0.8, CreatedAt: old}

	codeSalience := decayedSalience(codeAnalysis, now)
	plainSalience := decayedSalience(plainAnalysis, now)

	assert.Greater(t, codeSalience, plainSalience)
}

func TestDecayedSalience_NeverBelowFloor(t *testing.T) {
	now := time.Now()
	ancient := now.AddDate(-5, 0, 0)

	withError := model.Analysis{OriginalSalience: 0.9, CreatedAt: ancient, ContainsError: true}
	assert.Equal(t, floorWithErrorOrCode, decayedSalience(withError, now))

	plain := model.Analysis{OriginalSalience: 0.9, CreatedAt: ancient}
	assert.Equal(t, floorDefault, decayedSalience(plain, now))
}

func TestDecayedSalience_RecallBoostsSalience(t *testing.T) {
	now := time.Now()
	old := now.AddDate(0, 0, -10)

	unread := model.Analysis{OriginalSalience: 0.5, CreatedAt: old}
	recalled := model.Analysis{OriginalSalience: 0.5, CreatedAt: old, RecallCount: 10}

	assert.Greater(t, decayedSalience(recalled, now), decayedSalience(unread, now))
}

func TestEngine_Run_SkipsWritesBelowChurnThreshold(t *testing.T) {
	store := newFakeStore()
	store.sessions = []string{"s1"}
	store.analyses["s1"] = []model.Analysis{
		{MessageID: 1, Salience: 0.8, OriginalSalience: 0.8, CreatedAt: time.Now()},
	}

	e := New(store)
	written, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, written, "a freshly-created analysis should not have decayed enough to cross the churn threshold")
}

func TestEngine_Run_WritesWhenSalienceMovesPastThreshold(t *testing.T) {
	store := newFakeStore()
	store.sessions = []string{"s1"}
	store.analyses["s1"] = []model.Analysis{
		{MessageID: 1, Salience: 0.8, OriginalSalience: 0.8, CreatedAt: time.Now().AddDate(0, 0, -60)},
	}

	e := New(store)
	written, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	require.Len(t, store.upserted, 1)
	assert.Less(t, store.upserted[0].Salience, 0.8)
	assert.Equal(t, 0.8, store.upserted[0].OriginalSalience, "original_salience must remain immutable across decay")
}
