package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

type fakeStore struct {
	sessions  map[string]model.Session
	pending   map[string][]model.Injection
	acked     map[string]int64
	nextID    int64
	inserted  []model.Injection
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]model.Session),
		pending:  make(map[string][]model.Injection),
		acked:    make(map[string]int64),
	}
}

func (f *fakeStore) CreateBackgroundSession(ctx context.Context, sessionID, parentSessionID string) error {
	f.sessions[sessionID] = model.Session{ID: sessionID, Type: model.SessionBackground, ParentSessionID: &parentSessionID}
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	return f.sessions[sessionID], nil
}

func (f *fakeStore) InsertInjection(ctx context.Context, inj model.Injection) (model.Injection, error) {
	f.nextID++
	inj.ID = f.nextID
	inj.SequenceNum = len(f.pending[inj.TargetSessionID]) + 1
	f.pending[inj.TargetSessionID] = append(f.pending[inj.TargetSessionID], inj)
	f.inserted = append(f.inserted, inj)
	return inj, nil
}

func (f *fakeStore) PendingInjections(ctx context.Context, targetSessionID string) ([]model.Injection, error) {
	return f.pending[targetSessionID], nil
}

func (f *fakeStore) RecentInjections(ctx context.Context, targetSessionID string, limit int) ([]model.Injection, error) {
	return f.pending[targetSessionID], nil
}

func (f *fakeStore) AcknowledgeAllInjections(ctx context.Context, targetSessionID string) (int64, error) {
	n := int64(len(f.pending[targetSessionID]))
	f.acked[targetSessionID] += n
	delete(f.pending, targetSessionID)
	return n, nil
}

func TestManager_StartBackground_RegistersSession(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	require.NoError(t, m.StartBackground(context.Background(), "bg-1", "voice-1"))

	sess, err := store.GetSession(context.Background(), "bg-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionBackground, sess.Type)
	require.NotNil(t, sess.ParentSessionID)
	assert.Equal(t, "voice-1", *sess.ParentSessionID)
}

func TestManager_PublishCompletion_CarriesFilesChanged(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	_, err := m.PublishCompletion(context.Background(), "voice-1", "bg-1", "done", []string{"a.go", "b.go"})
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, model.InjectionCompletion, store.inserted[0].Type)
	assert.Equal(t, []string{"a.go", "b.go"}, store.inserted[0].Metadata["files_changed"])
}

func TestManager_ConsumePending_EmptyReturnsNoSection(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	section, err := m.ConsumePending(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.Empty(t, section)
}

func TestManager_ConsumePending_FormatsAndAcknowledgesAtomically(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	_, err := m.PublishCompletion(context.Background(), "voice-1", "bg-1", "Implemented feature X.", []string{"src/lib.go", "src/main.go"})
	require.NoError(t, err)
	_, err = m.PublishProgress(context.Background(), "voice-1", "bg-1", "halfway done")
	require.NoError(t, err)
	_, err = m.PublishError(context.Background(), "voice-1", "bg-2", "build failed")
	require.NoError(t, err)

	section, err := m.ConsumePending(context.Background(), "voice-1")
	require.NoError(t, err)

	assert.Contains(t, section, "## Background Work Updates")
	assert.Contains(t, section, "Implemented feature X.")
	assert.Contains(t, section, "Files modified: src/lib.go, src/main.go")
	assert.Contains(t, section, "**Background progress:** halfway done")
	assert.Contains(t, section, "**Background task failed:**\nbuild failed")

	pending, err := store.PendingInjections(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.Empty(t, pending, "ConsumePending must acknowledge everything it formatted")
	assert.EqualValues(t, 3, store.acked["voice-1"])
}

func TestManager_ConsumePending_CapsFilesChangedAtTen(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	files := make([]string, 15)
	for i := range files {
		files[i] = "file.go"
	}
	_, err := m.PublishCompletion(context.Background(), "voice-1", "bg-1", "done", files)
	require.NoError(t, err)

	section, err := m.ConsumePending(context.Background(), "voice-1")
	require.NoError(t, err)

	line := strings.Split(strings.Split(section, "Files modified: ")[1], "\n")[0]
	assert.Equal(t, 10, len(strings.Split(line, ", ")), "files_changed must be capped at 10 entries in the rendered prompt")
}
