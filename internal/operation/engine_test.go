package operation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

type fakeStore struct {
	operations map[string]model.Operation
	artifacts  map[string][]model.Artifact
}

func newFakeStore() *fakeStore {
	return &fakeStore{operations: make(map[string]model.Operation), artifacts: make(map[string][]model.Artifact)}
}

func (f *fakeStore) InsertOperation(ctx context.Context, op model.Operation) error {
	f.operations[op.ID] = op
	return nil
}

func (f *fakeStore) TransitionOperation(ctx context.Context, id string, status model.OperationStatus, startedAt, completedAt *time.Time, result, errMsg *string) error {
	op := f.operations[id]
	op.Status = status
	if startedAt != nil {
		op.StartedAt = startedAt
	}
	if completedAt != nil {
		op.CompletedAt = completedAt
	}
	if result != nil {
		op.Result = result
	}
	if errMsg != nil {
		op.Error = errMsg
	}
	f.operations[id] = op
	return nil
}

func (f *fakeStore) GetOperation(ctx context.Context, id string) (model.Operation, error) {
	return f.operations[id], nil
}

func (f *fakeStore) InsertArtifact(ctx context.Context, a model.Artifact) error {
	f.artifacts[a.OperationID] = append(f.artifacts[a.OperationID], a)
	return nil
}

func (f *fakeStore) LatestArtifactForPath(ctx context.Context, operationID, filePath string) (model.Artifact, error) {
	arts := f.artifacts[operationID]
	for i := len(arts) - 1; i >= 0; i-- {
		if arts[i].FilePath != nil && *arts[i].FilePath == filePath {
			return arts[i], nil
		}
	}
	return model.Artifact{}, &model.StorageError{Kind: model.StorageNotFound}
}

func (f *fakeStore) ListArtifactsForOperation(ctx context.Context, operationID string) ([]model.Artifact, error) {
	return f.artifacts[operationID], nil
}

func drainEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestEngine_Start_TransitionsPendingToRunningAndEmitsStarted(t *testing.T) {
	store := newFakeStore()
	e := New(store)

	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, op.Status())
	assert.Equal(t, model.StatusRunning, store.operations[op.ID].Status)
}

func TestOperation_Complete_EmitsCompletedWithArtifactsThenClosesChannel(t *testing.T) {
	store := newFakeStore()
	e := New(store)
	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = op.CreateArtifact(ctx, "a1", "main.go", "file", "go", "package main\n")
	require.NoError(t, err)

	require.NoError(t, op.Complete(ctx, "done"))

	events := drainEvents(t, op.Events())
	var sawCompleted bool
	for _, ev := range events {
		if ev.Type == EventCompleted {
			sawCompleted = true
			data := ev.Data.(CompletedData)
			assert.Equal(t, "done", *data.Result)
			require.Len(t, data.Artifacts, 1)
		}
	}
	assert.True(t, sawCompleted)

	_, stillOpen := <-op.Events()
	assert.False(t, stillOpen, "event channel must be closed after completion")
}

func TestOperation_Complete_IsAtMostOnce(t *testing.T) {
	store := newFakeStore()
	e := New(store)
	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, op.Complete(ctx, "done"))
	drainEvents(t, op.Events())

	err = op.Complete(ctx, "done again")
	assert.Error(t, err, "completing an already-terminal operation must be rejected")
}

func TestOperation_Fail_ClosesChannelAndRejectsFurtherTransitions(t *testing.T) {
	store := newFakeStore()
	e := New(store)
	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, op.Fail(ctx, "boom"))
	drainEvents(t, op.Events())

	assert.Error(t, op.Complete(ctx, "too late"))
	assert.Equal(t, model.StatusFailed, store.operations[op.ID].Status)
}

func TestOperation_CreateArtifact_ComputesDiffAgainstPreviousVersion(t *testing.T) {
	store := newFakeStore()
	e := New(store)
	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := op.CreateArtifact(ctx, "a1", "main.go", "file", "go", "package main\n")
	require.NoError(t, err)
	assert.Nil(t, first.Diff, "first version has no prior to diff against")

	second, err := op.CreateArtifact(ctx, "a2", "main.go", "file", "go", "package main\n\nfunc main() {}\n")
	require.NoError(t, err)
	require.NotNil(t, second.Diff)
	assert.Contains(t, *second.Diff, "func main")
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestOperation_CancelIsCooperative(t *testing.T) {
	store := newFakeStore()
	e := New(store)
	op, err := e.Start(context.Background(), "s1", model.OperationChat)
	require.NoError(t, err)

	assert.False(t, op.IsCancelled())
	op.Cancel()
	assert.True(t, op.IsCancelled())

	require.NoError(t, op.CancelAndClose(context.Background()))
	assert.Equal(t, model.StatusCancelled, op.Status())
}

func TestTruncatePreview_TruncatesAt200CharsWithEllipsis(t *testing.T) {
	long := make([]byte, 250)
	for i := range long {
		long[i] = 'x'
	}
	preview := truncatePreview(string(long))
	assert.Equal(t, 201, len([]rune(preview)))
}
