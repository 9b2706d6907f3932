// Package operation implements the Operation Engine (C9): tracks
// long-running assistant operations, emits lifecycle and artifact
// events over a bounded channel, and supports cooperative cancellation.
//
// The event-channel-plus-mutex-guarded-state shape is grounded on
// theRebelliousNerd-codenerd/internal/campaign's Orchestrator
// (orchestrator_types.go's eventChan/isRunning/isPaused/cancelFunc,
// orchestrator_utils.go's emitEvent). One deliberate deviation: the
// teacher's emitEvent does a non-blocking send that silently drops the
// event when the channel is full ("Channel full, skip"); spec.md §4.9
// requires the opposite — a bounded channel (capacity 100) whose
// back-pressure propagates to the producer — so emit here blocks until
// the channel accepts the event or the operation's context is done,
// rather than dropping.
package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mira/internal/logging"
	"mira/internal/model"
)

const eventChannelCapacity = 100

// Store is the narrow store.Store slice the operation engine needs.
type Store interface {
	InsertOperation(ctx context.Context, op model.Operation) error
	TransitionOperation(ctx context.Context, id string, status model.OperationStatus, startedAt, completedAt *time.Time, result, errMsg *string) error
	GetOperation(ctx context.Context, id string) (model.Operation, error)
	InsertArtifact(ctx context.Context, a model.Artifact) error
	LatestArtifactForPath(ctx context.Context, operationID, filePath string) (model.Artifact, error)
	ListArtifactsForOperation(ctx context.Context, operationID string) ([]model.Artifact, error)
}

// Engine creates and tracks Operations.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// allowedTransitions enumerates the state machine's legal edges, per
// spec.md §4.9's diagram. Terminal states admit no outgoing edge.
var allowedTransitions = map[model.OperationStatus]map[model.OperationStatus]bool{
	model.StatusPending: {model.StatusRunning: true},
	model.StatusRunning: {
		model.StatusCompleted: true,
		model.StatusFailed:    true,
		model.StatusCancelled: true,
	},
}

// ErrInvalidTransition is returned when a caller attempts to move an
// operation to a status its current status doesn't permit.
type ErrInvalidTransition struct {
	From, To model.OperationStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("operation: invalid transition %s -> %s", e.From, e.To)
}

// Operation is one tracked unit of long-running assistant work: the
// runtime counterpart to model.Operation, holding its live event
// channel and cancellation flag.
type Operation struct {
	ID        string
	SessionID string
	Kind      model.OperationKind

	store Store

	mu        sync.Mutex
	status    model.OperationStatus
	cancelled bool
	artifacts []model.Artifact

	events    chan Event
	closeOnce sync.Once
}

// Start creates a new operation in the pending state, persists it, and
// immediately transitions it to running — mirroring spec.md's diagram
// where an operation is created already mid-"start".
func (e *Engine) Start(ctx context.Context, sessionID string, kind model.OperationKind) (*Operation, error) {
	id := newOperationID()
	now := time.Now()
	op := model.Operation{
		ID:        id,
		SessionID: sessionID,
		Kind:      kind,
		Status:    model.StatusPending,
		CreatedAt: now,
	}
	if err := e.store.InsertOperation(ctx, op); err != nil {
		return nil, err
	}

	runtime := &Operation{
		ID:        id,
		SessionID: sessionID,
		Kind:      kind,
		store:     e.store,
		status:    model.StatusPending,
		events:    make(chan Event, eventChannelCapacity),
	}
	if err := runtime.transition(ctx, model.StatusRunning, nil, nil); err != nil {
		return nil, err
	}
	runtime.emit(ctx, Event{Type: EventStarted, OperationID: id, Timestamp: now})
	return runtime, nil
}

// Events returns the operation's event stream. It's closed exactly once,
// on the completion transition (completed, failed, or cancelled), per
// spec.md §4.9's "completion is at-most-once... closes the channel."
func (o *Operation) Events() <-chan Event {
	return o.events
}

// Status returns the operation's current state.
func (o *Operation) Status() model.OperationStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Cancel sets the cooperative cancellation flag. The executor driving
// this operation is expected to poll IsCancelled at each awaitable
// boundary and stop; pending tool invocations are allowed to finish and
// their results discarded, per spec.md §4.9.
func (o *Operation) Cancel() {
	o.mu.Lock()
	o.cancelled = true
	o.mu.Unlock()
}

// IsCancelled reports whether Cancel has been called.
func (o *Operation) IsCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

func (o *Operation) transition(ctx context.Context, to model.OperationStatus, result, errMsg *string) error {
	o.mu.Lock()
	from := o.status
	if from.Terminal() || !allowedTransitions[from][to] {
		o.mu.Unlock()
		return &ErrInvalidTransition{From: from, To: to}
	}
	o.status = to
	o.mu.Unlock()

	now := time.Now()
	var startedAt, completedAt *time.Time
	if to == model.StatusRunning {
		startedAt = &now
	}
	if to.Terminal() {
		completedAt = &now
	}
	if err := o.store.TransitionOperation(ctx, o.ID, to, startedAt, completedAt, result, errMsg); err != nil {
		return err
	}
	o.emit(ctx, Event{
		Type:        EventStatusChanged,
		OperationID: o.ID,
		Timestamp:   now,
		Data:        StatusChangedData{Old: from, New: to},
	})
	return nil
}

// Complete transitions the operation to completed, persists the result,
// emits EventCompleted with the full ordered artifact list, and closes
// the event channel. At-most-once: a second call on an already-terminal
// operation returns ErrInvalidTransition and is a no-op.
func (o *Operation) Complete(ctx context.Context, result string) error {
	if err := o.transition(ctx, model.StatusCompleted, &result, nil); err != nil {
		return err
	}
	o.mu.Lock()
	artifacts := append([]model.Artifact(nil), o.artifacts...)
	o.mu.Unlock()
	o.emit(ctx, Event{
		Type:        EventCompleted,
		OperationID: o.ID,
		Timestamp:   time.Now(),
		Data:        CompletedData{Result: &result, Artifacts: artifacts},
	})
	o.close()
	return nil
}

// Fail transitions the operation to failed, persists the error, emits
// EventFailed, and closes the event channel.
func (o *Operation) Fail(ctx context.Context, errMsg string) error {
	if err := o.transition(ctx, model.StatusFailed, nil, &errMsg); err != nil {
		return err
	}
	o.emit(ctx, Event{Type: EventFailed, OperationID: o.ID, Timestamp: time.Now(), Data: FailedData{Error: errMsg}})
	o.close()
	return nil
}

// CancelAndClose transitions the operation to cancelled and closes its
// event channel. Callers drive Cancel (the cooperative flag the
// executor polls) separately; this finalizes the state machine once the
// executor has actually stopped.
func (o *Operation) CancelAndClose(ctx context.Context) error {
	if err := o.transition(ctx, model.StatusCancelled, nil, nil); err != nil {
		return err
	}
	o.close()
	return nil
}

func (o *Operation) close() {
	o.closeOnce.Do(func() { close(o.events) })
}

// emit blocks until the event is accepted or ctx is done, giving the
// bounded channel real back-pressure instead of dropping under load.
func (o *Operation) emit(ctx context.Context, ev Event) {
	select {
	case o.events <- ev:
	case <-ctx.Done():
		logging.Get(logging.CategoryOperation).Warnw("event dropped: context done", "operation_id", o.ID, "type", ev.Type)
	}
}

// Stream emits a partial-assistant-token event on the streaming channel.
func (o *Operation) Stream(ctx context.Context, content string) {
	o.emit(ctx, Event{Type: EventStreaming, OperationID: o.ID, Timestamp: time.Now(), Data: StreamingData{Content: content}})
}

// ToolExecuted emits a tool-invocation-completed event.
func (o *Operation) ToolExecuted(ctx context.Context, toolName, toolType, summary string, success bool, duration time.Duration) {
	o.emit(ctx, Event{
		Type:        EventToolExecuted,
		OperationID: o.ID,
		Timestamp:   time.Now(),
		Data: ToolExecutedData{
			ToolName: toolName, ToolType: toolType, Summary: summary,
			Success: success, DurationMs: duration.Milliseconds(),
		},
	})
}

// Thinking emits a reasoning-progress event.
func (o *Operation) Thinking(ctx context.Context, status, message string, tokensIn, tokensOut int, activeTool *string) {
	o.emit(ctx, Event{
		Type:        EventThinking,
		OperationID: o.ID,
		Timestamp:   time.Now(),
		Data:        ThinkingData{Status: status, Message: message, TokensIn: tokensIn, TokensOut: tokensOut, ActiveTool: activeTool},
	})
}

// RequestSudoApproval emits SudoApprovalRequired. The caller is expected
// to block the executor on an external approval channel after this
// call; the operation engine itself doesn't model the wait.
func (o *Operation) RequestSudoApproval(ctx context.Context, command string, reason *string) {
	o.emit(ctx, Event{
		Type:        EventSudoApprovalRequired,
		OperationID: o.ID,
		Timestamp:   time.Now(),
		Data:        SudoApprovalRequiredData{Command: command, Reason: reason},
	})
}

// CreateArtifact persists a new artifact version for (operation, path),
// computing its content_hash and, if a prior version exists for that
// path, a unified diff against it. It emits ArtifactPreview then
// ArtifactCompleted, per spec.md §4.9's artifact contract.
func (o *Operation) CreateArtifact(ctx context.Context, id, filePath, kind, language, content string) (model.Artifact, error) {
	hash := contentHash(content)

	var diffPtr *string
	if prev, err := o.store.LatestArtifactForPath(ctx, o.ID, filePath); err == nil {
		d, derr := unifiedDiff(filePath, filePath, prev.Content, content)
		if derr == nil {
			diffPtr = &d
		}
	}

	a := model.Artifact{
		ID:          id,
		OperationID: o.ID,
		Kind:        kind,
		FilePath:    &filePath,
		Language:    &language,
		Content:     content,
		ContentHash: hash,
		Diff:        diffPtr,
		CreatedAt:   time.Now(),
	}
	if err := o.store.InsertArtifact(ctx, a); err != nil {
		return model.Artifact{}, err
	}

	o.mu.Lock()
	o.artifacts = append(o.artifacts, a)
	o.mu.Unlock()

	o.emit(ctx, Event{
		Type:        EventArtifactPreview,
		OperationID: o.ID,
		Timestamp:   a.CreatedAt,
		Data:        ArtifactPreviewData{ArtifactID: id, Path: &filePath, Preview: truncatePreview(content)},
	})
	o.emit(ctx, Event{
		Type:        EventArtifactCompleted,
		OperationID: o.ID,
		Timestamp:   a.CreatedAt,
		Data:        ArtifactCompletedData{Artifact: a},
	})
	return a, nil
}

// newOperationID produces a globally unique operation identifier.
func newOperationID() string {
	return uuid.NewString()
}
