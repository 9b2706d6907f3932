package operation

import (
	"time"

	"mira/internal/model"
)

// EventType enumerates every lifecycle and progress event an operation
// can emit, per spec.md §4.9's event list.
type EventType string

const (
	EventStarted             EventType = "started"
	EventStatusChanged       EventType = "status_changed"
	EventStreaming           EventType = "streaming"
	EventToolExecuted        EventType = "tool_executed"
	EventArtifactPreview     EventType = "artifact_preview"
	EventArtifactCompleted   EventType = "artifact_completed"
	EventTaskCreated         EventType = "task_created"
	EventTaskStarted         EventType = "task_started"
	EventTaskCompleted       EventType = "task_completed"
	EventAgentSpawned        EventType = "agent_spawned"
	EventAgentProgress       EventType = "agent_progress"
	EventAgentStreaming      EventType = "agent_streaming"
	EventAgentCompleted      EventType = "agent_completed"
	EventSudoApprovalRequired EventType = "sudo_approval_required"
	EventThinking            EventType = "thinking"
	EventCompleted           EventType = "completed"
	EventFailed              EventType = "failed"
)

// Event is the single envelope every lifecycle/progress notification
// travels in, mirroring the teacher's OrchestratorEvent
// (Type/Timestamp/Message/Data any) from
// theRebelliousNerd-codenerd/internal/campaign/orchestrator_types.go —
// generalized here with an OperationID on every event (spec.md's events
// are all scoped to one operation) and Data holding whichever typed
// payload struct below matches Type.
type Event struct {
	Type        EventType
	OperationID string
	Timestamp   time.Time
	Data        any
}

// StatusChangedData is Data for EventStatusChanged.
type StatusChangedData struct {
	Old model.OperationStatus
	New model.OperationStatus
}

// StreamingData is Data for EventStreaming and EventAgentStreaming.
type StreamingData struct {
	Content string
	AgentID string
}

// ToolExecutedData is Data for EventToolExecuted.
type ToolExecutedData struct {
	ToolName   string
	ToolType   string
	Summary    string
	Success    bool
	DurationMs int64
}

// ArtifactPreviewData is Data for EventArtifactPreview. Preview is the
// artifact's content truncated to 200 chars with an ellipsis, per
// spec.md §4.9.
type ArtifactPreviewData struct {
	ArtifactID string
	Path       *string
	Preview    string
}

const previewMaxChars = 200

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxChars {
		return content
	}
	return string(runes[:previewMaxChars]) + "…"
}

// ArtifactCompletedData is Data for EventArtifactCompleted.
type ArtifactCompletedData struct {
	Artifact model.Artifact
}

// TaskData is Data for EventTaskCreated/Started/Completed.
type TaskData struct {
	TaskID string
	Result *string
	Err    *string
}

// AgentData is Data for EventAgentSpawned/Progress/Completed.
type AgentData struct {
	AgentID  string
	Progress string
	Result   *string
}

// SudoApprovalRequiredData is Data for EventSudoApprovalRequired. The
// operation stalls — its executor is expected to block on an external
// approval channel — after this event is emitted.
type SudoApprovalRequiredData struct {
	Command string
	Reason  *string
}

// ThinkingData is Data for EventThinking.
type ThinkingData struct {
	Status     string
	Message    string
	TokensIn   int
	TokensOut  int
	ActiveTool *string
}

// CompletedData is Data for EventCompleted. Artifacts is the complete
// ordered list produced over the operation's lifetime, per spec.md
// §4.9's "artifacts is the complete ordered list".
type CompletedData struct {
	Result    *string
	Artifacts []model.Artifact
}

// FailedData is Data for EventFailed.
type FailedData struct {
	Error string
}
