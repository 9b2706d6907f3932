// Package session manages interactive and background conversation
// threads and the injections a background session publishes back into
// its interactive parent, grounded on the original implementation's
// InjectionService (backend/src/session/injection.rs).
package session

import (
	"context"
	"fmt"
	"strings"

	"mira/internal/logging"
	"mira/internal/model"
)

// Store is the narrow store slice the session manager drives.
type Store interface {
	CreateBackgroundSession(ctx context.Context, sessionID, parentSessionID string) error
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	InsertInjection(ctx context.Context, inj model.Injection) (model.Injection, error)
	PendingInjections(ctx context.Context, targetSessionID string) ([]model.Injection, error)
	RecentInjections(ctx context.Context, targetSessionID string, limit int) ([]model.Injection, error)
	AcknowledgeAllInjections(ctx context.Context, targetSessionID string) (int64, error)
}

// filesChangedCap matches the original implementation's format_for_prompt,
// which truncates a completion's file list to the first 10 entries.
const filesChangedCap = 10

// Manager publishes background-session updates into their interactive
// parent and assembles them into a prompt section on demand.
type Manager struct {
	store Store
}

func New(store Store) *Manager {
	return &Manager{store: store}
}

// StartBackground registers a new background session under parent,
// returning once the row exists so the caller can immediately start
// publishing injections against it.
func (m *Manager) StartBackground(ctx context.Context, sessionID, parentSessionID string) error {
	return m.store.CreateBackgroundSession(ctx, sessionID, parentSessionID)
}

// PublishCompletion records a background session's successful result
// against its parent, with the changed-file list carried in metadata
// under "files_changed".
func (m *Manager) PublishCompletion(ctx context.Context, targetSessionID, sourceSessionID, summary string, filesChanged []string) (model.Injection, error) {
	meta := map[string]any{}
	if len(filesChanged) > 0 {
		meta["files_changed"] = filesChanged
	}
	inj, err := m.store.InsertInjection(ctx, model.Injection{
		TargetSessionID: targetSessionID,
		SourceSessionID: sourceSessionID,
		Type:            model.InjectionCompletion,
		Content:         summary,
		Metadata:        meta,
	})
	if err != nil {
		return model.Injection{}, err
	}
	logging.Get(logging.CategorySession).Infow("published completion injection",
		"target", targetSessionID, "source", sourceSessionID, "files_changed", len(filesChanged))
	return inj, nil
}

// PublishProgress records an in-flight background status update.
func (m *Manager) PublishProgress(ctx context.Context, targetSessionID, sourceSessionID, message string) (model.Injection, error) {
	inj, err := m.store.InsertInjection(ctx, model.Injection{
		TargetSessionID: targetSessionID,
		SourceSessionID: sourceSessionID,
		Type:            model.InjectionProgress,
		Content:         message,
	})
	if err != nil {
		return model.Injection{}, err
	}
	logging.Get(logging.CategorySession).Debugw("published progress injection", "target", targetSessionID, "source", sourceSessionID)
	return inj, nil
}

// PublishError records a background session's failure.
func (m *Manager) PublishError(ctx context.Context, targetSessionID, sourceSessionID, errMessage string) (model.Injection, error) {
	inj, err := m.store.InsertInjection(ctx, model.Injection{
		TargetSessionID: targetSessionID,
		SourceSessionID: sourceSessionID,
		Type:            model.InjectionError,
		Content:         errMessage,
	})
	if err != nil {
		return model.Injection{}, err
	}
	logging.Get(logging.CategorySession).Warnw("published error injection", "target", targetSessionID, "source", sourceSessionID)
	return inj, nil
}

// ConsumePending formats every pending injection for targetSessionID
// into a prompt section and atomically acknowledges the whole set, so
// a crash between formatting and the caller actually using the prompt
// never causes the same update to be surfaced twice. Returns ("", nil)
// if there is nothing pending.
func (m *Manager) ConsumePending(ctx context.Context, targetSessionID string) (string, error) {
	pending, err := m.store.PendingInjections(ctx, targetSessionID)
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "", nil
	}

	section := formatForPrompt(pending)

	n, err := m.store.AcknowledgeAllInjections(ctx, targetSessionID)
	if err != nil {
		return "", err
	}
	logging.Get(logging.CategorySession).Infow("acknowledged pending injections", "target", targetSessionID, "count", n)
	return section, nil
}

// formatForPrompt renders injections into a "## Background Work
// Updates" section, matching the original implementation's
// format_for_prompt verbatim: a heading, one paragraph per injection
// keyed by type, a files-modified line capped at 10 entries for
// completions, and a closing acknowledgement hint.
func formatForPrompt(injections []model.Injection) string {
	var parts []string
	parts = append(parts, "## Background Work Updates\n")

	for _, inj := range injections {
		switch inj.Type {
		case model.InjectionCompletion:
			parts = append(parts, fmt.Sprintf("**Completed background task:**\n%s\n", inj.Content))
			if files := filesChangedFrom(inj.Metadata); len(files) > 0 {
				if len(files) > filesChangedCap {
					files = files[:filesChangedCap]
				}
				parts = append(parts, fmt.Sprintf("Files modified: %s\n", strings.Join(files, ", ")))
			}
		case model.InjectionProgress:
			parts = append(parts, fmt.Sprintf("**Background progress:** %s\n", inj.Content))
		case model.InjectionError:
			parts = append(parts, fmt.Sprintf("**Background task failed:**\n%s\n", inj.Content))
		}
	}

	parts = append(parts, "\nYou may acknowledge these updates naturally in conversation when relevant.")
	return strings.Join(parts, "\n")
}

func filesChangedFrom(meta map[string]any) []string {
	raw, ok := meta["files_changed"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
