// Package hooks loads declarative pre/post tool and command hooks and
// runs them as shell commands, mirroring the teacher's shell-execution
// idiom in internal/tools/shell/execute.go: exec.CommandContext plus a
// context.WithTimeout, stdout/stderr captured into buffers.
package hooks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"mira/internal/logging"
)

// Trigger names the point in tool/command execution a hook fires at.
type Trigger string

const (
	PreToolUse  Trigger = "pre_tool_use"
	PostToolUse Trigger = "post_tool_use"
	PreCommand  Trigger = "pre_command"
	PostCommand Trigger = "post_command"
)

// OnFailure is the policy applied when a hook's command fails or times out.
type OnFailure string

const (
	Block  OnFailure = "block"
	Warn   OnFailure = "warn"
	Ignore OnFailure = "ignore"
)

const defaultTimeoutMs = 60000

// Hook is one declarative hook record, loaded from a hooks.json file.
type Hook struct {
	Name        string    `json:"name"`
	Trigger     Trigger   `json:"trigger"`
	ToolPattern string    `json:"tool_pattern,omitempty"`
	Command     string    `json:"command"`
	Cwd         string    `json:"cwd,omitempty"`
	TimeoutMs   int       `json:"timeout_ms"`
	OnFailure   OnFailure `json:"on_failure"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
}

// hooksFile is the on-disk shape of a hooks.json file: a flat array
// under a "hooks" key, per the original implementation's HooksConfig.
type hooksFile struct {
	Hooks []Hook `json:"hooks"`
}

// matchesTool reports whether the hook's tool_pattern matches toolName.
// An empty pattern matches every tool. Only leading/trailing "*" globs
// are supported, grounded on the original implementation's matches_tool.
func (h Hook) matchesTool(toolName string) bool {
	if h.ToolPattern == "" {
		return true
	}
	pattern := h.ToolPattern
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(toolName, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(toolName, pattern[1:])
	default:
		return toolName == pattern
	}
}

// Result is the outcome of running a single hook.
type Result struct {
	HookName string
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

// shouldBlock reports whether this result must stop the caller's
// in-flight tool/command, per the hook's own on_failure policy.
func (r Result) shouldBlock(onFailure OnFailure) bool {
	return !r.Success && onFailure == Block
}

// Manager loads hooks from a user-level file then a project-level
// override file (project hooks win on a name collision) and executes
// them for a given trigger.
type Manager struct {
	projectRoot    string
	defaultTimeout int
	hooks          []Hook
}

// NewManager constructs an empty Manager; call Load to populate it.
func NewManager(projectRoot string, timeoutMs int) *Manager {
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Manager{projectRoot: projectRoot, defaultTimeout: timeoutMs}
}

// Load reads ~/.mira/hooks.json, then <projectRoot>/.mira/hooks.json,
// merging by name with the project file taking precedence. Missing
// files are not an error.
func (m *Manager) Load() error {
	byName := make(map[string]Hook)
	order := make([]string, 0)

	merge := func(path string) error {
		loaded, err := loadHooksFile(path)
		if err != nil {
			return err
		}
		for _, h := range loaded {
			if !h.Enabled {
				continue
			}
			if h.TimeoutMs <= 0 {
				h.TimeoutMs = m.defaultTimeout
			}
			if h.OnFailure == "" {
				h.OnFailure = Warn
			}
			if _, exists := byName[h.Name]; !exists {
				order = append(order, h.Name)
			}
			byName[h.Name] = h
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".mira", "hooks.json")
		if err := merge(userPath); err != nil {
			return err
		}
	}

	if m.projectRoot != "" {
		projectPath := filepath.Join(m.projectRoot, ".mira", "hooks.json")
		if err := merge(projectPath); err != nil {
			return err
		}
	}

	hooks := make([]Hook, 0, len(order))
	for _, name := range order {
		hooks = append(hooks, byName[name])
	}
	m.hooks = hooks
	logging.Get(logging.CategoryHooks).Infow("hooks loaded", "count", len(m.hooks))
	return nil
}

// loadHooksFile reads and parses one hooks.json file, returning an
// empty slice (not an error) if the file does not exist.
func loadHooksFile(path string) ([]Hook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var file hooksFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Hooks, nil
}

// matching returns the loaded hooks for trigger whose tool_pattern (if
// any) matches toolName. An empty toolName only matches hooks with no
// tool_pattern, mirroring command-trigger hooks that aren't tool-scoped.
func (m *Manager) matching(trigger Trigger, toolName string) []Hook {
	var out []Hook
	for _, h := range m.hooks {
		if h.Trigger != trigger {
			continue
		}
		if toolName == "" {
			if h.ToolPattern == "" {
				out = append(out, h)
			}
			continue
		}
		if h.matchesTool(toolName) {
			out = append(out, h)
		}
	}
	return out
}

// Len reports how many hooks are currently loaded.
func (m *Manager) Len() int { return len(m.hooks) }
