package hooks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHooksFile(t *testing.T, dir string, hooks []Hook) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".mira"), 0o755))
	data, err := json.Marshal(hooksFile{Hooks: hooks})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mira", "hooks.json"), data, 0o644))
}

func TestHook_MatchesTool(t *testing.T) {
	cases := []struct {
		pattern string
		tool    string
		want    bool
	}{
		{"", "write_file", true},
		{"*", "write_file", true},
		{"write_*", "write_file", true},
		{"write_*", "read_file", false},
		{"*_file", "write_file", true},
		{"*_file", "write_project", false},
		{"write_file", "write_file", true},
		{"write_file", "read_file", false},
	}
	for _, c := range cases {
		h := Hook{ToolPattern: c.pattern}
		assert.Equal(t, c.want, h.matchesTool(c.tool), "pattern %q vs tool %q", c.pattern, c.tool)
	}
}

func TestManager_Load_ProjectOverridesUser(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	writeHooksFile(t, home, []Hook{
		{Name: "lint", Trigger: PreToolUse, Command: "echo user-version", Enabled: true},
	})
	writeHooksFile(t, project, []Hook{
		{Name: "lint", Trigger: PreToolUse, Command: "echo project-version", Enabled: true},
	})

	m := NewManager(project, 0)
	require.NoError(t, m.Load())
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "echo project-version", m.hooks[0].Command)
}

func TestManager_Load_SkipsDisabledHooks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "off", Trigger: PreToolUse, Command: "echo nope", Enabled: false},
	})

	m := NewManager("", 0)
	require.NoError(t, m.Load())
	assert.Equal(t, 0, m.Len())
}

func TestManager_ExecuteToolHooks_RunsMatchingHook(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "announce", Trigger: PreToolUse, ToolPattern: "write_*", Command: "echo $MIRA_TOOL_NAME", Enabled: true, OnFailure: Warn},
	})

	m := NewManager("", 1000)
	require.NoError(t, m.Load())

	ok, results := m.ExecuteToolHooks(context.Background(), PreToolUse, "write_file", "{}", nil)
	assert.True(t, ok)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Contains(t, results[0].Stdout, "write_file")
}

func TestManager_ExecuteToolHooks_BlockOnFailureStopsExecution(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "must-pass", Trigger: PreToolUse, Command: "exit 1", Enabled: true, OnFailure: Block},
	})

	m := NewManager("", 1000)
	require.NoError(t, m.Load())

	ok, results := m.ExecuteToolHooks(context.Background(), PreToolUse, "any_tool", "", nil)
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 1, results[0].ExitCode)
}

func TestManager_ExecuteToolHooks_WarnOnFailureContinues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "advisory", Trigger: PreToolUse, Command: "exit 1", Enabled: true, OnFailure: Warn},
	})

	m := NewManager("", 1000)
	require.NoError(t, m.Load())

	ok, results := m.ExecuteToolHooks(context.Background(), PreToolUse, "any_tool", "", nil)
	assert.True(t, ok)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestManager_ExecuteToolHooks_TimeoutBlocksWhenPolicyIsBlock(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "slow", Trigger: PreToolUse, Command: "sleep 2", TimeoutMs: 50, Enabled: true, OnFailure: Block},
	})

	m := NewManager("", 0)
	require.NoError(t, m.Load())

	start := time.Now()
	ok, results := m.ExecuteToolHooks(context.Background(), PreToolUse, "any_tool", "", nil)
	assert.Less(t, time.Since(start), time.Second, "must not wait for the full sleep")
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.True(t, results[0].TimedOut)
}

func TestManager_ExecuteCommandHooks_OnlyMatchesCommandTriggers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeHooksFile(t, home, []Hook{
		{Name: "pre", Trigger: PreCommand, Command: "echo $MIRA_COMMAND_NAME", Enabled: true},
		{Name: "tool-only", Trigger: PreToolUse, Command: "echo nope", Enabled: true},
	})

	m := NewManager("", 1000)
	require.NoError(t, m.Load())

	ok, results := m.ExecuteCommandHooks(context.Background(), PreCommand, "recall", "query text")
	assert.True(t, ok)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Stdout, "recall")
}
