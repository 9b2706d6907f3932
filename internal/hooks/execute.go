package hooks

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
)

// Env holds the MIRA_* environment variables exposed to a hook's
// command, per spec.md's fixed variable names.
type Env struct {
	ToolName     string
	ToolArgs     string
	ToolSuccess  *bool
	ToolOutput   string
	CommandName  string
	CommandArgs  string
}

// envPairs renders e as KEY=VALUE strings for exec.Cmd.Env, omitting
// any variable whose value was never set for this trigger.
func (e Env) envPairs() []string {
	var out []string
	add := func(k, v string) { out = append(out, k+"="+v) }
	if e.ToolName != "" {
		add("MIRA_TOOL_NAME", e.ToolName)
		add("MIRA_TOOL_ARGS", e.ToolArgs)
	}
	if e.ToolSuccess != nil {
		add("MIRA_TOOL_SUCCESS", boolString(*e.ToolSuccess))
		add("MIRA_TOOL_OUTPUT", e.ToolOutput)
	}
	if e.CommandName != "" {
		add("MIRA_COMMAND_NAME", e.CommandName)
		add("MIRA_COMMAND_ARGS", e.CommandArgs)
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// execute runs a single hook's shell command with its configured
// timeout, capturing stdout/stderr into buffers exactly as the
// teacher's executeRunCommand does, then mapping the outcome to a
// Result plus a model.HookError describing the failure kind.
func execute(ctx context.Context, h Hook, env Env) Result {
	start := time.Now()
	timeout := time.Duration(h.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", h.Command)
	if h.Cwd != "" {
		cmd.Dir = h.Cwd
	}
	cmd.Env = append(cmd.Env, env.envPairs()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		logging.Get(logging.CategoryHooks).Warnw("hook timed out", "hook", h.Name, "timeout_ms", h.TimeoutMs)
		return Result{
			HookName: h.Name,
			Success:  false,
			TimedOut: true,
			Stderr:   stderr.String(),
			Err:      &model.HookError{Kind: model.HookTimeout, Err: err},
		}
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			logging.Get(logging.CategoryHooks).Warnw("hook exited non-zero", "hook", h.Name, "duration", duration, "exit_code", exitErr.ExitCode())
			return Result{
				HookName: h.Name,
				Success:  false,
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Err:      &model.HookError{Kind: model.HookNonzeroExit, Err: err},
			}
		}
		logging.Get(logging.CategoryHooks).Warnw("hook failed to spawn", "hook", h.Name, "error", err)
		return Result{
			HookName: h.Name,
			Success:  false,
			Stderr:   stderr.String(),
			Err:      &model.HookError{Kind: model.HookSpawnFailed, Err: err},
		}
	}

	logging.Get(logging.CategoryHooks).Debugw("hook completed", "hook", h.Name, "duration", duration)
	return Result{
		HookName: h.Name,
		Success:  true,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}

// ExecuteToolHooks runs every loaded hook matching trigger and
// toolName, in load order, and aggregates should_continue: false iff
// any on_failure=block hook failed or timed out.
func (m *Manager) ExecuteToolHooks(ctx context.Context, trigger Trigger, toolName, toolArgs string, result *ToolResult) (bool, []Result) {
	env := Env{ToolName: toolName, ToolArgs: toolArgs}
	if result != nil {
		env.ToolSuccess = &result.Success
		env.ToolOutput = result.Output
	}
	return m.run(ctx, trigger, toolName, env)
}

// ToolResult carries a tool's outcome into a post_tool_use hook run.
type ToolResult struct {
	Success bool
	Output  string
}

// ExecuteCommandHooks runs every loaded hook matching trigger for a
// slash-command invocation, with no tool_pattern scoping.
func (m *Manager) ExecuteCommandHooks(ctx context.Context, trigger Trigger, commandName, commandArgs string) (bool, []Result) {
	env := Env{CommandName: commandName, CommandArgs: commandArgs}
	return m.run(ctx, trigger, "", env)
}

func (m *Manager) run(ctx context.Context, trigger Trigger, toolName string, env Env) (bool, []Result) {
	matching := m.matching(trigger, toolName)
	results := make([]Result, 0, len(matching))
	shouldContinue := true

	for _, h := range matching {
		res := execute(ctx, h, env)
		if res.shouldBlock(h.OnFailure) {
			shouldContinue = false
			logging.Get(logging.CategoryHooks).Infow("hook blocked execution", "hook", h.Name, "trigger", trigger)
		}
		results = append(results, res)
	}

	return shouldContinue, results
}
