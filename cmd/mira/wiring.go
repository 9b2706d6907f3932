package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"mira/internal/codeintel"
	"mira/internal/config"
	"mira/internal/decay"
	"mira/internal/embedding"
	"mira/internal/hooks"
	"mira/internal/llmprovider"
	"mira/internal/operation"
	"mira/internal/pipeline"
	"mira/internal/recall"
	"mira/internal/session"
	"mira/internal/store"
	"mira/internal/summarize"
	"mira/internal/tasks"
	"mira/internal/vectorstore"
)

const recallCacheSize = 512

// app holds every long-lived subsystem cmd/mira wires together: one
// process, one store, one vector store, everything else a stateless or
// narrowly-stateful engine over them.
type app struct {
	cfg *config.Config

	store      *store.Store
	vectors    *vectorstore.Store
	llm        llmprovider.Provider
	embedder   *embedding.Manager
	pipeline   *pipeline.Pipeline
	codeintel  *codeintel.Engine
	summarizer *summarize.Summarizer
	decay      *decay.Engine
	recall     *recall.Engine
	operation  *operation.Engine
	hooks      *hooks.Manager
	session    *session.Manager
	tasksMgr   *tasks.Manager
	codeSync   *tasks.CodeSyncTask
}

// buildApp wires every subsystem in dependency order. It performs no
// I/O beyond opening the database and loading hook definitions; network
// clients (LLM, embedding providers) are constructed but not dialed
// until first use.
func buildApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	vectors := vectorstore.New(st.DB())

	llm, err := llmprovider.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("constructing llm provider: %w", err)
	}

	embedProvider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("constructing embedding provider: %w", err)
	}
	embedder := embedding.NewManager(embedProvider, vectors, st)

	pipe := pipeline.New(llm, st, embedder)

	codeEngine := codeintel.NewEngine(codeintel.DefaultRegistry(), st, vectors, embedProvider)

	summarizer := summarize.New(llm, st, embedder, cfg.Tasks.RollingWindowSize)

	decayEngine := decay.New(st)

	recallEngine := recall.New(st, vectors, embedProvider, recallCacheSize)

	opEngine := operation.New(st)

	hookMgr := hooks.NewManager(".", cfg.Hooks.TimeoutMs)
	if err := hookMgr.Load(); err != nil {
		return nil, fmt.Errorf("loading hooks: %w", err)
	}

	sessionMgr := session.New(st)

	a := &app{
		cfg:        cfg,
		store:      st,
		vectors:    vectors,
		llm:        llm,
		embedder:   embedder,
		pipeline:   pipe,
		codeintel:  codeEngine,
		summarizer: summarizer,
		decay:      decayEngine,
		recall:     recallEngine,
		operation:  opEngine,
		hooks:      hookMgr,
		session:    sessionMgr,
	}

	scheduled, codeSync, err := a.buildTasks()
	if err != nil {
		return nil, fmt.Errorf("building tasks: %w", err)
	}
	a.codeSync = codeSync
	a.tasksMgr = tasks.NewManager(cfg.Tasks, scheduled...)

	return a, nil
}

// buildTasks assembles the enabled recurring tasks per cfg.Tasks, plus
// the code-sync task's watcher (registered separately since it also
// needs Watch started alongside Manager.Start). Pattern mining and
// suggestion generation have no standalone enable flag in TasksConfig;
// they're paced purely by everyN against the analysis-backlog cadence,
// so they ride the same AnalysisEnabled switch as the pipeline backlog
// they depend on for analyses.
func (a *app) buildTasks() ([]tasks.Task, *tasks.CodeSyncTask, error) {
	var scheduled []tasks.Task
	cfg := a.cfg.Tasks

	if cfg.AnalysisEnabled {
		scheduled = append(scheduled, tasks.NewAnalysisBacklogTask(a.store, a.pipeline, cfg.AnalysisInterval))
		scheduled = append(scheduled, tasks.NewPatternMiningTask(a.store, a.userOfSession, cfg.AnalysisInterval, cfg.PatternMiningEveryN))
		scheduled = append(scheduled, tasks.NewSuggestionTask(a.store, a.llm, cfg.AnalysisInterval, cfg.SuggestionEveryN))
	}
	if cfg.DecayEnabled {
		scheduled = append(scheduled, tasks.NewDecayTask(a.decay, cfg.DecayInterval))
	}
	if cfg.CleanupEnabled {
		maxAge := time.Duration(cfg.SessionMaxAgeHours) * time.Hour
		scheduled = append(scheduled, tasks.NewSessionCleanupTask(a.store, a.recall, maxAge, cfg.CleanupInterval))
	}
	if cfg.SummaryEnabled {
		fire := func(ctx context.Context, sessionID string) (bool, error) {
			msg, err := a.summarizer.MaybeRollingSummary(ctx, sessionID)
			return msg != nil, err
		}
		scheduled = append(scheduled, tasks.NewRollingSummaryTask(a.store, fire, cfg.SummaryCheckInterval))
	}
	if cfg.EmbeddingCleanupEnabled {
		scheduled = append(scheduled, tasks.NewEmbeddingCleanupTask(a.store, a.vectors, cfg.EmbeddingCleanupInterval))
	}

	var codeSync *tasks.CodeSyncTask
	if cfg.CodeSyncEnabled {
		projects := watchedProjectsFromEnv()
		if len(projects) > 0 {
			cs, err := tasks.NewCodeSyncTask(a.codeintel, projects, cfg.CodeSyncInterval)
			if err != nil {
				return nil, nil, fmt.Errorf("starting code sync watcher: %w", err)
			}
			codeSync = cs
			scheduled = append(scheduled, cs)
		}
	}

	docBindings := docBindingsFromEnv()
	if len(docBindings) > 0 {
		scheduled = append(scheduled, tasks.NewDocScanTask(a.store, docBindings, cfg.DocScanInterval))
	}

	return scheduled, codeSync, nil
}

// userOfSession maps a session to the owner learned patterns are filed
// under. model.Session carries no user_id column — this deployment is
// single-tenant — so the session itself is the grouping key.
func (a *app) userOfSession(sessionID string) string {
	return sessionID
}

// runStartupBackfill runs the one-shot embedding backfill once, before
// any recurring task starts, to close any gap a prior crash left
// between an analysis write and its embedding.
func (a *app) runStartupBackfill(ctx context.Context) (int, error) {
	embedder := &storeMessageEmbedder{store: a.store, embedder: a.embedder}
	return tasks.RunEmbeddingBackfill(ctx, a.store, embedder)
}

// watchedProjectsFromEnv reads MIRA_PROJECT_ROOTS (colon-separated
// directories) to decide what code_sync should watch. An unset or empty
// value disables code sync entirely rather than defaulting to the
// process's working directory, since watching an arbitrary cwd with no
// operator opt-in would silently index whatever happens to be there.
func watchedProjectsFromEnv() []tasks.WatchedProject {
	raw := os.Getenv("MIRA_PROJECT_ROOTS")
	if raw == "" {
		return nil
	}
	var projects []tasks.WatchedProject
	for _, root := range strings.Split(raw, ":") {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		projects = append(projects, tasks.WatchedProject{
			ProjectID: root,
			Root:      root,
		})
	}
	return projects
}

// docBindingsFromEnv reads MIRA_DOC_BINDINGS as a comma-separated list
// of "source:doc" pairs. Unset means no documentation-drift scanning.
func docBindingsFromEnv() []tasks.DocBinding {
	raw := os.Getenv("MIRA_DOC_BINDINGS")
	if raw == "" {
		return nil
	}
	var bindings []tasks.DocBinding
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		bindings = append(bindings, tasks.DocBinding{
			DocType:       "reference",
			SourcePath:    parts[0],
			TargetDocPath: parts[1],
		})
	}
	return bindings
}
