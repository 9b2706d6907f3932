package tasks

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mira/internal/codeintel"
	"mira/internal/logging"
)

// CodeIntelEngine is the narrow codeintel.Engine slice the code-sync
// task drives.
type CodeIntelEngine interface {
	SyncFile(ctx context.Context, fileID, projectID, path string, content []byte) (codeintel.FileAnalysis, error)
	InvalidateFile(ctx context.Context, fileID string) error
}

// WatchedProject is one project root the code-sync task keeps in step
// with the Code Intelligence engine.
type WatchedProject struct {
	ProjectID string
	Root      string
	// Extensions restricts which files are synced, e.g. []string{".go"}.
	// A nil/empty slice means "every regular file."
	Extensions []string
}

const codeSyncDebounce = 500 * time.Millisecond

// CodeSyncTask watches a fixed set of project roots with fsnotify and
// reconciles changed files into the Code Intelligence engine on a
// debounced, ticker-driven cadence.
//
// The fsnotify-watcher-plus-debounce-map-plus-ticker shape is grounded
// on theRebelliousNerd-codenerd/internal/core's MangleWatcher: a
// watcher.Events/watcher.Errors/ctx.Done() select loop records dirty
// paths into a map[string]time.Time, and a separate ticker periodically
// sweeps entries that have settled past the debounce window.
type CodeSyncTask struct {
	engine   CodeIntelEngine
	projects []WatchedProject
	interval time.Duration

	watcher *fsnotify.Watcher
	rootFor map[string]WatchedProject // watched directory -> owning project

	mu    sync.Mutex
	dirty map[string]time.Time // absolute path -> last-seen event time
}

func NewCodeSyncTask(engine CodeIntelEngine, projects []WatchedProject, interval time.Duration) (*CodeSyncTask, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	t := &CodeSyncTask{
		engine:   engine,
		projects: projects,
		interval: interval,
		watcher:  watcher,
		rootFor:  make(map[string]WatchedProject),
		dirty:    make(map[string]time.Time),
	}
	t.addWatches()
	return t, nil
}

func (t *CodeSyncTask) addWatches() {
	for _, p := range t.projects {
		_ = filepath.WalkDir(p.Root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if err := t.watcher.Add(path); err != nil {
				logging.Get(logging.CategoryTasks).Warnw("code sync: watch failed", "path", path, "error", err)
				return nil
			}
			t.rootFor[path] = p
			return nil
		})
	}
}

func (t *CodeSyncTask) Name() string           { return "code_sync" }
func (t *CodeSyncTask) Interval() time.Duration { return t.interval }

// Watch drains fsnotify events into the dirty set until ctx is done.
// The Manager's ticker-driven Run then reconciles whatever has settled.
// Callers start this once, alongside Manager.Start, and it runs for the
// task's full lifetime rather than once per tick.
func (t *CodeSyncTask) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = t.watcher.Close()
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.recordEvent(ev)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryTasks).Warnw("code sync: watcher error", "error", err)
		}
	}
}

func (t *CodeSyncTask) recordEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	project, path := t.projectFor(ev.Name)
	if project.ProjectID == "" || !matchesExtension(project, path) {
		return
	}
	t.mu.Lock()
	t.dirty[path] = time.Now()
	t.mu.Unlock()
}

func (t *CodeSyncTask) projectFor(path string) (WatchedProject, string) {
	dir := filepath.Dir(path)
	if p, ok := t.rootFor[dir]; ok {
		return p, path
	}
	return WatchedProject{}, path
}

func matchesExtension(p WatchedProject, path string) bool {
	if len(p.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range p.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Run reconciles every dirty path that has settled past the debounce
// window: a deleted file invalidates its elements, otherwise its
// current content is re-synced.
func (t *CodeSyncTask) Run(ctx context.Context) (int, error) {
	settled := t.settledPaths()

	processed := 0
	for _, path := range settled {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		project, _ := t.projectFor(path)

		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := t.engine.InvalidateFile(ctx, path); err != nil {
					return processed, err
				}
				processed++
				continue
			}
			logging.Get(logging.CategoryTasks).Warnw("code sync: read failed", "path", path, "error", err)
			continue
		}

		if _, err := t.engine.SyncFile(ctx, path, project.ProjectID, path, content); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (t *CodeSyncTask) settledPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var settled []string
	for path, seenAt := range t.dirty {
		if now.Sub(seenAt) >= codeSyncDebounce {
			settled = append(settled, path)
			delete(t.dirty, path)
		}
	}
	return settled
}
