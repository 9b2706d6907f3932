package codeintel

import (
	"context"
	"fmt"

	"mira/internal/logging"
	"mira/internal/model"
	"mira/internal/vectorstore"
)

// Store is the narrow store.Store slice the engine needs.
type Store interface {
	UpsertCodeElement(ctx context.Context, e model.CodeElement) (int64, error)
	ElementsForFile(ctx context.Context, fileID string) ([]model.CodeElement, error)
	DeleteFileElements(ctx context.Context, fileID string) error
	InsertQualityIssue(ctx context.Context, i model.QualityIssue) error
	DeleteQualityIssuesForElement(ctx context.Context, elementID int64) error
	InsertExternalDependency(ctx context.Context, d model.ExternalDependency) error
	DeleteExternalDependenciesForFile(ctx context.Context, fileID string) error
}

// Embedder is the narrow embedding capability the engine needs — any
// embedding.Provider satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vectors is the narrow vectorstore.Store slice the engine needs.
type Vectors interface {
	SaveBatch(ctx context.Context, head model.Head, points []vectorstore.Point) error
	DeletePoint(ctx context.Context, head model.Head, pointID string) error
	DeleteByField(ctx context.Context, head model.Head, sessionID string) (int64, error)
}

// Engine is the Code Intelligence subsystem (C5): parses a file, diffs
// the result against what's stored to decide what changed, and keeps
// the relational and vector stores in sync with that diff.
//
// Code elements are embedded directly here rather than through
// internal/embedding.Manager: spec.md §4.1 says code chunks are "whole
// elements from C5, never byte-windowed," so there's no chunking
// decision left to make, and point identity is derived deterministically
// from the element's row id (point id "code:<element_id>") rather than
// routed through the message-scoped embedding_refs table, since
// model.EmbeddingRef is keyed by MessageID and code elements aren't
// messages.
type Engine struct {
	registry *Registry
	store    Store
	vectors  Vectors
	embedder Embedder
}

func NewEngine(registry *Registry, store Store, vectors Vectors, embedder Embedder) *Engine {
	return &Engine{registry: registry, store: store, vectors: vectors, embedder: embedder}
}

// codeHeadSession is the vector point session_id code search filters by
// (spec.md §4.7: "filters vector hits by session_id=code:{project_id}").
func codeHeadSession(projectID string) string {
	return "code:" + projectID
}

func codePointID(elementID int64) string {
	return fmt.Sprintf("code:%d", elementID)
}

// SyncFile implements spec.md §4.6's change-detection contract: parse,
// diff (full_path, signature_hash) against the stored set, upsert and
// re-embed changed/new elements, and delete removed elements along with
// their embedding references from both stores.
func (e *Engine) SyncFile(ctx context.Context, fileID, projectID, path string, content []byte) (FileAnalysis, error) {
	parser := e.registry.ParserFor(path)
	if parser == nil {
		return FileAnalysis{}, &model.PipelineError{Kind: model.PipelineUnsupportedLanguage, Err: fmt.Errorf("no parser for %s", path)}
	}

	analysis, err := parser.Parse(path, content)
	if err != nil {
		return FileAnalysis{}, err
	}

	prior, err := e.store.ElementsForFile(ctx, fileID)
	if err != nil {
		return analysis, err
	}
	priorByPath := make(map[string]model.CodeElement, len(prior))
	for _, el := range prior {
		priorByPath[el.FullPath] = el
	}

	language := parser.Language()
	seen := make(map[string]bool, len(analysis.Elements))
	for i := range analysis.Elements {
		el := &analysis.Elements[i]
		el.FileID = fileID
		seen[el.FullPath] = true

		old, existed := priorByPath[el.FullPath]
		unchanged := existed && old.SignatureHash == el.SignatureHash
		if unchanged {
			el.ID = old.ID
		} else {
			id, err := e.store.UpsertCodeElement(ctx, *el)
			if err != nil {
				return analysis, err
			}
			el.ID = id

			if err := e.embedAndStore(ctx, projectID, *el); err != nil {
				logging.Get(logging.CategoryPipeline).Warnw("code element embed failed", "element", el.FullPath, "error", err)
			}
		}

		// Quality issues are detected here, against the element's
		// resolved row id, rather than at parse time: el.ID doesn't
		// exist until UpsertCodeElement assigns it, and re-detecting
		// per sync keeps the stored set bounded instead of
		// accumulating a duplicate row per re-parse.
		issues := detectQualityIssues(*el, language)
		if err := e.store.DeleteQualityIssuesForElement(ctx, el.ID); err != nil {
			return analysis, err
		}
		for _, issue := range issues {
			issue.ElementID = el.ID
			if err := e.store.InsertQualityIssue(ctx, issue); err != nil {
				return analysis, err
			}
		}
		analysis.QualityIssues = append(analysis.QualityIssues, issues...)
	}

	for fullPath, old := range priorByPath {
		if seen[fullPath] {
			continue
		}
		if err := e.vectors.DeletePoint(ctx, model.HeadCode, codePointID(old.ID)); err != nil {
			logging.Get(logging.CategoryPipeline).Warnw("removing vector point for deleted element failed", "element", fullPath, "error", err)
		}
	}

	// Dependencies carry no identity to upsert against, so the prior set
	// for this file is cleared before the fresh one is inserted, keeping
	// the row count bounded across repeated syncs instead of growing
	// without bound.
	if err := e.store.DeleteExternalDependenciesForFile(ctx, fileID); err != nil {
		return analysis, err
	}
	for _, dep := range analysis.Dependencies {
		dep.FileID = fileID
		if err := e.store.InsertExternalDependency(ctx, dep); err != nil {
			return analysis, err
		}
	}

	return analysis, nil
}

func (e *Engine) embedAndStore(ctx context.Context, projectID string, el model.CodeElement) error {
	vec, err := e.embedder.Embed(ctx, el.Content)
	if err != nil {
		return err
	}
	return e.vectors.SaveBatch(ctx, model.HeadCode, []vectorstore.Point{{
		ID:        codePointID(el.ID),
		SessionID: codeHeadSession(projectID),
		Vector:    vec,
		Content:   el.Content,
	}})
}

// InvalidateFile removes a file's element rows, then deletes each
// removed element's code-head vector point — used when a file is deleted
// outright rather than modified. The two steps are not atomic: a failed
// vector delete is logged and the row deletion stands.
func (e *Engine) InvalidateFile(ctx context.Context, fileID string) error {
	elements, err := e.store.ElementsForFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteFileElements(ctx, fileID); err != nil {
		return err
	}
	for _, el := range elements {
		if err := e.vectors.DeletePoint(ctx, model.HeadCode, codePointID(el.ID)); err != nil {
			logging.Get(logging.CategoryPipeline).Warnw("vector point delete failed during file invalidation", "element", el.FullPath, "error", err)
		}
	}
	return nil
}

// InvalidateProject implements spec.md §4.6's optimized project-wide
// path: per-file element row deletion, then one batched vector delete by
// payload filter instead of one DeletePoint call per element.
func (e *Engine) InvalidateProject(ctx context.Context, projectID string, fileIDs []string) error {
	for _, fileID := range fileIDs {
		if err := e.store.DeleteFileElements(ctx, fileID); err != nil {
			return err
		}
	}
	_, err := e.vectors.DeleteByField(ctx, model.HeadCode, codeHeadSession(projectID))
	return err
}
