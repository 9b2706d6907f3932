package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"mira/internal/model"
)

// DocBinding pairs a source file with the documentation page that
// describes it, so drift between the two can be detected by comparing
// content hashes across scans.
type DocBinding struct {
	DocType       string
	SourcePath    string
	TargetDocPath string
}

// DocScanStore is the narrow store slice the documentation scan task
// needs.
type DocScanStore interface {
	PendingDocTasks(ctx context.Context, limit int) ([]model.DocTask, error)
	EnqueueDocTask(ctx context.Context, t model.DocTask) (int64, error)
}

const docScanPendingLimit = 500

// DocScanTask detects documentation drift: for each configured source
// file, it hashes the current content and enqueues a drift candidate
// whenever that hash differs from the one recorded on the most recent
// pending or draft_ready task for the same target doc, per spec.md §4.8's
// documentation-maintenance sweep. A binding whose doc has no task in
// either state is enqueued whatever its hash.
type DocScanTask struct {
	store    DocScanStore
	bindings []DocBinding
	interval time.Duration
}

func NewDocScanTask(store DocScanStore, bindings []DocBinding, interval time.Duration) *DocScanTask {
	return &DocScanTask{store: store, bindings: bindings, interval: interval}
}

func (t *DocScanTask) Name() string           { return "doc_scan" }
func (t *DocScanTask) Interval() time.Duration { return t.interval }

func (t *DocScanTask) Run(ctx context.Context) (int, error) {
	pending, err := t.store.PendingDocTasks(ctx, docScanPendingLimit)
	if err != nil {
		return 0, err
	}
	seenHash := make(map[string]string, len(pending))
	for _, p := range pending {
		seenHash[p.TargetDocPath] = p.SourceSignatureHash
	}

	processed := 0
	for _, b := range t.bindings {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		content, err := os.ReadFile(b.SourcePath)
		if err != nil {
			continue
		}
		hash := sourceHash(content)
		if seenHash[b.TargetDocPath] == hash {
			continue
		}

		docChecksum := ""
		if docContent, err := os.ReadFile(b.TargetDocPath); err == nil {
			docChecksum = sourceHash(docContent)
		}

		if _, err := t.store.EnqueueDocTask(ctx, model.DocTask{
			DocType:                b.DocType,
			TargetDocPath:          b.TargetDocPath,
			Priority:               0,
			SourceSignatureHash:    hash,
			TargetDocChecksumAtGen: docChecksum,
		}); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func sourceHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
