// Package recall implements the Recall Engine (C8): parallel multi-head
// retrieval and fusion ranking given a query, session, and budget.
//
// The four-way concurrent fan-out (recent, semantic, code, summary) with
// shared cancellation is grounded on
// theRebelliousNerd-codenerd/internal/perception's concurrent
// multi-source gathering idiom (wait-group-guarded goroutines writing
// into per-source result slots, one context shared across all of them).
// The engine holds no persistent state itself, per spec.md §3's
// "Ownership summary" — it only composes queries over the relational
// and vector stores per call.
package recall

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mira/internal/logging"
	"mira/internal/model"
	"mira/internal/vectorstore"
)

const recencyHalfLifeDays = 30

// Store is the narrow store.Store slice the recall engine needs.
type Store interface {
	LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
	GetAnalysis(ctx context.Context, messageID int64) (model.Analysis, error)
	LatestSummaryMessage(ctx context.Context, sessionID string) (model.Message, error)
	IncrementRecallCount(ctx context.Context, messageID int64) error
}

// Vectors is the narrow vectorstore.Store slice the recall engine needs.
type Vectors interface {
	Search(ctx context.Context, head model.Head, query []float32, k int, sessionFilter string) ([]vectorstore.SearchResult, error)
}

// Embedder embeds a query string for the semantic/code channels.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scored pairs retrieved content with its fused relevance score.
type Scored struct {
	PointID    string
	Content    string
	Score      float64
	CreatedAt  time.Time
}

// Context is the result of one recall call: RecallContext in spec.md's
// terms.
type Context struct {
	Recent         []model.Message
	Semantic       []Scored
	Code           []Scored
	SessionSummary string
}

// Config supplies per-channel caps and the total character budget for
// one recall call.
type Config struct {
	RecentCount   int
	SemanticCount int
	CodeCount     int
	ProjectID     string
	CharBudget    int
}

// Render concatenates a recall Context into one prompt-ready string in
// spec.md §4.3's fixed order — session_summary, recent, semantic,
// code — stopping as soon as budget characters are used. The entry that
// would overflow the budget is dropped whole rather than truncated
// mid-content.
func (c Context) Render(budget int) string {
	var b strings.Builder
	used := 0

	add := func(s string) bool {
		if s == "" {
			return true
		}
		if used+len(s) > budget {
			return false
		}
		b.WriteString(s)
		used += len(s)
		return true
	}

	if !add(c.SessionSummary) {
		return b.String()
	}
	for _, m := range c.Recent {
		if !add("\n" + string(m.Role) + ": " + m.Content) {
			return b.String()
		}
	}
	for _, s := range c.Semantic {
		if !add("\n" + s.Content) {
			return b.String()
		}
	}
	for _, s := range c.Code {
		if !add("\n" + s.Content) {
			return b.String()
		}
	}
	return b.String()
}

type recentCacheKey struct {
	sessionID string
	n         int
}

// Engine is the Recall Engine (C8).
type Engine struct {
	store    Store
	vectors  Vectors
	embedder Embedder

	recentCache *lru.Cache[recentCacheKey, []model.Message]
}

// New wires a recall engine. cacheSize bounds the in-process recent-
// channel LRU (spec.md §4.3's "(session_id, N) → recent" cache); 0
// disables caching.
func New(store Store, vectors Vectors, embedder Embedder, cacheSize int) *Engine {
	e := &Engine{store: store, vectors: vectors, embedder: embedder}
	if cacheSize > 0 {
		c, _ := lru.New[recentCacheKey, []model.Message](cacheSize)
		e.recentCache = c
	}
	return e
}

// InvalidateRecent drops every cached recent-channel entry for a
// session. Callers must invoke this whenever a new message is written
// to that session, per spec.md §4.3's cache invalidation rule.
func (e *Engine) InvalidateRecent(sessionID string) {
	if e.recentCache == nil {
		return
	}
	for _, key := range e.recentCache.Keys() {
		if key.sessionID == sessionID {
			e.recentCache.Remove(key)
		}
	}
}

// Recall performs the four-way concurrent fan-out and returns the fused,
// budgeted RecallContext. Partial results from any channel that errors
// or is cancelled are discarded, never returned, per spec.md §4.3's
// cancellation semantics.
func (e *Engine) Recall(ctx context.Context, sessionID, queryText string, cfg Config) (Context, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg                          sync.WaitGroup
		recent                      []model.Message
		semantic, code              []Scored
		summary                     string
		recentErr, semErr, codeErr, sumErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		recent, recentErr = e.fetchRecent(ctx, sessionID, cfg.RecentCount)
	}()
	go func() {
		defer wg.Done()
		semantic, semErr = e.fetchScored(ctx, model.HeadSemantic, sessionID, queryText, cfg.SemanticCount)
	}()
	go func() {
		defer wg.Done()
		code, codeErr = e.fetchScored(ctx, model.HeadCode, codeHeadSession(cfg.ProjectID), queryText, cfg.CodeCount)
	}()
	go func() {
		defer wg.Done()
		summary, sumErr = e.fetchSummary(ctx, sessionID)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return Context{}, ctx.Err()
	}
	// A per-channel failure still degrades gracefully — an empty channel,
	// not a failed call — since the fan-out channels are independent.
	_ = recentErr
	_ = semErr
	_ = codeErr
	_ = sumErr

	rc := Context{Recent: recent, Semantic: semantic, Code: code, SessionSummary: summary}
	e.bumpRecallCounts(ctx, rc)
	return rc, nil
}

// bumpRecallCounts increments recall_count on every message a recall call
// actually surfaces back to a caller, so decay's boost(recall_count) term
// (spec.md §4.5) reflects messages that keep getting recalled. A message
// surfaced by more than one channel is counted once per call. Best-effort:
// a failed increment is logged and otherwise ignored, since it must never
// fail the recall itself.
func (e *Engine) bumpRecallCounts(ctx context.Context, rc Context) {
	seen := make(map[int64]bool)
	bump := func(messageID int64) {
		if seen[messageID] {
			return
		}
		seen[messageID] = true
		if err := e.store.IncrementRecallCount(ctx, messageID); err != nil {
			logging.Get(logging.CategoryRecall).Warnw("recall count increment failed", "message_id", messageID, "error", err)
		}
	}
	for _, m := range rc.Recent {
		bump(m.ID)
	}
	for _, s := range rc.Semantic {
		if messageID, ok := messageIDFromPointID(s.PointID); ok {
			bump(messageID)
		}
	}
	for _, s := range rc.Code {
		if messageID, ok := messageIDFromPointID(s.PointID); ok {
			bump(messageID)
		}
	}
}

func (e *Engine) fetchRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	if n <= 0 {
		n = 20
	}
	key := recentCacheKey{sessionID: sessionID, n: n}
	if e.recentCache != nil {
		if cached, ok := e.recentCache.Get(key); ok {
			return cached, nil
		}
	}
	msgs, err := e.store.LoadRecent(ctx, sessionID, n)
	if err != nil {
		return nil, err
	}
	if e.recentCache != nil {
		e.recentCache.Add(key, msgs)
	}
	return msgs, nil
}

func (e *Engine) fetchScored(ctx context.Context, head model.Head, sessionFilter, queryText string, k int) ([]Scored, error) {
	if k <= 0 {
		k = 10
	}
	if e.embedder == nil {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	hits, err := e.vectors.Search(ctx, head, vec, k, sessionFilter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		salience := e.salienceAtStore(ctx, h.Point.ID)
		ageDays := now.Sub(h.Point.CreatedAt).Hours() / 24
		fused := 0.6*h.Similarity + 0.3*salience + 0.1*recencyDecay(ageDays)
		out = append(out, Scored{
			PointID:   h.Point.ID,
			Content:   h.Point.Content,
			Score:     fused,
			CreatedAt: h.Point.CreatedAt,
		})
	}
	sortFusedDesc(out)
	return out, nil
}

// salienceAtStore looks up the current salience for a vector point that
// was embedded from a message (point ids take the "<messageID>:<head>:<n>"
// shape from internal/embedding). Code-head points aren't message-backed
// and have no analysis to read, so they fall back to a neutral midpoint.
func (e *Engine) salienceAtStore(ctx context.Context, pointID string) float64 {
	messageID, ok := messageIDFromPointID(pointID)
	if !ok {
		return 0.5
	}
	a, err := e.store.GetAnalysis(ctx, messageID)
	if err != nil {
		return 0.5
	}
	return a.Salience
}

func (e *Engine) fetchSummary(ctx context.Context, sessionID string) (string, error) {
	msg, err := e.store.LatestSummaryMessage(ctx, sessionID)
	if err != nil {
		return "", nil
	}
	return msg.Content, nil
}

// recencyDecay implements spec.md §4.3's recency_decay(age_days,
// half_life=30): an exponential falloff reaching 0.5 at half_life days.
func recencyDecay(ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	lambda := math.Ln2 / recencyHalfLifeDays
	return math.Exp(-lambda * ageDays)
}

func sortFusedDesc(s []Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].CreatedAt.After(s[j].CreatedAt)
	})
}

func codeHeadSession(projectID string) string {
	return "code:" + projectID
}

func messageIDFromPointID(pointID string) (int64, bool) {
	idx := strings.IndexByte(pointID, ':')
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(pointID[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
