package codeintel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
	"mira/internal/vectorstore"
)

const goSample = `package billing

// Charge processes a payment for amount cents.
func Charge(amount int) error {
	if amount < 0 {
		return nil
	}
	for i := 0; i < amount; i++ {
		if i%2 == 0 || i%3 == 0 {
			continue
		}
	}
	return nil
}

func unexported() {}

type Account struct {
	ID   string
	Name string
}
`

func TestGoParser_ExtractsFunctionsAndStructs(t *testing.T) {
	p := NewGoParser()
	defer p.Close()

	fa, err := p.Parse("billing.go", []byte(goSample))
	require.NoError(t, err)

	var names []string
	for _, e := range fa.Elements {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Charge")
	assert.Contains(t, names, "unexported")
	assert.Contains(t, names, "Account")
}

func TestGoParser_DocumentsExportedFunction(t *testing.T) {
	p := NewGoParser()
	defer p.Close()

	fa, err := p.Parse("billing.go", []byte(goSample))
	require.NoError(t, err)

	for _, e := range fa.Elements {
		if e.Name == "Charge" {
			require.NotNil(t, e.Documentation)
			assert.Contains(t, *e.Documentation, "processes a payment")
			assert.Equal(t, model.VisibilityPublic, e.Visibility)
			assert.Greater(t, e.ComplexityScore, 1)
		}
		if e.Name == "unexported" {
			assert.Equal(t, model.VisibilityPrivate, e.Visibility)
		}
	}
}

func TestGoParser_UndocumentedPublicFlaggedByQualityDetector(t *testing.T) {
	src := `package x

func Exported() {}
`
	p := NewGoParser()
	defer p.Close()

	fa, err := p.Parse("x.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, fa.Elements, 1)

	issues := detectQualityIssues(fa.Elements[0], "go")
	require.Len(t, issues, 1)
	assert.Equal(t, "undocumented_public_symbol", issues[0].Detector)
}

func TestComplexityScore_CountsBranchesAndOperators(t *testing.T) {
	body := `if a { } else if b && c || d { } for i := 0; i < 10; i++ { x := y ? 1 : 2 }`
	score := complexityScore(body)
	assert.Greater(t, score, 1)
}

func TestClassifyDependency_Go(t *testing.T) {
	assert.Equal(t, model.DependencyStdlib, classifyDependency("go", "fmt"))
	assert.Equal(t, model.DependencyLocalImport, classifyDependency("go", "mira/internal/model"))
}

func TestClassifyDependency_Rust(t *testing.T) {
	assert.Equal(t, model.DependencyStdlib, classifyDependency("rust", "std::collections::HashMap"))
	assert.Equal(t, model.DependencySystemCrate, classifyDependency("rust", "serde::Deserialize"))
	assert.Equal(t, model.DependencyLocalImport, classifyDependency("rust", "crate::db::Pool"))
}

func TestPythonParser_ExtractsDocstringAndAsync(t *testing.T) {
	src := `
class Widget:
    """A small widget."""
    pass

async def fetch():
    pass

def _private():
    pass
`
	p := NewPythonParser()
	defer p.Close()

	fa, err := p.Parse("widget.py", []byte(src))
	require.NoError(t, err)

	var widget, fetch, private *model.CodeElement
	for i := range fa.Elements {
		switch fa.Elements[i].Name {
		case "Widget":
			widget = &fa.Elements[i]
		case "fetch":
			fetch = &fa.Elements[i]
		case "_private":
			private = &fa.Elements[i]
		}
	}
	require.NotNil(t, widget)
	require.NotNil(t, widget.Documentation)
	assert.Contains(t, *widget.Documentation, "small widget")

	require.NotNil(t, fetch)
	assert.True(t, fetch.IsAsync)

	require.NotNil(t, private)
	assert.Equal(t, model.VisibilityPrivate, private.Visibility)
}

// --- Engine tests ---

type fakeEngineStore struct {
	elements map[string][]model.CodeElement
	deleted  []string
	issues   []model.QualityIssue
	deps     []model.ExternalDependency
	nextID   int64
}

func newFakeEngineStore() *fakeEngineStore {
	return &fakeEngineStore{elements: make(map[string][]model.CodeElement)}
}

func (f *fakeEngineStore) UpsertCodeElement(ctx context.Context, e model.CodeElement) (int64, error) {
	existing := f.elements[e.FileID]
	for i, old := range existing {
		if old.FullPath == e.FullPath {
			e.ID = old.ID
			existing[i] = e
			f.elements[e.FileID] = existing
			return e.ID, nil
		}
	}
	f.nextID++
	e.ID = f.nextID
	f.elements[e.FileID] = append(existing, e)
	return e.ID, nil
}

func (f *fakeEngineStore) ElementsForFile(ctx context.Context, fileID string) ([]model.CodeElement, error) {
	return f.elements[fileID], nil
}

func (f *fakeEngineStore) DeleteFileElements(ctx context.Context, fileID string) error {
	f.deleted = append(f.deleted, fileID)
	delete(f.elements, fileID)
	return nil
}

func (f *fakeEngineStore) InsertQualityIssue(ctx context.Context, i model.QualityIssue) error {
	f.issues = append(f.issues, i)
	return nil
}

func (f *fakeEngineStore) DeleteQualityIssuesForElement(ctx context.Context, elementID int64) error {
	kept := f.issues[:0]
	for _, i := range f.issues {
		if i.ElementID != elementID {
			kept = append(kept, i)
		}
	}
	f.issues = kept
	return nil
}

func (f *fakeEngineStore) InsertExternalDependency(ctx context.Context, d model.ExternalDependency) error {
	f.deps = append(f.deps, d)
	return nil
}

func (f *fakeEngineStore) DeleteExternalDependenciesForFile(ctx context.Context, fileID string) error {
	kept := f.deps[:0]
	for _, d := range f.deps {
		if d.FileID != fileID {
			kept = append(kept, d)
		}
	}
	f.deps = kept
	return nil
}

type fakeVectors struct {
	saved   map[string]bool
	deleted []string
}

func newFakeVectors() *fakeVectors { return &fakeVectors{saved: make(map[string]bool)} }

func (f *fakeVectors) SaveBatch(ctx context.Context, head model.Head, points []vectorstore.Point) error {
	for _, p := range points {
		f.saved[p.ID] = true
	}
	return nil
}

func (f *fakeVectors) DeletePoint(ctx context.Context, head model.Head, pointID string) error {
	f.deleted = append(f.deleted, pointID)
	delete(f.saved, pointID)
	return nil
}

func (f *fakeVectors) DeleteByField(ctx context.Context, head model.Head, sessionID string) (int64, error) {
	return 0, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

func TestEngine_SyncFile_UnchangedElementIsNotReembedded(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	src := []byte("package x\n\nfunc A() {}\n")
	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", src)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	_, err = engine.SyncFile(context.Background(), "file1", "proj1", "a.go", src)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "unchanged element must not be re-embedded")
}

func TestEngine_SyncFile_ChangedElementIsReembedded(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc A() {}\n"))
	require.NoError(t, err)

	_, err = engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc A(n int) { if n > 0 {} }\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
}

func TestEngine_SyncFile_RemovedElementDeletesVectorPoint(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc A() {}\nfunc B() {}\n"))
	require.NoError(t, err)
	assert.Len(t, vectors.saved, 2)

	_, err = engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc A() {}\n"))
	require.NoError(t, err)
	assert.Len(t, vectors.deleted, 1)
}

func TestEngine_SyncFile_QualityIssueCarriesElementID(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc Exported() {}\n"))
	require.NoError(t, err)

	require.NotEmpty(t, store.issues)
	for _, issue := range store.issues {
		assert.NotZero(t, issue.ElementID)
	}
}

func TestEngine_SyncFile_RepeatedSyncDoesNotDuplicateQualityIssuesOrDependencies(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	src := []byte("package x\n\nimport \"fmt\"\n\nfunc Exported() { fmt.Println(1) }\n")

	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", src)
	require.NoError(t, err)
	firstIssues := len(store.issues)
	firstDeps := len(store.deps)
	require.NotZero(t, firstIssues)
	require.NotZero(t, firstDeps)

	_, err = engine.SyncFile(context.Background(), "file1", "proj1", "a.go", src)
	require.NoError(t, err)
	assert.Equal(t, firstIssues, len(store.issues), "re-syncing an unchanged file must not duplicate quality issues")
	assert.Equal(t, firstDeps, len(store.deps), "re-syncing an unchanged file must not duplicate dependency rows")
}

func TestEngine_InvalidateFile_RemovesElementsAndVectors(t *testing.T) {
	store := newFakeEngineStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	engine := NewEngine(DefaultRegistry(), store, vectors, embedder)

	_, err := engine.SyncFile(context.Background(), "file1", "proj1", "a.go", []byte("package x\n\nfunc A() {}\n"))
	require.NoError(t, err)

	require.NoError(t, engine.InvalidateFile(context.Background(), "file1"))
	assert.Contains(t, store.deleted, "file1")
	assert.Len(t, vectors.deleted, 1)
}
