package anonymize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizer_FullLevel_StripsProjectIdentifiers(t *testing.T) {
	a := New(1.0, Full)
	pattern := a.AnonymizeFileSequence([]string{"/home/user/myproject/src/handlers/auth.rs"}, 0.8)

	require.Len(t, pattern.Sequence, 1)
	assert.NotContains(t, pattern.Sequence[0], "myproject")
	assert.NotContains(t, pattern.Sequence[0], "user")
	assert.Equal(t, "src/rs", pattern.Sequence[0])
	assert.Equal(t, "rust", pattern.Category)
}

func TestAnonymizer_PartialLevel_KeepsLastDirAndGenericName(t *testing.T) {
	a := New(1.0, Partial)
	generalized := a.generalizeFilePath("src/handlers/auth_test.go")
	assert.Equal(t, "handlers/test_file", generalized)
}

func TestAnonymizer_NoneLevel_PassesThrough(t *testing.T) {
	a := New(1.0, None)
	path := "src/handlers/auth.go"
	assert.Equal(t, path, a.generalizeFilePath(path))
}

func TestAnonymizer_LaplaceNoise_MeanNearZero(t *testing.T) {
	a := New(1.0, Full)
	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		sum += a.sampleLaplace()
	}
	mean := sum / n
	assert.Less(t, math.Abs(mean), 0.3)
}

func TestAnonymizer_Confidence_ClampedToUnitInterval(t *testing.T) {
	a := New(0.01, Full) // tiny epsilon -> huge noise scale
	pattern := a.AnonymizeFileSequence([]string{"src/a.go"}, 0.5)
	assert.GreaterOrEqual(t, pattern.Confidence, 0.0)
	assert.LessOrEqual(t, pattern.Confidence, 1.0)
}

func TestHashSequence_IsDeterministicAnd16Hex(t *testing.T) {
	h1 := hashSequence([]string{"a", "b"})
	h2 := hashSequence([]string{"a", "b"})
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	h3 := hashSequence([]string{"a", "c"})
	assert.NotEqual(t, h1, h3)
}

func TestHashSequence_IsInvariantUnderPermutation(t *testing.T) {
	forward := hashSequence([]string{"src/go", "test/go", "api/go"})
	reversed := hashSequence([]string{"api/go", "test/go", "src/go"})
	assert.Equal(t, forward, reversed)
}

func TestGeneralizeFilename_RecognizesWellKnownEntrypoints(t *testing.T) {
	assert.Equal(t, "main_entry", generalizeFilename("main.go"))
	assert.Equal(t, "lib_entry", generalizeFilename("lib.rs"))
	assert.Equal(t, "module_index", generalizeFilename("__init__.py"))
	assert.Equal(t, "config_file", generalizeFilename("settings.yaml"))
	assert.Equal(t, "file.json", generalizeFilename("data.json"))
}

func TestClassifyDirectory_MatchesKnownTypes(t *testing.T) {
	assert.Equal(t, "test", classifyDirectory([]string{"project", "tests", "auth_test.go"}))
	assert.Equal(t, "api", classifyDirectory([]string{"project", "api", "routes.go"}))
	assert.Equal(t, "other", classifyDirectory([]string{"project", "weird", "thing.go"}))
}
