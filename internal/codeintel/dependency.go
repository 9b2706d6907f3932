package codeintel

import (
	"strings"

	"mira/internal/model"
)

// classifyDependency applies spec.md §4.6's path-prefix heuristics to
// classify one import/use statement per language.
func classifyDependency(language, importPath string) model.DependencyKind {
	switch language {
	case "go":
		if strings.Contains(importPath, ".") {
			return model.DependencyLocalImport
		}
		switch strings.Split(importPath, "/")[0] {
		case "archive", "bufio", "bytes", "cmp", "compress", "container", "context", "crypto",
			"database", "debug", "embed", "encoding", "errors", "expvar", "flag", "fmt", "go",
			"hash", "html", "image", "index", "io", "iter", "log", "maps", "math", "mime", "net",
			"os", "path", "plugin", "reflect", "regexp", "runtime", "slices", "sort", "strconv",
			"strings", "structs", "sync", "syscall", "testing", "text", "time", "unicode",
			"unique", "unsafe", "weak":
			return model.DependencyStdlib
		}
		return model.DependencyLocalImport

	case "python":
		if strings.HasPrefix(importPath, ".") {
			return model.DependencyLocalImport
		}
		if isPythonStdlib(importPath) {
			return model.DependencyStdlib
		}
		return model.DependencyUnknown

	case "javascript", "typescript":
		if strings.HasPrefix(importPath, ".") || strings.HasPrefix(importPath, "/") {
			return model.DependencyLocalImport
		}
		return model.DependencyNpmPackage

	case "rust":
		switch strings.Split(importPath, "::")[0] {
		case "self", "super", "crate":
			return model.DependencyLocalImport
		case "std", "core", "alloc":
			return model.DependencyStdlib
		default:
			return model.DependencySystemCrate
		}
	}
	return model.DependencyUnknown
}

// pythonStdlibModules covers the common top-level standard library
// packages; anything else not dotted-relative is treated as unknown
// rather than guessed into a package registry that may not apply.
var pythonStdlibModules = map[string]bool{
	"os": true, "sys": true, "json": true, "re": true, "time": true,
	"datetime": true, "collections": true, "itertools": true, "typing": true,
	"pathlib": true, "subprocess": true, "logging": true, "asyncio": true,
	"functools": true, "dataclasses": true, "unittest": true, "math": true,
	"io": true, "threading": true, "socket": true, "http": true,
}

func isPythonStdlib(importPath string) bool {
	root := strings.Split(importPath, ".")[0]
	return pythonStdlibModules[root]
}
