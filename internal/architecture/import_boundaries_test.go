package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "lakegov"

// moduleRoot is the repository root relative to this package.
const moduleRoot = "../.."

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

var rules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/app",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
			modulePath + "/internal/middleware",
			modulePath + "/internal/metrics",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "domain may only import domain",
	},
	{
		sourcePrefix: modulePath + "/internal/service",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/app",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "service should depend on domain, metrics and service-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/api",
		forbidden: []string{
			modulePath + "/internal/app",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "api should depend on service/domain/middleware packages",
	},
	{
		sourcePrefix: modulePath + "/internal/db",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "db should depend on domain and db-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/engine",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "engine should depend on domain, source and engine-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/source",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/cmd",
			modulePath + "/pkg/cli",
		},
		hint: "source should depend on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden: []string{
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
		},
		hint: "middleware should depend on domain and middleware-local packages",
	},
	{
		sourcePrefix: modulePath + "/pkg/cli",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/app",
			modulePath + "/internal/service",
			modulePath + "/internal/db",
			modulePath + "/internal/engine",
			modulePath + "/internal/source",
		},
		hint: "the CLI talks to the server over HTTP and may only share domain types",
	},
}

var allowedViolations = map[string]map[string]string{
	modulePath + "/internal/service/contract": {
		modulePath + "/internal/engine": "governance: contract validation reuses engine identifier rules so table names are always quotable",
	},
}

func TestImportBoundaries(t *testing.T) {
	files := goSourceFiles(t)
	require.NotEmpty(t, files, "no Go sources found under %s", moduleRoot)

	violations := make([]string, 0)
	fset := token.NewFileSet()

	for _, file := range files {
		sourcePkg := packageImportPath(file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		parsed, parseErr := parser.ParseFile(fset, filepath.Join(moduleRoot, file), nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", file)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			if isAllowedViolation(sourcePkg, importPath) {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					"governance: "+sourcePkg+" imports "+importPath+" via "+file+"; allowed direction: "+rule.hint,
				)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

func TestAllowedViolationsAreStillNeeded(t *testing.T) {
	fset := token.NewFileSet()
	used := make(map[string]bool)
	for _, file := range goSourceFiles(t) {
		sourcePkg := packageImportPath(file)
		if _, ok := allowedViolations[sourcePkg]; !ok {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(moduleRoot, file), nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if isAllowedViolation(sourcePkg, importPath) {
				used[sourcePkg+" -> "+importPath] = true
			}
		}
	}
	for src, targets := range allowedViolations {
		for target := range targets {
			require.Truef(t, used[src+" -> "+target], "stale allowed violation %s -> %s", src, target)
		}
	}
}

// goSourceFiles returns non-test Go files under internal/ and pkg/,
// relative to the module root with forward slashes.
func goSourceFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	for _, top := range []string{"internal", "pkg"} {
		root := filepath.Join(moduleRoot, top)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || shouldSkipFile(path) {
				return nil
			}
			rel, err := filepath.Rel(moduleRoot, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		require.NoError(t, err)
	}
	return files
}

func shouldSkipFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "_test.go") {
		return true
	}
	if strings.HasSuffix(base, ".gen.go") || strings.HasSuffix(base, "_gen.go") {
		return true
	}
	return false
}

func packageImportPath(file string) string {
	return modulePath + "/" + filepath.ToSlash(filepath.Dir(file))
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range rules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func violatesRule(importPath string, forbidden []string) bool {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func isAllowedViolation(sourcePkg string, importPath string) bool {
	allowedBySource, ok := allowedViolations[sourcePkg]
	if !ok {
		return false
	}
	_, ok = allowedBySource[importPath]
	return ok
}

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}
