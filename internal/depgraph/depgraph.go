// Package depgraph implements the dependency-map compiler helper
// (spec.md §6): given one or more absolute entry files, it returns the
// deduplicated set of absolute paths of every locally-imported file
// reachable from those entries. It has no runtime-plugin equivalent in
// this repo; it exists standalone because the build pipeline's
// reproducibility depends on its contract, independent of anything the
// plugin runtime does at request time.
package depgraph

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

// resolvableExtensions lists the extensions resolution tries, in order,
// when a specifier has no extension of its own.
var resolvableExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs", ".json"}

const vendoredDir = "node_modules"

// Options configures Resolve.
type Options struct {
	// Exclude lists absolute paths never to visit or include in the
	// result, even if reachable from an entry.
	Exclude []string
	// SkipTypeOnlyDependencies, when true, ignores imports/re-exports
	// whose every named specifier — or whose whole declaration — is
	// marked type-only.
	SkipTypeOnlyDependencies bool
}

// Resolve walks the local-import graph reachable from entries and
// returns the deduplicated, sorted set of absolute paths found —
// excluding the entries themselves, anything in opts.Exclude, and
// anything resolved under a vendored-modules directory.
func Resolve(entries []string, opts Options) ([]string, *rterrors.Error) {
	for _, e := range entries {
		if !filepath.IsAbs(e) {
			return nil, rterrors.New(rterrors.Validation, "depgraph: entry path is not absolute: "+e)
		}
	}

	visited := map[string]bool{}
	excluded := map[string]bool{}
	for _, e := range entries {
		visited[filepath.Clean(e)] = true
	}
	for _, x := range opts.Exclude {
		c := filepath.Clean(x)
		visited[c] = true
		excluded[c] = true
	}

	var result []string
	queue := append([]string{}, entries...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		content, err := os.ReadFile(current)
		if err != nil {
			// Non-existent (or otherwise unreadable) file: silently skipped.
			continue
		}

		for _, spec := range extractSpecifiers(string(content), opts.SkipTypeOnlyDependencies) {
			resolved, ok := resolveSpecifier(current, spec)
			if !ok {
				continue // resolution failure: specifier skipped
			}
			if visited[resolved] {
				continue
			}
			visited[resolved] = true
			if !excluded[resolved] {
				result = append(result, resolved)
			}
			queue = append(queue, resolved)
		}
	}

	sort.Strings(result)
	return result, nil
}

var (
	reImportTypeFull  = regexp.MustCompile(`import\s+type\s+[^'";]*?from\s*["']([^"']+)["']`)
	reImportNamed     = regexp.MustCompile(`import\s+(?:[\w$]+\s*,\s*)?\{([^}]*)\}\s*from\s*["']([^"']+)["']`)
	reImportDefaultNS = regexp.MustCompile(`import\s+(?:[\w$]+|\*\s+as\s+[\w$]+)\s*from\s*["']([^"']+)["']`)
	reImportSideFx    = regexp.MustCompile(`import\s*["']([^"']+)["']`)
	reExportStarFull  = regexp.MustCompile(`export\s+type\s+\*\s*(?:as\s+[\w$]+\s*)?from\s*["']([^"']+)["']`)
	reExportStar      = regexp.MustCompile(`export\s+\*\s*(?:as\s+[\w$]+\s*)?from\s*["']([^"']+)["']`)
	reExportNamed     = regexp.MustCompile(`export\s+\{([^}]*)\}\s*from\s*["']([^"']+)["']`)
	reExportNamedFull = regexp.MustCompile(`export\s+type\s+\{([^}]*)\}\s*from\s*["']([^"']+)["']`)
	reDynamicImport   = regexp.MustCompile(`import\s*\(\s*["']([^"']+)["']\s*\)`)
	reRequireCall     = regexp.MustCompile(`require(?:\.resolve)?\s*\(\s*["']([^"']+)["']\s*\)`)
)

// extractSpecifiers tolerantly scans file content for every import/
// re-export/require specifier, applying the type-only skip rule when
// requested. "Tolerant" means regex-based rather than a full parse: a
// malformed file simply yields fewer (never wrong) specifiers, matching
// the "parse failure ⇒ file skipped" edge case at the granularity of
// whatever the regexes do manage to find.
func extractSpecifiers(content string, skipTypeOnly bool) []string {
	var specs []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			specs = append(specs, s)
		}
	}

	typeOnlyFull := map[string]bool{}
	for _, m := range reImportTypeFull.FindAllStringSubmatch(content, -1) {
		typeOnlyFull[m[1]] = true
	}
	for _, m := range reExportStarFull.FindAllStringSubmatch(content, -1) {
		typeOnlyFull[m[1]] = true
	}
	for _, m := range reExportNamedFull.FindAllStringSubmatch(content, -1) {
		typeOnlyFull[m[2]] = true
	}

	if !skipTypeOnly {
		for spec := range typeOnlyFull {
			add(spec)
		}
	}

	for _, m := range reImportNamed.FindAllStringSubmatch(content, -1) {
		named, spec := m[1], m[2]
		if skipTypeOnly && allNamedAreTypeOnly(named) {
			continue
		}
		add(spec)
	}
	for _, m := range reImportDefaultNS.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range reImportSideFx.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range reExportStar.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range reExportNamed.FindAllStringSubmatch(content, -1) {
		named, spec := m[1], m[2]
		if skipTypeOnly && allNamedAreTypeOnly(named) {
			continue
		}
		add(spec)
	}
	for _, m := range reDynamicImport.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range reRequireCall.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}

	return specs
}

// allNamedAreTypeOnly reports whether every entry in a `{ ... }` named
// import/export list is individually marked `type`, e.g.
// "type A, type B as C".
func allNamedAreTypeOnly(named string) bool {
	parts := strings.Split(named, ",")
	any := false
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		any = true
		if !strings.HasPrefix(p, "type ") && !strings.HasPrefix(p, "type\t") {
			return false
		}
	}
	return any
}

// resolveSpecifier resolves a relative import specifier against the
// importing file's directory. Bare (non-relative) specifiers are
// treated as vendored-module references and always fail resolution.
// Relative specifiers that land under a vendored-modules directory are
// rejected by fileExists, which special-cases the vendoredDir segment.
func resolveSpecifier(importer, spec string) (string, bool) {
	if !strings.HasPrefix(spec, ".") {
		return "", false
	}

	base := filepath.Join(filepath.Dir(importer), filepath.FromSlash(spec))

	if hasResolvableExtension(base) {
		if fileExists(base) {
			return filepath.Clean(base), true
		}
		return "", false
	}

	for _, ext := range resolvableExtensions {
		candidate := base + ext
		if fileExists(candidate) {
			return filepath.Clean(candidate), true
		}
	}
	for _, ext := range resolvableExtensions {
		candidate := filepath.Join(base, "index"+ext)
		if fileExists(candidate) {
			return filepath.Clean(candidate), true
		}
	}
	return "", false
}

func hasResolvableExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range resolvableExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	if strings.Contains(filepath.ToSlash(path), "/"+vendoredDir+"/") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
