package depgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Scenario 4 — dependency map with cycle.
func TestResolveDependencyCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import { B } from "./b";`)
	b := writeFile(t, dir, "b.ts", `import { A } from "./a";`)

	result, err := Resolve([]string{a}, Options{})
	require.Nil(t, err)
	require.Equal(t, []string{filepath.Clean(b)}, result)
}

// Scenario 5 — dependency map with type-only skip.
func TestResolveSkipsTypeOnlyDependencies(t *testing.T) {
	dir := t.TempDir()
	x := writeFile(t, dir, "x.ts", `import type {T} from "./types"; import {u} from "./u";`)
	writeFile(t, dir, "types.ts", `export type T = string;`)
	u := writeFile(t, dir, "u.ts", `export const u = 1;`)

	result, err := Resolve([]string{x}, Options{SkipTypeOnlyDependencies: true})
	require.Nil(t, err)
	require.Equal(t, []string{filepath.Clean(u)}, result)
}

func TestResolveKeepsTypeOnlyWhenFlagIsFalse(t *testing.T) {
	dir := t.TempDir()
	x := writeFile(t, dir, "x.ts", `import type {T} from "./types"; import {u} from "./u";`)
	types := writeFile(t, dir, "types.ts", `export type T = string;`)
	u := writeFile(t, dir, "u.ts", `export const u = 1;`)

	result, err := Resolve([]string{x}, Options{SkipTypeOnlyDependencies: false})
	require.Nil(t, err)
	require.ElementsMatch(t, []string{filepath.Clean(types), filepath.Clean(u)}, result)
}

func TestResolveRejectsRelativeEntryPath(t *testing.T) {
	_, err := Resolve([]string{"relative/a.ts"}, Options{})
	require.NotNil(t, err)
	require.Equal(t, rterrors.Validation, err.Code)
}

func TestResolveSkipsMissingFileSilently(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import { Gone } from "./gone"; import { B } from "./b";`)
	b := writeFile(t, dir, "b.ts", `export const B = 1;`)

	result, err := Resolve([]string{a}, Options{})
	require.Nil(t, err)
	require.Equal(t, []string{filepath.Clean(b)}, result)
}

func TestResolveExcludesVendoredDirectory(t *testing.T) {
	dir := t.TempDir()
	vendorDir := filepath.Join(dir, "node_modules", "dep")
	require.NoError(t, os.MkdirAll(vendorDir, 0o755))
	writeFile(t, vendorDir, "index.ts", `export const dep = 1;`)

	a := writeFile(t, dir, "a.ts", `import { dep } from "./node_modules/dep";`)

	result, err := Resolve([]string{a}, Options{})
	require.Nil(t, err)
	require.Empty(t, result)
}

func TestResolveHonorsExcludeList(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import { B } from "./b"; import { C } from "./c";`)
	writeFile(t, dir, "b.ts", `export const B = 1;`)
	c := writeFile(t, dir, "c.ts", `export const C = 1;`)

	result, err := Resolve([]string{a}, Options{Exclude: []string{filepath.Join(dir, "b.ts")}})
	require.Nil(t, err)
	require.Equal(t, []string{filepath.Clean(c)}, result)
}

func TestResolveHandlesDynamicImportAndRequire(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `
const mod = await import("./dynamic");
const legacy = require("./legacy");
const resolved = require.resolve("./legacy2");
`)
	dyn := writeFile(t, dir, "dynamic.ts", `export default 1;`)
	legacy := writeFile(t, dir, "legacy.js", `module.exports = 1;`)
	legacy2 := writeFile(t, dir, "legacy2.js", `module.exports = 2;`)

	result, err := Resolve([]string{a}, Options{})
	require.Nil(t, err)
	require.ElementsMatch(t, []string{filepath.Clean(dyn), filepath.Clean(legacy), filepath.Clean(legacy2)}, result)
}

func TestResolveResolvesDirectoryIndexAndJSON(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import pkg from "./sub"; import cfg from "./config.json";`)
	idx := writeFile(t, dir, "sub/index.ts", `export default 1;`)
	cfg := writeFile(t, dir, "config.json", `{"k": 1}`)

	result, err := Resolve([]string{a}, Options{})
	require.Nil(t, err)
	require.ElementsMatch(t, []string{filepath.Clean(idx), filepath.Clean(cfg)}, result)
}
