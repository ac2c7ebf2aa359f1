package vm

import (
	"os"
	"path/filepath"
	"testing"

	"lucy/pkg/compiler"
	"lucy/pkg/parser"
	"lucy/pkg/stdlib"
	"lucy/pkg/value"
)

func writeModule(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".lucy"), []byte(src), 0o644); err != nil {
		t.Fatalf("writing module %s: %v", name, err)
	}
}

func runSourceIn(t *testing.T, dir, src string) (*VM, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	compiled, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	builtins := stdlib.Builtins()
	machine := New(compiled, NewImporter(dir, nil, builtins))
	machine.SetBuiltins(builtins)
	_, err = machine.Run()
	return machine, err
}

// TestImportResolvesSingleFileThenNestedMemberLookups exercises spec §4.9:
// only the first dotted segment names a file (`a.lucy`); the remaining
// segments are Table-indexed lookups on its exports, not further path
// components (there is deliberately no a/b.lucy on disk here).
func TestImportResolvesSingleFileThenNestedMemberLookups(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a", `
b = {"c": 0};
b["c"] = 42;
`)
	m, err := runSourceIn(t, dir, `
import a.b.c;
result = c;
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := globalInt(t, m, "result"); got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
}

func TestImportMissingNestedSegmentIsImportError(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a", `b = {"c": 1};`)
	_, err := runSourceIn(t, dir, `import a.missing;`)
	if err == nil {
		t.Fatal("expected an IMPORT_ERROR for a missing nested segment, got nil")
	}
}

func TestFromImportPullsNamedMembers(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "mathx", `
add = func(a, b) { return a + b; };
PI = 3;
`)
	m, err := runSourceIn(t, dir, `
from mathx import add, PI as three;
result = add(three, 4);
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := globalInt(t, m, "result"); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
}

func TestImportStarSkipsUnderscorePrefixedNames(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "priv", `
public_value = 1;
_private_value = 2;
`)
	m, err := runSourceIn(t, dir, `from priv import *;`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	vars := m.globalClosure.Variables()
	if _, ok := vars.RawGet(value.String("public_value")); !ok {
		t.Fatal("expected public_value to be bound by import *")
	}
	if _, ok := vars.RawGet(value.String("_private_value")); ok {
		t.Fatal("_private_value must not leak in from import *, per spec §4.9")
	}
}
