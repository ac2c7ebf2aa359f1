package vm

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"lucy/pkg/compiler"
	"lucy/pkg/lucyerr"
	"lucy/pkg/parser"
	"lucy/pkg/token"
	"lucy/pkg/value"
)

// Importer resolves a dotted IMPORT path (spec §4.9) to a Value: the first
// segment names a built-in library or a sibling .lucy file's exports table,
// and any remaining segments are ordinary Table-indexed member lookups on
// that table, so the final result need not be a table itself. Resolved
// filesystem modules are cached by a blake2b-256 hash of their canonical
// absolute path, so re-importing the same file twice (directly or
// transitively) runs its top level exactly once.
type Importer struct {
	BaseDir  string
	Libs     map[string]*value.Table
	Builtins *value.Table

	cache map[string]*value.Table
}

func NewImporter(baseDir string, libs map[string]*value.Table, builtins *value.Table) *Importer {
	return &Importer{BaseDir: baseDir, Libs: libs, Builtins: builtins, cache: make(map[string]*value.Table)}
}

// Resolve implements spec §4.9: only the first dotted segment names a
// built-in library or a filesystem-resolvable package (file
// `<dir>/<segment>.lucy`); every remaining segment is a plain Table-indexed
// lookup on the value resolved so far, not another path component (matching
// `lvm.py:204-223`'s `temp[0]` / `for i in temp[1:]: value = value[i]`
// split — `import a.b.c` never opens `a/b/c.lucy`).
func (imp *Importer) Resolve(dottedPath string) (value.Value, error) {
	segments := strings.Split(dottedPath, ".")

	head, err := imp.resolveHead(segments[0])
	if err != nil {
		return nil, err
	}

	var current value.Value = head
	for _, seg := range segments[1:] {
		tbl, ok := current.(*value.Table)
		if !ok {
			return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "cannot find %q in %s: not a table", seg, dottedPath)
		}
		v, ok := tbl.Get(value.String(seg))
		if !ok {
			return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "cannot find %q in %s", seg, dottedPath)
		}
		if _, isNull := v.(value.Null); isNull {
			return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "cannot find %q in %s", seg, dottedPath)
		}
		current = v
	}
	return current, nil
}

// resolveHead resolves the first dotted segment alone: a built-in library
// by name, or a sibling `<segment>.lucy` file compiled and run in its own
// child VM, with resolved-path caching so re-importing the same file
// (directly or transitively) runs its top level exactly once.
func (imp *Importer) resolveHead(name string) (*value.Table, error) {
	if lib, ok := imp.Libs[name]; ok {
		return lib, nil
	}

	absPath, err := filepath.Abs(filepath.Join(imp.BaseDir, name+".lucy"))
	if err != nil {
		return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "resolving %s: %v", name, err)
	}

	key := cacheKey(absPath)
	if cached, ok := imp.cache[key]; ok {
		return cached, nil
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "cannot find module %q (%s): %v", name, absPath, err)
	}

	prog, err := parseAndCompile(string(source))
	if err != nil {
		return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "compiling module %q: %v", name, err)
	}

	child := New(prog, NewImporter(filepath.Dir(absPath), imp.Libs, imp.Builtins))
	child.importer.cache = imp.cache // share the cache across the whole import graph
	child.SetBuiltins(imp.Builtins)
	if _, err := child.Run(); err != nil {
		return nil, lucyerr.New(lucyerr.ImportError, token.Location{}, "running module %q: %v", name, err)
	}

	exports := child.globalClosure.Variables()
	imp.cache[key] = exports
	return exports, nil
}

func cacheKey(absPath string) string {
	sum := blake2b.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// parseAndCompile is the IMPORT statement's equivalent of the driver's
// source-to-Program pipeline (cmd/lucy), kept here rather than imported
// from a cmd package to avoid a dependency cycle.
func parseAndCompile(source string) (*compiler.Program, error) {
	program, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(program)
}
