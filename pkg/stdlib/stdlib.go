// Package stdlib implements Lucy's minimum builtin library surface
// (spec §6.3): stdio, convert, table, type, and assert, each exposed as a
// *value.Table of *value.ExtendFunction entries, grounded on libs/io.py,
// libs/convert.py, and libs/table.py.
package stdlib

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"lucy/pkg/lucyerr"
	"lucy/pkg/token"
	"lucy/pkg/value"
)

var zeroLoc token.Location

func extend(name string, paramsNum int, fn func(args []value.Value) (value.Value, error)) *value.ExtendFunction {
	return &value.ExtendFunction{Name: name, ParamsNum: paramsNum, Fn: fn}
}

// method wraps fn as a dotted-namespace entry (stdio.print, convert.int,
// table.keys, ...): the self-passing call convention (spec §3.3.1/§4.3)
// means every `module.fn(args...)` call arrives here with the module
// table itself prepended as args[0], so method declares one more
// parameter than fn actually uses and strips that receiver before
// delegating.
func method(name string, paramsNum int, fn func(args []value.Value) (value.Value, error)) *value.ExtendFunction {
	return &value.ExtendFunction{Name: name, ParamsNum: paramsNum + 1, Fn: func(args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return nil, argErr(name, paramsNum+1, len(args))
		}
		return fn(args[1:])
	}}
}

func argErr(name string, want, got int) error {
	return lucyerr.New(lucyerr.ExtendFunctionError, zeroLoc, "%s expects %d argument(s), got %d", name, want, got)
}

// Libs returns the full set of builtin library tables, keyed by the dotted
// path scripts use in `import`/`from … import` statements.
func Libs(stdout, stdin *os.File) map[string]*value.Table {
	return map[string]*value.Table{
		"stdio":   stdioLib(stdout, stdin),
		"convert": convertLib(),
		"table":   tableLib(),
	}
}

// Builtins returns the always-available ambient namespace (spec §6.3):
// `type` and `assert`, consulted after the global frame for any
// unqualified name, never requiring an import. Unlike the dotted library
// tables, these are called bare (`type(x)`, never `x.type()`), so they
// carry their literal declared arity with no self receiver to strip.
func Builtins() *value.Table {
	tbl := value.NewTable()
	tbl.Set(value.String("type"), extend("type", 1, builtinType))
	tbl.Set(value.String("assert"), extend("assert", 1, builtinAssert))
	return tbl
}

func builtinType(args []value.Value) (value.Value, error) {
	return value.String(args[0].Kind()), nil
}

func builtinAssert(args []value.Value) (value.Value, error) {
	if value.Truthy(args[0]) {
		return value.Null{}, nil
	}
	return nil, lucyerr.New(lucyerr.AssertError, zeroLoc, "assertion failed")
}

func stdioLib(stdout, stdin *os.File) *value.Table {
	tbl := value.NewTable()
	writer := bufio.NewWriter(stdout)
	reader := bufio.NewReader(stdin)

	tbl.Set(value.String("print"), method("print", 1, func(args []value.Value) (value.Value, error) {
		fmt.Fprint(writer, args[0].Inspect())
		writer.Flush()
		return value.Null{}, nil
	}))
	tbl.Set(value.String("println"), method("println", 1, func(args []value.Value) (value.Value, error) {
		fmt.Fprintln(writer, args[0].Inspect())
		writer.Flush()
		return value.Null{}, nil
	}))
	tbl.Set(value.String("input"), method("input", 0, func(args []value.Value) (value.Value, error) {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return value.Null{}, nil
		}
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		return value.String(line), nil
	}))
	return tbl
}

func convertLib() *value.Table {
	tbl := value.NewTable()
	tbl.Set(value.String("bool"), method("bool", 1, func(args []value.Value) (value.Value, error) {
		return value.Bool(value.Truthy(args[0])), nil
	}))
	tbl.Set(value.String("int"), method("int", 1, func(args []value.Value) (value.Value, error) {
		switch v := args[0].(type) {
		case value.Int:
			return v, nil
		case value.Float:
			return value.Int(int64(v)), nil
		case value.String:
			n, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "cannot convert %q to int", string(v))
			}
			return value.Int(n), nil
		case value.Bool:
			if v {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		default:
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "cannot convert a %s value to int", args[0].Kind())
		}
	}))
	tbl.Set(value.String("float"), method("float", 1, func(args []value.Value) (value.Value, error) {
		switch v := args[0].(type) {
		case value.Float:
			return v, nil
		case value.Int:
			return value.Float(v), nil
		case value.String:
			f, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "cannot convert %q to float", string(v))
			}
			return value.Float(f), nil
		default:
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "cannot convert a %s value to float", args[0].Kind())
		}
	}))
	tbl.Set(value.String("string"), method("string", 1, func(args []value.Value) (value.Value, error) {
		return value.String(args[0].Inspect()), nil
	}))
	return tbl
}

// tableLib exposes raw, metamethod-free table operations: callers that want
// to inspect or mutate a table without triggering its own __getattr__ /
// __setattr__ overloads go through here, matching libs/table.py's
// raw_get/raw_set/keys/values.
func tableLib() *value.Table {
	tbl := value.NewTable()
	tbl.Set(value.String("raw_get"), method("raw_get", 2, func(args []value.Value) (value.Value, error) {
		t, key, err := tableAndKey("raw_get", args)
		if err != nil {
			return nil, err
		}
		if v, ok := t.RawGet(key); ok {
			return v, nil
		}
		return value.Null{}, nil
	}))
	tbl.Set(value.String("raw_set"), method("raw_set", 3, func(args []value.Value) (value.Value, error) {
		t, ok := args[0].(*value.Table)
		if !ok {
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "raw_set expects a table")
		}
		t.Set(args[1], args[2])
		return value.Null{}, nil
	}))
	tbl.Set(value.String("raw_len"), method("raw_len", 1, func(args []value.Value) (value.Value, error) {
		t, ok := args[0].(*value.Table)
		if !ok {
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "raw_len expects a table")
		}
		return value.Int(t.Len()), nil
	}))
	tbl.Set(value.String("keys"), method("keys", 1, func(args []value.Value) (value.Value, error) {
		t, ok := args[0].(*value.Table)
		if !ok {
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "keys expects a table")
		}
		return newKeyValueIterator(t.Keys()), nil
	}))
	tbl.Set(value.String("values"), method("values", 1, func(args []value.Value) (value.Value, error) {
		t, ok := args[0].(*value.Table)
		if !ok {
			return nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "values expects a table")
		}
		vals := make([]value.Value, 0, t.Len())
		for _, k := range t.Keys() {
			v, _ := t.RawGet(k)
			vals = append(vals, v)
		}
		return newKeyValueIterator(vals), nil
	}))
	return tbl
}

func tableAndKey(name string, args []value.Value) (*value.Table, value.Value, error) {
	t, ok := args[0].(*value.Table)
	if !ok {
		return nil, nil, lucyerr.New(lucyerr.TypeError, zeroLoc, "%s expects a table", name)
	}
	return t, args[1], nil
}

// newKeyValueIterator wraps a fixed slice as a zero-argument iterator
// closure compatible with the FOR protocol: each call yields the next
// element, then Null forever after.
func newKeyValueIterator(items []value.Value) *value.ExtendFunction {
	i := 0
	return extend("iterator", 0, func(args []value.Value) (value.Value, error) {
		if i >= len(items) {
			return value.Null{}, nil
		}
		v := items[i]
		i++
		return v, nil
	})
}
