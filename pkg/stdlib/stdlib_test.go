package stdlib

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"lucy/pkg/value"
)

func callMethod(t *testing.T, lib *value.Table, name string, args ...value.Value) value.Value {
	t.Helper()
	fn, ok := lib.RawGet(value.String(name))
	require.True(t, ok, "%s not found", name)
	ext, ok := fn.(*value.ExtendFunction)
	require.True(t, ok)
	v, err := ext.Fn(args)
	require.NoError(t, err)
	return v
}

func TestConvertNamesMatchSpec(t *testing.T) {
	lib := convertLib()
	for _, name := range []string{"bool", "int", "float", "string"} {
		_, ok := lib.RawGet(value.String(name))
		require.True(t, ok, "convert.%s should exist", name)
	}
	_, hasOldBoolean := lib.RawGet(value.String("boolean"))
	require.False(t, hasOldBoolean)
	_, hasOldInteger := lib.RawGet(value.String("integer"))
	require.False(t, hasOldInteger)
}

func TestConvertIntStripsSelfReceiver(t *testing.T) {
	lib := convertLib()
	// A dotted call `convert.int(x)` arrives here as (module_table, x) per
	// the self-passing convention (spec §3.3.1/§4.3); the wrapper strips
	// the module table before delegating.
	result := callMethod(t, lib, "int", lib, value.String("42"))
	require.Equal(t, value.Int(42), result)
}

func TestTypeAndAssertAreBareArity(t *testing.T) {
	builtins := Builtins()
	typeFn, ok := builtins.RawGet(value.String("type"))
	require.True(t, ok)
	ext := typeFn.(*value.ExtendFunction)
	require.Equal(t, 1, ext.ParamsNum, "type() is called bare, no self to strip")

	v, err := ext.Fn([]value.Value{value.Int(1)})
	require.NoError(t, err)
	require.Equal(t, value.String("int"), v)
}

func TestAssertFailureProducesAssertError(t *testing.T) {
	builtins := Builtins()
	fn, ok := builtins.RawGet(value.String("assert"))
	require.True(t, ok)
	assertFn := fn.(*value.ExtendFunction)
	_, err := assertFn.Fn([]value.Value{value.Bool(false)})
	require.Error(t, err)

	v, err := assertFn.Fn([]value.Value{value.Bool(true)})
	require.NoError(t, err)
	require.Equal(t, value.Null{}, v)
}

func TestStdioPrintWritesInspectedValue(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	lib := stdioLib(w, os.Stdin)
	callMethod(t, lib, "print", lib, value.Int(7))
	w.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, "7", buf.String())
}

func TestTableKeysYieldsIteratorProtocol(t *testing.T) {
	lib := tableLib()
	tbl := value.NewTable()
	tbl.Set(value.String("a"), value.Int(1))
	tbl.Set(value.String("b"), value.Int(2))

	iter := callMethod(t, lib, "keys", lib, tbl)
	ext, ok := iter.(*value.ExtendFunction)
	require.True(t, ok)

	first, err := ext.Fn(nil)
	require.NoError(t, err)
	require.Equal(t, value.String("a"), first)

	second, err := ext.Fn(nil)
	require.NoError(t, err)
	require.Equal(t, value.String("b"), second)

	third, err := ext.Fn(nil)
	require.NoError(t, err)
	require.Equal(t, value.Null{}, third, "iterator yields Null once exhausted")
}
