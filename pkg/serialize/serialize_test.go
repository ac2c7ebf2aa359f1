package serialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lucy/pkg/compiler"
	"lucy/pkg/parser"
	"lucy/pkg/value"
)

func mustCompile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	program, err := parser.Parse(src)
	require.NoError(t, err)
	prog, err := compiler.Compile(program)
	require.NoError(t, err)
	return prog
}

func TestRoundTripScalarsAndCode(t *testing.T) {
	prog := mustCompile(t, `x = 1 + 2.5;`)
	data, err := Dump(prog)
	require.NoError(t, err)

	loaded, err := Load(data, nil)
	require.NoError(t, err)

	require.Equal(t, len(prog.Code), len(loaded.Code))
	for i := range prog.Code {
		require.Equal(t, prog.Code[i], loaded.Code[i])
	}
	require.Equal(t, prog.Consts, loaded.Consts)
	require.Equal(t, prog.Names, loaded.Names)
	require.Equal(t, prog.EntryAddr, loaded.EntryAddr)
}

func TestRoundTripFunctionLiteral(t *testing.T) {
	prog := mustCompile(t, `f = func(a, b) { return a + b; };`)
	data, err := Dump(prog)
	require.NoError(t, err)

	loaded, err := Load(data, nil)
	require.NoError(t, err)

	var fn *value.Function
	for _, c := range loaded.Consts {
		if f, ok := c.(*value.Function); ok {
			fn = f
		}
	}
	require.NotNil(t, fn, "function literal should round-trip")
	require.Equal(t, 2, fn.ParamsNum)
}

func TestRoundTripGlobalReference(t *testing.T) {
	prog := mustCompile(t, `
counter = func() {
	global total;
	total = total + 1;
};
`)
	data, err := Dump(prog)
	require.NoError(t, err)

	loaded, err := Load(data, nil)
	require.NoError(t, err)
	require.Equal(t, len(prog.Consts), len(loaded.Consts))

	// GLOBAL refers to its name by name-pool index, so the program above
	// carries no global_reference constant; round-trip the sentinel itself.
	raw, err := dumpValue(value.TheGlobalRef)
	require.NoError(t, err)
	ref, err := loadValue(raw, nil)
	require.NoError(t, err)
	require.Equal(t, value.TheGlobalRef, ref)
}

func TestLoadExtendFunctionRequiresResolver(t *testing.T) {
	ext := &value.ExtendFunction{Name: "print", ParamsNum: 2, Fn: func(args []value.Value) (value.Value, error) {
		return value.Null{}, nil
	}}
	data, err := dumpValue(ext)
	require.NoError(t, err)

	_, err = loadValue(data, nil)
	require.Error(t, err, "loading an extend function literal with no resolver must fail")

	fn, err := loadValue(data, func(name string) (*value.ExtendFunction, bool) {
		if name == "print" {
			return ext, true
		}
		return nil, false
	})
	require.NoError(t, err)
	require.Same(t, ext, fn)
}
