package vm

import (
	"testing"

	"lucy/pkg/compiler"
	"lucy/pkg/parser"
	"lucy/pkg/stdlib"
)

func compileBenchSource(b *testing.B, src string) *compiler.Program {
	b.Helper()
	program, err := parser.Parse(src)
	if err != nil {
		b.Fatal(err)
	}
	prog, err := compiler.Compile(program)
	if err != nil {
		b.Fatal(err)
	}
	return prog
}

func BenchmarkVMAddition(b *testing.B) {
	prog := compileBenchSource(b, `
x = 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5 + 5;
`)
	builtins := stdlib.Builtins()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine := New(prog, NewImporter(".", nil, builtins))
		machine.SetBuiltins(builtins)
		if _, err := machine.Run(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVMComparison(b *testing.B) {
	prog := compileBenchSource(b, `x = 1 < 2;`)
	builtins := stdlib.Builtins()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine := New(prog, NewImporter(".", nil, builtins))
		machine.SetBuiltins(builtins)
		if _, err := machine.Run(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVMFunctionCall(b *testing.B) {
	prog := compileBenchSource(b, `
add = func(a, b) { return a + b; };
x = add(1, 2);
`)
	builtins := stdlib.Builtins()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine := New(prog, NewImporter(".", nil, builtins))
		machine.SetBuiltins(builtins)
		if _, err := machine.Run(); err != nil {
			b.Fatal(err)
		}
	}
}
