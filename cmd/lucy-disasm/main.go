// Command lucy-disasm compiles a Lucy source file and prints its flat
// bytecode listing, mirroring the teacher's cmd/debug_bytecode
// one-file-per-stage layout.
package main

import (
	"fmt"
	"os"

	"lucy/pkg/compiler"
	"lucy/pkg/parser"
	"lucy/pkg/value"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lucy-disasm <file.lucy>")
		os.Exit(1)
	}

	content, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	program, err := parser.Parse(string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error: %v\n", err)
		os.Exit(1)
	}

	prog, err := compiler.Compile(program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("entry: %d\n\n", prog.EntryAddr)
	fmt.Println("code:")
	for i, instr := range prog.Code {
		fmt.Printf("%6d  %-22s %d\n", i, instr.Op, instr.Arg)
	}

	fmt.Println("\nconsts:")
	for i, c := range prog.Consts {
		fmt.Printf("%6d  %s\n", i, describeConst(c))
	}

	fmt.Println("\nnames:")
	for i, n := range prog.Names {
		fmt.Printf("%6d  %s\n", i, n)
	}
}

func describeConst(v value.Value) string {
	if fn, ok := v.(*value.Function); ok {
		return fmt.Sprintf("function %s (params=%d closure=%v addr=%d)", fn.Name, fn.ParamsNum, fn.IsClosure, fn.Address)
	}
	return v.Inspect()
}
