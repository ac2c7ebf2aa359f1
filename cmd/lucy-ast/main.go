// Command lucy-ast parses a Lucy source file and prints its AST,
// mirroring the teacher's cmd/debug_parser one-file-per-stage layout.
package main

import (
	"fmt"
	"os"

	"lucy/pkg/ast"
	"lucy/pkg/parser"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lucy-ast <file.lucy>")
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

	fmt.Print(ast.Dump(program))
}
