// Command lucy-tokens prints the token stream for a Lucy source file,
// one lexer.NextToken() call per line, mirroring the teacher's
// cmd/debug_tokens one-file-per-stage layout.
package main

import (
	"fmt"
	"os"

	"lucy/pkg/lexer"
	"lucy/pkg/token"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lucy-tokens <file.lucy>")
		os.Exit(1)
	}

	content, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	l := lexer.New(string(content))
	for {
		tok, err := l.NextToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lex error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-20s %-20q (line %d, col %d)\n", tok.Kind, tok.Value, tok.Start.Line, tok.Start.Column)
		if tok.Kind == token.EOF {
			break
		}
	}
}
