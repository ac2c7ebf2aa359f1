// Command lucy is Lucy's combined run/build/exec driver (spec
// §6.5), grounded on the teacher's cmd/flowa/main.go and cmd/flowac/main.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"lucy/pkg/compiler"
	"lucy/pkg/parser"
	"lucy/pkg/serialize"
	"lucy/pkg/stdlib"
	"lucy/pkg/value"
	"lucy/pkg/vm"
)

func main() {
	// .lucy.env is optional; godotenv.Load silently no-ops past this if the
	// file is absent, matching the teacher's "don't error if it doesn't
	// exist" .env convention (cmd/flowa/main.go), but via the library the
	// teacher's go.mod already requires instead of a hand-rolled scanner.
	_ = godotenv.Load(".lucy.env")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "build":
		buildCmd(os.Args[2:])
	case "exec":
		execCmd(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Lucy — a small dynamic scripting language")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lucy run <file.lucy>                compile + execute")
	fmt.Println("  lucy build <file.lucy> -o out.json   compile only, dump bytecode")
	fmt.Println("  lucy exec <out.json>                 load a dumped program and execute it")
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lucy run <file.lucy>")
		os.Exit(1)
	}
	filename := fs.Arg(0)

	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	prog, err := compileSource(string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}

	if err := execute(prog, filepath.Dir(filename)); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
}

func buildCmd(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("o", "", "output bytecode file")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lucy build <file.lucy> -o out.json")
		os.Exit(1)
	}
	filename := fs.Arg(0)
	// flag stops at the first non-flag argument; parse what follows the
	// file name too, so `build <file.lucy> -o out.json` honours -o.
	fs.Parse(fs.Args()[1:])

	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	prog, err := compileSource(string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}

	data, err := serialize.Dump(prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Serialization error: %v\n", err)
		os.Exit(1)
	}

	outPath := *out
	if outPath == "" {
		outPath = filename[:len(filename)-len(filepath.Ext(filename))] + ".json"
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
}

func execCmd(args []string) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lucy exec <out.json>")
		os.Exit(1)
	}
	filename := fs.Arg(0)

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	extendByName := extendResolver()
	prog, err := serialize.Load(data, extendByName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}

	if err := execute(prog, filepath.Dir(filename)); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
}

func compileSource(source string) (*compiler.Program, error) {
	program, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(program)
}

// extendResolver flattens every stdlib library table's ExtendFunctions
// into one by-name lookup, so a dumped bytecode file's extend_argument
// literals (spec §6.4) rebind to the live Go builtins that produced them.
func extendResolver() func(name string) (*value.ExtendFunction, bool) {
	index := map[string]*value.ExtendFunction{}
	for _, lib := range stdlib.Libs(os.Stdout, os.Stdin) {
		for _, key := range lib.Keys() {
			if fn, ok := lib.RawGet(key); ok {
				if ext, ok := fn.(*value.ExtendFunction); ok {
					index[ext.Name] = ext
				}
			}
		}
	}
	builtins := stdlib.Builtins()
	for _, key := range builtins.Keys() {
		if fn, ok := builtins.RawGet(key); ok {
			if ext, ok := fn.(*value.ExtendFunction); ok {
				index[ext.Name] = ext
			}
		}
	}
	return func(name string) (*value.ExtendFunction, bool) {
		fn, ok := index[name]
		return fn, ok
	}
}

func execute(prog *compiler.Program, baseDir string) error {
	libs := stdlib.Libs(os.Stdout, os.Stdin)
	builtins := stdlib.Builtins()
	if path := os.Getenv("LUCY_PATH"); path != "" {
		baseDir = path
	}
	importer := vm.NewImporter(baseDir, libs, builtins)
	machine := vm.New(prog, importer)
	machine.SetBuiltins(builtins)
	_, err := machine.Run()
	return err
}
