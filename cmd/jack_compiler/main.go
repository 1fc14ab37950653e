package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"n2t.dev/toolchain/pkg/jack"
	"n2t.dev/toolchain/pkg/vm"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The Jack Compiler compiles programs (composed of multiple classes/files) written in
the Jack language into VM modules that can be further elaborated. The Jack language
is a higher-level OOP language tailored for use with the Hack computer architecture.
`, "\n", " ")

var JackCompiler = cli.New(Description).
	WithArg(cli.NewArg("input", "The source (.jack) file or directory to be compiled").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("stdlib", "Folds the built-in Jack OS ABI into --typecheck's arity checks").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("typecheck", "Does a duplicate-declaration/arity check of source code before emitting any output").
		WithType(cli.TypeBool)).
	WithAction(Handler)

// moduleName strips the directory and extension off a .jack path, e.g. "src/Main.jack" -> "Main".
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	_, typecheck := options["typecheck"]
	_, useStdlib := options["stdlib"]

	// Translation Units: every '.jack' file reachable from the input path, walked in
	// directory-iteration order (a single file is its own, one-element walk).
	var TUs []string
	if err := filepath.Walk(args[0], func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".jack" {
			return nil
		}
		TUs = append(TUs, path)
		return nil
	}); err != nil {
		fmt.Printf("ERROR: Unable to walk input path: %s\n", err)
		return -1
	}

	program := vm.Program{}
	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		parser, err := jack.NewParser(bytes.NewReader(content), typecheck, useStdlib)
		if err != nil {
			fmt.Printf("ERROR: Unable to initialize parser for '%s': %s\n", tu, err)
			return -1
		}

		module, err := parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to compile '%s': %s\n", tu, err)
			return -1
		}

		program[moduleName(tu)] = module
	}

	codegen := vm.NewCodeGenerator(program)
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	for _, tu := range TUs {
		lines, ok := compiled[moduleName(tu)]
		if !ok {
			fmt.Printf("ERROR: Unable to emit compiled output for class file '%s'\n", tu)
			return -1
		}

		if err := writeVM(strings.TrimSuffix(tu, filepath.Ext(tu))+".vm", lines); err != nil {
			fmt.Printf("ERROR: Unable to write output file: %s\n", err)
			return -1
		}
	}

	return 0
}

func writeVM(path string, lines []string) error {
	output, err := os.Create(path)
	if err != nil {
		return err
	}
	defer output.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintf(output, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
