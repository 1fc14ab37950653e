package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teris-io/cli"
	"n2t.dev/toolchain/pkg/asm"
	"n2t.dev/toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	WithArg(cli.NewArg("input", "The bytecode (.vm) file or directory to be translated").
		WithType(cli.TypeString)).
	WithAction(Handler)

// moduleName strips the directory and extension off a .vm path, e.g. "src/Main.vm" -> "Main".
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	input := args[0]
	info, err := os.Stat(input)
	if err != nil {
		fmt.Printf("ERROR: Unable to stat input path: %s\n", err)
		return -1
	}

	// A single file translates to its own '.asm' sibling, without a bootstrap prologue
	// (it is not a complete program, just one translation unit of a larger one). A
	// directory is walked in sorted order (spec §5) for '.vm' files, concatenated into
	// one 'vm.Program' and bootstrapped, per spec §6.
	var TUs []string
	bootstrap := info.IsDir()
	if !info.IsDir() {
		TUs = []string{input}
	} else if err := filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".vm" {
			return nil
		}
		TUs = append(TUs, path)
		return nil
	}); err != nil {
		fmt.Printf("ERROR: Unable to walk input path: %s\n", err)
		return -1
	}
	sort.Strings(TUs)

	program := vm.Program{}
	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		parser := vm.NewParser(bytes.NewReader(content))
		module, err := parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass for '%s': %s\n", tu, err)
			return -1
		}

		// 'set_filename_base' equivalent: keys the module by its basename so 'static'
		// segment offsets stay scoped per source file during lowering.
		program[moduleName(tu)] = module
	}

	lowerer := vm.NewLowerer(program)
	asmProgram, err := lowerer.Lowerer()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}

	if bootstrap {
		prologue, err := vm.Bootstrap()
		if err != nil {
			fmt.Printf("ERROR: Unable to generate bootstrap code: %s\n", err)
			return -1
		}
		asmProgram = append(prologue, asmProgram...)
	}

	// Every translated program ends in an infinite loop, so execution never falls off
	// the end of the ROM into whatever garbage instructions follow.
	asmProgram = append(asmProgram,
		asm.LabelDecl{Name: "INF"},
		asm.AInstruction{Location: "INF"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	codegen := asm.NewCodeGenerator(asmProgram)
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	var outPath string
	if info.IsDir() {
		outPath = filepath.Join(input, filepath.Base(filepath.Clean(input))+".asm")
	} else {
		outPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".asm"
	}

	output, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	for _, line := range compiled {
		if _, err := fmt.Fprintf(output, "%s\n", line); err != nil {
			fmt.Printf("ERROR: Unable to write output file: %s\n", err)
			return -1
		}
	}

	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
