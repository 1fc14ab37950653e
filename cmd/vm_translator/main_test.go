package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}
}

func TestVMTranslatorSingleFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "SimpleAdd.vm")
	writeFixture(t, input, strings.Join([]string{
		"push constant 7",
		"push constant 8",
		"add",
	}, "\n"))

	if status := Handler([]string{input}, nil); status != 0 {
		t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
	}

	out, err := os.ReadFile(filepath.Join(dir, "SimpleAdd.asm"))
	if err != nil {
		t.Fatalf("error reading output file: %v", err)
	}
	asm := string(out)

	// A single-file translation never carries the bootstrap prologue.
	if strings.Contains(asm, "Sys.init") {
		t.Errorf("single-file translation should not include the bootstrap call, got:\n%s", asm)
	}
	// Every translated program must still end in the trailing infinite loop.
	if !strings.Contains(asm, "(INF)") {
		t.Errorf("expected a trailing (INF) infinite loop, got:\n%s", asm)
	}
	if got, want := strings.Count(asm, "@SP"), 4; got < want {
		t.Errorf("expected at least %d stack-pointer references for two pushes and an add, got %d", want, got)
	}
}

func TestVMTranslatorDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "Program")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("unable to create fixture dir: %v", err)
	}

	writeFixture(t, filepath.Join(sub, "Main.vm"), strings.Join([]string{
		"function Main.main 0",
		"push constant 42",
		"call Sys.init 0",
		"return",
	}, "\n"))
	writeFixture(t, filepath.Join(sub, "Sys.vm"), strings.Join([]string{
		"function Sys.init 0",
		"push constant 0",
		"return",
	}, "\n"))

	if status := Handler([]string{sub}, nil); status != 0 {
		t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
	}

	outPath := filepath.Join(sub, "Program.asm")
	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("error reading output file: %v", err)
	}
	asm := string(out)

	// A directory translation always opens with the bootstrap: SP=256 then a synthetic
	// call to Sys.init.
	if !strings.HasPrefix(strings.TrimSpace(asm), "@"+strconv.Itoa(256)) {
		t.Errorf("expected bootstrap to set SP=256 as the first instruction, got:\n%s", asm)
	}
	if !strings.Contains(asm, "(INF)") {
		t.Errorf("expected a trailing (INF) infinite loop, got:\n%s", asm)
	}
}

func TestVMTranslatorRejectsMalformedSource(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Bad.vm")
	writeFixture(t, input, "this is not a valid vm command")

	if status := Handler([]string{input}, nil); status == 0 {
		t.Fatalf("expected a nonzero exit status for malformed input")
	}
}
