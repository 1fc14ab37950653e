package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHackAssembler(t *testing.T) {
	test := func(source, expected string) {
		dir := t.TempDir()
		input := filepath.Join(dir, "prog.asm")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("unable to write fixture: %v", err)
		}

		status := Handler([]string{input}, nil)
		if status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		got, err := os.ReadFile(filepath.Join(dir, "prog.hack"))
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}
		if strings.TrimSpace(string(got)) != strings.TrimSpace(expected) {
			t.Fatalf("unexpected output:\n got:  %s\n want: %s", got, expected)
		}
	}

	t.Run("Add.asm", func(t *testing.T) {
		source := strings.Join([]string{
			"@2", "D=A", "@3", "D=D+A", "@0", "M=D",
		}, "\n")
		expected := strings.Join([]string{
			fmt.Sprintf("%016b", 2), "1110110000010000",
			fmt.Sprintf("%016b", 3), "1110000010010000",
			fmt.Sprintf("%016b", 0), "1110001100001000",
		}, "\n")
		test(source, expected)
	})

	t.Run("Max.asm with label and variable", func(t *testing.T) {
		source := strings.Join([]string{
			"@R0", "D=M", "@R1", "D=D-M", "@OUTPUT_FIRST", "D;JGT",
			"@R1", "D=M", "@OUTPUT_D", "0;JMP",
			"(OUTPUT_FIRST)", "@R0", "D=M",
			"(OUTPUT_D)", "@counter", "M=D", "@R2", "M=D",
			"(END)", "@END", "0;JMP",
		}, "\n")

		dir := t.TempDir()
		input := filepath.Join(dir, "max.asm")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("unable to write fixture: %v", err)
		}
		if status := Handler([]string{input}, nil); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}
		got, err := os.ReadFile(filepath.Join(dir, "max.hack"))
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(got)), "\n")
		if len(lines) != 18 {
			t.Fatalf("expected 18 emitted instructions, got %d", len(lines))
		}
		for _, line := range lines {
			if len(line) != 16 {
				t.Errorf("expected a 16-bit word, got %q", line)
			}
		}
		// 'counter' is the only undeclared symbol; it must be allocated at RAM[16].
		if lines[12] != fmt.Sprintf("%016b", 16) {
			t.Errorf("expected 'counter' to resolve to address 16, got %s", lines[12])
		}
	})

	t.Run("rejects malformed source", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "bad.asm")
		if err := os.WriteFile(input, []byte("@@@not valid"), 0644); err != nil {
			t.Fatalf("unable to write fixture: %v", err)
		}
		if status := Handler([]string{input}, nil); status == 0 {
			t.Fatalf("expected a nonzero exit status for malformed input")
		}
	})
}
