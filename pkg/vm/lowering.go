package vm

import (
	"fmt"
	"sort"
	"strings"

	"n2t.dev/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one or more parsed modules) and produces its
// 'asm.Program' counterpart.
//
// Unlike the Asm lowerer (which converts a single translation unit) this one
// has to track state across the whole program: the currently active module/function (used
// to scope labels and the 'static' segment) and a monotonic counter used to mint unique
// labels for comparison operations and call-site return addresses.
type Lowerer struct {
	program Program

	currentModule   string
	currentFunction string
	labelCounter    uint
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process, one module at a time in sorted (deterministic) order.
// Every module is lowered independently but all generated labels are globally unique
// thanks to the shared 'labelCounter'.
func (l *Lowerer) Lowerer() (asm.Program, error) {
	if len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty")
	}

	modules := make([]string, 0, len(l.program))
	for name := range l.program {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	program := asm.Program{}
	for _, name := range modules {
		l.currentModule = strings.TrimSuffix(name, ".vm")

		for _, operation := range l.program[name] {
			converted, err := l.HandleOperation(operation)
			if err != nil {
				return nil, err
			}
			program = append(program, converted...)
		}
	}

	return program, nil
}

// Dispatches a single 'vm.Operation' to its specialized handler based on its concrete type.
func (l *Lowerer) HandleOperation(operation Operation) ([]asm.Instruction, error) {
	switch op := operation.(type) {
	case MemoryOp:
		return l.HandleMemoryOp(op)
	case ArithmeticOp:
		return l.HandleArithmeticOp(op)
	case LabelDecl:
		return l.HandleLabelDecl(op)
	case GotoOp:
		return l.HandleGotoOp(op)
	case FuncDecl:
		return l.HandleFuncDecl(op)
	case FuncCallOp:
		return l.HandleFuncCallOp(op)
	case ReturnOp:
		return l.HandleReturnOp(op)
	default:
		return nil, fmt.Errorf("unrecognized operation '%T'", operation)
	}
}

// ----------------------------------------------------------------------------
// Memory segments

// Resolves a (segment, offset) pair to the instructions that leave the effective
// address of that cell in the A register, ready for a following 'D=M'/'M=D'.
func (l *Lowerer) resolveAddress(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	switch segment {
	case Local:
		return []asm.Instruction{asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"}}, nil
	case Argument:
		return []asm.Instruction{asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"}}, nil
	case This:
		return []asm.Instruction{asm.AInstruction{Location: "THIS"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"}}, nil
	case That:
		return []asm.Instruction{asm.AInstruction{Location: "THAT"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"}}, nil
	case Temp:
		if offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", offset)
		}
		return []asm.Instruction{asm.AInstruction{Location: fmt.Sprint(5 + offset)}}, nil
	case Pointer:
		if offset > 1 {
			return nil, fmt.Errorf("invalid 'pointer' offset, got %d", offset)
		}
		name := "THIS"
		if offset == 1 {
			name = "THAT"
		}
		return []asm.Instruction{asm.AInstruction{Location: name}}, nil
	case Static:
		return []asm.Instruction{asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.currentModule, offset)}}, nil
	default:
		return nil, fmt.Errorf("segment '%s' has no addressable location", segment)
	}
}

// Specialized function to convert a 'vm.MemoryOp' to its 'asm.Instruction' sequence.
func (l *Lowerer) HandleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	if op.Operation == Push && op.Segment == Constant {
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil
	}

	address, err := l.resolveAddress(op.Segment, op.Offset)
	if err != nil {
		return nil, err
	}

	switch op.Operation {
	case Push:
		program := append(address, asm.CInstruction{Dest: "D", Comp: "M"})
		return append(program,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Pop:
		// Stash the target address in R13 before touching D with the popped value.
		program := append(address, asm.CInstruction{Dest: "D", Comp: "A"})
		program = append(program, asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"})
		program = append(program,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		)
		return program, nil

	default:
		return nil, fmt.Errorf("unrecognized OperationType '%s'", op.Operation)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic & logic ops

// Mints a fresh, program-wide unique label suffix. Shared by comparisons and calls.
func (l *Lowerer) nextLabel(purpose string) string {
	l.labelCounter++
	return fmt.Sprintf("%s$%s.%d", l.currentModule, purpose, l.labelCounter)
}

// Specialized function to convert a 'vm.ArithmeticOp' to its 'asm.Instruction' sequence.
func (l *Lowerer) HandleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Neg, Not:
		comp := "-M"
		if op.Operation == Not {
			comp = "!M"
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil

	case Add, Sub, And, Or:
		comp := map[ArithOpType]string{Add: "D+M", Sub: "M-D", And: "D&M", Or: "D|M"}[op.Operation]
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil

	case Eq, Gt, Lt:
		jump := map[ArithOpType]string{Eq: "JEQ", Gt: "JGT", Lt: "JLT"}[op.Operation]
		trueLabel, endLabel := l.nextLabel("cmp_true"), l.nextLabel("cmp_end")

		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M-D"},
			asm.AInstruction{Location: trueLabel},
			asm.CInstruction{Comp: "D", Jump: jump},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: endLabel},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
			asm.LabelDecl{Name: trueLabel},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "-1"},
			asm.LabelDecl{Name: endLabel},
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized ArithOpType '%s'", op.Operation)
	}
}

// ----------------------------------------------------------------------------
// Flow control

func (l *Lowerer) qualify(label string) string {
	if l.currentFunction == "" {
		return fmt.Sprintf("%s$%s", l.currentModule, label)
	}
	return fmt.Sprintf("%s$%s", l.currentFunction, label)
}

// Specialized function to convert a 'vm.LabelDecl' to its 'asm.Instruction' sequence.
func (l *Lowerer) HandleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty label declaration")
	}
	return []asm.Instruction{asm.LabelDecl{Name: l.qualify(op.Name)}}, nil
}

// Specialized function to convert a 'vm.GotoOp' to its 'asm.Instruction' sequence.
func (l *Lowerer) HandleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to produce empty jump label")
	}

	target := l.qualify(op.Label)
	if op.Jump == Unconditional {
		return []asm.Instruction{asm.AInstruction{Location: target}, asm.CInstruction{Comp: "0", Jump: "JMP"}}, nil
	}

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: target},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	}, nil
}

// ----------------------------------------------------------------------------
// Functions: declaration, call and return protocol

// Specialized function to convert a 'vm.FuncDecl' to its 'asm.Instruction' sequence.
// Emits the function label followed by 'NLocal' pushes of the constant 0, one per local slot.
func (l *Lowerer) HandleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function declaration")
	}
	l.currentFunction = op.Name

	program := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	for i := uint8(0); i < op.NLocal; i++ {
		program = append(program,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "0"},
		)
	}
	return program, nil
}

// pushD appends instructions to push the D register onto the stack.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

// Specialized function to convert a 'vm.FuncCallOp' to its 'asm.Instruction' sequence.
// Implements the standard 5-word call frame: return address, LCL, ARG, THIS, THAT,
// followed by repositioning ARG/LCL for the callee and jumping to it.
func (l *Lowerer) HandleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function call")
	}

	returnLabel := l.nextLabel("return_address")
	program := []asm.Instruction{asm.AInstruction{Location: returnLabel}, asm.CInstruction{Dest: "D", Comp: "A"}}
	program = append(program, pushD()...)

	for _, saved := range []string{"LCL", "ARG", "THIS", "THAT"} {
		program = append(program, asm.AInstruction{Location: saved}, asm.CInstruction{Dest: "D", Comp: "M"})
		program = append(program, pushD()...)
	}

	// ARG = SP - 5 - NArgs
	program = append(program,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(5 + int(op.NArgs))},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// LCL = SP
	program = append(program,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// goto callee, plant the return label right after
	program = append(program,
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	)

	return program, nil
}

// Specialized function to convert a 'vm.ReturnOp' to its 'asm.Instruction' sequence.
// Saves LCL in R13 as the "frame" pointer, recovers the return address via frame-5 (into R14,
// before the return value overwrites ARG 0), repositions SP, restores THAT/THIS/ARG/LCL from the
// frame and jumps back to the caller.
func (l *Lowerer) HandleReturnOp(op ReturnOp) ([]asm.Instruction, error) {
	frameMinus := func(offset int) []asm.Instruction {
		return []asm.Instruction{
			asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)}, asm.CInstruction{Dest: "A", Comp: "D-A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}
	}

	program := []asm.Instruction{
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
	program = append(program, frameMinus(5)...)
	program = append(program, asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "M", Comp: "D"})

	// *ARG = return value (currently on top of the stack)
	program = append(program,
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// SP = ARG + 1
	program = append(program,
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	)

	restores := []struct {
		name   string
		offset int
	}{{"THAT", 1}, {"THIS", 2}, {"ARG", 3}, {"LCL", 4}}
	for _, r := range restores {
		program = append(program, frameMinus(r.offset)...)
		program = append(program, asm.AInstruction{Location: r.name}, asm.CInstruction{Dest: "M", Comp: "D"})
	}

	program = append(program,
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
	return program, nil
}

// Bootstrap returns the prologue that must open a multi-file program: sets SP to 256
// and performs the equivalent of "call Sys.init 0".
func Bootstrap() ([]asm.Instruction, error) {
	l := Lowerer{currentModule: "Bootstrap"}
	program := []asm.Instruction{
		asm.AInstruction{Location: "256"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}

	call, err := l.HandleFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})
	if err != nil {
		return nil, err
	}
	return append(program, call...), nil
}
