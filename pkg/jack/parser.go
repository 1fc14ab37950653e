package jack

import (
	"fmt"
	"io"
	"strconv"

	"n2t.dev/toolchain/pkg/vm"
)

// ----------------------------------------------------------------------------
// Jack Parser

// The Parser is a recursive-descent parser that doubles as the code generator: each
// grammar production consumes tokens, updates the scope table and emits 'vm.Operation'
// values directly, in syntax-directed order. No separate AST materializes, matching the
// single-pass model the Jack grammar's mutual recursion (expression/term, nested blocks)
// calls for, unlike the flat VM/Hack-assembly grammars which a parser combinator handles.
type Parser struct {
	stream    *TokenStream
	scopes    *ScopeTable
	class     string
	info      ClassInfo // this class's own signatures, from a lightweight pre-scan
	typecheck bool
	useStdlib bool
	errors    []error
	labelSeq  uint
}

// Builds a Parser over one compilation unit (one Jack class file).
//
// A lightweight pre-scan ('ScanSignatures') runs up front to collect this class' own
// subroutine arities; it never gates the real parse below, it only feeds the optional
// '--typecheck' arity checks. 'useStdlib' additionally folds 'StandardLibraryABI' into
// those arity checks for calls qualified on an external (non-local) class; it has no
// effect unless 'typecheck' is also set, and never gates codegen either way.
func NewParser(r io.Reader, typecheck, useStdlib bool) (*Parser, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read source: %w", err)
	}
	source := string(content)

	stream, err := NewTokenStream(source)
	if err != nil {
		return nil, fmt.Errorf("error tokenizing source: %w", err)
	}

	info, err := ScanSignatures(source)
	if err != nil {
		return nil, fmt.Errorf("error scanning class signature: %w", err)
	}

	return &Parser{stream: stream, scopes: &ScopeTable{}, info: info, class: info.Name, typecheck: typecheck, useStdlib: useStdlib}, nil
}

// Parses the whole class and returns the VM module (one function declaration plus
// body per subroutine) it compiles to.
func (p *Parser) Parse() (vm.Module, error) {
	if _, err := p.stream.Expect(Keyword, "class"); err != nil {
		return nil, err
	}
	nameTok, err := p.stream.Expect(Identifier, "")
	if err != nil {
		return nil, err
	}
	p.class = nameTok.Value

	p.scopes.PushClassScope(p.class)
	defer p.scopes.PopClassScope()

	if _, err := p.stream.Expect(SymbolTokenType, "{"); err != nil {
		return nil, err
	}

	module := vm.Module{}
	for !p.stream.AtSymbol("}") {
		switch {
		case p.stream.AtKeyword("static"), p.stream.AtKeyword("field"):
			if err := p.parseClassVarDec(); err != nil {
				return nil, fmt.Errorf("error parsing class var declaration: %w", err)
			}

		case p.stream.AtKeyword("constructor"), p.stream.AtKeyword("function"), p.stream.AtKeyword("method"):
			ops, err := p.parseSubroutineDec()
			if err != nil {
				return nil, fmt.Errorf("error parsing subroutine declaration: %w", err)
			}
			module = append(module, ops...)

		default:
			token, _ := p.stream.Peek()
			return nil, fmt.Errorf("line %d: unexpected token %q in class body", token.Line, token.Value)
		}
	}
	if _, err := p.stream.Expect(SymbolTokenType, "}"); err != nil {
		return nil, err
	}

	if p.typecheck && len(p.errors) > 0 {
		return nil, fmt.Errorf("typecheck found %d issue(s), first: %w", len(p.errors), p.errors[0])
	}

	return module, nil
}

// ----------------------------------------------------------------------------
// Declarations

func (p *Parser) parseClassVarDec() error {
	kindTok, _ := p.stream.Advance()
	varType := Static
	if kindTok.Value == "field" {
		varType = Field
	}

	dataType, className, err := parseSubroutineDataType(p.stream)
	if err != nil {
		return err
	}

	for {
		identTok, err := p.stream.Expect(Identifier, "")
		if err != nil {
			return err
		}

		p.checkDuplicateDecl(varType, identTok.Value)
		p.scopes.RegisterVariable(Variable{Name: identTok.Value, Type: varType, DataType: dataType, ClassName: className})

		if p.stream.AtSymbol(",") {
			p.stream.Advance()
			continue
		}
		break
	}

	_, err = p.stream.Expect(SymbolTokenType, ";")
	return err
}

func (p *Parser) parseVarDec() error {
	if _, err := p.stream.Expect(Keyword, "var"); err != nil {
		return err
	}

	dataType, className, err := parseSubroutineDataType(p.stream)
	if err != nil {
		return err
	}

	for {
		identTok, err := p.stream.Expect(Identifier, "")
		if err != nil {
			return err
		}

		p.checkDuplicateDecl(Local, identTok.Value)
		p.scopes.RegisterVariable(Variable{Name: identTok.Value, Type: Local, DataType: dataType, ClassName: className})

		if p.stream.AtSymbol(",") {
			p.stream.Advance()
			continue
		}
		break
	}

	_, err = p.stream.Expect(SymbolTokenType, ";")
	return err
}

func (p *Parser) parseSubroutineDec() ([]vm.Operation, error) {
	kindTok, _ := p.stream.Advance()
	kind := SubroutineType(kindTok.Value)

	if _, _, err := parseSubroutineDataType(p.stream); err != nil {
		return nil, err // Return type is parsed and discarded, no check uses it
	}

	nameTok, err := p.stream.Expect(Identifier, "")
	if err != nil {
		return nil, err
	}
	subName := nameTok.Value

	p.scopes.PushSubRoutineScope(subName)
	defer p.scopes.PopSubroutineScope()

	// The 'this' pointer is received as the (implicit) first argument of every method,
	// it is registered with an empty name since it is never referenced by that slot.
	if kind == Method {
		p.scopes.RegisterVariable(Variable{Name: "", Type: Parameter, DataType: Object, ClassName: p.class})
	}

	if _, err := p.stream.Expect(SymbolTokenType, "("); err != nil {
		return nil, err
	}
	if err := p.parseParameterList(); err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ")"); err != nil {
		return nil, err
	}

	if _, err := p.stream.Expect(SymbolTokenType, "{"); err != nil {
		return nil, err
	}
	for p.stream.AtKeyword("var") {
		if err := p.parseVarDec(); err != nil {
			return nil, fmt.Errorf("error parsing local var declaration: %w", err)
		}
	}

	body, err := p.parseStatements()
	if err != nil {
		return nil, fmt.Errorf("error parsing subroutine body: %w", err)
	}
	if _, err := p.stream.Expect(SymbolTokenType, "}"); err != nil {
		return nil, err
	}

	fDecl := vm.FuncDecl{
		Name:   fmt.Sprintf("%s.%s", p.class, subName),
		NLocal: uint8(len(p.scopes.local.entries.Elements())),
	}

	switch kind {
	case Constructor:
		// By convention the constructor allocates its own instance memory, one word per field.
		prelude := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(len(p.scopes.field.entries.Elements()))},
			vm.FuncCallOp{Name: "Memory.alloc", NArgs: 1},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0},
		}
		return append(append([]vm.Operation{fDecl}, prelude...), body...), nil

	case Method:
		// The caller pushes the object instance as argument 0; bind 'this' to it.
		prelude := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Argument, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0},
		}
		return append(append([]vm.Operation{fDecl}, prelude...), body...), nil

	default:
		return append([]vm.Operation{fDecl}, body...), nil
	}
}

func (p *Parser) parseParameterList() error {
	nArgs := 0
	for !p.stream.AtSymbol(")") {
		if nArgs > 0 {
			if _, err := p.stream.Expect(SymbolTokenType, ","); err != nil {
				return err
			}
		}

		dataType, className, err := parseSubroutineDataType(p.stream)
		if err != nil {
			return err
		}
		identTok, err := p.stream.Expect(Identifier, "")
		if err != nil {
			return err
		}

		p.checkDuplicateDecl(Parameter, identTok.Value)
		p.scopes.RegisterVariable(Variable{Name: identTok.Value, Type: Parameter, DataType: dataType, ClassName: className})
		nArgs++
	}

	return nil
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) parseStatements() ([]vm.Operation, error) {
	ops := []vm.Operation{}

	for {
		var stmtOps []vm.Operation
		var err error

		switch {
		case p.stream.AtKeyword("let"):
			stmtOps, err = p.parseLet()
		case p.stream.AtKeyword("if"):
			stmtOps, err = p.parseIf()
		case p.stream.AtKeyword("while"):
			stmtOps, err = p.parseWhile()
		case p.stream.AtKeyword("do"):
			stmtOps, err = p.parseDo()
		case p.stream.AtKeyword("return"):
			stmtOps, err = p.parseReturn()
		default:
			return ops, nil
		}

		if err != nil {
			return nil, err
		}
		ops = append(ops, stmtOps...)
	}
}

func (p *Parser) parseLet() ([]vm.Operation, error) {
	if _, err := p.stream.Expect(Keyword, "let"); err != nil {
		return nil, err
	}
	nameTok, err := p.stream.Expect(Identifier, "")
	if err != nil {
		return nil, err
	}

	if p.stream.AtSymbol("[") {
		p.stream.Advance()

		baseOps, err := p.parseVarRef(nameTok.Value)
		if err != nil {
			return nil, err
		}
		indexOps, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.stream.Expect(SymbolTokenType, "]"); err != nil {
			return nil, err
		}
		if _, err := p.stream.Expect(SymbolTokenType, "="); err != nil {
			return nil, err
		}
		rhsOps, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.stream.Expect(SymbolTokenType, ";"); err != nil {
			return nil, err
		}

		refOps := append(append(indexOps, baseOps...), vm.ArithmeticOp{Operation: vm.Add})
		writeOps := []vm.Operation{
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1},
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.That, Offset: 0},
		}
		return append(append(refOps, rhsOps...), writeOps...), nil
	}

	if _, err := p.stream.Expect(SymbolTokenType, "="); err != nil {
		return nil, err
	}
	rhsOps, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ";"); err != nil {
		return nil, err
	}

	offset, variable, err := p.scopes.ResolveVariable(nameTok.Value)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", nameTok.Line, err)
	}
	segment, err := segmentFor(variable.Type)
	if err != nil {
		return nil, err
	}

	return append(rhsOps, vm.MemoryOp{Operation: vm.Pop, Segment: segment, Offset: offset}), nil
}

func (p *Parser) parseIf() ([]vm.Operation, error) {
	if _, err := p.stream.Expect(Keyword, "if"); err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ")"); err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "{"); err != nil {
		return nil, err
	}
	thenOps, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "}"); err != nil {
		return nil, err
	}

	var elseOps []vm.Operation
	if p.stream.AtKeyword("else") {
		p.stream.Advance()
		if _, err := p.stream.Expect(SymbolTokenType, "{"); err != nil {
			return nil, err
		}
		elseOps, err = p.parseStatements()
		if err != nil {
			return nil, err
		}
		if _, err := p.stream.Expect(SymbolTokenType, "}"); err != nil {
			return nil, err
		}
	}

	if len(elseOps) == 0 {
		endLabel := p.nextLabel("IF_END")
		ops := append(cond, vm.ArithmeticOp{Operation: vm.Not}, vm.GotoOp{Jump: vm.Conditional, Label: endLabel})
		ops = append(ops, thenOps...)
		ops = append(ops, vm.LabelDecl{Name: endLabel})
		return ops, nil
	}

	elseLabel, endLabel := p.nextLabel("IF_ELSE"), p.nextLabel("IF_END")
	ops := append(cond, vm.ArithmeticOp{Operation: vm.Not}, vm.GotoOp{Jump: vm.Conditional, Label: elseLabel})
	ops = append(ops, thenOps...)
	ops = append(ops, vm.GotoOp{Jump: vm.Unconditional, Label: endLabel}, vm.LabelDecl{Name: elseLabel})
	ops = append(ops, elseOps...)
	ops = append(ops, vm.LabelDecl{Name: endLabel})
	return ops, nil
}

func (p *Parser) parseWhile() ([]vm.Operation, error) {
	if _, err := p.stream.Expect(Keyword, "while"); err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ")"); err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "{"); err != nil {
		return nil, err
	}
	body, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, "}"); err != nil {
		return nil, err
	}

	start, end := p.nextLabel("WHILE_START"), p.nextLabel("WHILE_END")

	ops := []vm.Operation{vm.LabelDecl{Name: start}}
	ops = append(ops, cond...)
	ops = append(ops, vm.ArithmeticOp{Operation: vm.Not}, vm.GotoOp{Jump: vm.Conditional, Label: end})
	ops = append(ops, body...)
	ops = append(ops, vm.GotoOp{Jump: vm.Unconditional, Label: start}, vm.LabelDecl{Name: end})
	return ops, nil
}

func (p *Parser) parseDo() ([]vm.Operation, error) {
	if _, err := p.stream.Expect(Keyword, "do"); err != nil {
		return nil, err
	}
	ops, err := p.parseSubroutineCall()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ";"); err != nil {
		return nil, err
	}
	// 'do' ignores whatever the call returned, so discard the stack's top.
	return append(ops, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0}), nil
}

func (p *Parser) parseReturn() ([]vm.Operation, error) {
	if _, err := p.stream.Expect(Keyword, "return"); err != nil {
		return nil, err
	}

	if p.stream.AtSymbol(";") {
		p.stream.Advance()
		return []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0},
			vm.ReturnOp{},
		}, nil
	}

	ops, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ";"); err != nil {
		return nil, err
	}
	return append(ops, vm.ReturnOp{}), nil
}

// ----------------------------------------------------------------------------
// Expressions

var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

func (p *Parser) parseExpression() ([]vm.Operation, error) {
	ops, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		token, ok := p.stream.Peek()
		if !ok || token.Type != SymbolTokenType {
			break
		}
		exprType, isOp := binaryOps[token.Value]
		if !isOp {
			break
		}
		p.stream.Advance()

		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs...)
		ops = append(ops, binaryOpCode(exprType))
	}

	return ops, nil
}

func binaryOpCode(t ExprType) vm.Operation {
	switch t {
	case Plus:
		return vm.ArithmeticOp{Operation: vm.Add}
	case Minus:
		return vm.ArithmeticOp{Operation: vm.Sub}
	case Divide:
		return vm.FuncCallOp{Name: "Math.divide", NArgs: 2}
	case Multiply:
		return vm.FuncCallOp{Name: "Math.multiply", NArgs: 2}
	case BoolOr:
		return vm.ArithmeticOp{Operation: vm.Or}
	case BoolAnd:
		return vm.ArithmeticOp{Operation: vm.And}
	case Equal:
		return vm.ArithmeticOp{Operation: vm.Eq}
	case LessThan:
		return vm.ArithmeticOp{Operation: vm.Lt}
	case GreatThan:
		return vm.ArithmeticOp{Operation: vm.Gt}
	default:
		return nil
	}
}

func (p *Parser) parseTerm() ([]vm.Operation, error) {
	token, ok := p.stream.Peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of input while parsing expression term")
	}

	switch {
	case token.Type == IntegerConstant:
		p.stream.Advance()
		value, err := strconv.ParseUint(token.Value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid integer literal %q: %w", token.Line, token.Value, err)
		}
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(value)}}, nil

	case token.Type == StringConstant:
		p.stream.Advance()
		ops := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(len(token.Value))},
			vm.FuncCallOp{Name: "String.new", NArgs: 1},
		}
		for _, char := range token.Value {
			ops = append(ops,
				vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(char)},
				vm.FuncCallOp{Name: "String.appendChar", NArgs: 2},
			)
		}
		return ops, nil

	case token.Type == Keyword && token.Value == "true":
		p.stream.Advance()
		return []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0},
			vm.ArithmeticOp{Operation: vm.Not},
		}, nil

	case token.Type == Keyword && (token.Value == "false" || token.Value == "null"):
		p.stream.Advance()
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0}}, nil

	case token.Type == Keyword && token.Value == "this":
		p.stream.Advance()
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0}}, nil

	case token.Type == SymbolTokenType && token.Value == "(":
		p.stream.Advance()
		ops, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.stream.Expect(SymbolTokenType, ")"); err != nil {
			return nil, err
		}
		return ops, nil

	case token.Type == SymbolTokenType && (token.Value == "-" || token.Value == "~"):
		p.stream.Advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if token.Value == "-" {
			return append(rhs, vm.ArithmeticOp{Operation: vm.Neg}), nil
		}
		return append(rhs, vm.ArithmeticOp{Operation: vm.Not}), nil

	case token.Type == Identifier:
		p.stream.Advance()
		name := token.Value

		if p.stream.AtSymbol("[") {
			p.stream.Advance()

			baseOps, err := p.parseVarRef(name)
			if err != nil {
				return nil, err
			}
			indexOps, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.stream.Expect(SymbolTokenType, "]"); err != nil {
				return nil, err
			}

			ops := append(append(indexOps, baseOps...), vm.ArithmeticOp{Operation: vm.Add})
			ops = append(ops, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1})
			ops = append(ops, vm.MemoryOp{Operation: vm.Push, Segment: vm.That, Offset: 0})
			return ops, nil
		}

		if p.stream.AtSymbol("(") || p.stream.AtSymbol(".") {
			return p.parseSubroutineCallFrom(name)
		}

		return p.parseVarRef(name)

	default:
		return nil, fmt.Errorf("line %d: unexpected token %q while parsing expression term", token.Line, token.Value)
	}
}

// Pushes the current value of a variable (or 'this') onto the stack.
func (p *Parser) parseVarRef(name string) ([]vm.Operation, error) {
	if name == "this" {
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0}}, nil
	}

	offset, variable, err := p.scopes.ResolveVariable(name)
	if err != nil {
		return nil, fmt.Errorf("undeclared variable '%s': %w", name, err)
	}
	segment, err := segmentFor(variable.Type)
	if err != nil {
		return nil, err
	}
	return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: segment, Offset: offset}}, nil
}

func (p *Parser) parseSubroutineCall() ([]vm.Operation, error) {
	nameTok, err := p.stream.Expect(Identifier, "")
	if err != nil {
		return nil, err
	}
	return p.parseSubroutineCallFrom(nameTok.Value)
}

// Resolves a subroutine call by syntax alone, per the nand2tetris 'term' table: no
// lookup of the callee's own class is required, only whether the identifier before the
// dot (if any) happens to be a variable currently in scope.
func (p *Parser) parseSubroutineCallFrom(first string) ([]vm.Operation, error) {
	callee, method := first, ""
	if p.stream.AtSymbol(".") {
		p.stream.Advance()
		methodTok, err := p.stream.Expect(Identifier, "")
		if err != nil {
			return nil, err
		}
		method = methodTok.Value
	}

	if _, err := p.stream.Expect(SymbolTokenType, "("); err != nil {
		return nil, err
	}
	nArgs, argOps, err := p.parseExpressionList()
	if err != nil {
		return nil, err
	}
	if _, err := p.stream.Expect(SymbolTokenType, ")"); err != nil {
		return nil, err
	}

	// Unqualified call: always an instance method on the current object.
	if method == "" {
		p.checkArity(p.class, callee, nArgs)
		fName := fmt.Sprintf("%s.%s", p.class, callee)
		thisArg := []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0}}
		return append(append(thisArg, argOps...), vm.FuncCallOp{Name: fName, NArgs: uint8(nArgs + 1)}), nil
	}

	// Qualified call where the callee resolves to an in-scope object variable: a method call.
	if offset, variable, err := p.scopes.ResolveVariable(callee); err == nil {
		if variable.DataType != Object {
			return nil, fmt.Errorf("'%s' is not an object, cannot call method '%s' on it", callee, method)
		}
		segment, err := segmentFor(variable.Type)
		if err != nil {
			return nil, err
		}

		p.checkArity(variable.ClassName, method, nArgs)
		fName := fmt.Sprintf("%s.%s", variable.ClassName, method)
		thisArg := []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: segment, Offset: offset}}
		return append(append(thisArg, argOps...), vm.FuncCallOp{Name: fName, NArgs: uint8(nArgs + 1)}), nil
	}

	// Otherwise the callee names a class: a static function or constructor call.
	p.checkArity(callee, method, nArgs)
	fName := fmt.Sprintf("%s.%s", callee, method)
	return append(argOps, vm.FuncCallOp{Name: fName, NArgs: uint8(nArgs)}), nil
}

func (p *Parser) parseExpressionList() (int, []vm.Operation, error) {
	ops := []vm.Operation{}
	count := 0

	for !p.stream.AtSymbol(")") {
		if count > 0 {
			if _, err := p.stream.Expect(SymbolTokenType, ","); err != nil {
				return 0, nil, err
			}
		}

		exprOps, err := p.parseExpression()
		if err != nil {
			return 0, nil, err
		}
		ops = append(ops, exprOps...)
		count++
	}

	return count, ops, nil
}

// ----------------------------------------------------------------------------
// Helpers

func segmentFor(t VarType) (vm.SegmentType, error) {
	switch t {
	case Local:
		return vm.Local, nil
	case Parameter:
		return vm.Argument, nil
	case Field:
		return vm.This, nil
	case Static:
		return vm.Static, nil
	default:
		return "", fmt.Errorf("variable kind %q has no codegen segment", t)
	}
}

func (p *Parser) nextLabel(purpose string) string {
	p.labelSeq++
	return fmt.Sprintf("%s.%d.%s", p.class, p.labelSeq, purpose)
}

// Flags a duplicate declaration within the same scope, only surfaced through '--typecheck'.
func (p *Parser) checkDuplicateDecl(kind VarType, name string) {
	if !p.typecheck {
		return
	}

	var entries []Variable
	switch kind {
	case Local:
		entries = p.scopes.local.entries.Elements()
	case Field:
		entries = p.scopes.field.entries.Elements()
	case Parameter:
		entries = p.scopes.parameter.entries.Elements()
	case Static:
		entries = p.scopes.static.Elements()
	}

	for _, entry := range entries {
		if entry.Name == name {
			p.errors = append(p.errors, fmt.Errorf("duplicate declaration of '%s' in %s scope", name, kind))
			return
		}
	}
}

// Flags an argument-count mismatch against a known signature, only surfaced through
// '--typecheck'. Unknown callees (any class outside this file and the stdlib ABI) are
// never flagged, since this repo has no cross-file program model.
func (p *Parser) checkArity(class, method string, nArgs int) {
	if !p.typecheck {
		return
	}

	if class == p.class {
		if sig, ok := p.info.Subroutines[method]; ok && sig.NumArg != nArgs {
			p.errors = append(p.errors, fmt.Errorf("'%s.%s' expects %d argument(s), got %d", class, method, sig.NumArg, nArgs))
		}
		return
	}

	if !p.useStdlib {
		return
	}

	if info, ok := StandardLibraryABI[class]; ok {
		if sig, ok := info.Subroutines[method]; ok && sig.NumArg != nArgs {
			p.errors = append(p.errors, fmt.Errorf("'%s.%s' expects %d argument(s), got %d", class, method, sig.NumArg, nArgs))
		}
	}
}
