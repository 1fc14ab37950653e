package jack

import "fmt"

// ----------------------------------------------------------------------------
// Class signatures

// ClassInfo is a lightweight summary of a class' public surface: just enough to validate
// call arity ahead of time, without materializing a full AST or tree of statements.
//
// It is produced by a shallow pre-scan (see 'ScanSignatures') that 'NewParser' runs over
// the single file it is about to compile, so that 'Parser' can check a call's argument
// count against this class' own subroutines (or the standard library ABI) while it is
// still emitting code for the caller. Other user classes are never scanned.
type ClassInfo struct {
	Name        string
	Subroutines map[string]Signature
}

type Signature struct {
	Kind   SubroutineType
	NumArg int
}

// Walks just the declarations of a class (fields, and subroutine headers) while skipping
// over every subroutine body wholesale (by brace counting), since the body contributes
// nothing to the call-arity table callers need.
func ScanSignatures(source string) (ClassInfo, error) {
	stream, err := NewTokenStream(source)
	if err != nil {
		return ClassInfo{}, fmt.Errorf("error tokenizing source for signature scan: %w", err)
	}

	if _, err := stream.Expect(Keyword, "class"); err != nil {
		return ClassInfo{}, err
	}
	name, err := stream.Expect(Identifier, "")
	if err != nil {
		return ClassInfo{}, err
	}
	if _, err := stream.Expect(SymbolTokenType, "{"); err != nil {
		return ClassInfo{}, err
	}

	info := ClassInfo{Name: name.Value, Subroutines: map[string]Signature{}}

	for !stream.AtSymbol("}") {
		switch {
		case stream.AtKeyword("static"), stream.AtKeyword("field"):
			if err := skipUntilSymbol(stream, ";"); err != nil {
				return ClassInfo{}, err
			}

		case stream.AtKeyword("constructor"), stream.AtKeyword("function"), stream.AtKeyword("method"):
			kindTok, _ := stream.Advance()
			kind := SubroutineType(kindTok.Value)

			if _, _, err := parseSubroutineDataType(stream); err != nil {
				return ClassInfo{}, err
			}
			subName, err := stream.Expect(Identifier, "")
			if err != nil {
				return ClassInfo{}, err
			}
			if _, err := stream.Expect(SymbolTokenType, "("); err != nil {
				return ClassInfo{}, err
			}

			nArgs := 0
			for !stream.AtSymbol(")") {
				if nArgs > 0 {
					if _, err := stream.Expect(SymbolTokenType, ","); err != nil {
						return ClassInfo{}, err
					}
				}
				if _, _, err := parseSubroutineDataType(stream); err != nil {
					return ClassInfo{}, err
				}
				if _, err := stream.Expect(Identifier, ""); err != nil {
					return ClassInfo{}, err
				}
				nArgs++
			}
			if _, err := stream.Expect(SymbolTokenType, ")"); err != nil {
				return ClassInfo{}, err
			}

			if err := skipBalancedBraces(stream); err != nil {
				return ClassInfo{}, err
			}

			info.Subroutines[subName.Value] = Signature{Kind: kind, NumArg: nArgs}

		default:
			token, _ := stream.Peek()
			return ClassInfo{}, fmt.Errorf("line %d: unexpected token %q while scanning class signature", token.Line, token.Value)
		}
	}

	return info, nil
}

// Consumes tokens (a data type, identifier or keyword) until and including the given symbol.
func skipUntilSymbol(stream *TokenStream, symbol string) error {
	for {
		token, ok := stream.Advance()
		if !ok {
			return fmt.Errorf("unexpected end of input, expected %q", symbol)
		}
		if token.Type == SymbolTokenType && token.Value == symbol {
			return nil
		}
	}
}

// Skips a whole '{ ... }' block, counting nested braces (a brace inside a string literal
// arrives as part of a StringConstant token, and only symbol tokens are counted).
func skipBalancedBraces(stream *TokenStream) error {
	if _, err := stream.Expect(SymbolTokenType, "{"); err != nil {
		return err
	}

	depth := 1
	for depth > 0 {
		token, ok := stream.Advance()
		if !ok {
			return fmt.Errorf("unexpected end of input inside subroutine body")
		}
		if token.Type != SymbolTokenType {
			continue
		}
		switch token.Value {
		case "{":
			depth++
		case "}":
			depth--
		}
	}

	return nil
}

// Parses a data type in declaration position ('int' | 'char' | 'boolean' | 'void' | className)
// and returns its DataType along with the class name if it resolves to an object type.
func parseSubroutineDataType(stream *TokenStream) (DataType, string, error) {
	token, ok := stream.Advance()
	if !ok {
		return "", "", fmt.Errorf("unexpected end of input, expected a type")
	}

	switch {
	case token.Type == Keyword && token.Value == "int":
		return Int, "", nil
	case token.Type == Keyword && token.Value == "char":
		return Char, "", nil
	case token.Type == Keyword && token.Value == "boolean":
		return Bool, "", nil
	case token.Type == Keyword && token.Value == "void":
		return Void, "", nil
	case token.Type == Identifier:
		return Object, token.Value, nil
	default:
		return "", "", fmt.Errorf("line %d: expected a type, got %q", token.Line, token.Value)
	}
}
