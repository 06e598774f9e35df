package script

import (
	"strconv"
	"strings"

	"ccscript/pkg/code"
)

// StringParser interprets the text of a string literal as code bytes.
//
// In text mode, characters append in the game's text encoding, '/' and '|'
// emit pause codes, '[' switches to code mode, and '{' evaluates an embedded
// expression whose code is spliced in. In code mode, whitespace-separated
// hex digit pairs append as raw bytes until ']'.
type StringParser struct {
	str     string
	pos     int
	current byte
	line    int
	err     ErrorReceiver
}

func NewStringParser(str string, line int, e ErrorReceiver) *StringParser {
	if e == nil {
		e = nullReceiver{}
	}
	return &StringParser{str: str, line: line, err: e}
}

// Error and Warning implement ErrorReceiver so that diagnostics from an
// embedded expression are tagged with the enclosing string's source line.
func (sp *StringParser) Error(msg string, _ int) {
	sp.err.Error(msg+" inside string", sp.line)
}

func (sp *StringParser) Warning(msg string, _ int) {
	sp.err.Warning(msg+" inside string", sp.line)
}

func (sp *StringParser) next() {
	if sp.pos < len(sp.str) {
		sp.current = sp.str[sp.pos]
		sp.pos++
	} else {
		sp.current = 0
	}
}

// acceptByte reads exactly two hex digits and returns their value, or -1 if
// the pair is malformed.
func (sp *StringParser) acceptByte() int {
	if !isHexDigit(rune(sp.current)) {
		return -1
	}
	first := sp.current
	sp.next()
	if !isHexDigit(rune(sp.current)) {
		return -1
	}
	n, _ := strconv.ParseUint(string([]byte{first, sp.current}), 16, 8)
	return int(n)
}

// Evaluate produces the code bytes for the string in the given scope.
func (sp *StringParser) Evaluate(scope *SymbolTable, ctx *EvalContext) Value {
	output := code.NewBuffer()
	codeMode := false
	sp.next()

	for sp.current != 0 {
		if sp.current == '{' {
			output.Append(sp.expression(scope, ctx).ToCodeBuffer())
			continue
		}

		if codeMode {
			switch sp.current {
			case ']':
				sp.next()
				codeMode = false
			case ' ', '\t', '\n':
				sp.next()
			default:
				if b := sp.acceptByte(); b == -1 {
					sp.Warning("invalid control code bytes ignored", 0)
				} else {
					output.Byte(uint32(b))
				}
				sp.next()
			}
			continue
		}

		switch sp.current {
		case '/':
			output.Code("10 05")
		case '|':
			output.Code("10 0F")
		case '[':
			codeMode = true
		default:
			output.Char(uint32(sp.current))
		}
		sp.next()
	}

	return BufferValue(output)
}

// expression parses and evaluates the {...} block starting at the current
// position. The current character is the '{'.
func (sp *StringParser) expression(scope *SymbolTable, ctx *EvalContext) Value {
	n := strings.IndexByte(sp.str[sp.pos:], '}')
	if n == -1 {
		sp.Error("unterminated expression block", 0)
		sp.pos = len(sp.str)
		sp.next()
		return Null
	}
	n += sp.pos

	parser := NewParser(sp.str[sp.pos:n], sp)
	expr := parser.ParseExpression()
	result := evalExpr(expr, scope, ctx, false)

	sp.pos = n + 1
	sp.next()
	return result
}
