package script

import (
	"fmt"

	"ccscript/pkg/code"
)

// ValueType tags the variant held by a Value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeNumber
	TypeBuffer
	TypeFunction // reserved
	TypeTable    // reserved
	TypeLabel
	TypeMacro // points at an AST node (constant, command, or bound argument)
	TypeUndefined
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeNumber:
		return "number"
	case TypeBuffer:
		return "string"
	case TypeFunction:
		return "function"
	case TypeTable:
		return "table"
	case TypeLabel:
		return "label"
	case TypeMacro:
		return "macro"
	default:
		return "undefined"
	}
}

// A Value is the result of evaluating an expression: nothing, a 32-bit
// number, a code buffer (shared), or a macro referencing the AST node that
// defines a constant, command, or bound command argument.
type Value struct {
	typ    ValueType
	number int32
	buf    *code.Buffer
	node   Node
}

var (
	// Null is the result of an erroneous or empty evaluation.
	Null = Value{typ: TypeNull}
	// Undefined marks a name with no binding at all.
	Undefined = Value{typ: TypeUndefined}
)

func NumberValue(n int32) Value {
	return Value{typ: TypeNumber, number: n}
}

func BufferValue(b *code.Buffer) Value {
	return Value{typ: TypeBuffer, buf: b}
}

func MacroValue(n Node) Value {
	return Value{typ: TypeMacro, node: n}
}

func (v Value) Type() ValueType      { return v.typ }
func (v Value) IsUndefined() bool    { return v.typ == TypeUndefined }
func (v Value) Number() int32        { return v.number }
func (v Value) Node() Node           { return v.node }
func (v Value) Buffer() *code.Buffer { return v.buf }

// ToCodeBuffer renders the value as emittable code: numbers become their
// 32-bit little-endian encoding, buffers are returned as-is (callers append
// or slice them, both of which copy). Anything else yields an empty buffer.
func (v Value) ToCodeBuffer() *code.Buffer {
	switch v.typ {
	case TypeNumber:
		b := code.NewBuffer()
		b.Long(uint32(v.number))
		return b
	case TypeBuffer:
		return v.buf
	default:
		return code.NewBuffer()
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeNumber:
		return fmt.Sprintf("%d", v.number)
	case TypeBuffer:
		return v.buf.String()
	case TypeMacro:
		return "<macro>"
	case TypeNull:
		return "<null>"
	default:
		return "<undefined>"
	}
}

// Equal compares two values. Buffer and macro values compare by identity,
// mirroring their shared-reference semantics.
func (v Value) Equal(rhs Value) bool {
	if v.typ != rhs.typ {
		return false
	}
	switch v.typ {
	case TypeNumber:
		return v.number == rhs.number
	case TypeBuffer:
		return v.buf == rhs.buf
	case TypeMacro:
		return v.node == rhs.node
	default:
		return true
	}
}
