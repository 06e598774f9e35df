package script

import (
	"fmt"

	"ccscript/pkg/code"
)

// EvalContext is the context of evaluation for a node: the module being
// evaluated, the table in which labels live, and the buffer collecting
// output. It is separate from the node's lexical scope.
type EvalContext struct {
	Module *Module
	Labels *SymbolTable
	Output *code.Buffer

	// NoRefs suppresses reference registration; used when a value only
	// needs an address snapshot, never a fixup.
	NoRefs bool

	// LocalScopeName is the name of the command currently being invoked.
	LocalScopeName string
}

func (ctx *EvalContext) uniqueLabelName() string {
	return ctx.Module.UniqueLabelName()
}

func (ctx *EvalContext) errorf(line int, format string, args ...any) {
	ctx.Module.Error(fmt.Sprintf(format, args...), line)
}

// checker runs the pre-typecheck pass: it builds root tables, registers
// label anchors, fixes counter values in source order, and flags constructs
// that are only legal at global scope. Block bodies are skipped; their
// scopes are built just before they are evaluated.
type checker struct {
	err      ErrorReceiver
	counters *Counters
}

func (ck *checker) check(n Node, root *SymbolTable, atRoot bool) {
	switch n := n.(type) {
	case *Program:
		for _, s := range n.Stmts {
			ck.check(s, root, true)
		}

	case *Block:
		// Blocks have their own lexical scopes, checked at evaluation time.

	case *BlockExpr:
		ck.check(n.Block, root, false)

	case *ConstDef:
		if !atRoot {
			ck.err.Error("constants can only be defined at global scope", n.Line)
			return
		}
		if !root.Lookup(n.Name).IsUndefined() {
			ck.err.Error(fmt.Sprintf("repeat definition of identifier '%s'", n.Name), n.Line)
			return
		}
		root.Define(n.Name, MacroValue(n))
		ck.check(n.Value, root, false)

	case *CommandDef:
		if !atRoot {
			ck.err.Error("commands can only be defined at global scope", n.Line)
			return
		}
		if !root.Lookup(n.Name).IsUndefined() {
			ck.err.Error(fmt.Sprintf("repeat definition of identifier '%s'", n.Name), n.Line)
			return
		}
		root.Define(n.Name, MacroValue(n))
		n.parentScope = root

		// Throwaway scope, just to detect repeated parameter names.
		scope := NewSymbolTable(root)
		for _, arg := range n.Args {
			if scope.Define(arg, Null) {
				ck.err.Error(fmt.Sprintf("repeat definition of parameter '%s'", arg), n.Line)
			}
		}

	case *LabelExpr:
		if !root.Get(n.Name).IsUndefined() || root.GetAnchor(n.Name) != nil {
			ck.err.Error(fmt.Sprintf("repeat definition of identifier '%s'", n.Name), n.Line)
			return
		}
		a := code.NewAnchor(n.Name)
		a.External = true
		root.DefineAnchor(a)

	case *ExprStmt:
		ck.check(n.Expr, root, atRoot)

	case *IfExpr:
		ck.check(n.Cond, root, false)
		ck.check(n.Then, root, false)
		if n.Else != nil {
			ck.check(n.Else, root, false)
		}

	case *MenuExpr:
		for _, opt := range n.Options {
			ck.check(opt, root, false)
		}
		for _, res := range n.Results {
			ck.check(res, root, false)
		}

	case *AndExpr:
		ck.check(n.A, root, atRoot)
		ck.check(n.B, root, atRoot)

	case *OrExpr:
		ck.check(n.A, root, atRoot)
		ck.check(n.B, root, atRoot)

	case *NotExpr:
		ck.check(n.A, root, atRoot)

	case *FlagExpr:
		ck.check(n.Expr, root, atRoot)

	case *BoundedExpr:
		ck.check(n.Expr, root, atRoot)

	case *IdentExpr:
		for _, arg := range n.Args {
			ck.check(arg, root, atRoot)
		}

	case *CountExpr:
		// Counter values are fixed here, not at evaluation, so that reads
		// follow source order regardless of how often (or whether) the
		// enclosing expression is evaluated.
		if n.Set {
			ck.counters.Set(n.ID, n.Value)
			n.cached = BufferValue(code.NewBuffer())
		} else {
			val := ck.counters.Get(n.ID)
			ck.counters.Set(n.ID, val+1)
			n.cached = NumberValue(val*n.Multiple + n.Offset)
		}
		n.hasCached = true
	}
}

// runProgram executes every statement of a parsed program.
func runProgram(p *Program, env *SymbolTable, ctx *EvalContext) {
	for _, s := range p.Stmts {
		execStmt(s, env, ctx)
	}
}

func execStmt(s Stmt, env *SymbolTable, ctx *EvalContext) {
	switch n := s.(type) {
	case *Block:
		execBlock(n, env, ctx)

	case *CommandDef, *ConstDef:
		// Definitions were installed by the pre-typecheck pass; their
		// bodies are only evaluated at each use.

	case *ExprStmt:
		val := evalExpr(n.Expr, env, ctx, false)
		ctx.Output.Append(val.ToCodeBuffer())

	case *RomWrite:
		execRomWrite(n, env, ctx)
	}
}

// execBlock runs a block's statements, in a fresh child scope unless the
// block is a command body (whose scope already holds the argument
// bindings). The inner statements get their own pre-typecheck against the
// block scope immediately before evaluation.
func execBlock(b *Block, env *SymbolTable, ctx *EvalContext) {
	scope := env
	if !b.NoScope {
		scope = NewSymbolTable(env)
	}

	ck := &checker{err: ctx.Module, counters: ctx.Module.Counters()}
	for _, s := range b.Stmts {
		ck.check(s, scope, false)
	}

	// Abort early if the pre-pass failed, to cut down consequent errors.
	if ctx.Module.Failed() {
		return
	}

	for _, s := range b.Stmts {
		execStmt(s, scope, ctx)
	}
}

// execRomWrite evaluates a ROM write's subexpressions into cached buffers
// and registers the pending write. The value is copied into a buffer of its
// own, so its internal anchors stay out of the module output and are later
// measured from the write location rather than the module base.
func execRomWrite(n *RomWrite, env *SymbolTable, ctx *EvalContext) {
	access := &RomAccess{Labels: NewSymbolTable(nil)}
	sub := &EvalContext{Module: ctx.Module, Labels: access.Labels}

	access.Base = copyBuffer(evalExpr(n.Base, env, sub, false).ToCodeBuffer())
	if n.Size != nil {
		access.Size = copyBuffer(evalExpr(n.Size, env, sub, false).ToCodeBuffer())
	}
	if n.Index != nil {
		access.Index = copyBuffer(evalExpr(n.Index, env, sub, false).ToCodeBuffer())
	}
	access.Value = copyBuffer(evalExpr(n.Value, env, sub, false).ToCodeBuffer())

	ctx.Module.RegisterRomWrite(access)
}

func copyBuffer(b *code.Buffer) *code.Buffer {
	out := code.NewBuffer()
	out.Append(b)
	return out
}

// evalExpr lowers an expression to a Value. asBool marks evaluation in a
// boolean position (if conditions and and/or/not operands), which changes
// how flag expressions render.
func evalExpr(e Expr, env *SymbolTable, ctx *EvalContext, asBool bool) Value {
	env = e.base().evalScope(env)

	switch n := e.(type) {
	case *IntLiteral:
		return NumberValue(n.Value)

	case *StringLiteral:
		return NewStringParser(n.Value, n.Line, ctx.Module).Evaluate(env, ctx)

	case *BlockExpr:
		output := code.NewBuffer()
		old := ctx.Output
		ctx.Output = output
		execBlock(n.Block, env, ctx)
		ctx.Output = old
		return BufferValue(output)

	case *LabelExpr:
		anchor := env.LookupAnchor(n.Name)
		if anchor == nil {
			ctx.errorf(n.Line, "label evaluation lookup failed for '%s' - probable internal compiler error!", n.Name)
			return Null
		}
		// The anchor was registered in the scope by the pre-typecheck
		// pass; its value is an empty buffer that pins its position.
		value := code.NewBuffer()
		value.AddAnchor(anchor)
		return BufferValue(value)

	case *IfExpr:
		return evalIf(n, env, ctx)

	case *MenuExpr:
		return evalMenu(n, env, ctx)

	case *AndExpr:
		// Lowering A and B:
		//  [A] [iffalse goto end] [B] end:
		value := code.NewBuffer()
		endAnchor := code.NewAnchor(ctx.uniqueLabelName() + ".end")
		value.Append(evalExpr(n.A, env, ctx, true).ToCodeBuffer())
		value.Code("1B 02 FF FF FF FF")
		value.AddReference(value.Size()-4, endAnchor)
		value.Append(evalExpr(n.B, env, ctx, true).ToCodeBuffer())
		value.AddAnchor(endAnchor)
		return BufferValue(value)

	case *OrExpr:
		// Lowering A or B:
		//  [A] [iftrue goto end] [B] end:
		value := code.NewBuffer()
		endAnchor := code.NewAnchor(ctx.uniqueLabelName() + ".end")
		value.Append(evalExpr(n.A, env, ctx, true).ToCodeBuffer())
		value.Code("1B 03 FF FF FF FF")
		value.AddReference(value.Size()-4, endAnchor)
		value.Append(evalExpr(n.B, env, ctx, true).ToCodeBuffer())
		value.AddAnchor(endAnchor)
		return BufferValue(value)

	case *NotExpr:
		// [A] then invert the working register.
		value := code.NewBuffer()
		value.Append(evalExpr(n.A, env, ctx, true).ToCodeBuffer())
		value.Code("0B 00")
		return BufferValue(value)

	case *FlagExpr:
		return evalFlag(n, env, ctx, asBool)

	case *BoundedExpr:
		return evalBounded(n, env, ctx)

	case *IdentExpr:
		return evalIdent(n, env, ctx, asBool)

	case *CountExpr:
		return n.cached

	case *ErrorExpr:
		return Null
	}
	return Null
}

// evalIf lowers a conditional:
//
//	[condition]
//	[iffalse goto false]
//	[then]
//	[goto end]
//	false: [else]
//	end:
func evalIf(n *IfExpr, env *SymbolTable, ctx *EvalContext) Value {
	value := code.NewBuffer()

	labelBase := ctx.uniqueLabelName()
	endAnchor := code.NewAnchor(labelBase + ".end")
	falseAnchor := code.NewAnchor(labelBase + ".false")

	condVal := evalExpr(n.Cond, env, ctx, true)
	value.Append(condVal.ToCodeBuffer())

	value.Code("1B 02 FF FF FF FF")
	value.AddReference(value.Size()-4, falseAnchor)

	thenVal := evalExpr(n.Then, env, ctx, false)
	value.Append(thenVal.ToCodeBuffer())

	// The trailing goto is redundant when there is no else clause, but it
	// is part of the established output.
	value.Code("0A FF FF FF FF")
	value.AddReference(value.Size()-4, endAnchor)

	value.AddAnchor(falseAnchor)

	if n.Else != nil {
		elseVal := evalExpr(n.Else, env, ctx, false)
		value.Append(elseVal.ToCodeBuffer())
	}

	value.AddAnchor(endAnchor)
	return BufferValue(value)
}

// evalMenu lowers a menu:
//
//	[19 02][option][02]       for each option
//	[1C 07|1C 0C][cols][11 12]
//	[09][count][jump table]
//	[goto default-or-end]
//	opt#: [result][goto end]  for each result
//	end:
func evalMenu(n *MenuExpr, env *SymbolTable, ctx *EvalContext) Value {
	value := code.NewBuffer()

	labelBase := ctx.uniqueLabelName()
	anchors := make([]*code.Anchor, len(n.Options))
	for i := range n.Options {
		anchors[i] = code.NewAnchor(fmt.Sprintf("%s.opt%d", labelBase, i))
	}
	endAnchor := code.NewAnchor(labelBase + ".end")

	for _, opt := range n.Options {
		value.Code("19 02")
		value.Append(evalExpr(opt, env, ctx, false).ToCodeBuffer())
		value.Code("02")
	}

	// Two options with no explicit column count use the compact
	// horizontal-menu opcode.
	if len(n.Options) == 2 && n.DefCols {
		value.Code("1C 07")
	} else {
		value.Code("1C 0C")
	}
	value.Byte(uint32(n.Columns))
	value.Code("11 12")

	value.Code("09")
	value.Byte(uint32(len(n.Results)))
	for i := range n.Results {
		value.Code("FF FF FF FF")
		value.AddReference(value.Size()-4, anchors[i])
	}

	value.Code("0A FF FF FF FF")
	if n.Default != -1 {
		value.AddReference(value.Size()-4, anchors[n.Default])
	} else {
		value.AddReference(value.Size()-4, endAnchor)
	}

	for i, res := range n.Results {
		value.AddAnchor(anchors[i])
		value.Append(evalExpr(res, env, ctx, false).ToCodeBuffer())

		// Jump past the remaining options if this one falls through.
		value.Code("0A FF FF FF FF")
		value.AddReference(value.Size()-4, endAnchor)
	}

	value.AddAnchor(endAnchor)
	return BufferValue(value)
}

// evalFlag keeps the first two bytes of the operand's code, prefixed with
// the load-flag opcode when tested as a boolean. This lets "flag x" serve
// both as a flag number in normal expressions and as a condition.
func evalFlag(n *FlagExpr, env *SymbolTable, ctx *EvalContext, asBool bool) Value {
	value := code.NewBuffer()
	if asBool {
		value.Code("07")
	}

	flagVal := evalExpr(n.Expr, env, ctx, false)
	sub, err := flagVal.ToCodeBuffer().Substring(0, 2)
	if err != nil {
		ctx.errorf(n.Line, "%v", err)
		return BufferValue(value)
	}
	value.Append(sub)
	return BufferValue(value)
}

// evalBounded takes Size bytes of the operand's code starting at
// Size*Index, zero-filling any bytes past the end of the operand.
func evalBounded(n *BoundedExpr, env *SymbolTable, ctx *EvalContext) Value {
	value := code.NewBuffer()
	exprVal := evalExpr(n.Expr, env, ctx, false)

	pos := 0
	if n.Index >= 0 {
		pos = n.Size * n.Index
	}

	s := exprVal.ToCodeBuffer()
	over := pos + n.Size - s.Size()
	if over < 0 {
		over = 0
	}
	validSize := n.Size - over
	if validSize < 0 {
		validSize = 0
	}

	if validSize > 0 {
		sub, err := s.Substring(pos, validSize)
		if err != nil {
			ctx.errorf(n.Line, "%v", err)
			return BufferValue(value)
		}
		value.Append(sub)
	}
	for i := 0; i < n.Size-validSize; i++ {
		value.Byte(0)
	}

	return BufferValue(value)
}

// evalIdent resolves a possibly-qualified identifier: a plain value, a
// constant or command macro, a bound command argument, or a label.
func evalIdent(id *IdentExpr, scope *SymbolTable, ctx *EvalContext, asBool bool) Value {
	lookupScope := scope
	if id.Module != "" {
		mod := ctx.Module.Sibling(id.Module)
		if mod == nil {
			ctx.errorf(id.Line, "reference to nonexistent module '%s'", id.Module)
			return Null
		}
		lookupScope = mod.RootTable()
	}

	found := lookupScope.Lookup(id.Name)
	if !found.IsUndefined() {
		if found.Type() != TypeMacro {
			// Evaluated locals are not importable across modules.
			if lookupScope != scope {
				ctx.errorf(id.Line, "cannot access local variable declaration '%s' in module '%s'", id.Name, id.Module)
				return Null
			}
			return found
		}

		switch node := found.Node().(type) {
		case *ConstDef:
			if id.HasParens {
				ctx.errorf(id.Line, "'%s' refers to a constant; cannot use parentheses", id.FullName())
				return Null
			}
			return node.evaluateExpr(scope, ctx, asBool)

		case *CommandDef:
			// Arguments are bound by reference: each argument expression
			// re-evaluates at every use, in the scope of this call site.
			for _, arg := range id.Args {
				arg.base().setScope(scope)
			}
			if len(node.Args) != len(id.Args) {
				ctx.errorf(id.Line, "incorrect number of parameters to command '%s'", id.FullName())
				return Null
			}
			return node.invoke(ctx, id.Args, id.Line)

		case *AmbiguousID:
			ctx.errorf(id.Line, "%s", node.String())
			return Null

		default:
			if expr, ok := found.Node().(Expr); ok {
				return evalExpr(expr, scope, ctx, asBool)
			}
			ctx.errorf(id.Line, "invalid type")
			return Null
		}
	}

	// Not a value; try the label table.
	if anchor := lookupScope.LookupAnchor(id.Name); anchor != nil {
		if id.HasParens {
			ctx.errorf(id.Line, "'%s' refers to a label; cannot use parentheses", id.FullName())
			return Null
		}

		// The label's address might not be computed yet, so emit its
		// current target plus a reference for the final resolution pass.
		val := code.NewBuffer()
		val.Long(anchor.Target)
		if !ctx.NoRefs {
			val.AddReference(val.Size()-4, anchor)
		}
		return BufferValue(val)
	}

	ctx.errorf(id.Line, "use of undefined identifier '%s'", id.FullName())
	return Null
}

// evaluateExpr evaluates a constant's sub-expression, guarding against
// self-reference.
func (c *ConstDef) evaluateExpr(scope *SymbolTable, ctx *EvalContext, asBool bool) Value {
	if c.evaluating {
		ctx.errorf(c.Line, "recursion detected in evaluation of constant '%s'", c.Name)
		return Null
	}
	c.evaluating = true
	result := evalExpr(c.Value, scope, ctx, asBool)
	c.evaluating = false
	return result
}

// invoke binds the given argument expressions into a fresh child of the
// command's lexical scope and evaluates the body there.
//
// The recursion guard also rejects compositions like foo(foo(x)), where the
// inner call would legitimately finish first; argument expressions evaluate
// lazily, so the nested call happens while the outer body is active.
func (c *CommandDef) invoke(ctx *EvalContext, args []Expr, line int) Value {
	if c.executing {
		ctx.errorf(line, "recursion detected in evaluation of command '%s'", c.Name)
		return Null
	}
	c.executing = true

	scope := NewSymbolTable(c.parentScope)
	for i, arg := range args {
		scope.Define(c.Args[i], MacroValue(arg))
	}

	// Build the command's local scope (labels and the like) just before
	// the body runs.
	ck := &checker{err: ctx.Module, counters: ctx.Module.Counters()}
	ck.check(c.Body, scope, false)

	oldName := ctx.LocalScopeName
	ctx.LocalScopeName = c.Name

	result := evalExpr(c.Body, scope, ctx, false)

	ctx.LocalScopeName = oldName
	c.executing = false
	return result
}
