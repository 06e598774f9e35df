package script

import (
	"testing"
)

func parseProgram(t *testing.T, src string) (*Program, *collectingReceiver) {
	t.Helper()
	rec := &collectingReceiver{}
	prog := NewParser(src, rec).Parse()
	return prog, rec
}

func TestParser(t *testing.T) {
	t.Run("Imports", func(t *testing.T) {
		prog, rec := parseProgram(t, "import foo\nimport \"dir/bar.ccs\"")
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		want := []string{"foo.ccs", "dir/bar.ccs"}
		if len(prog.Imports) != 2 || prog.Imports[0] != want[0] || prog.Imports[1] != want[1] {
			t.Errorf("imports: expected %v, got %v", want, prog.Imports)
		}
	})

	t.Run("ConstDef", func(t *testing.T) {
		prog, rec := parseProgram(t, `define x = 5`)
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		def, ok := prog.Stmts[0].(*ConstDef)
		if !ok {
			t.Fatalf("expected ConstDef, got %T", prog.Stmts[0])
		}
		if def.Name != "x" {
			t.Errorf("name: expected x, got %s", def.Name)
		}
		if lit, ok := def.Value.(*IntLiteral); !ok || lit.Value != 5 {
			t.Errorf("value: expected IntLiteral(5), got %v", def.Value)
		}
	})

	t.Run("CommandDef", func(t *testing.T) {
		prog, rec := parseProgram(t, `command greet(name, times) { "hi" }`)
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		cmd, ok := prog.Stmts[0].(*CommandDef)
		if !ok {
			t.Fatalf("expected CommandDef, got %T", prog.Stmts[0])
		}
		if cmd.Name != "greet" || len(cmd.Args) != 2 || cmd.Args[0] != "name" || cmd.Args[1] != "times" {
			t.Errorf("command: got %s(%v)", cmd.Name, cmd.Args)
		}
		body, ok := cmd.Body.(*BlockExpr)
		if !ok {
			t.Fatalf("body: expected BlockExpr, got %T", cmd.Body)
		}
		// Command bodies share the argument-binding scope.
		if !body.Block.NoScope {
			t.Errorf("command body block should be marked NoScope")
		}
	})

	t.Run("IfElse", func(t *testing.T) {
		prog, _ := parseProgram(t, `if flag 5 "a" else "b"`)
		stmt := prog.Stmts[0].(*ExprStmt)
		ifx, ok := stmt.Expr.(*IfExpr)
		if !ok {
			t.Fatalf("expected IfExpr, got %T", stmt.Expr)
		}
		if _, ok := ifx.Cond.(*FlagExpr); !ok {
			t.Errorf("cond: expected FlagExpr, got %T", ifx.Cond)
		}
		if ifx.Else == nil {
			t.Errorf("expected else branch")
		}
	})

	t.Run("Menu", func(t *testing.T) {
		prog, rec := parseProgram(t, `menu { "a": "x" default "b": "y" }`)
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		m := prog.Stmts[0].(*ExprStmt).Expr.(*MenuExpr)
		if len(m.Options) != 2 || m.Columns != 2 || !m.DefCols {
			t.Errorf("menu shape: %d options, %d columns, defcols=%v", len(m.Options), m.Columns, m.DefCols)
		}
		if m.Default != 1 {
			t.Errorf("default option: expected 1, got %d", m.Default)
		}
	})

	t.Run("MenuColumnsOverride", func(t *testing.T) {
		prog, _ := parseProgram(t, `menu 1 { "a": "x" "b": "y" }`)
		m := prog.Stmts[0].(*ExprStmt).Expr.(*MenuExpr)
		if m.Columns != 1 || m.DefCols {
			t.Errorf("override: %d columns, defcols=%v", m.Columns, m.DefCols)
		}
	})

	t.Run("DuplicateDefaultWarns", func(t *testing.T) {
		_, rec := parseProgram(t, `menu { default "a": "x" default "b": "y" }`)
		if len(rec.warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", rec.warnings)
		}
	})

	t.Run("Label", func(t *testing.T) {
		prog, _ := parseProgram(t, "start:\n\"hi\"")
		lbl, ok := prog.Stmts[0].(*ExprStmt).Expr.(*LabelExpr)
		if !ok {
			t.Fatalf("expected LabelExpr, got %T", prog.Stmts[0].(*ExprStmt).Expr)
		}
		if lbl.Name != "start" {
			t.Errorf("label name: got %s", lbl.Name)
		}
	})

	t.Run("QualifiedIdentifierWithArgs", func(t *testing.T) {
		prog, _ := parseProgram(t, `other.greet("bob", 3)`)
		id := prog.Stmts[0].(*ExprStmt).Expr.(*IdentExpr)
		if id.Module != "other" || id.Name != "greet" || len(id.Args) != 2 || !id.HasParens {
			t.Errorf("ident: got %+v", id)
		}
	})

	t.Run("EmptyParens", func(t *testing.T) {
		prog, _ := parseProgram(t, `foo()`)
		id := prog.Stmts[0].(*ExprStmt).Expr.(*IdentExpr)
		if !id.HasParens || len(id.Args) != 0 {
			t.Errorf("expected empty parens recorded, got %+v", id)
		}
	})

	t.Run("AndOr", func(t *testing.T) {
		prog, _ := parseProgram(t, `flag 1 and flag 2 or flag 3`)
		and, ok := prog.Stmts[0].(*ExprStmt).Expr.(*AndExpr)
		if !ok {
			t.Fatalf("expected AndExpr at top, got %T", prog.Stmts[0].(*ExprStmt).Expr)
		}
		if _, ok := and.B.(*OrExpr); !ok {
			t.Errorf("expected right-associated or, got %T", and.B)
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		prog, _ := parseProgram(t, `short[1] 0x12345678`)
		b := prog.Stmts[0].(*ExprStmt).Expr.(*BoundedExpr)
		if b.Size != 2 || b.Index != 1 {
			t.Errorf("bounded: size=%d index=%d", b.Size, b.Index)
		}
	})

	t.Run("RomWrite", func(t *testing.T) {
		prog, rec := parseProgram(t, `ROM[0xF00000] = "[AA]"
ROMTBL[0xF10000, 4, 2] = 99`)
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		w1 := prog.Stmts[0].(*RomWrite)
		if w1.Size != nil || w1.Index != nil {
			t.Errorf("ROM form should have nil size/index")
		}
		w2 := prog.Stmts[1].(*RomWrite)
		if w2.Size == nil || w2.Index == nil {
			t.Errorf("ROMTBL form should carry size and index")
		}
	})

	t.Run("CountForms", func(t *testing.T) {
		prog, rec := parseProgram(t, `count("c") count("c", 4, 2) setcount("c", 10)`)
		if len(rec.errors) > 0 {
			t.Fatalf("errors: %v", rec.errors)
		}
		c1 := prog.Stmts[0].(*ExprStmt).Expr.(*CountExpr)
		if c1.Set || c1.Offset != 0 || c1.Multiple != 1 {
			t.Errorf("count short form: %+v", c1)
		}
		c2 := prog.Stmts[1].(*ExprStmt).Expr.(*CountExpr)
		if c2.Offset != 4 || c2.Multiple != 2 {
			t.Errorf("count long form: %+v", c2)
		}
		c3 := prog.Stmts[2].(*ExprStmt).Expr.(*CountExpr)
		if !c3.Set || c3.Value != 10 {
			t.Errorf("setcount form: %+v", c3)
		}
	})

	t.Run("ErrorRecovery", func(t *testing.T) {
		prog, rec := parseProgram(t, `= "after"`)
		if len(rec.errors) == 0 {
			t.Fatalf("expected a parse error")
		}
		// The bad token becomes an ErrorExpr; parsing continues.
		if len(prog.Stmts) != 2 {
			t.Fatalf("expected 2 statements after recovery, got %d", len(prog.Stmts))
		}
		if _, ok := prog.Stmts[0].(*ExprStmt).Expr.(*ErrorExpr); !ok {
			t.Errorf("expected ErrorExpr, got %T", prog.Stmts[0].(*ExprStmt).Expr)
		}
	})
}
