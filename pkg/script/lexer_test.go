package script

import (
	"fmt"
	"testing"
)

// collectingReceiver records diagnostics for assertions.
type collectingReceiver struct {
	errors   []string
	warnings []string
}

func (r *collectingReceiver) Error(msg string, line int) {
	r.errors = append(r.errors, fmt.Sprintf("line %d: %s", line, msg))
}

func (r *collectingReceiver) Warning(msg string, line int) {
	r.warnings = append(r.warnings, fmt.Sprintf("line %d: %s", line, msg))
}

func lexTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	rec := &collectingReceiver{}
	tokens := Lex(src, rec)
	if len(rec.errors) > 0 {
		t.Fatalf("unexpected lex errors: %v", rec.errors)
	}
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func TestLexer(t *testing.T) {
	t.Run("Keywords", func(t *testing.T) {
		got := lexTypes(t, "if else menu default define command or and not flag byte short long ROM ROMTBL import count setcount")
		want := []TokenType{IF, ELSE, MENU, DEFAULT, DEFINE, COMMAND, OR, AND, NOT,
			FLAG, BYTE, SHORT, LONG, ROM, ROMTBL, IMPORT, COUNT, SETCOUNT, EOF}
		if len(got) != len(want) {
			t.Fatalf("token count: expected %d, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("token %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("Punctuation", func(t *testing.T) {
		got := lexTypes(t, "( ) { } [ ] . : , =")
		want := []TokenType{LPAREN, RPAREN, LBRACE, RBRACE, LBRACKET, RBRACKET,
			DOT, COLON, COMMA, EQUALS, EOF}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("token %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("Integers", func(t *testing.T) {
		cases := []struct {
			src  string
			want int32
		}{
			{"0", 0},
			{"42", 42},
			{"-17", -17},
			{"0x2D5", 0x2D5},
			{"0XFF", 0xFF},
			{"-0x10", -0x10},
			{"0xFFFFFFFF", -1}, // wraps to the signed representation
		}
		for _, tc := range cases {
			rec := &collectingReceiver{}
			tokens := Lex(tc.src, rec)
			if tokens[0].Type != INTEGER {
				t.Errorf("%q: expected INTEGER, got %s", tc.src, tokens[0].Type)
				continue
			}
			if tokens[0].Ival != tc.want {
				t.Errorf("%q: expected %d, got %d", tc.src, tc.want, tokens[0].Ival)
			}
		}
	})

	t.Run("IntegerOverflow", func(t *testing.T) {
		rec := &collectingReceiver{}
		tokens := Lex("0x100000000", rec)
		if len(rec.warnings) != 1 {
			t.Fatalf("expected 1 warning, got %v", rec.warnings)
		}
		if tokens[0].Ival != -1 {
			t.Errorf("capped value: expected 0xFFFFFFFF, got %#x", uint32(tokens[0].Ival))
		}
	})

	t.Run("Strings", func(t *testing.T) {
		rec := &collectingReceiver{}
		tokens := Lex(`"hello" !"compressed" ~"alt" "esc\"aped\\"`, rec)
		if len(rec.errors) > 0 {
			t.Fatalf("unexpected errors: %v", rec.errors)
		}
		want := []struct {
			sval  string
			stype byte
		}{
			{"hello", ' '},
			{"compressed", '!'},
			{"alt", '~'},
			{`esc"aped\`, ' '},
		}
		for i, w := range want {
			if tokens[i].Type != STRING {
				t.Fatalf("token %d: expected STRING, got %s", i, tokens[i].Type)
			}
			if tokens[i].Sval != w.sval || tokens[i].Stype != w.stype {
				t.Errorf("token %d: expected %q/%q, got %q/%q",
					i, w.sval, w.stype, tokens[i].Sval, tokens[i].Stype)
			}
		}
	})

	t.Run("UnknownEscapeWarns", func(t *testing.T) {
		rec := &collectingReceiver{}
		tokens := Lex(`"a\nb"`, rec)
		if len(rec.warnings) != 1 {
			t.Fatalf("expected 1 warning, got %v", rec.warnings)
		}
		if tokens[0].Sval != "ab" {
			t.Errorf("escaped string: expected %q, got %q", "ab", tokens[0].Sval)
		}
	})

	t.Run("Comments", func(t *testing.T) {
		got := lexTypes(t, "if // a comment\n/* block\ncomment */ else")
		want := []TokenType{IF, ELSE, EOF}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("UnterminatedComment", func(t *testing.T) {
		rec := &collectingReceiver{}
		Lex("/* never closed", rec)
		if len(rec.errors) != 1 {
			t.Errorf("expected 1 error, got %v", rec.errors)
		}
	})

	t.Run("LineNumbers", func(t *testing.T) {
		rec := &collectingReceiver{}
		tokens := Lex("if\nelse\n\nmenu", rec)
		wantLines := []int{1, 2, 4}
		for i, want := range wantLines {
			if tokens[i].Line != want {
				t.Errorf("token %d: expected line %d, got %d", i, want, tokens[i].Line)
			}
		}
	})

	t.Run("UnexpectedCharacter", func(t *testing.T) {
		rec := &collectingReceiver{}
		tokens := Lex("if $ else", rec)
		if len(rec.errors) != 1 {
			t.Fatalf("expected 1 error, got %v", rec.errors)
		}
		// Scanning continues past the bad character.
		if tokens[0].Type != IF || tokens[1].Type != ELSE {
			t.Errorf("expected IF ELSE after recovery, got %v %v", tokens[0].Type, tokens[1].Type)
		}
	})
}
