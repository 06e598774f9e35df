package script

import "fmt"

// Parser builds an AST from a token stream. Errors are reported through the
// receiver and parsing continues; unparseable expressions become ErrorExpr
// nodes so later passes still run.
type Parser struct {
	tokens []Token
	pos    int
	err    ErrorReceiver
}

func NewParser(src string, e ErrorReceiver) *Parser {
	if e == nil {
		e = nullReceiver{}
	}
	return &Parser{tokens: Lex(src, e), err: e}
}

// Parse consumes the whole input as a program.
func (p *Parser) Parse() *Program {
	return p.program()
}

// ParseExpression consumes a single expression; used by the string parser
// for embedded {expr} blocks.
func (p *Parser) ParseExpression() Expr {
	return p.expression()
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) at(tt TokenType) bool {
	return p.cur().Type == tt
}

// peek returns the type of the token after the current one.
func (p *Parser) peek() TokenType {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1].Type
	}
	return EOF
}

// accept consumes the current token if it has the given type, returning it.
func (p *Parser) accept(tt TokenType) (Token, bool) {
	if p.cur().Type == tt {
		tok := p.cur()
		if tt != EOF {
			p.pos++
		}
		return tok, true
	}
	return Token{}, false
}

// expect is accept with an error on mismatch.
func (p *Parser) expect(tt TokenType) (Token, bool) {
	if tok, ok := p.accept(tt); ok {
		return tok, true
	}
	p.err.Error(fmt.Sprintf("expected '%s', found '%s'", tt, p.cur()), p.cur().Line)
	return Token{}, false
}

// program := ( 'import' ( identifier | string ) | statement )* EOF
func (p *Parser) program() *Program {
	prog := &Program{}
	for !p.at(EOF) {
		if _, ok := p.accept(IMPORT); ok {
			if tok, ok := p.accept(IDENTIFIER); ok {
				prog.Imports = append(prog.Imports, tok.Sval+".ccs")
			} else if tok, ok := p.expect(STRING); ok {
				prog.Imports = append(prog.Imports, tok.Sval)
			}
			continue
		}
		prog.Stmts = append(prog.Stmts, p.statement())
	}
	return prog
}

// statement := block | command-def | const-def | rom-write | expression
func (p *Parser) statement() Stmt {
	if tok, ok := p.accept(LBRACE); ok {
		b := &Block{stmtBase: stmtBase{Line: tok.Line}}
		for !p.at(RBRACE) && !p.at(EOF) {
			b.Stmts = append(b.Stmts, p.statement())
		}
		p.expect(RBRACE)
		return b
	}
	if _, ok := p.accept(COMMAND); ok {
		return p.commandDef()
	}
	if _, ok := p.accept(DEFINE); ok {
		return p.constDef()
	}
	if tok, ok := p.accept(ROM); ok {
		stmt := &RomWrite{stmtBase: stmtBase{Line: tok.Line}}
		p.expect(LBRACKET)
		stmt.Base = p.expression()
		p.expect(RBRACKET)
		p.expect(EQUALS)
		stmt.Value = p.expression()
		return stmt
	}
	if tok, ok := p.accept(ROMTBL); ok {
		stmt := &RomWrite{stmtBase: stmtBase{Line: tok.Line}}
		p.expect(LBRACKET)
		stmt.Base = p.expression()
		p.expect(COMMA)
		stmt.Size = p.expression()
		p.expect(COMMA)
		stmt.Index = p.expression()
		p.expect(RBRACKET)
		p.expect(EQUALS)
		stmt.Value = p.expression()
		return stmt
	}
	line := p.cur().Line
	return &ExprStmt{stmtBase: stmtBase{Line: line}, Expr: p.expression()}
}

// if-expr := 'if' cond-expr then-expr [ 'else' else-expr ]
func (p *Parser) ifExpr(line int) *IfExpr {
	e := &IfExpr{exprBase: exprBase{Line: line}}
	e.Cond = p.expression()
	e.Then = p.expression()
	if _, ok := p.accept(ELSE); ok {
		e.Else = p.expression()
	}
	return e
}

// menu-expr := 'menu' [ int ] '{' ( [ 'default' ] option ':' result )* '}'
func (p *Parser) menuExpr(line int) *MenuExpr {
	menu := &MenuExpr{exprBase: exprBase{Line: line}, DefCols: true, Default: -1}

	cols := -1
	if tok, ok := p.accept(INTEGER); ok {
		cols = int(tok.Ival)
	}

	p.expect(LBRACE)
	for !p.at(RBRACE) && !p.at(EOF) {
		if tok, ok := p.accept(DEFAULT); ok {
			if menu.Default != -1 {
				p.err.Warning("menu has more than one default option", tok.Line)
			}
			menu.Default = len(menu.Options)
		}
		option := p.expression()
		p.expect(COLON)
		result := p.expression()
		menu.Add(option, result)
	}
	p.expect(RBRACE)

	if cols != -1 {
		menu.Columns = cols
		menu.DefCols = false
	}
	return menu
}

// command-def := 'command' identifier [ '(' args ')' ] expression
func (p *Parser) commandDef() *CommandDef {
	line := p.cur().Line
	nameTok, _ := p.expect(IDENTIFIER)
	cmd := &CommandDef{stmtBase: stmtBase{Line: line}, Name: nameTok.Sval}

	if _, ok := p.accept(LPAREN); ok {
		if !p.at(RPAREN) {
			if tok, ok := p.expect(IDENTIFIER); ok {
				cmd.Args = append(cmd.Args, tok.Sval)
			}
		}
		for !p.at(RPAREN) && !p.at(EOF) {
			if _, ok := p.expect(COMMA); !ok {
				break
			}
			tok, ok := p.expect(IDENTIFIER)
			if !ok {
				break
			}
			cmd.Args = append(cmd.Args, tok.Sval)
		}
		p.expect(RPAREN)
	}

	body := p.expression()

	// The body of a command shares the scope holding its argument bindings.
	if be, ok := body.(*BlockExpr); ok {
		be.Block.NoScope = true
	}
	cmd.Body = body
	return cmd
}

// const-def := 'define' identifier '=' expression
func (p *Parser) constDef() *ConstDef {
	line := p.cur().Line
	nameTok, _ := p.expect(IDENTIFIER)
	p.expect(EQUALS)
	return &ConstDef{
		stmtBase: stmtBase{Line: line},
		Name:     nameTok.Sval,
		Value:    p.expression(),
	}
}

// expression := if-expr | menu-expr | label | block-expr | bounded-expr
//             | factor [ ('and'|'or') expression ]
func (p *Parser) expression() Expr {
	if tok, ok := p.accept(IF); ok {
		return p.ifExpr(tok.Line)
	}
	if tok, ok := p.accept(MENU); ok {
		return p.menuExpr(tok.Line)
	}

	// A label is an identifier immediately followed by a colon.
	if p.at(IDENTIFIER) && p.peek() == COLON {
		tok, _ := p.accept(IDENTIFIER)
		p.accept(COLON)
		return &LabelExpr{exprBase: exprBase{Line: tok.Line}, Name: tok.Sval}
	}

	// A block statement in expression position becomes a block expression.
	if p.at(LBRACE) {
		line := p.cur().Line
		b := p.statement().(*Block)
		return &BlockExpr{exprBase: exprBase{Line: line}, Block: b}
	}

	if p.at(BYTE) || p.at(SHORT) || p.at(LONG) {
		return p.boundedExpr()
	}

	line := p.cur().Line
	exp1 := p.factor()
	if _, ok := p.accept(AND); ok {
		return &AndExpr{exprBase: exprBase{Line: line}, A: exp1, B: p.expression()}
	}
	if _, ok := p.accept(OR); ok {
		return &OrExpr{exprBase: exprBase{Line: line}, A: exp1, B: p.expression()}
	}
	return exp1
}

// bounded-expr := ('byte'|'short'|'long') [ '[' int ']' ] expression
func (p *Parser) boundedExpr() Expr {
	line := p.cur().Line
	size := -1
	if _, ok := p.accept(BYTE); ok {
		size = 1
	} else if _, ok := p.accept(SHORT); ok {
		size = 2
	} else if _, ok := p.accept(LONG); ok {
		size = 4
	}

	ex := &BoundedExpr{exprBase: exprBase{Line: line}, Size: size, Index: -1}
	if _, ok := p.accept(LBRACKET); ok {
		if tok, ok := p.expect(INTEGER); ok {
			ex.Index = int(tok.Ival)
		}
		p.expect(RBRACKET)
	}
	ex.Expr = p.expression()
	return ex
}

// count-expr := 'count' '(' string [ ',' int [ ',' int ] ] ')'
func (p *Parser) countExpr(line int) *CountExpr {
	c := &CountExpr{exprBase: exprBase{Line: line}, Multiple: 1}
	p.expect(LPAREN)
	if tok, ok := p.expect(STRING); ok {
		c.ID = tok.Sval
	}
	if _, ok := p.accept(COMMA); ok {
		if tok, ok := p.expect(INTEGER); ok {
			c.Offset = tok.Ival
		}
		if _, ok := p.accept(COMMA); ok {
			if tok, ok := p.expect(INTEGER); ok {
				c.Multiple = tok.Ival
			}
		}
	}
	p.expect(RPAREN)
	return c
}

// setcount-expr := 'setcount' '(' string ',' int ')'
func (p *Parser) setCountExpr(line int) *CountExpr {
	c := &CountExpr{exprBase: exprBase{Line: line}, Set: true}
	p.expect(LPAREN)
	if tok, ok := p.expect(STRING); ok {
		c.ID = tok.Sval
	}
	p.expect(COMMA)
	if tok, ok := p.expect(INTEGER); ok {
		c.Value = tok.Ival
	}
	p.expect(RPAREN)
	return c
}

// factor := 'flag' primary | '(' expression ')' | 'not' factor | primary
func (p *Parser) factor() Expr {
	if tok, ok := p.accept(FLAG); ok {
		return &FlagExpr{exprBase: exprBase{Line: tok.Line}, Expr: p.primaryExpr()}
	}
	if _, ok := p.accept(LPAREN); ok {
		expr := p.expression()
		p.expect(RPAREN)
		return expr
	}
	// 'not' associates tightly, so it takes a factor rather than a
	// full expression.
	if tok, ok := p.accept(NOT); ok {
		return &NotExpr{exprBase: exprBase{Line: tok.Line}, A: p.factor()}
	}
	return p.primaryExpr()
}

// primary := count-expr | setcount-expr | INT | STRING
//          | identifier [ '.' identifier ] [ '(' args ')' ]
func (p *Parser) primaryExpr() Expr {
	if tok, ok := p.accept(COUNT); ok {
		return p.countExpr(tok.Line)
	}
	if tok, ok := p.accept(SETCOUNT); ok {
		return p.setCountExpr(tok.Line)
	}
	if tok, ok := p.accept(INTEGER); ok {
		return &IntLiteral{exprBase: exprBase{Line: tok.Line}, Value: tok.Ival}
	}
	if tok, ok := p.accept(STRING); ok {
		return &StringLiteral{exprBase: exprBase{Line: tok.Line}, Value: tok.Sval, Stype: tok.Stype}
	}

	if tok, ok := p.accept(IDENTIFIER); ok {
		id := &IdentExpr{exprBase: exprBase{Line: tok.Line}, Name: tok.Sval}
		if _, ok := p.accept(DOT); ok {
			id.Module = id.Name
			nameTok, _ := p.expect(IDENTIFIER)
			id.Name = nameTok.Sval
		}
		if _, ok := p.accept(LPAREN); ok {
			id.HasParens = true
			if !p.at(RPAREN) {
				id.Args = append(id.Args, p.expression())
			}
			for !p.at(RPAREN) && !p.at(EOF) {
				if _, ok := p.expect(COMMA); !ok {
					break
				}
				id.Args = append(id.Args, p.expression())
			}
			p.expect(RPAREN)
		}
		return id
	}

	tok := p.cur()
	if tok.Type != EOF {
		p.pos++
	}
	msg := fmt.Sprintf("unexpected symbol '%s'", tok)
	p.err.Error(msg, tok.Line)
	return &ErrorExpr{exprBase: exprBase{Line: tok.Line}, Msg: msg}
}
