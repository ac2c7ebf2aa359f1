// Package parser builds an *ast.Program from a token stream using
// recursive descent for statements and precedence climbing for
// expressions.
package parser

import (
	"fmt"

	"lucy/pkg/ast"
	"lucy/pkg/lexer"
	"lucy/pkg/token"
)

// Error reports a syntax error at a source location.
type Error struct {
	Message string
	At      token.Location
}

func (e *Error) Error() string {
	return fmt.Sprintf("UNEXPECTED_TOKEN: %s at %d:%d", e.Message, e.At.Line, e.At.Column)
}

// precedence levels, low to high. Unary binds tighter than every binary
// operator except call/member postfix, which binds tightest of all.
const (
	_ int = iota
	precLowest
	precOr
	precAnd
	precIs
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precCall
)

var binaryPrecedence = map[token.Kind]int{
	token.OR:       precOr,
	token.AND:      precAnd,
	token.IS:       precIs,
	token.EQ:       precEquality,
	token.NOT_EQ:   precEquality,
	token.LT:       precRelational,
	token.LTE:      precRelational,
	token.GT:       precRelational,
	token.GTE:      precRelational,
	token.PLUS:     precAdditive,
	token.MINUS:    precAdditive,
	token.ASTERISK: precMultiplicative,
	token.SLASH:    precMultiplicative,
	token.PERCENT:  precMultiplicative,
}

var assignOps = map[token.Kind]string{
	token.ASSIGN:       "",
	token.PLUS_ASSIGN:  "+",
	token.MINUS_ASSIGN: "-",
	token.MUL_ASSIGN:   "*",
	token.DIV_ASSIGN:   "/",
	token.MOD_ASSIGN:   "%",
}

// Parser consumes one lookahead token beyond cur, following the teacher's
// cur/peek field layout.
type Parser struct {
	l *lexer.Lexer

	cur  token.Token
	peek token.Token
}

func New(l *lexer.Lexer) (*Parser, error) {
	p := &Parser{l: l}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p, nil
}

func Parse(source string) (*ast.Program, error) {
	p, err := New(lexer.New(source))
	if err != nil {
		return nil, err
	}
	return p.ParseProgram()
}

func (p *Parser) next() error {
	p.cur = p.peek
	tok, err := p.l.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) curIs(k token.Kind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peek.Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.curIs(k) {
		return token.Token{}, &Error{
			Message: fmt.Sprintf("expected %s, got %s %q", k, p.cur.Kind, p.cur.Value),
			At:      p.cur.Start,
		}
	}
	tok := p.cur
	return tok, p.next()
}

func (p *Parser) ParseProgram() (*ast.Program, error) {
	start := p.cur.Start
	prog := &ast.Program{}
	for !p.curIs(token.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	prog.Start, prog.End = start, p.cur.Start
	return prog, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Kind {
	case token.IF:
		return p.parseIf()
	case token.LOOP:
		return p.parseLoop()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.BREAK:
		return p.parseSimpleKeyword(func(b ast.Base) ast.Statement { return &ast.Break{Base: b} })
	case token.CONTINUE:
		return p.parseSimpleKeyword(func(b ast.Base) ast.Statement { return &ast.Continue{Base: b} })
	case token.GOTO:
		return p.parseGoto()
	case token.RETURN:
		return p.parseReturn()
	case token.GLOBAL:
		return p.parseGlobal()
	case token.IMPORT:
		return p.parseImport()
	case token.FROM:
		return p.parseFromImport()
	default:
		return p.parseSimpleOrAssignment()
	}
}

func (p *Parser) parseSimpleKeyword(build func(ast.Base) ast.Statement) (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	end := p.cur.Start
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return build(ast.Base{Start: start, End: end}), nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	start := p.cur.Start
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	block := &ast.Block{}
	for !p.curIs(token.RBRACE) {
		if p.curIs(token.EOF) {
			return nil, &Error{Message: "unexpected end of input in block", At: p.cur.Start}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	end := p.cur.Start
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	block.Start, block.End = start, end
	return block, nil
}

func (p *Parser) parseIf() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	test, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Test: test, Then: then}
	node.Start, node.End = start, then.End
	if p.curIs(token.ELSE) {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.curIs(token.IF) {
			inner, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			innerStart, end := inner.Span()
			node.Else = &ast.Block{Base: ast.Base{Start: innerStart, End: end}, Statements: []ast.Statement{inner}}
			node.End = end
		} else {
			els, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			node.Else = els
			node.End = els.End
		}
	}
	return node, nil
}

func (p *Parser) parseLoop() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Loop{Base: ast.Base{Start: start, End: body.End}, Body: body}, nil
}

func (p *Parser) parseWhile() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	test, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Base: ast.Base{Start: start, End: body.End}, Test: test, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	variable := &ast.Identifier{Base: ast.Base{Start: nameTok.Start, End: nameTok.End}, Name: nameTok.Value}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iter, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Base: ast.Base{Start: start, End: body.End}, Var: variable, Iter: iter, Body: body}, nil
}

func (p *Parser) parseGoto() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	call, ok := expr.(*ast.Call)
	if !ok {
		return nil, &Error{Message: "goto target must be a call expression", At: start}
	}
	end := p.cur.Start
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.Goto{Base: ast.Base{Start: start, End: end}, Call: call}, nil
}

func (p *Parser) parseReturn() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	node := &ast.Return{}
	if p.curIs(token.SEMI) {
		node.Start, node.End = start, p.cur.Start
		return node, p.consumeSemi()
	}
	value, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	node.Value = value
	node.Start, node.End = start, p.cur.Start
	return node, p.consumeSemi()
}

func (p *Parser) parseGlobal() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	var names []*ast.Identifier
	for {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, &ast.Identifier{Base: ast.Base{Start: nameTok.Start, End: nameTok.End}, Name: nameTok.Value})
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	end := p.cur.Start
	return &ast.Global{Base: ast.Base{Start: start, End: end}, Names: names}, p.consumeSemi()
}

func (p *Parser) parseDottedPath() ([]string, error) {
	var path []string
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	path = append(path, nameTok.Value)
	for p.curIs(token.DOT) {
		if err := p.next(); err != nil {
			return nil, err
		}
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		path = append(path, nameTok.Value)
	}
	return path, nil
}

func (p *Parser) parseImport() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	path, err := p.parseDottedPath()
	if err != nil {
		return nil, err
	}
	node := &ast.Import{Path: path}
	if p.curIs(token.AS) {
		if err := p.next(); err != nil {
			return nil, err
		}
		aliasTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		node.Alias = aliasTok.Value
	}
	node.Start, node.End = start, p.cur.Start
	return node, p.consumeSemi()
}

func (p *Parser) parseFromImport() (ast.Statement, error) {
	start := p.cur.Start
	if err := p.next(); err != nil {
		return nil, err
	}
	path, err := p.parseDottedPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IMPORT); err != nil {
		return nil, err
	}
	node := &ast.FromImport{Path: path}
	if p.curIs(token.ASTERISK) {
		if err := p.next(); err != nil {
			return nil, err
		}
		node.Star = true
	} else {
		for {
			nameTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			item := ast.ImportItem{Name: nameTok.Value}
			if p.curIs(token.AS) {
				if err := p.next(); err != nil {
					return nil, err
				}
				aliasTok, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}
				item.Alias = aliasTok.Value
			}
			node.Items = append(node.Items, item)
			if !p.curIs(token.COMMA) {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	node.Start, node.End = start, p.cur.Start
	return node, p.consumeSemi()
}

func (p *Parser) consumeSemi() error {
	_, err := p.expect(token.SEMI)
	return err
}

// parseSimpleOrAssignment parses an expression statement, which may turn out
// to be the left-hand side of an assignment.
func (p *Parser) parseSimpleOrAssignment() (ast.Statement, error) {
	start := p.cur.Start
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if op, ok := assignOps[p.cur.Kind]; ok {
		switch expr.(type) {
		case *ast.Identifier, *ast.Member:
		default:
			return nil, &Error{Message: "invalid assignment target", At: start}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		value, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		end := p.cur.Start
		if err := p.consumeSemi(); err != nil {
			return nil, err
		}
		return &ast.Assignment{Base: ast.Base{Start: start, End: end}, Target: expr, Op: op, Value: value}, nil
	}
	end := p.cur.Start
	if err := p.consumeSemi(); err != nil {
		return nil, err
	}
	return &ast.ExpressionStatement{Base: ast.Base{Start: start, End: end}, Expression: expr}, nil
}

// parseExpression implements precedence climbing: it parses a unary/atom
// term, then repeatedly folds in binary operators whose precedence is at
// least minPrec.
func (p *Parser) parseExpression(minPrec int) (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binaryPrecedence[p.cur.Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.cur
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		_, end := right.Span()
		start, _ := left.Span()
		left = &ast.Binary{Base: ast.Base{Start: start, End: end}, Op: string(opTok.Kind), Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	switch p.cur.Kind {
	case token.PLUS, token.MINUS, token.BANG:
		start := p.cur.Start
		op := p.cur.Kind
		if err := p.next(); err != nil {
			return nil, err
		}
		arg, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		_, end := arg.Span()
		return &ast.Unary{Base: ast.Base{Start: start, End: end}, Op: string(op), Arg: arg}, nil
	default:
		return p.parsePostfix()
	}
}

// parsePostfix parses an atom followed by any chain of call/member/index
// suffixes, which all bind tighter than any prefix or infix operator.
func (p *Parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		start, _ := expr.Span()
		switch p.cur.Kind {
		case token.DOT:
			if err := p.next(); err != nil {
				return nil, err
			}
			nameTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			prop := &ast.Identifier{Base: ast.Base{Start: nameTok.Start, End: nameTok.End}, Name: nameTok.Value}
			expr = &ast.Member{Base: ast.Base{Start: start, End: nameTok.End}, Object: expr, Property: prop, Kind: "."}
		case token.LBRACKET:
			if err := p.next(); err != nil {
				return nil, err
			}
			index, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			end := p.cur.Start
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			expr = &ast.Member{Base: ast.Base{Start: start, End: end}, Object: expr, Property: index, Kind: "[]"}
		case token.LPAREN:
			args, end, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.Call{Base: ast.Base{Start: start, End: end}, Callee: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expression, token.Location, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, token.Location{}, err
	}
	var args []ast.Expression
	for !p.curIs(token.RPAREN) {
		arg, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, token.Location{}, err
		}
		args = append(args, arg)
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, token.Location{}, err
		}
	}
	end := p.cur.Start
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, token.Location{}, err
	}
	return args, end, nil
}

func (p *Parser) parseAtom() (ast.Expression, error) {
	start := p.cur.Start
	switch p.cur.Kind {
	case token.INT:
		v := p.cur.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil, &Error{Message: fmt.Sprintf("invalid integer literal %q", v), At: start}
		}
		return &ast.Literal{Base: ast.Base{Start: start, End: start}, Value: n}, nil
	case token.FLOAT:
		v := p.cur.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return nil, &Error{Message: fmt.Sprintf("invalid float literal %q", v), At: start}
		}
		return &ast.Literal{Base: ast.Base{Start: start, End: start}, Value: f}, nil
	case token.STRING:
		v := p.cur.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Base: ast.Base{Start: start, End: start}, Value: v}, nil
	case token.TRUE, token.FALSE:
		v := p.cur.Kind == token.TRUE
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Base: ast.Base{Start: start, End: start}, Value: v}, nil
	case token.NULL:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Base: ast.Base{Start: start, End: start}, Value: nil}, nil
	case token.IDENT:
		name := p.cur.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Identifier{Base: ast.Base{Start: start, End: start}, Name: name}, nil
	case token.LPAREN:
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBRACE:
		return p.parseTable()
	case token.FUNC:
		return p.parseFunction(false)
	case token.PIPE:
		return p.parseClosure()
	default:
		return nil, &Error{Message: fmt.Sprintf("unexpected token %s %q", p.cur.Kind, p.cur.Value), At: start}
	}
}

func (p *Parser) parseFunction(isClosure bool) (ast.Expression, error) {
	start := p.cur.Start
	if err := p.next(); err != nil { // consume 'func'
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []*ast.Identifier
	for !p.curIs(token.RPAREN) {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		params = append(params, &ast.Identifier{Base: ast.Base{Start: nameTok.Start, End: nameTok.End}, Name: nameTok.Value})
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Base: ast.Base{Start: start, End: body.End}, Params: params, Body: body, IsClosure: isClosure}, nil
}

// parseClosure parses `|a, b| { body }`, the closure-literal shorthand that
// always captures the enclosing scope by reference (spec §4.1 closures).
func (p *Parser) parseClosure() (ast.Expression, error) {
	start := p.cur.Start
	if err := p.next(); err != nil { // consume '|'
		return nil, err
	}
	var params []*ast.Identifier
	for !p.curIs(token.PIPE) {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		params = append(params, &ast.Identifier{Base: ast.Base{Start: nameTok.Start, End: nameTok.End}, Name: nameTok.Value})
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.PIPE); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Base: ast.Base{Start: start, End: body.End}, Params: params, Body: body, IsClosure: true}, nil
}

// parseTable parses `{ prop, prop, … }`. A property without a leading
// `key:` is positional: the parser leaves Key nil and the compiler numbers
// it by position, matching an integer-keyed array literal.
func (p *Parser) parseTable() (ast.Expression, error) {
	start := p.cur.Start
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	table := &ast.Table{}
	for !p.curIs(token.RBRACE) {
		propStart := p.cur.Start
		first, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		prop := &ast.Property{Base: ast.Base{Start: propStart}}
		if p.curIs(token.COLON) {
			if err := p.next(); err != nil {
				return nil, err
			}
			value, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			prop.Key = first
			prop.Value = value
		} else {
			prop.Value = first
		}
		_, prop.End = prop.Value.Span()
		table.Properties = append(table.Properties, prop)
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	end := p.cur.Start
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	table.Start, table.End = start, end
	return table, nil
}
