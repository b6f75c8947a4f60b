package sparql

import (
	"strings"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// parseExpr parses a full SPARQL expression, following the grammar's
// precedence levels top-down: ConditionalOr > ConditionalAnd >
// ValueLogical (relational) > Additive > Multiplicative > Unary >
// Primary.
func (p *parser) parseExpr() (algebra.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (algebra.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenPipePipe); !ok {
			break
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = algebra.Binary{Op: algebra.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (algebra.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenAmpAmp); !ok {
			break
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = algebra.Binary{Op: algebra.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (algebra.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var op algebra.BinOp
	switch p.tok.Kind {
	case tokenEqual:
		op = algebra.OpEqual
	case tokenBangEqual:
		op = algebra.OpNotEqual
	case tokenLess:
		op = algebra.OpLess
	case tokenGreater:
		op = algebra.OpGreater
	case tokenLessEq:
		op = algebra.OpLessEq
	case tokenGreaterEq:
		op = algebra.OpGreaterEq
	default:
		if p.kw("IN") {
			p.advance()
			list, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			return algebra.In{Expr: left, List: list}, nil
		}
		if p.kw("NOT") {
			nxt := p.peekNext()
			if nxt.Kind == tokenKeyword && strings.EqualFold(nxt.Raw, "IN") {
				p.advance() // NOT
				p.advance() // IN
				list, err := p.parseExprList()
				if err != nil {
					return nil, err
				}
				return algebra.In{Expr: left, List: list, Negated: true}, nil
			}
		}
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return algebra.Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseExprList() ([]algebra.Expr, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	var out []algebra.Expr
	if p.tok.Kind != tokenRParen {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			out = append(out, e)
			if _, ok := p.accept(tokenComma); !ok {
				break
			}
		}
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) parseAdditive() (algebra.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op algebra.BinOp
		switch p.tok.Kind {
		case tokenPlus:
			op = algebra.OpAdd
		case tokenMinus:
			op = algebra.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = algebra.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (algebra.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op algebra.BinOp
		switch p.tok.Kind {
		case tokenStar:
			op = algebra.OpMul
		case tokenSlash:
			op = algebra.OpDiv
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = algebra.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (algebra.Expr, error) {
	switch p.tok.Kind {
	case tokenBang:
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return algebra.Unary{Op: algebra.OpNot, Expr: inner}, nil
	case tokenPlus:
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return algebra.Unary{Op: algebra.OpUnaryPlus, Expr: inner}, nil
	case tokenMinus:
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return algebra.Unary{Op: algebra.OpUnaryMinus, Expr: inner}, nil
	}
	return p.parsePrimaryExpr()
}

// parsePrimaryExpr handles BrackettedExpression, BuiltInCall,
// IRIrefOrFunction, RDFLiteral, NumericLiteral, BooleanLiteral, Var,
// and Aggregate.
func (p *parser) parsePrimaryExpr() (algebra.Expr, error) {
	switch {
	case p.tok.Kind == tokenLParen:
		return p.parseBracketedExpr()
	case p.tok.Kind == tokenVar:
		v := algebra.Var(p.tok.Text)
		p.advance()
		return algebra.ExprVar{Var: v}, nil
	case p.kw("NOT"):
		p.advance()
		if err := p.expectKw("EXISTS"); err != nil {
			return nil, err
		}
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return algebra.Exists{Pattern: pat, Negated: true}, nil
	case p.kw("EXISTS"):
		p.advance()
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return algebra.Exists{Pattern: pat}, nil
	case p.kw("BOUND"):
		p.advance()
		if _, err := p.expect(tokenLParen, "'('"); err != nil {
			return nil, err
		}
		v, err := p.expect(tokenVar, "variable")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return algebra.Bound{Var: algebra.Var(v.Text)}, nil
	case p.kw("IF"):
		p.advance()
		if _, err := p.expect(tokenLParen, "'('"); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenComma, "','"); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenComma, "','"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return algebra.If{Cond: cond, Then: then, Else: els}, nil
	case p.kw("COALESCE"):
		p.advance()
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return algebra.Coalesce{Args: args}, nil
	case p.isAggregateKeyword():
		return p.parseAggregate()
	case p.tok.Kind == tokenKeyword && strings.ToUpper(p.tok.Raw) == "TRUE":
		p.advance()
		return algebra.ExprLit{Term: term.NewTypedLiteral("true", term.XSDboolean)}, nil
	case p.tok.Kind == tokenKeyword && strings.ToUpper(p.tok.Raw) == "FALSE":
		p.advance()
		return algebra.ExprLit{Term: term.NewTypedLiteral("false", term.XSDboolean)}, nil
	case p.tok.Kind == tokenInteger:
		t := p.tok
		p.advance()
		return algebra.ExprLit{Term: term.NewTypedLiteral(t.Text, term.XSDinteger)}, nil
	case p.tok.Kind == tokenDecimal:
		t := p.tok
		p.advance()
		return algebra.ExprLit{Term: term.NewTypedLiteral(t.Text, term.XSDdecimal)}, nil
	case p.tok.Kind == tokenDouble:
		t := p.tok
		p.advance()
		return algebra.ExprLit{Term: term.NewTypedLiteral(t.Text, term.XSDdouble)}, nil
	case p.tok.Kind == tokenString:
		tv, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return algebra.ExprLit{Term: tv.Bound}, nil
	case p.tok.Kind == tokenIRIRef, p.tok.Kind == tokenPNameLN, p.tok.Kind == tokenPNameNS:
		return p.parseIRIrefOrFunction()
	case p.tok.Kind == tokenIdent || p.tok.Kind == tokenKeyword:
		return p.parseFunctionCall()
	}
	return nil, p.errorf("expected an expression, got %q", p.tok.Raw)
}

func (p *parser) isAggregateKeyword() bool {
	if p.tok.Kind != tokenKeyword {
		return false
	}
	switch strings.ToUpper(p.tok.Raw) {
	case "COUNT", "SUM", "MIN", "MAX", "AVG", "SAMPLE", "GROUP_CONCAT":
		return true
	}
	return false
}

func (p *parser) parseAggregate() (algebra.Expr, error) {
	name := strings.ToUpper(p.tok.Raw)
	p.advance()
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	distinct := p.acceptKw("DISTINCT")
	var arg algebra.Expr
	if name == "COUNT" && p.tok.Kind == tokenStar {
		p.advance()
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arg = e
	}
	sep := " "
	for p.tok.Kind == tokenComma {
		p.advance() // GROUP_CONCAT's SEPARATOR option, comma-led in some grammars' informal extension
		if err := p.expectKw("SEPARATOR"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenEqual, "'='"); err != nil {
			return nil, err
		}
		t, err := p.expect(tokenString, "string")
		if err != nil {
			return nil, err
		}
		sep = t.Text
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	var fn algebra.AggFunc
	switch name {
	case "COUNT":
		fn = algebra.AggCount
	case "SUM":
		fn = algebra.AggSum
	case "MIN":
		fn = algebra.AggMin
	case "MAX":
		fn = algebra.AggMax
	case "AVG":
		fn = algebra.AggAvg
	case "SAMPLE":
		fn = algebra.AggSample
	case "GROUP_CONCAT":
		fn = algebra.AggGroupConcat
	}
	// Returned as an AggregateExpr so it composes inside ordinary
	// expression trees (SELECT, HAVING, ORDER BY); the optimizer walks
	// those trees to lift each AggregateExpr into Group.Aggregates.
	return algebra.AggregateExpr{Func: fn, Arg: arg, Distinct: distinct, Separator: sep}, nil
}

func (p *parser) parseIRIrefOrFunction() (algebra.Expr, error) {
	t := p.tok
	p.advance()
	iri, err := p.resolveIRI(t)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == tokenLParen {
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return algebra.Func{Name: string(iri), Args: args}, nil
	}
	return algebra.ExprLit{Term: iri}, nil
}

func (p *parser) parseFunctionCall() (algebra.Expr, error) {
	name := strings.ToUpper(p.tok.Raw)
	p.advance()
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return algebra.Func{Name: name, Args: args}, nil
}
