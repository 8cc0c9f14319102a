package router

import (
	"fmt"
	"strings"

	"github.com/rhuss/duplex/pkg/api"
)

// Expr is a parsed boolean tag expression. Implementations are Leaf, And
// and Or; they are immutable once built.
type Expr interface {
	// Eval reports whether the presented set satisfies the expression.
	Eval(set api.TagSet) bool
	String() string
}

// Leaf requires a single tag.
type Leaf struct {
	Tag string
}

func (l Leaf) Eval(set api.TagSet) bool { return set.Has(l.Tag) }
func (l Leaf) String() string           { return l.Tag }

// And requires both operands.
type And struct {
	Left, Right Expr
}

func (a And) Eval(set api.TagSet) bool { return a.Left.Eval(set) && a.Right.Eval(set) }
func (a And) String() string           { return "(" + a.Left.String() + " & " + a.Right.String() + ")" }

// Or requires either operand.
type Or struct {
	Left, Right Expr
}

func (o Or) Eval(set api.TagSet) bool { return o.Left.Eval(set) || o.Right.Eval(set) }
func (o Or) String() string           { return "(" + o.Left.String() + " | " + o.Right.String() + ")" }

// evalExpr treats a nil expression as no requirement.
func evalExpr(e Expr, set api.TagSet) bool {
	return e == nil || e.Eval(set)
}

// ParseExpr parses a tag expression over &, | and parentheses. & binds
// tighter than |. Tags consist of letters, digits and the characters
// "_-.:". An empty or blank source yields a nil Expr, meaning no
// requirement.
func ParseExpr(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	p := &exprParser{src: src}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return e, nil
}

// MustParseExpr is like ParseExpr but panics on error. It is meant for
// expressions fixed at compile time.
func MustParseExpr(src string) Expr {
	e, err := ParseExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.consume('|') {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.consume('&') {
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseFactor() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of expression")
	}
	if p.consume('(') {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.consume(')') {
			return nil, p.errorf("missing closing parenthesis")
		}
		return e, nil
	}
	start := p.pos
	for p.pos < len(p.src) && isTagChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, p.errorf("expected tag, found %q", p.src[p.pos])
	}
	return Leaf{Tag: p.src[start:p.pos]}, nil
}

func (p *exprParser) consume(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("tag expression %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func isTagChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '.' || c == ':':
		return true
	}
	return false
}
