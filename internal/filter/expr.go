package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrMismatchedParens reports an unclosed or unopened parenthesis.
	ErrMismatchedParens = errors.New("mismatched parentheses")

	// ErrSyntax reports any other malformed expression.
	ErrSyntax = errors.New("invalid expression")
)

// Node is a parsed boolean expression evaluated against serialized entries.
type Node interface {
	Eval(text string) bool
	String() string
}

// And matches when both operands match.
type And struct{ Left, Right Node }

// Or matches when either operand matches.
type Or struct{ Left, Right Node }

// Not inverts its operand.
type Not struct{ Operand Node }

// Term matches when Value occurs in the text, case-sensitively.
type Term struct{ Value string }

// MatchAll is the empty expression.
type MatchAll struct{}

func (n And) Eval(text string) bool    { return n.Left.Eval(text) && n.Right.Eval(text) }
func (n Or) Eval(text string) bool     { return n.Left.Eval(text) || n.Right.Eval(text) }
func (n Not) Eval(text string) bool    { return !n.Operand.Eval(text) }
func (n Term) Eval(text string) bool   { return strings.Contains(text, n.Value) }
func (MatchAll) Eval(text string) bool { return true }

func (n And) String() string  { return "(" + n.Left.String() + " AND " + n.Right.String() + ")" }
func (n Or) String() string   { return "(" + n.Left.String() + " OR " + n.Right.String() + ")" }
func (n Not) String() string  { return "NOT " + n.Operand.String() }
func (n Term) String() string { return strconv.Quote(n.Value) }
func (MatchAll) String() string {
	return "*"
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	value  string
	quoted bool
	pos    int
	end    int
}

func (t token) describe() string {
	switch t.kind {
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return strconv.Quote(t.value)
}

// lex splits an expression into tokens. Parentheses and whitespace bound
// words; double quotes make a literal term that may contain either.
func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated quote at %d", ErrSyntax, i)
			}
			tokens = append(tokens, token{kind: tokWord, value: string(runes[i+1 : end]), quoted: true, pos: i, end: end + 1})
			i = end + 1
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '(' && runes[i] != ')' && runes[i] != '"' {
				i++
			}
			word := string(runes[start:i])
			tok := token{kind: tokWord, value: word, pos: start, end: i}
			switch strings.ToUpper(word) {
			case "AND":
				tok.kind = tokAnd
			case "OR":
				tok.kind = tokOr
			case "NOT":
				tok.kind = tokNot
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

type parser struct {
	input  []rune
	tokens []token
	pos    int
}

// Parse builds the AST for an advanced expression. AND binds tighter than
// OR; both are left associative. Adjacent bare words form one term that keeps
// the whitespace between them. A quoted term stands alone. An empty
// expression parses to MatchAll.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return MatchAll{}, nil
	}

	p := &parser{input: []rune(input), tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.peek(); ok {
		if tok.kind == tokRParen {
			return nil, fmt.Errorf("%w: unexpected ')' at %d", ErrMismatchedParens, tok.pos)
		}
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.describe(), tok.pos)
	}
	return node, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) accept(kind tokenKind) bool {
	if tok, ok := p.peek(); ok && tok.kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}

	switch tok.kind {
	case tokNot:
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil

	case tokLParen:
		p.pos++
		if next, ok := p.peek(); ok && next.kind == tokRParen {
			return nil, fmt.Errorf("%w: empty group at %d", ErrSyntax, tok.pos)
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, fmt.Errorf("%w: '(' at %d is never closed", ErrMismatchedParens, tok.pos)
		}
		return inner, nil

	case tokRParen:
		return nil, fmt.Errorf("%w: unexpected ')' at %d", ErrMismatchedParens, tok.pos)

	case tokWord:
		p.pos++
		if tok.quoted {
			return Term{Value: tok.value}, nil
		}
		last := tok
		for {
			next, ok := p.peek()
			if !ok || next.kind != tokWord || next.quoted {
				break
			}
			last = next
			p.pos++
		}
		return Term{Value: string(p.input[tok.pos:last.end])}, nil
	}

	return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.describe(), tok.pos)
}
