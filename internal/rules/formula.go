// internal/rules/formula.go
package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Arithmetic formulas for calculate actions.
 *
 * Formulas are templates like
 *
 *	{vitals.weight} / (({vitals.height}/100) * ({vitals.height}/100))
 *
 * parsed by a small recursive-descent parser into an expression tree. Nothing
 * is ever executed as code: the only operations are + - * / unary minus and
 * parentheses over decimal literals and {field.path} placeholders.
 *
 * Grammar:
 *	expr    := term (("+" | "-") term)*
 *	term    := unary (("*" | "/") unary)*
 *	unary   := ("+" | "-") unary | primary
 *	primary := number | "{" path "}" | "(" expr ")"
 *
 * Placeholder contract: every placeholder must resolve to a number (numeric
 * type or fully numeric string). A missing, null or non-numeric field aborts
 * the whole calculation; it is never substituted with 0. In a clinical form a
 * silently zeroed input produces a plausible-looking wrong value (BMI of 0).
 *
 * Division by zero and non-finite results also abort.
 */

// Formula is a parsed calculate expression.
type Formula struct {
	Source string
	Fields []string // placeholder paths in order of appearance, deduplicated
	root   exprNode
}

type exprNode interface {
	eval(data types.DataContext) (float64, error)
}

type numberNode float64

type fieldNode string

type unaryNode struct {
	op      byte
	operand exprNode
}

type binaryNode struct {
	op          byte
	left, right exprNode
}

func (n numberNode) eval(types.DataContext) (float64, error) {
	return float64(n), nil
}

func (n fieldNode) eval(data types.DataContext) (float64, error) {
	resolved := ResolvePath(data, string(n))
	if !resolved.Found {
		return 0, fmt.Errorf("{%s}: %w", string(n), types.ErrFieldNotFound)
	}
	v, err := ToNumber(resolved.Value)
	if err != nil {
		return 0, fmt.Errorf("{%s}: %w", string(n), err)
	}
	return v, nil
}

func (n unaryNode) eval(data types.DataContext) (float64, error) {
	v, err := n.operand.eval(data)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

func (n binaryNode) eval(data types.DataContext) (float64, error) {
	l, err := n.left.eval(data)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(data)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, types.ErrDivisionByZero
		}
		return l / r, nil
	}
}

// ParseFormula parses src. Errors wrap ErrFormulaSyntax with the byte offset.
func ParseFormula(src string) (*Formula, error) {
	p := &formulaParser{src: src, seen: map[string]bool{}}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: empty formula", types.ErrFormulaSyntax)
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return &Formula{Source: src, Fields: p.fields, root: root}, nil
}

// Evaluate computes the formula against data.
func (f *Formula) Evaluate(data types.DataContext) (float64, error) {
	v, err := f.root.eval(data)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, types.ErrNonFiniteResult
	}
	return v, nil
}

// Calculate parses and evaluates src in one step.
func Calculate(src string, data types.DataContext) (float64, error) {
	f, err := ParseFormula(src)
	if err != nil {
		return 0, err
	}
	return f.Evaluate(data)
}

type formulaParser struct {
	src    string
	pos    int
	fields []string
	seen   map[string]bool
}

func (p *formulaParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", types.ErrFormulaSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

// peek returns the next non-space byte, 0 at end of input.
func (p *formulaParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) parseExpr() (exprNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseTerm() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseUnary() (exprNode, error) {
	if op := p.peek(); op == '-' || op == '+' {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *formulaParser) parsePrimary() (exprNode, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of formula")
	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case c == '{':
		return p.parsePlaceholder()
	case c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *formulaParser) parsePlaceholder() (exprNode, error) {
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return nil, p.errorf("unterminated placeholder")
	}
	path := strings.TrimSpace(p.src[p.pos+1 : p.pos+end])
	if _, err := ParsePath(path); err != nil {
		return nil, p.errorf("placeholder: %v", err)
	}
	p.pos += end + 1
	if !p.seen[path] {
		p.seen[path] = true
		p.fields = append(p.fields, path)
	}
	return fieldNode(path), nil
}

func (p *formulaParser) parseNumber() (exprNode, error) {
	start := p.pos
	p.pos += countDigits(p.src[p.pos:])
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		p.pos += countDigits(p.src[p.pos:])
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		j := p.pos + 1
		if j < len(p.src) && (p.src[j] == '+' || p.src[j] == '-') {
			j++
		}
		if n := countDigits(p.src[j:]); n > 0 {
			p.pos = j + n
		}
	}
	token := p.src[start:p.pos]
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("invalid number %q", token)
	}
	return numberNode(v), nil
}
