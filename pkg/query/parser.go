// Package query parses text filter expressions such as
// `status>=400 AND level=error OR message~=timeout` into filter trees.
//
// Operators: = != < <= > >= ~= (contains) !~= (does not contain) =~ (regex)
// ^= (begins with) $= (ends with), the words CONTAINS MATCHES STARTS ENDS,
// and the functions exists(field) and missing(field). AND binds tighter
// than OR. NOT applies to a single condition and inverts its operator.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/google/uuid"
)

var (
	ErrEmpty    = errors.New("empty filter expression")
	ErrTooDeep  = errors.New("expression nests deeper than groups of rules")
	ErrNotGroup = errors.New("NOT applies to a single condition")
)

var symbolToOperator = map[string]string{
	"=":   operator.Equals,
	"!=":  operator.NotEquals,
	"<":   operator.Lt,
	"<=":  operator.Lte,
	">":   operator.Gt,
	">=":  operator.Gte,
	"~=":  operator.Contains,
	"!~=": operator.NotContains,
	"=~":  operator.Regex,
	"^=":  operator.BeginsWith,
	"$=":  operator.EndsWith,
}

var negated = map[string]string{
	operator.Equals:      operator.NotEquals,
	operator.NotEquals:   operator.Equals,
	operator.Lt:          operator.Gte,
	operator.Gte:         operator.Lt,
	operator.Gt:          operator.Lte,
	operator.Lte:         operator.Gt,
	operator.Contains:    operator.NotContains,
	operator.NotContains: operator.Contains,
	operator.IsNull:      operator.IsNotNull,
	operator.IsNotNull:   operator.IsNull,
}

// node is the parse tree before it is folded into two levels. A leaf holds
// a rule; a branch holds children joined by combinator.
type node struct {
	rule       *filter.Rule
	combinator filter.Combinator
	children   []node
}

// Parser parses a token stream.
// Grammar:
//
//	query     = or_expr
//	or_expr   = and_expr ("OR" and_expr)*
//	and_expr  = not_expr ("AND" not_expr)*
//	not_expr  = "NOT"? primary
//	primary   = "(" query ")" | func "(" field ")" | condition
//	condition = field operator value
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a new parser from tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) parse() (node, error) {
	n, err := p.parseOr()
	if err != nil {
		return node{}, err
	}
	if p.current().Type != TokenEOF {
		return node{}, fmt.Errorf("unexpected token '%s' at position %d", p.current().Value, p.current().Pos)
	}
	return n, nil
}

func (p *Parser) parseOr() (node, error) {
	return p.parseList(filter.Or, TokenOr, p.parseAnd)
}

func (p *Parser) parseAnd() (node, error) {
	return p.parseList(filter.And, TokenAnd, p.parseNot)
}

func (p *Parser) parseList(c filter.Combinator, sep TokenType, next func() (node, error)) (node, error) {
	first, err := next()
	if err != nil {
		return node{}, err
	}
	children := []node{first}
	for p.current().Type == sep {
		p.advance()
		n, err := next()
		if err != nil {
			return node{}, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return node{combinator: c, children: children}, nil
}

func (p *Parser) parseNot() (node, error) {
	if p.current().Type != TokenNot {
		return p.parsePrimary()
	}
	pos := p.current().Pos
	p.advance()
	inner, err := p.parsePrimary()
	if err != nil {
		return node{}, err
	}
	if inner.rule == nil {
		return node{}, fmt.Errorf("%w (position %d)", ErrNotGroup, pos)
	}
	op, ok := negated[inner.rule.Operator]
	if !ok {
		return node{}, fmt.Errorf("operator %q cannot be negated (position %d)", inner.rule.Operator, pos)
	}
	inner.rule.Operator = op
	return inner, nil
}

func (p *Parser) parsePrimary() (node, error) {
	switch p.current().Type {
	case TokenLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return node{}, err
		}
		if p.current().Type != TokenRParen {
			return node{}, fmt.Errorf("expected ')' at position %d", p.current().Pos)
		}
		p.advance()
		return inner, nil
	case TokenFunc:
		return p.parseFunc()
	}
	return p.parseCondition()
}

// parseFunc parses exists(field) and missing(field). The lexer has already
// checked the parentheses.
func (p *Parser) parseFunc() (node, error) {
	name := p.current().Value
	p.advance()
	p.advance() // (
	if p.current().Type != TokenField {
		return node{}, fmt.Errorf("expected field name in %s() at position %d", name, p.current().Pos)
	}
	field := p.current().Value
	p.advance()
	p.advance() // )

	op := operator.IsNotNull
	if name == "missing" {
		op = operator.IsNull
	}
	return node{rule: &filter.Rule{Field: field, Operator: op, Value: filter.Null}}, nil
}

func (p *Parser) parseCondition() (node, error) {
	if p.current().Type != TokenField {
		return node{}, fmt.Errorf("expected field at position %d, got '%s'", p.current().Pos, p.current().Value)
	}
	field := p.current().Value
	p.advance()

	if p.current().Type != TokenOperator {
		return node{}, fmt.Errorf("expected operator after field '%s' at position %d", field, p.current().Pos)
	}
	symbol := p.current().Value
	p.advance()

	if p.current().Type != TokenValue {
		return node{}, fmt.Errorf("expected value after operator at position %d", p.current().Pos)
	}
	tok := p.current()
	p.advance()

	return node{rule: &filter.Rule{Field: field, Operator: symbolToOperator[symbol], Value: toValue(tok)}}, nil
}

// toValue turns bare numeric literals into numbers. Quoted values and
// `null` stay text; only the operator decides null checks.
func toValue(tok Token) filter.Value {
	if !tok.Quoted {
		if n, err := strconv.ParseFloat(tok.Value, 64); err == nil {
			return filter.Number(n)
		}
	}
	return filter.Text(tok.Value)
}

// flatten merges branches into parents with the same combinator so that
// (a AND b) AND c becomes AND(a, b, c).
func flatten(n node) node {
	if n.rule != nil {
		return n
	}
	var children []node
	for _, c := range n.children {
		c = flatten(c)
		if c.rule == nil && c.combinator == n.combinator {
			children = append(children, c.children...)
			continue
		}
		children = append(children, c)
	}
	n.children = children
	return n
}

// fold maps a parse tree onto the root/group/rule levels of filter.Query.
func fold(n node, newID func() string) (filter.Query, error) {
	n = flatten(n)
	q := filter.Query{ID: filter.RootID, Combinator: filter.Or, Rules: []filter.RuleGroup{}}

	withID := func(r filter.Rule) filter.Rule {
		r.ID = newID()
		return r
	}

	if n.rule != nil {
		q.Rules = append(q.Rules, filter.RuleGroup{ID: newID(), Combinator: filter.And, Rules: []filter.Rule{withID(*n.rule)}})
		return q, nil
	}

	q.Combinator = n.combinator
	for _, child := range n.children {
		group := filter.RuleGroup{ID: newID(), Combinator: filter.And}
		if child.rule != nil {
			group.Rules = []filter.Rule{withID(*child.rule)}
			q.Rules = append(q.Rules, group)
			continue
		}
		group.Combinator = child.combinator
		for _, leaf := range child.children {
			if leaf.rule == nil {
				return filter.Query{}, ErrTooDeep
			}
			group.Rules = append(group.Rules, withID(*leaf.rule))
		}
		q.Rules = append(q.Rules, group)
	}
	return q, nil
}

// Parse parses a full expression into a filter tree.
func Parse(expr string) (filter.Query, error) {
	return parseWith(expr, uuid.NewString)
}

func parseWith(expr string, newID func() string) (filter.Query, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return filter.Query{}, ErrEmpty
	}

	tokens, err := NewLexer(expr).Tokenize()
	if err != nil {
		return filter.Query{}, fmt.Errorf("lexer error: %w", err)
	}
	n, err := NewParser(tokens).parse()
	if err != nil {
		return filter.Query{}, fmt.Errorf("parser error: %w", err)
	}
	return fold(n, newID)
}

// ParseRule parses a single condition such as `status>=400`.
func ParseRule(expr string) (filter.Rule, error) {
	q, err := Parse(expr)
	if err != nil {
		return filter.Rule{}, err
	}
	if q.RuleCount() != 1 {
		return filter.Rule{}, fmt.Errorf("expected a single condition, got %d: %s", q.RuleCount(), expr)
	}
	return q.Rules[0].Rules[0], nil
}

// ParseFilterFlags parses repeated -f flags. Each flag may be a full
// expression; the flags are ANDed together.
func ParseFilterFlags(exprs []string) (filter.Query, error) {
	return parseFlagsWith(exprs, uuid.NewString)
}

func parseFlagsWith(exprs []string, newID func() string) (filter.Query, error) {
	switch len(exprs) {
	case 0:
		return filter.EmptyQuery(), nil
	case 1:
		return parseWith(exprs[0], newID)
	}
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		if strings.TrimSpace(e) == "" {
			return filter.Query{}, ErrEmpty
		}
		parts[i] = "(" + e + ")"
	}
	return parseWith(strings.Join(parts, " AND "), newID)
}

// Compile parses the flag style expressions, ANDed, and commits them
// through a builder typed by fields. It returns nil when exprs is empty.
func Compile(fields []backend.Field, opts filter.Options, exprs ...string) (*filter.AppliedQuery, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	q, err := ParseFilterFlags(exprs)
	if err != nil {
		return nil, err
	}
	b := filter.NewBuilder(fields, opts)
	b.Load(q)
	return b.Apply()
}

// Matcher compiles exprs into a client side row predicate typed by fields.
// It returns nil when exprs is empty.
func Matcher(fields []backend.Field, exprs ...string) (func(backend.Row) bool, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	q, err := ParseFilterFlags(exprs)
	if err != nil {
		return nil, err
	}
	return func(row backend.Row) bool { return filter.MatchQuery(q, row, fields) }, nil
}
