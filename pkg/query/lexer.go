package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenField
	TokenOperator
	TokenValue
	TokenAnd
	TokenOr
	TokenNot
	TokenLParen
	TokenRParen
	TokenFunc
)

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
	Pos   int
	// Quoted is set on values written between quotes; they are never numbers.
	Quoted bool
}

// functions are the unary predicates written `name(field)`.
var functions = []string{"exists", "missing"}

// symbolOperators is checked in order, longest first.
var symbolOperators = []string{"!~=", "~=", "=~", "^=", "$=", "!=", ">=", "<=", ">", "<", "="}

// keywordOperators map word operators to their symbol.
var keywordOperators = map[string]string{
	"CONTAINS": "~=",
	"MATCHES":  "=~",
	"STARTS":   "^=",
	"ENDS":     "$=",
}

// Lexer tokenizes a query expression
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize converts the input string into a slice of tokens
func (l *Lexer) Tokenize() ([]Token, error) {
	l.tokens = nil
	l.pos = 0

	for l.pos < len(l.input) {
		if unicode.IsSpace(rune(l.input[l.pos])) {
			l.pos++
			continue
		}

		if l.input[l.pos] == '(' {
			l.emit(TokenLParen, "(", l.pos)
			l.pos++
			continue
		}
		if l.input[l.pos] == ')' {
			l.emit(TokenRParen, ")", l.pos)
			l.pos++
			continue
		}

		startPos := l.pos
		word := l.readKeyword()
		switch upper := strings.ToUpper(word); {
		case upper == "AND" || upper == "&&":
			l.emit(TokenAnd, word, startPos)
			continue
		case upper == "OR" || upper == "||":
			l.emit(TokenOr, word, startPos)
			continue
		case upper == "NOT" || upper == "!":
			l.emit(TokenNot, word, startPos)
			continue
		case isFunction(word) && l.peekNonSpace() == '(':
			l.emit(TokenFunc, strings.ToLower(word), startPos)
			if err := l.readFuncArg(); err != nil {
				return nil, err
			}
			continue
		}
		l.pos = startPos

		if err := l.readCondition(); err != nil {
			return nil, err
		}
	}

	l.emit(TokenEOF, "", l.pos)
	return l.tokens, nil
}

func (l *Lexer) emit(t TokenType, value string, pos int) {
	l.tokens = append(l.tokens, Token{Type: t, Value: value, Pos: pos})
}

func isFunction(word string) bool {
	for _, f := range functions {
		if strings.EqualFold(f, word) {
			return true
		}
	}
	return false
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '-' || ch == '.'
}

func (l *Lexer) skipSpaces() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) peekNonSpace() byte {
	p := l.pos
	for p < len(l.input) && unicode.IsSpace(rune(l.input[p])) {
		p++
	}
	if p < len(l.input) {
		return l.input[p]
	}
	return 0
}

// readKeyword reads a combinator symbol or an identifier. AND, OR and NOT
// only count as keywords when followed by whitespace or a parenthesis.
func (l *Lexer) readKeyword() string {
	startPos := l.pos

	if strings.HasPrefix(l.input[l.pos:], "&&") || strings.HasPrefix(l.input[l.pos:], "||") {
		l.pos += 2
		return l.input[startPos:l.pos]
	}
	if l.input[l.pos] == '!' && l.pos+1 < len(l.input) {
		next := l.input[l.pos+1]
		if next == '(' || unicode.IsSpace(rune(next)) {
			l.pos++
			return "!"
		}
	}

	for l.pos < len(l.input) && isIdentChar(rune(l.input[l.pos])) {
		l.pos++
	}
	word := l.input[startPos:l.pos]

	switch strings.ToUpper(word) {
	case "AND", "OR", "NOT":
		if l.pos >= len(l.input) || unicode.IsSpace(rune(l.input[l.pos])) || l.input[l.pos] == '(' {
			return word
		}
		return ""
	}
	return word
}

// readCondition reads a condition like "field>=value" or "field >= value"
func (l *Lexer) readCondition() error {
	startPos := l.pos
	var field string

	if l.input[l.pos] == '"' {
		quoted, err := l.readQuotedString()
		if err != nil {
			return err
		}
		field = quoted
	} else {
		for l.pos < len(l.input) && isIdentChar(rune(l.input[l.pos])) {
			l.pos++
		}
		if l.pos == startPos {
			return fmt.Errorf("expected field name at position %d", l.pos)
		}
		field = l.input[startPos:l.pos]
	}
	l.emit(TokenField, field, startPos)

	l.skipSpaces()
	opStart := l.pos
	op := l.readOperator()
	if op == "" {
		return fmt.Errorf("expected operator after field '%s' at position %d", field, l.pos)
	}
	l.emit(TokenOperator, op, opStart)

	valueStart, value, quoted, err := l.readValue()
	if err != nil {
		return err
	}
	l.tokens = append(l.tokens, Token{Type: TokenValue, Value: value, Pos: valueStart, Quoted: quoted})
	return nil
}

// readOperator reads a symbol operator or one of the word operators.
func (l *Lexer) readOperator() string {
	startPos := l.pos
	for l.pos < len(l.input) && unicode.IsLetter(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos > startPos {
		if sym, ok := keywordOperators[strings.ToUpper(l.input[startPos:l.pos])]; ok {
			l.skipSpaces()
			return sym
		}
		l.pos = startPos
	}

	for _, op := range symbolOperators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return op
		}
	}
	return ""
}

// readValue reads a quoted or bare value.
func (l *Lexer) readValue() (int, string, bool, error) {
	l.skipSpaces()
	if l.pos >= len(l.input) {
		return l.pos, "", false, fmt.Errorf("expected value at position %d", l.pos)
	}

	startPos := l.pos
	if l.input[l.pos] == '"' || l.input[l.pos] == '\'' {
		v, err := l.readQuotedString()
		return startPos, v, true, err
	}

	for l.pos < len(l.input) {
		ch := rune(l.input[l.pos])
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' {
			break
		}
		if strings.HasPrefix(l.input[l.pos:], "&&") || strings.HasPrefix(l.input[l.pos:], "||") {
			break
		}
		l.pos++
	}
	if l.pos == startPos {
		return l.pos, "", false, fmt.Errorf("expected value at position %d", l.pos)
	}
	return startPos, l.input[startPos:l.pos], false, nil
}

// readQuotedString reads a string between matching quotes. A backslash
// escapes the next character.
func (l *Lexer) readQuotedString() (string, error) {
	quote := l.input[l.pos]
	l.pos++

	startPos := l.pos
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			l.pos++
			return sb.String(), nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return "", fmt.Errorf("unterminated quoted string starting at position %d", startPos-1)
}

// readFuncArg reads the (field) part of exists(field).
func (l *Lexer) readFuncArg() error {
	l.skipSpaces()
	l.emit(TokenLParen, "(", l.pos)
	l.pos++
	l.skipSpaces()

	fieldStart := l.pos
	for l.pos < len(l.input) && isIdentChar(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos == fieldStart {
		return fmt.Errorf("expected field name at position %d", l.pos)
	}
	l.emit(TokenField, l.input[fieldStart:l.pos], fieldStart)
	l.skipSpaces()

	if l.pos >= len(l.input) || l.input[l.pos] != ')' {
		return fmt.Errorf("expected ')' at position %d", l.pos)
	}
	l.emit(TokenRParen, ")", l.pos)
	l.pos++
	return nil
}
