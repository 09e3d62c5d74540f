package query

import (
	"fmt"
	"testing"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer(t *testing.T) {
	cond := []TokenType{TokenField, TokenOperator, TokenValue}
	join := func(parts ...[]TokenType) []TokenType {
		var out []TokenType
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{"simple condition", "level=error", join(cond, []TokenType{TokenEOF})},
		{"condition with spaces", "level = error", join(cond, []TokenType{TokenEOF})},
		{"AND expression", "level=error AND status>=400", join(cond, []TokenType{TokenAnd}, cond, []TokenType{TokenEOF})},
		{"OR expression", "level=error or level=warn", join(cond, []TokenType{TokenOr}, cond, []TokenType{TokenEOF})},
		{"symbolic", "a=1 && b=2 || c=3", join(cond, []TokenType{TokenAnd}, cond, []TokenType{TokenOr}, cond, []TokenType{TokenEOF})},
		{"NOT expression", "NOT level=debug", join([]TokenType{TokenNot}, cond, []TokenType{TokenEOF})},
		{"parentheses", "(level=error)", join([]TokenType{TokenLParen}, cond, []TokenType{TokenRParen, TokenEOF})},
		{"function", "exists(trace_id)", []TokenType{TokenFunc, TokenLParen, TokenField, TokenRParen, TokenEOF}},
		{"word operator", "message CONTAINS timeout", join(cond, []TokenType{TokenEOF})},
		{"quoted field", `"user id"=7`, join(cond, []TokenType{TokenEOF})},
		{"field named like a keyword prefix", "android=1", join(cond, []TokenType{TokenEOF})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewLexer(tt.input).Tokenize()
			require.NoError(t, err)
			types := make([]TokenType, len(tokens))
			for i, tok := range tokens {
				types[i] = tok.Type
			}
			assert.Equal(t, tt.expected, types)
		})
	}
}

func TestLexer_Values(t *testing.T) {
	tokens, err := NewLexer(`msg='it\'s down' AND code=042`).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, "it's down", tokens[2].Value)
	assert.True(t, tokens[2].Quoted)
	assert.Equal(t, "042", tokens[6].Value)
	assert.False(t, tokens[6].Quoted)

	_, err = NewLexer(`msg="open`).Tokenize()
	assert.Error(t, err)
}

func seq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		expr  string
		field string
		op    string
		value filter.Value
	}{
		{"status>=400", "status", operator.Gte, filter.Number(400)},
		{"status != 200", "status", operator.NotEquals, filter.Number(200)},
		{"duration<0.5", "duration", operator.Lt, filter.Number(0.5)},
		{`code="404"`, "code", operator.Equals, filter.Text("404")},
		{"message~=timeout", "message", operator.Contains, filter.Text("timeout")},
		{"message!~=debug", "message", operator.NotContains, filter.Text("debug")},
		{"message=~^err.*", "message", operator.Regex, filter.Text("^err.*")},
		{"path^=/api", "path", operator.BeginsWith, filter.Text("/api")},
		{"host$=.io", "host", operator.EndsWith, filter.Text(".io")},
		{"message contains 'connection reset'", "message", operator.Contains, filter.Text("connection reset")},
		{"exists(trace_id)", "trace_id", operator.IsNotNull, filter.Null},
		{"missing(trace_id)", "trace_id", operator.IsNull, filter.Null},
		{"NOT level=debug", "level", operator.NotEquals, filter.Text("debug")},
		{"NOT status<500", "status", operator.Gte, filter.Number(500)},
		{"NOT exists(x)", "x", operator.IsNull, filter.Null},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := ParseRule(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.field, r.Field)
			assert.Equal(t, tt.op, r.Operator)
			assert.Equal(t, tt.value, r.Value)
			assert.NotEmpty(t, r.ID)
		})
	}
}

func TestParseRule_Errors(t *testing.T) {
	for _, expr := range []string{"", "level", "=value", "a=1 AND b=2", "NOT (a=1 OR b=2)", "NOT a=~x", "(a=1"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseRule(expr)
			assert.Error(t, err)
		})
	}
	_, err := ParseRule("  ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParse_Shapes(t *testing.T) {
	t.Run("AND binds tighter than OR", func(t *testing.T) {
		q, err := parseWith("a=1 AND b=2 OR c~=x", seq())
		require.NoError(t, err)
		assert.Equal(t, filter.Or, q.Combinator)
		require.Len(t, q.Rules, 2)
		assert.Equal(t, filter.And, q.Rules[0].Combinator)
		assert.Len(t, q.Rules[0].Rules, 2)
		assert.Len(t, q.Rules[1].Rules, 1)
		assert.Equal(t, `(("a" = 1) AND ("b" = 2)) OR (("c" LIKE '%x%'))`, filter.ParseQuery(q, nil))
	})

	t.Run("parenthesised OR under AND", func(t *testing.T) {
		q, err := parseWith("(level=error OR level=warn) AND status>=500", seq())
		require.NoError(t, err)
		assert.Equal(t, filter.And, q.Combinator)
		require.Len(t, q.Rules, 2)
		assert.Equal(t, filter.Or, q.Rules[0].Combinator)
		assert.Equal(t, `(("level" = 'error') OR ("level" = 'warn')) AND (("status" >= 500))`, filter.ParseQuery(q, nil))
	})

	t.Run("same combinator nesting flattens", func(t *testing.T) {
		q, err := parseWith("(a=1 AND b=2) AND c=3", seq())
		require.NoError(t, err)
		assert.Equal(t, filter.And, q.Combinator)
		assert.Len(t, q.Rules, 3)
	})

	t.Run("ids are unique", func(t *testing.T) {
		q, err := parseWith("a=1 AND b=2 OR c=3", seq())
		require.NoError(t, err)
		seen := map[string]bool{q.ID: true}
		for _, g := range q.Rules {
			assert.False(t, seen[g.ID])
			seen[g.ID] = true
			for _, r := range g.Rules {
				assert.False(t, seen[r.ID])
				seen[r.ID] = true
			}
		}
		assert.Len(t, seen, 6)
	})

	t.Run("too deep", func(t *testing.T) {
		_, err := parseWith("(a=1 OR (b=2 AND c=3)) AND d=4", seq())
		assert.ErrorIs(t, err, ErrTooDeep)
	})
}

func TestParseFilterFlags(t *testing.T) {
	q, err := parseFlagsWith(nil, seq())
	require.NoError(t, err)
	assert.True(t, q.IsEmpty())

	q, err = parseFlagsWith([]string{"level=error", "status>=500"}, seq())
	require.NoError(t, err)
	assert.Equal(t, `(("level" = 'error')) AND (("status" >= 500))`, filter.ParseQuery(q, nil))

	q, err = parseFlagsWith([]string{"level=error OR level=warn", "app=api"}, seq())
	require.NoError(t, err)
	assert.Equal(t, `(("level" = 'error') OR ("level" = 'warn')) AND (("app" = 'api'))`, filter.ParseQuery(q, nil))

	_, err = parseFlagsWith([]string{"a=1", " "}, seq())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFormat_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single", "level=error", `level="error"`},
		{"number", "status >= 500", "status>=500"},
		{"and", "level=error AND status>=500", `level="error" AND status>=500`},
		{"groups", "(a=1 OR b=2) AND c CONTAINS x", `(a=1 OR b=2) AND c~="x"`},
		{"functions", "exists(trace_id) OR missing(span)", "exists(trace_id) OR missing(span)"},
		{"quoting", `"user id"='say "hi"'`, `"user id"="say \"hi\""`},
		{"negation", "NOT message ~= timeout", `message!~="timeout"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			out := Format(q)
			assert.Equal(t, tt.expected, out)

			again, err := Parse(out)
			require.NoError(t, err)
			assert.Equal(t, out, Format(again), "formatting is stable")
		})
	}

	assert.Equal(t, "", Format(filter.EmptyQuery()))
	sym, ok := Symbol(operator.BeginsWith)
	assert.True(t, ok)
	assert.Equal(t, "^=", sym)
}

func TestCompile(t *testing.T) {
	applied, err := Compile(nil, filter.Options{})
	require.NoError(t, err)
	assert.Nil(t, applied)

	fields := []backend.Field{{Name: "status", DataType: "Int64"}, {Name: "level", DataType: "Utf8"}}
	applied, err = Compile(fields, filter.Options{}, "level=error", "status>=500")
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Contains(t, applied.Where, `"level" = 'error'`)
	assert.Contains(t, applied.Where, `"status" >= 500`)
	assert.Equal(t, 2, applied.Query.RuleCount())

	_, err = Compile(fields, filter.Options{}, "nope=1")
	var stale *filter.StaleRulesError
	assert.ErrorAs(t, err, &stale)
}
