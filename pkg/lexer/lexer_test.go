package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lucy/pkg/token"
)

func allTokens(t *testing.T, input string) []token.Token {
	t.Helper()
	l := New(input)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err, "lexing %q", input)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := allTokens(t, "loop while for in goto global from as is and or null true false banana")
	kinds := make([]token.Kind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	want := []token.Kind{
		token.LOOP, token.WHILE, token.FOR, token.IN, token.GOTO, token.GLOBAL,
		token.FROM, token.AS, token.IS, token.AND, token.OR, token.NULL,
		token.TRUE, token.FALSE, token.IDENT, token.EOF,
	}
	require.Equal(t, want, kinds)
}

func TestCompoundAssignmentSymbols(t *testing.T) {
	toks := allTokens(t, "+= -= *= /= %=")
	kinds := make([]token.Kind, 0, len(toks)-1)
	for _, tok := range toks[:len(toks)-1] {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []token.Kind{
		token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.MUL_ASSIGN, token.DIV_ASSIGN, token.MOD_ASSIGN,
	}, kinds)
}

func TestNumberLiterals(t *testing.T) {
	toks := allTokens(t, "42 3.14")
	require.Equal(t, token.INT, toks[0].Kind)
	require.Equal(t, "42", toks[0].Value)
	require.Equal(t, token.FLOAT, toks[1].Kind)
	require.Equal(t, "3.14", toks[1].Value)
}

func TestStringEscapes(t *testing.T) {
	toks := allTokens(t, `"hello\nworld" "tab\there" "unknown\q"`)
	require.Equal(t, "hello\nworld", toks[0].Value)
	require.Equal(t, "tab\there", toks[1].Value)
	// An unrecognized escape sequence passes the backslash through literally.
	require.Equal(t, `unknown\q`, toks[2].Value)
}

func TestLocationTracking(t *testing.T) {
	toks := allTokens(t, "x\ny")
	require.Equal(t, 1, toks[0].Start.Line)
	require.Equal(t, 1, toks[0].Start.Column)
	require.Equal(t, 2, toks[1].Start.Line)
}
