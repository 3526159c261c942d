package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	s := New(src)
	var toks []token.Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF || tok.Type == token.Illegal {
			break
		}
	}
	return toks
}

func TestScannerBasicTokens(t *testing.T) {
	toks := scanAll(t, `fun add(a, b) {
  var c = a + b;
  if (c >= 10 and a != b) {
    return c;
  }
}`)

	want := []token.Type{
		token.Fun, token.Identifier, token.LeftParen, token.Identifier, token.Comma,
		token.Identifier, token.RightParen, token.LeftBrace,
		token.Var, token.Identifier, token.Equal, token.Identifier, token.Plus, token.Identifier, token.Semicolon,
		token.If, token.LeftParen, token.Identifier, token.GreaterEqual, token.Number, token.And,
		token.Identifier, token.BangEqual, token.Identifier, token.RightParen, token.LeftBrace,
		token.Return, token.Identifier, token.Semicolon,
		token.RightBrace, token.RightBrace, token.EOF,
	}

	require.Len(t, toks, len(want))
	for i, typ := range want {
		require.Equalf(t, typ, toks[i].Type, "token %d lexeme %q", i, toks[i].Lexeme)
	}
}

func TestScannerKeywordsVsIdentifiers(t *testing.T) {
	cases := map[string]token.Type{
		"and": token.And, "break": token.Break, "class": token.Class,
		"continue": token.Continue, "else": token.Else, "false": token.False,
		"for": token.For, "fun": token.Fun, "if": token.If, "nil": token.Nil,
		"or": token.Or, "perm": token.Perm, "print": token.Print, "return": token.Return,
		"super": token.Super, "this": token.This, "true": token.True, "var": token.Var,
		"while": token.While,
		// near-miss prefixes must still resolve as identifiers, exercising
		// the trie's fallthrough arms under 'c' and 'p'.
		"classy": token.Identifier, "perky": token.Identifier, "continuance": token.Identifier,
		"elsewhere": token.Identifier, "forest": token.Identifier,
	}
	for lexeme, want := range cases {
		toks := scanAll(t, lexeme)
		require.Equal(t, want, toks[0].Type, lexeme)
	}
}

func TestScannerNumbers(t *testing.T) {
	toks := scanAll(t, `42 3.14 0 7.`)
	require.Equal(t, token.Number, toks[0].Type)
	require.Equal(t, "42", toks[0].Lexeme)
	require.Equal(t, token.Number, toks[1].Type)
	require.Equal(t, "3.14", toks[1].Lexeme)
	require.Equal(t, "0", toks[2].Lexeme)
	// a trailing dot with no following digit is not part of the number.
	require.Equal(t, "7", toks[3].Lexeme)
	require.Equal(t, token.Dot, toks[4].Type)
}

func TestScannerStringAndEscape(t *testing.T) {
	toks := scanAll(t, `"hello\nworld"`)
	require.Equal(t, token.String, toks[0].Type)
	require.Equal(t, `"hello\nworld"`, toks[0].Lexeme)
}

func TestScannerUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"oops`)
	require.Equal(t, token.Illegal, toks[0].Type)
}

func TestScannerLineComment(t *testing.T) {
	toks := scanAll(t, "1 // comment\n2")
	require.Equal(t, "1", toks[0].Lexeme)
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, "2", toks[1].Lexeme)
	require.Equal(t, 2, toks[1].Line)
}

func TestScannerUnexpectedCharacter(t *testing.T) {
	toks := scanAll(t, "@")
	require.Equal(t, token.Illegal, toks[0].Type)
}
