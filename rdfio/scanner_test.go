package rdfio

import (
	"strings"
	"testing"
)

func collectTokens(t *testing.T, s *scanner) []token {
	t.Helper()
	var tokens []token
	for {
		tok, err := s.Scan()
		if err != nil {
			t.Fatalf("scan error: %v", err)
		}
		if tok.Type == tokenEOF {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func equalTokens(a, b []token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []token
	}{
		{"", nil},
		{" \t\n ", nil},
		{"<a>", []token{{tokenIRI, "a"}}},
		{"<< <a> <b> >>", []token{{tokenQuotedOpen, ""}, {tokenIRI, "a"}, {tokenIRI, "b"}, {tokenQuotedClose, ""}}},
		{`""`, []token{{tokenLiteral, ""}}},
		{`"hei"@nb-no`, []token{{tokenLiteral, "hei"}, {tokenLangTag, "nb-no"}}},
		{`"a"^^<t>`, []token{{tokenLiteral, "a"}, {tokenTypeMarker, ""}, {tokenIRI, "t"}}},
		{`"a", "b"`, []token{{tokenLiteral, "a"}, {tokenComma, ""}, {tokenLiteral, "b"}}},
		{`"a"; "b"`, []token{{tokenLiteral, "a"}, {tokenSemicolon, ""}, {tokenLiteral, "b"}}},
		{"_:b1 <p> _:b2 .", []token{
			{tokenBlank, "b1"}, {tokenIRI, "p"}, {tokenBlank, "b2"}, {tokenDot, ""}}},
		{"<a> # a comment\n<b>", []token{{tokenIRI, "a"}, {tokenIRI, "b"}}},
		{"@prefix ex: <http://x/> .", []token{
			{tokenPrefixDecl, ""}, {tokenPrefixedName, "ex:"}, {tokenIRI, "http://x/"}, {tokenDot, ""}}},
		{"@base <http://x/> .", []token{
			{tokenBaseDecl, ""}, {tokenIRI, "http://x/"}, {tokenDot, ""}}},
		{`"\t\n\\\""`, []token{{tokenLiteral, "\t\n\\\""}}},
	}

	for _, test := range tests {
		s := newScanner(strings.NewReader(test.input))
		if got := collectTokens(t, s); !equalTokens(got, test.want) {
			t.Errorf("scanning %q got %v; want %v", test.input, got, test.want)
		}
	}
}

func TestScanUnterminated(t *testing.T) {
	for _, input := range []string{"<a", `"hei`} {
		s := newScanner(strings.NewReader(input))
		if _, err := s.Scan(); err == nil {
			t.Errorf("scanning %q: expected error", input)
		}
	}
}
