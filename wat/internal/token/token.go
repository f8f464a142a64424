// Package token implements the WebAssembly text format lexer.
package token

import (
	"github.com/wippyai/watc/diag"
)

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	LParen
	RParen
	Keyword
	ID
	Number
	String
	Reserved
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "end of input"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Keyword:
		return "keyword"
	case ID:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case Reserved:
		return "reserved word"
	}
	return "unknown"
}

// Token is a lexical token. Text is the raw source span; for strings Bytes
// holds the decoded contents.
type Token struct {
	Text  string
	Bytes []byte
	Loc   diag.Location
	Kind  Kind
}

// Describe returns a short description for use in messages.
func (t Token) Describe() string {
	switch t.Kind {
	case EOF, LParen, RParen:
		return t.Kind.String()
	}
	return t.Kind.String() + " " + quote(t.Text)
}

// Is reports whether t is the keyword kw.
func (t Token) Is(kw string) bool {
	return t.Kind == Keyword && t.Text == kw
}

func quote(s string) string {
	if len(s) > 32 {
		s = s[:29] + "..."
	}
	return "'" + s + "'"
}

// Tokenize drains a fresh lexer over src. The result always ends with an EOF
// token.
func Tokenize(src *diag.Source, bag *diag.Bag) []Token {
	lx := NewLexer(src, bag)
	var toks []Token
	for {
		t := lx.Next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks
		}
	}
}
