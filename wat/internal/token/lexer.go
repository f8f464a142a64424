package token

import (
	"unicode/utf8"

	"github.com/wippyai/watc/diag"
)

// Lexer produces tokens on demand. It reports lexical errors to its bag and
// always continues at the next token boundary.
type Lexer struct {
	src  *diag.Source
	text []byte
	bag  *diag.Bag

	pos       int
	line      int
	lineStart int

	// scanned is the furthest offset reached before the last Reset.
	// Diagnostics below it were already emitted.
	scanned int
	eof      *Token
}

// NewLexer creates a lexer positioned at the start of src.
func NewLexer(src *diag.Source, bag *diag.Bag) *Lexer {
	lx := &Lexer{src: src, text: src.Bytes(), bag: bag}
	lx.Reset()
	return lx
}

// Reset restarts the token sequence from the beginning of the source.
func (lx *Lexer) Reset() {
	lx.scanned = max(lx.scanned, lx.pos)
	lx.pos = 0
	lx.line = 1
	lx.lineStart = 0
	lx.eof = nil
}

// Next returns the next token. Once the input is exhausted it keeps
// returning the same EOF token.
func (lx *Lexer) Next() Token {
	if lx.eof != nil {
		return *lx.eof
	}
	for {
		lx.skipTrivia()
		if lx.pos >= len(lx.text) {
			t := Token{Kind: EOF, Loc: lx.loc(lx.pos, lx.pos)}
			lx.eof = &t
			return t
		}
		start := lx.pos
		c := lx.text[lx.pos]
		switch {
		case c == '(':
			lx.pos++
			return lx.token(LParen, start)
		case c == ')':
			lx.pos++
			return lx.token(RParen, start)
		case c == '"':
			return lx.lexString()
		case isIDChar(c):
			for lx.pos < len(lx.text) && isIDChar(lx.text[lx.pos]) {
				lx.pos++
			}
			return lx.token(classify(lx.text[start:lx.pos]), start)
		default:
			if c >= utf8.RuneSelf {
				r, size := utf8.DecodeRune(lx.text[lx.pos:])
				if r == utf8.RuneError && size == 1 {
					lx.skipToBoundary()
					lx.errorf(start, start+1, "invalid UTF-8 encoding")
					continue
				}
				lx.skipToBoundary()
				lx.errorf(start, lx.pos, "unexpected character %q", r)
				continue
			}
			lx.skipToBoundary()
			lx.errorf(start, start+1, "unexpected character %q", rune(c))
		}
	}
}

func (lx *Lexer) token(k Kind, start int) Token {
	return Token{
		Kind: k,
		Text: string(lx.text[start:lx.pos]),
		Loc:  lx.loc(start, lx.pos),
	}
}

func (lx *Lexer) loc(start, end int) diag.Location {
	return diag.Location{
		Filename:    lx.src.Filename,
		Line:        lx.line,
		FirstColumn: start - lx.lineStart + 1,
		LastColumn:  end - lx.lineStart + 1,
		Offset:      start,
	}
}

func (lx *Lexer) errorf(start, end int, format string, args ...any) {
	if start < lx.scanned {
		return
	}
	lx.bag.Errorf(diag.Lexical, lx.loc(start, end), format, args...)
}

func (lx *Lexer) newline() {
	lx.pos++
	lx.line++
	lx.lineStart = lx.pos
}

// skipTrivia consumes whitespace and comments.
func (lx *Lexer) skipTrivia() {
	for lx.pos < len(lx.text) {
		c := lx.text[lx.pos]
		switch {
		case c == '\n':
			lx.newline()
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == ';' && lx.peekByte(1) == ';':
			for lx.pos < len(lx.text) && lx.text[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '(' && lx.peekByte(1) == ';':
			lx.skipBlockComment()
		default:
			return
		}
	}
}

func (lx *Lexer) skipBlockComment() {
	start, line, lineStart := lx.pos, lx.line, lx.lineStart
	depth := 0
	for lx.pos < len(lx.text) {
		switch {
		case lx.text[lx.pos] == '(' && lx.peekByte(1) == ';':
			depth++
			lx.pos += 2
		case lx.text[lx.pos] == ';' && lx.peekByte(1) == ')':
			depth--
			lx.pos += 2
			if depth == 0 {
				return
			}
		case lx.text[lx.pos] == '\n':
			lx.newline()
		default:
			lx.pos++
		}
	}
	end := lx.pos
	cur, curStart := lx.line, lx.lineStart
	lx.line, lx.lineStart = line, lineStart
	lx.errorf(start, start+2, "unterminated block comment")
	lx.line, lx.lineStart = cur, curStart
	lx.pos = end
}

func (lx *Lexer) peekByte(n int) byte {
	if lx.pos+n < len(lx.text) {
		return lx.text[lx.pos+n]
	}
	return 0
}

// skipToBoundary advances to the next whitespace, parenthesis or quote.
func (lx *Lexer) skipToBoundary() {
	for lx.pos < len(lx.text) {
		switch lx.text[lx.pos] {
		case ' ', '\t', '\r', '\n', '(', ')', '"':
			return
		}
		lx.pos++
	}
}

func (lx *Lexer) lexString() Token {
	start := lx.pos
	lx.pos++
	var buf []byte
	for {
		if lx.pos >= len(lx.text) || lx.text[lx.pos] == '\n' {
			lx.errorf(start, lx.pos, "unterminated string literal")
			t := lx.token(String, start)
			t.Bytes = buf
			return t
		}
		c := lx.text[lx.pos]
		switch {
		case c == '"':
			lx.pos++
			t := lx.token(String, start)
			t.Bytes = buf
			if buf == nil {
				t.Bytes = []byte{}
			}
			return t
		case c == '\\':
			buf = lx.lexEscape(buf)
		case c < 0x20 || c == 0x7f:
			lx.errorf(lx.pos, lx.pos+1, "control character in string literal")
			lx.pos++
		default:
			buf = append(buf, c)
			lx.pos++
		}
	}
}

func (lx *Lexer) lexEscape(buf []byte) []byte {
	start := lx.pos
	lx.pos++
	if lx.pos >= len(lx.text) {
		return buf
	}
	c := lx.text[lx.pos]
	lx.pos++
	switch c {
	case 't':
		return append(buf, '\t')
	case 'n':
		return append(buf, '\n')
	case 'r':
		return append(buf, '\r')
	case '"', '\'', '\\':
		return append(buf, c)
	case 'u':
		return lx.lexUnicodeEscape(buf, start)
	}
	if hi, ok := hexDigit(c); ok {
		if lx.pos < len(lx.text) {
			if lo, ok := hexDigit(lx.text[lx.pos]); ok {
				lx.pos++
				return append(buf, hi<<4|lo)
			}
		}
	}
	lx.errorf(start, lx.pos, "invalid escape sequence %q", lx.text[start:lx.pos])
	return buf
}

func (lx *Lexer) lexUnicodeEscape(buf []byte, start int) []byte {
	if lx.pos >= len(lx.text) || lx.text[lx.pos] != '{' {
		lx.errorf(start, lx.pos, "invalid escape sequence %q", lx.text[start:lx.pos])
		return buf
	}
	lx.pos++
	var r rune
	digits := 0
	for lx.pos < len(lx.text) {
		c := lx.text[lx.pos]
		if c == '}' {
			break
		}
		d, ok := hexDigit(c)
		if !ok {
			if c == '_' && digits > 0 {
				lx.pos++
				continue
			}
			break
		}
		digits++
		if r <= utf8.MaxRune {
			r = r<<4 | rune(d)
		}
		lx.pos++
	}
	if lx.pos >= len(lx.text) || lx.text[lx.pos] != '}' || digits == 0 {
		lx.errorf(start, lx.pos, "invalid unicode escape")
		return buf
	}
	lx.pos++
	if r > utf8.MaxRune || (r >= 0xD800 && r < 0xE000) {
		lx.errorf(start, lx.pos, "invalid unicode scalar value in escape")
		return buf
	}
	return utf8.AppendRune(buf, r)
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isIDChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '/',
		':', '<', '=', '>', '?', '@', '\\', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func classify(s []byte) Kind {
	switch {
	case s[0] == '$':
		if len(s) > 1 {
			return ID
		}
		return Reserved
	case looksNumeric(s):
		return Number
	case s[0] >= 'a' && s[0] <= 'z':
		return Keyword
	}
	return Reserved
}

// looksNumeric reports whether s starts like a numeric literal. Malformed
// numbers are still Number tokens; the parser reports them when it converts.
func looksNumeric(s []byte) bool {
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return true
	}
	str := string(s)
	return str == "inf" || str == "nan" || (len(str) > 6 && str[:6] == "nan:0x")
}
