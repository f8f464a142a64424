package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/wippyai/watc/wat/internal/token"
)

// Canonical NaN bit patterns.
const (
	f32CanonicalNaN = 0x7FC00000
	f64CanonicalNaN = 0x7FF8000000000000
	f32ExpMask      = 0x7F800000
	f64ExpMask      = 0x7FF0000000000000
	f32PayloadMask  = 0x007FFFFF
	f64PayloadMask  = 0x000FFFFFFFFFFFFF
)

func (p *Parser) numberToken() (*token.Token, error) {
	t := p.peek()
	if t.Kind != token.Number {
		return nil, p.unexpected(t, "number")
	}
	return p.next(), nil
}

func (p *Parser) parseU32() (uint32, error) {
	t, err := p.numberToken()
	if err != nil {
		return 0, err
	}
	neg, mag, ok := splitInt(t.Text)
	if !ok || neg || strings.HasPrefix(t.Text, "+") {
		return 0, p.errorf(t.Loc, "malformed unsigned integer '%s'", t.Text)
	}
	v, err := parseMagnitude(mag, 64)
	if err != nil {
		return 0, p.errorf(t.Loc, "integer '%s' out of range", t.Text)
	}
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, p.errorf(t.Loc, "integer '%s' out of range", t.Text)
	}
	return u, nil
}

// parseI32 accepts -2^31 through 2^32-1; unsigned values wrap.
func (p *Parser) parseI32() (int32, error) {
	t, err := p.numberToken()
	if err != nil {
		return 0, err
	}
	v, ok, inRange := parseInt(t.Text, 32)
	if !ok {
		return 0, p.errorf(t.Loc, "malformed integer '%s'", t.Text)
	}
	if !inRange {
		return 0, p.errorf(t.Loc, "integer '%s' out of range for i32", t.Text)
	}
	return int32(uint32(v)), nil
}

// parseI64 accepts -2^63 through 2^64-1; unsigned values wrap.
func (p *Parser) parseI64() (int64, error) {
	t, err := p.numberToken()
	if err != nil {
		return 0, err
	}
	v, ok, inRange := parseInt(t.Text, 64)
	if !ok {
		return 0, p.errorf(t.Loc, "malformed integer '%s'", t.Text)
	}
	if !inRange {
		return 0, p.errorf(t.Loc, "integer '%s' out of range for i64", t.Text)
	}
	return int64(v), nil
}

// parseInt returns the two's complement bits of an integer literal.
func parseInt(text string, bits int) (v uint64, ok, inRange bool) {
	neg, mag, ok := splitInt(text)
	if !ok {
		return 0, false, false
	}
	u, err := parseMagnitude(mag, bits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, true, false
		}
		return 0, false, false
	}
	if neg {
		if u > 1<<(bits-1) {
			return 0, true, false
		}
		return -u, true, true
	}
	return u, true, true
}

// parseMagnitude parses an unsigned decimal or 0x-prefixed literal with
// separators already removed. Leading zeros stay decimal.
func parseMagnitude(mag string, bits int) (uint64, error) {
	if strings.HasPrefix(mag, "0x") || strings.HasPrefix(mag, "0X") {
		return strconv.ParseUint(mag[2:], 16, bits)
	}
	return strconv.ParseUint(mag, 10, bits)
}

// splitInt strips the sign and validates digit grouping.
func splitInt(text string) (neg bool, mag string, ok bool) {
	switch {
	case strings.HasPrefix(text, "-"):
		neg, text = true, text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	hex := strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")
	digits := text
	if hex {
		digits = text[2:]
	}
	if !validDigits(digits, hex) {
		return false, "", false
	}
	return neg, strings.ReplaceAll(text, "_", ""), true
}

// validDigits checks a digit run where '_' may only separate digits.
func validDigits(s string, hex bool) bool {
	if s == "" {
		return false
	}
	prevDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			if !prevDigit || i == len(s)-1 {
				return false
			}
			prevDigit = false
			continue
		}
		if !isDigit(c, hex) {
			return false
		}
		prevDigit = true
	}
	return true
}

func isDigit(c byte, hex bool) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	return hex && ((c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F'))
}

// parseF32 returns the IEEE-754 bits of an f32 literal.
func (p *Parser) parseF32() (uint32, error) {
	t, err := p.numberToken()
	if err != nil {
		return 0, err
	}
	neg, body := splitSign(t.Text)
	var sign uint32
	if neg {
		sign = 1 << 31
	}

	switch {
	case body == "inf":
		return sign | f32ExpMask, nil
	case body == "nan":
		return sign | f32CanonicalNaN, nil
	case strings.HasPrefix(body, "nan:"):
		payload, ok := nanPayload(body)
		if !ok || payload == 0 || payload > f32PayloadMask {
			return 0, p.errorf(t.Loc, "invalid NaN payload '%s'", t.Text)
		}
		return sign | f32ExpMask | uint32(payload), nil
	}

	s, ok := floatText(body)
	if !ok {
		return 0, p.errorf(t.Loc, "malformed float '%s'", t.Text)
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, p.errorf(t.Loc, "float '%s' out of range for f32", t.Text)
	}
	return sign | math.Float32bits(float32(f)), nil
}

// parseF64 returns the IEEE-754 bits of an f64 literal.
func (p *Parser) parseF64() (uint64, error) {
	t, err := p.numberToken()
	if err != nil {
		return 0, err
	}
	neg, body := splitSign(t.Text)
	var sign uint64
	if neg {
		sign = 1 << 63
	}

	switch {
	case body == "inf":
		return sign | f64ExpMask, nil
	case body == "nan":
		return sign | f64CanonicalNaN, nil
	case strings.HasPrefix(body, "nan:"):
		payload, ok := nanPayload(body)
		if !ok || payload == 0 || payload > f64PayloadMask {
			return 0, p.errorf(t.Loc, "invalid NaN payload '%s'", t.Text)
		}
		return sign | f64ExpMask | payload, nil
	}

	s, ok := floatText(body)
	if !ok {
		return 0, p.errorf(t.Loc, "malformed float '%s'", t.Text)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, p.errorf(t.Loc, "float '%s' out of range for f64", t.Text)
	}
	return sign | math.Float64bits(f), nil
}

func splitSign(text string) (bool, string) {
	switch {
	case strings.HasPrefix(text, "-"):
		return true, text[1:]
	case strings.HasPrefix(text, "+"):
		return false, text[1:]
	}
	return false, text
}

func nanPayload(body string) (uint64, bool) {
	hexPart := strings.TrimPrefix(body, "nan:")
	if !strings.HasPrefix(hexPart, "0x") || !validDigits(hexPart[2:], true) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(hexPart[2:], "_", ""), 16, 64)
	return v, err == nil
}

// floatText validates an unsigned float literal and rewrites it into a form
// strconv accepts.
func floatText(body string) (string, bool) {
	hex := strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X")
	rest := body
	prefix := ""
	if hex {
		prefix, rest = body[:2], body[2:]
	}

	expChars := "eE"
	if hex {
		expChars = "pP"
	}
	mant, exp := rest, ""
	if i := strings.IndexAny(rest, expChars); i >= 0 {
		mant, exp = rest[:i], rest[i+1:]
		if exp == "" {
			return "", false
		}
		sign := ""
		if exp[0] == '+' || exp[0] == '-' {
			sign, exp = exp[:1], exp[1:]
		}
		if !validDigits(exp, false) {
			return "", false
		}
		exp = sign + exp
	}

	intPart, frac := mant, ""
	hasDot := false
	if i := strings.IndexByte(mant, '.'); i >= 0 {
		intPart, frac, hasDot = mant[:i], mant[i+1:], true
	}
	if !validDigits(intPart, hex) {
		return "", false
	}
	if frac != "" && !validDigits(frac, hex) {
		return "", false
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(strings.ReplaceAll(intPart, "_", ""))
	if hasDot && frac != "" {
		b.WriteByte('.')
		b.WriteString(strings.ReplaceAll(frac, "_", ""))
	}
	switch {
	case hex:
		b.WriteByte('p')
		if exp == "" {
			exp = "0"
		}
		b.WriteString(strings.ReplaceAll(exp, "_", ""))
	case exp != "":
		b.WriteByte('e')
		b.WriteString(strings.ReplaceAll(exp, "_", ""))
	}
	return b.String(), true
}
