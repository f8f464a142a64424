// Package parser builds a module IR from WebAssembly text.
//
// Names are kept symbolic; the resolver binds them. Syntax errors are
// reported to the diagnostic bag and parsing resumes after the enclosing
// module field or folded instruction.
package parser

import (
	"errors"
	"fmt"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/token"
)

// Parser is a recursive-descent parser over a lazily filled token buffer.
type Parser struct {
	lex  *token.Lexer
	bag  *diag.Bag
	mod  *ast.Module
	toks []token.Token
	pos  int

	// frames tracks open structured instructions of the current body.
	frames []frame

	seenDef    bool
	lastReport int
}

type frame struct {
	label   string
	op      byte
	sawElse bool
	folded  bool // closed by ')' rather than 'end'
}

// New creates a parser reading from lex and reporting to bag.
func New(lex *token.Lexer, bag *diag.Bag) *Parser {
	return &Parser{lex: lex, bag: bag, lastReport: -1}
}

// Parse parses a whole module. The result is never nil; when errors were
// reported it may be incomplete.
func (p *Parser) Parse() *ast.Module {
	p.mod = &ast.Module{}
	start := p.peek()
	p.mod.Loc = start.Loc

	if start.Kind == token.LParen && p.peekAt(1).Is("module") {
		open := p.pos
		p.next()
		p.next()
		if t := p.peek(); t.Kind == token.ID {
			p.mod.Name = t.Text
			p.next()
		}
		p.parseFields(true)
		if _, err := p.expect(token.RParen, "')'"); err != nil {
			p.report(err)
			p.skipForm(open)
		}
		if t := p.peek(); t.Kind != token.EOF {
			p.report(p.errorf(t.Loc, "unexpected %s after module", t.Describe()))
		}
		return p.mod
	}

	p.parseFields(false)
	return p.mod
}

// parseFields parses module fields until the closing paren of an explicit
// module or the end of input.
func (p *Parser) parseFields(inModule bool) {
	for {
		t := p.peek()
		switch t.Kind {
		case token.EOF:
			return
		case token.RParen:
			if inModule {
				return
			}
			p.report(p.errorf(t.Loc, "unexpected ')'"))
			p.next()
			continue
		case token.LParen:
		default:
			p.report(p.unexpected(t, "module field"))
			for t := p.peek(); t.Kind != token.LParen && t.Kind != token.RParen && t.Kind != token.EOF; t = p.peek() {
				p.next()
			}
			continue
		}

		open := p.pos
		if err := p.parseField(); err != nil {
			p.report(err)
			p.skipForm(open)
		}
	}
}

func (p *Parser) parseField() error {
	p.next()
	kw := p.next()
	if kw.Kind != token.Keyword {
		return p.unexpected(kw, "module field")
	}

	switch kw.Text {
	case "type":
		return p.parseType(kw)
	case "import":
		return p.parseImport(kw)
	case "func":
		return p.parseFunc(kw)
	case "table":
		return p.parseTable(kw)
	case "memory":
		return p.parseMemory(kw)
	case "global":
		return p.parseGlobal(kw)
	case "export":
		return p.parseExport(kw)
	case "start":
		return p.parseStart(kw)
	case "elem":
		return p.parseElem(kw)
	case "data":
		return p.parseData(kw)
	case "module":
		return p.errorf(kw.Loc, "nested module")
	}
	return p.errorf(kw.Loc, "unknown module field '%s'", kw.Text)
}

// Token buffer

func (p *Parser) fill(i int) {
	for len(p.toks) <= i {
		if n := len(p.toks); n > 0 && p.toks[n-1].Kind == token.EOF {
			return
		}
		p.toks = append(p.toks, p.lex.Next())
	}
}

func (p *Parser) peekAt(n int) *token.Token {
	i := p.pos + n
	p.fill(i)
	if i >= len(p.toks) {
		return &p.toks[len(p.toks)-1]
	}
	return &p.toks[i]
}

func (p *Parser) peek() *token.Token {
	return p.peekAt(0)
}

func (p *Parser) next() *token.Token {
	t := p.peek()
	if t.Kind != token.EOF {
		p.pos++
	}
	return t
}

// peekForm reports whether the next tokens open a form starting with kw.
func (p *Parser) peekForm(kw string) bool {
	return p.peek().Kind == token.LParen && p.peekAt(1).Is(kw)
}

func (p *Parser) expect(kind token.Kind, want string) (*token.Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return nil, p.unexpected(t, want)
	}
	return p.next(), nil
}

func (p *Parser) expectKeyword(kw string) (*token.Token, error) {
	t := p.peek()
	if !t.Is(kw) {
		return nil, p.unexpected(t, "'"+kw+"'")
	}
	return p.next(), nil
}

func (p *Parser) closeParen() (*token.Token, error) {
	return p.expect(token.RParen, "')'")
}

// optID consumes an optional $name.
func (p *Parser) optID() (string, diag.Location) {
	if t := p.peek(); t.Kind == token.ID {
		p.next()
		return t.Text, t.Loc
	}
	return "", diag.Location{}
}

// skipForm rewinds to the '(' at open and skips the balanced form.
func (p *Parser) skipForm(open int) {
	p.pos = open
	depth := 0
	for {
		t := p.next()
		switch t.Kind {
		case token.EOF:
			return
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		}
		if depth <= 0 {
			return
		}
	}
}

// Errors

type syntaxError struct {
	msg string
	loc diag.Location
}

func (e *syntaxError) Error() string {
	return e.loc.String() + ": " + e.msg
}

func (p *Parser) errorf(loc diag.Location, format string, args ...any) error {
	return &syntaxError{loc: loc, msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected(t *token.Token, want string) error {
	if t.Kind == token.EOF {
		return p.errorf(t.Loc, "unexpected end of input, expected %s", want)
	}
	return p.errorf(t.Loc, "unexpected %s, expected %s", t.Describe(), want)
}

// report records err once per source offset.
func (p *Parser) report(err error) {
	var se *syntaxError
	if !errors.As(err, &se) {
		p.bag.Errorf(diag.Syntax, p.peek().Loc, "%v", err)
		return
	}
	if se.loc.Offset == p.lastReport {
		return
	}
	p.lastReport = se.loc.Offset
	p.bag.Errorf(diag.Syntax, se.loc, "%s", se.msg)
}

func (p *Parser) warnf(loc diag.Location, format string, args ...any) {
	p.bag.Warnf(diag.Syntax, loc, format, args...)
}

// Shared productions

func (p *Parser) parseValType() (ast.ValType, error) {
	t := p.peek()
	if t.Kind != token.Keyword {
		return 0, p.unexpected(t, "value type")
	}
	vt, ok := p.valType(t)
	if !ok {
		return 0, p.errorf(t.Loc, "unknown value type '%s'", t.Text)
	}
	p.next()
	return vt, nil
}

func (p *Parser) valType(t *token.Token) (ast.ValType, bool) {
	switch t.Text {
	case "i32":
		return ast.ValTypeI32, true
	case "i64":
		return ast.ValTypeI64, true
	case "f32":
		return ast.ValTypeF32, true
	case "f64":
		return ast.ValTypeF64, true
	case "funcref":
		return ast.ValTypeFuncref, true
	case "externref":
		return ast.ValTypeExternref, true
	case "anyfunc":
		p.warnf(t.Loc, "deprecated type 'anyfunc', use 'funcref'")
		return ast.ValTypeFuncref, true
	}
	return 0, false
}

func (p *Parser) parseRefType() (ast.ValType, error) {
	t := p.peek()
	vt, err := p.parseValType()
	if err != nil {
		return 0, err
	}
	if !vt.IsRef() {
		return 0, p.errorf(t.Loc, "expected reference type, got '%s'", t.Text)
	}
	return vt, nil
}

// parseHeapType accepts func/extern and their funcref/externref spellings.
func (p *Parser) parseHeapType() (ast.ValType, error) {
	t := p.peek()
	if t.Kind == token.Keyword {
		switch t.Text {
		case "func", "funcref":
			p.next()
			return ast.ValTypeFuncref, nil
		case "extern", "externref":
			p.next()
			return ast.ValTypeExternref, nil
		}
		return 0, p.errorf(t.Loc, "unknown heap type '%s'", t.Text)
	}
	return 0, p.unexpected(t, "heap type")
}

func (p *Parser) isRef() bool {
	k := p.peek().Kind
	return k == token.ID || k == token.Number
}

// parseRef parses a $name or numeric index in the given space.
func (p *Parser) parseRef(space ast.Space) (ast.Ref, error) {
	t := p.peek()
	switch t.Kind {
	case token.ID:
		p.next()
		return ast.NameRef(space, t.Text, t.Loc), nil
	case token.Number:
		idx, err := p.parseU32()
		if err != nil {
			return ast.Ref{}, err
		}
		return ast.NumRef(space, idx, t.Loc), nil
	}
	return ast.Ref{}, p.unexpected(t, space.String()+" index")
}

// parseOptRef parses an optional reference, defaulting to index 0.
func (p *Parser) parseOptRef(space ast.Space, loc diag.Location) (ast.Ref, error) {
	if p.isRef() {
		return p.parseRef(space)
	}
	return ast.NumRef(space, 0, loc), nil
}

func (p *Parser) parseString() ([]byte, error) {
	t, err := p.expect(token.String, "string")
	if err != nil {
		return nil, err
	}
	return t.Bytes, nil
}

// parseName parses a string that names an import or export.
func (p *Parser) parseName() (string, error) {
	b, err := p.parseString()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Parser) parseLimits() (ast.Limits, error) {
	var lim ast.Limits
	lo, err := p.parseU32()
	if err != nil {
		return lim, err
	}
	lim.Min = lo
	if p.peek().Kind == token.Number {
		hi, err := p.parseU32()
		if err != nil {
			return lim, err
		}
		lim.Max = &hi
	}
	return lim, nil
}

// parseInlineExports consumes (export "name")* abbreviations.
func (p *Parser) parseInlineExports(kind byte, ref ast.Ref) error {
	for p.peekForm("export") {
		p.next()
		kw := p.next()
		name, err := p.parseName()
		if err != nil {
			return err
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
		r := ref
		r.Loc = kw.Loc
		p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Kind: kind, Ref: r, Loc: kw.Loc})
	}
	return nil
}

// parseInlineImport consumes an optional (import "m" "n") abbreviation.
func (p *Parser) parseInlineImport() (mod, field string, loc diag.Location, ok bool, err error) {
	if !p.peekForm("import") {
		return "", "", loc, false, nil
	}
	p.next()
	kw := p.next()
	if mod, err = p.parseName(); err != nil {
		return
	}
	if field, err = p.parseName(); err != nil {
		return
	}
	if _, err = p.closeParen(); err != nil {
		return
	}
	if err = p.checkImportOrder(kw.Loc); err != nil {
		return
	}
	return mod, field, kw.Loc, true, nil
}

func (p *Parser) checkImportOrder(loc diag.Location) error {
	if p.seenDef {
		return p.errorf(loc, "imports must occur before all non-import definitions")
	}
	return nil
}

// selfRef refers to the entity being declared: by name when it has one,
// otherwise by its position in the index space.
func selfRef(space ast.Space, name string, idx int, loc diag.Location) ast.Ref {
	if name != "" {
		return ast.NameRef(space, name, loc)
	}
	return ast.NumRef(space, uint32(idx), loc)
}
