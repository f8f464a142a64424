package parser

import (
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/token"
)

// (func $id? (export "n")* (import "m" "n")? typeuse (local ...)* instr*)
func (p *Parser) parseFunc(kw *token.Token) error {
	name, _ := p.optID()
	loc := kw.Loc
	if name != "" {
		loc = loc.Span(p.toks[p.pos-1].Loc)
	}

	imported := p.mod.ImportCount(ast.KindFunc)
	exportsAt := len(p.mod.Exports)
	if err := p.parseInlineExports(ast.KindFunc, ast.Ref{}); err != nil {
		return err
	}

	mod, field, impLoc, isImport, err := p.parseInlineImport()
	if err != nil {
		return err
	}

	idx := imported + len(p.mod.Funcs)
	if isImport {
		idx = imported
	}
	p.bindExports(exportsAt, selfRef(ast.SpaceFunc, name, idx, kw.Loc))

	tu, err := p.parseTypeUse(true)
	if err != nil {
		return err
	}

	if isImport {
		if _, err := p.closeParen(); err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, ast.Import{
			Module: mod, Field: field, Name: name, Loc: impLoc,
			Kind: ast.KindFunc, Func: &tu,
		})
		return nil
	}

	p.seenDef = true
	fn := ast.Func{Name: name, Type: tu, Loc: loc}

	for p.peekForm("local") {
		p.next()
		p.next()
		if t := p.peek(); t.Kind == token.ID {
			p.next()
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			fn.Locals = append(fn.Locals, ast.Local{Name: t.Text, Type: vt, Loc: t.Loc})
		} else {
			for p.peek().Kind != token.RParen {
				t := p.peek()
				vt, err := p.parseValType()
				if err != nil {
					return err
				}
				fn.Locals = append(fn.Locals, ast.Local{Type: vt, Loc: t.Loc})
			}
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
	}

	body, err := p.parseBody()
	if err != nil {
		return err
	}
	fn.Body = body

	end, err := p.closeParen()
	if err != nil {
		return err
	}
	fn.EndLoc = end.Loc
	p.mod.Funcs = append(p.mod.Funcs, fn)
	return nil
}

// bindExports points inline exports added since from at ref.
func (p *Parser) bindExports(from int, ref ast.Ref) {
	for i := from; i < len(p.mod.Exports); i++ {
		r := ref
		r.Loc = p.mod.Exports[i].Loc
		p.mod.Exports[i].Ref = r
	}
}

// parseBody parses an instruction sequence up to the closing paren of the
// enclosing form and checks that structured instructions are balanced.
func (p *Parser) parseBody() ([]ast.Instr, error) {
	p.frames = p.frames[:0]
	var body []ast.Instr
	if err := p.parseInstrs(&body); err != nil {
		return body, err
	}
	if n := len(p.frames); n > 0 {
		return body, p.errorf(p.peek().Loc, "unclosed %s, expected 'end'", blockName(p.frames[n-1].op))
	}
	return body, nil
}

func blockName(op byte) string {
	switch op {
	case ast.OpLoop:
		return "loop"
	case ast.OpIf:
		return "if"
	}
	return "block"
}
