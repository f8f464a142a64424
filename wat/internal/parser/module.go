package parser

import (
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/token"
)

// (type $id? (func (param ...)* (result ...)*))
func (p *Parser) parseType(kw *token.Token) error {
	name, _ := p.optID()

	if _, err := p.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if _, err := p.expectKeyword("func"); err != nil {
		return err
	}
	tu, err := p.parseTypeUse(true)
	if err != nil {
		return err
	}
	if tu.Ref != nil {
		return p.errorf(tu.Ref.Loc, "type definition cannot reference another type")
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}

	p.mod.Types = append(p.mod.Types, ast.TypeDef{
		Name: name,
		Loc:  kw.Loc,
		Func: tu.Sig(),
	})
	p.mod.NumExplicitTypes = len(p.mod.Types)
	return nil
}

// parseTypeUse parses (type x)? (param ...)* (result ...)*. Param names are
// only accepted when allowNames is set.
func (p *Parser) parseTypeUse(allowNames bool) (ast.TypeUse, error) {
	tu := ast.TypeUse{Loc: p.peek().Loc}

	if p.peekForm("type") {
		p.next()
		p.next()
		ref, err := p.parseRef(ast.SpaceType)
		if err != nil {
			return tu, err
		}
		if _, err := p.closeParen(); err != nil {
			return tu, err
		}
		tu.Ref = &ref
	}

	for p.peekForm("param") {
		tu.Inline = true
		p.next()
		p.next()
		if t := p.peek(); t.Kind == token.ID {
			if !allowNames {
				return tu, p.errorf(t.Loc, "named parameter not allowed here")
			}
			p.next()
			vt, err := p.parseValType()
			if err != nil {
				return tu, err
			}
			tu.Params = append(tu.Params, vt)
			tu.ParamNames = append(tu.ParamNames, t.Text)
			tu.ParamLocs = append(tu.ParamLocs, t.Loc)
		} else {
			for p.peek().Kind != token.RParen {
				loc := p.peek().Loc
				vt, err := p.parseValType()
				if err != nil {
					return tu, err
				}
				tu.Params = append(tu.Params, vt)
				tu.ParamNames = append(tu.ParamNames, "")
				tu.ParamLocs = append(tu.ParamLocs, loc)
			}
		}
		if _, err := p.closeParen(); err != nil {
			return tu, err
		}
	}

	for p.peekForm("result") {
		tu.Inline = true
		p.next()
		p.next()
		for p.peek().Kind != token.RParen {
			vt, err := p.parseValType()
			if err != nil {
				return tu, err
			}
			tu.Results = append(tu.Results, vt)
		}
		p.next()
	}

	if p.peekForm("param") {
		return tu, p.errorf(p.peekAt(1).Loc, "parameters must precede results")
	}
	return tu, nil
}

// (import "mod" "name" (func|table|memory|global $id? ...))
func (p *Parser) parseImport(kw *token.Token) error {
	if err := p.checkImportOrder(kw.Loc); err != nil {
		return err
	}
	modName, err := p.parseName()
	if err != nil {
		return err
	}
	field, err := p.parseName()
	if err != nil {
		return err
	}

	if _, err := p.expect(token.LParen, "'('"); err != nil {
		return err
	}
	kind := p.next()
	if kind.Kind != token.Keyword {
		return p.unexpected(kind, "import kind")
	}
	name, _ := p.optID()
	imp := ast.Import{Module: modName, Field: field, Name: name, Loc: kw.Loc}

	switch kind.Text {
	case "func":
		tu, err := p.parseTypeUse(true)
		if err != nil {
			return err
		}
		imp.Kind = ast.KindFunc
		imp.Func = &tu
	case "table":
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Kind = ast.KindTable
		imp.Table = &tt
	case "memory":
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		imp.Kind = ast.KindMemory
		imp.Memory = &lim
	case "global":
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Kind = ast.KindGlobal
		imp.Global = &gt
	default:
		return p.errorf(kind.Loc, "unknown import kind '%s'", kind.Text)
	}

	if _, err := p.closeParen(); err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Imports = append(p.mod.Imports, imp)
	return nil
}

// (export "name" (func|table|memory|global x))
func (p *Parser) parseExport(kw *token.Token) error {
	name, err := p.parseName()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen, "'('"); err != nil {
		return err
	}
	kind := p.next()
	if kind.Kind != token.Keyword {
		return p.unexpected(kind, "export kind")
	}

	var kindByte byte
	switch kind.Text {
	case "func":
		kindByte = ast.KindFunc
	case "table":
		kindByte = ast.KindTable
	case "memory":
		kindByte = ast.KindMemory
	case "global":
		kindByte = ast.KindGlobal
	default:
		return p.errorf(kind.Loc, "unknown export kind '%s'", kind.Text)
	}

	ref, err := p.parseRef(ast.KindSpace(kindByte))
	if err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}

	p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Kind: kindByte, Ref: ref, Loc: kw.Loc})
	return nil
}

// (start x)
func (p *Parser) parseStart(kw *token.Token) error {
	if p.mod.Start != nil {
		return p.errorf(kw.Loc, "multiple start sections")
	}
	ref, err := p.parseRef(ast.SpaceFunc)
	if err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Start = &ref
	return nil
}

func (p *Parser) parseGlobalType() (ast.GlobalType, error) {
	if p.peekForm("mut") {
		p.next()
		p.next()
		vt, err := p.parseValType()
		if err != nil {
			return ast.GlobalType{}, err
		}
		if _, err := p.closeParen(); err != nil {
			return ast.GlobalType{}, err
		}
		return ast.GlobalType{Type: vt, Mutable: true}, nil
	}
	vt, err := p.parseValType()
	if err != nil {
		return ast.GlobalType{}, err
	}
	return ast.GlobalType{Type: vt}, nil
}

func (p *Parser) parseTableType() (ast.TableType, error) {
	lim, err := p.parseLimits()
	if err != nil {
		return ast.TableType{}, err
	}
	rt, err := p.parseRefType()
	if err != nil {
		return ast.TableType{}, err
	}
	return ast.TableType{Limits: lim, ElemType: rt}, nil
}
