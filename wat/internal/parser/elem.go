package parser

import (
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/token"
)

// (table $id? (export)* (import)? limits reftype)
// (table $id? (export)* reftype (elem ...))
func (p *Parser) parseTable(kw *token.Token) error {
	name, _ := p.optID()
	imported := p.mod.ImportCount(ast.KindTable)
	exportsAt := len(p.mod.Exports)
	if err := p.parseInlineExports(ast.KindTable, ast.Ref{}); err != nil {
		return err
	}
	mod, field, impLoc, isImport, err := p.parseInlineImport()
	if err != nil {
		return err
	}

	idx := imported + len(p.mod.Tables)
	if isImport {
		idx = imported
	}
	self := selfRef(ast.SpaceTable, name, idx, kw.Loc)
	p.bindExports(exportsAt, self)

	if isImport {
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, ast.Import{
			Module: mod, Field: field, Name: name, Loc: impLoc,
			Kind: ast.KindTable, Table: &tt,
		})
		return nil
	}

	p.seenDef = true
	table := ast.Table{Name: name, Loc: kw.Loc}

	if t := p.peek(); t.Kind == token.Keyword {
		rt, err := p.parseRefType()
		if err != nil {
			return err
		}
		open := p.peek()
		if !p.peekForm("elem") {
			return p.unexpected(open, "(elem ...)")
		}
		p.next()
		p.next()
		seg := ast.Elem{
			Mode:    ast.ElemActive,
			Table:   self,
			Offset:  []ast.Instr{{Opcode: ast.OpI32Const, Imm: int32(0), Loc: open.Loc}},
			RefType: rt,
			Loc:     open.Loc,
		}
		if p.peek().Kind == token.LParen {
			exprs, err := p.parseElemExprs()
			if err != nil {
				return err
			}
			seg.Exprs = exprs
		} else {
			funcs, err := p.parseFuncRefs()
			if err != nil {
				return err
			}
			seg.Funcs = funcs
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
		n := uint32(seg.Len())
		table.Type = ast.TableType{ElemType: rt, Limits: ast.Limits{Min: n, Max: &n}}
		p.mod.Elems = append(p.mod.Elems, seg)
	} else {
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		table.Type = tt
	}

	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Tables = append(p.mod.Tables, table)
	return nil
}

// (memory $id? (export)* (import)? limits)
// (memory $id? (export)* (data "..."*))
func (p *Parser) parseMemory(kw *token.Token) error {
	name, _ := p.optID()
	imported := p.mod.ImportCount(ast.KindMemory)
	exportsAt := len(p.mod.Exports)
	if err := p.parseInlineExports(ast.KindMemory, ast.Ref{}); err != nil {
		return err
	}
	mod, field, impLoc, isImport, err := p.parseInlineImport()
	if err != nil {
		return err
	}

	idx := imported + len(p.mod.Memories)
	if isImport {
		idx = imported
	}
	self := selfRef(ast.SpaceMemory, name, idx, kw.Loc)
	p.bindExports(exportsAt, self)

	if isImport {
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, ast.Import{
			Module: mod, Field: field, Name: name, Loc: impLoc,
			Kind: ast.KindMemory, Memory: &lim,
		})
		return nil
	}

	p.seenDef = true
	mem := ast.Memory{Name: name, Loc: kw.Loc}

	if p.peekForm("data") {
		open := p.next()
		p.next()
		init, err := p.parseDataStrings()
		if err != nil {
			return err
		}
		if _, err := p.closeParen(); err != nil {
			return err
		}
		pages := uint32((len(init) + ast.PageSize - 1) / ast.PageSize)
		mem.Limits = ast.Limits{Min: pages, Max: &pages}
		p.mod.Datas = append(p.mod.Datas, ast.Data{
			Memory: self,
			Offset: []ast.Instr{{Opcode: ast.OpI32Const, Imm: int32(0), Loc: open.Loc}},
			Init:   init,
			Loc:    open.Loc,
		})
	} else {
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		mem.Limits = lim
	}

	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Memories = append(p.mod.Memories, mem)
	return nil
}

// (global $id? (export)* (import)? globaltype expr)
func (p *Parser) parseGlobal(kw *token.Token) error {
	name, _ := p.optID()
	imported := p.mod.ImportCount(ast.KindGlobal)
	exportsAt := len(p.mod.Exports)
	if err := p.parseInlineExports(ast.KindGlobal, ast.Ref{}); err != nil {
		return err
	}
	mod, field, impLoc, isImport, err := p.parseInlineImport()
	if err != nil {
		return err
	}

	idx := imported + len(p.mod.Globals)
	if isImport {
		idx = imported
	}
	p.bindExports(exportsAt, selfRef(ast.SpaceGlobal, name, idx, kw.Loc))

	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}

	if isImport {
		if _, err := p.closeParen(); err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, ast.Import{
			Module: mod, Field: field, Name: name, Loc: impLoc,
			Kind: ast.KindGlobal, Global: &gt,
		})
		return nil
	}

	p.seenDef = true
	init, err := p.parseBody()
	if err != nil {
		return err
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Globals = append(p.mod.Globals, ast.Global{Name: name, Type: gt, Init: init, Loc: kw.Loc})
	return nil
}

// (elem $id? declare? (table x)? (offset ...)? elemlist)
func (p *Parser) parseElem(kw *token.Token) error {
	name, _ := p.optID()
	seg := ast.Elem{Name: name, Loc: kw.Loc, Mode: ast.ElemPassive, RefType: ast.ValTypeFuncref}

	switch {
	case p.peek().Is("declare"):
		p.next()
		seg.Mode = ast.ElemDeclarative
	case p.peek().Kind == token.LParen:
		seg.Mode = ast.ElemActive
		seg.Table = ast.NumRef(ast.SpaceTable, 0, kw.Loc)
		if p.peekForm("table") {
			p.next()
			p.next()
			ref, err := p.parseRef(ast.SpaceTable)
			if err != nil {
				return err
			}
			if _, err := p.closeParen(); err != nil {
				return err
			}
			seg.Table = ref
		} else if p.isRef() {
			ref, err := p.parseRef(ast.SpaceTable)
			if err != nil {
				return err
			}
			seg.Table = ref
		}
		offset, err := p.parseOffset()
		if err != nil {
			return err
		}
		seg.Offset = offset
	}
	legacy := seg.Mode == ast.ElemActive

	t := p.peek()
	switch {
	case t.Is("func"):
		p.next()
		funcs, err := p.parseFuncRefs()
		if err != nil {
			return err
		}
		seg.Funcs = funcs
	case t.Kind == token.Keyword:
		rt, err := p.parseRefType()
		if err != nil {
			return err
		}
		seg.RefType = rt
		exprs, err := p.parseElemExprs()
		if err != nil {
			return err
		}
		seg.Exprs = exprs
	case legacy && (t.Kind == token.ID || t.Kind == token.Number || t.Kind == token.RParen):
		funcs, err := p.parseFuncRefs()
		if err != nil {
			return err
		}
		seg.Funcs = funcs
	default:
		return p.unexpected(t, "element list")
	}

	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Elems = append(p.mod.Elems, seg)
	return nil
}

// parseOffset parses (offset instr*) or a single folded instruction.
func (p *Parser) parseOffset() ([]ast.Instr, error) {
	if p.peekForm("offset") {
		p.next()
		p.next()
		expr, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if _, err := p.closeParen(); err != nil {
			return nil, err
		}
		return expr, nil
	}
	if p.peek().Kind != token.LParen {
		return nil, p.unexpected(p.peek(), "offset expression")
	}
	var expr []ast.Instr
	p.frames = p.frames[:0]
	if err := p.parseFolded(&expr); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) parseFuncRefs() ([]ast.Ref, error) {
	refs := []ast.Ref{}
	for p.isRef() {
		ref, err := p.parseRef(ast.SpaceFunc)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseElemExprs parses (item instr*) and single folded instruction items.
func (p *Parser) parseElemExprs() ([][]ast.Instr, error) {
	exprs := [][]ast.Instr{}
	for p.peek().Kind == token.LParen {
		if p.peekForm("item") {
			p.next()
			p.next()
			expr, err := p.parseBody()
			if err != nil {
				return nil, err
			}
			if _, err := p.closeParen(); err != nil {
				return nil, err
			}
			exprs = append(exprs, expr)
			continue
		}
		var expr []ast.Instr
		p.frames = p.frames[:0]
		if err := p.parseFolded(&expr); err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// (data $id? (memory x)? (offset ...)? "..."*)
func (p *Parser) parseData(kw *token.Token) error {
	name, _ := p.optID()
	seg := ast.Data{Name: name, Loc: kw.Loc, Passive: true}

	if p.peek().Kind == token.LParen || p.isRef() {
		seg.Passive = false
		seg.Memory = ast.NumRef(ast.SpaceMemory, 0, kw.Loc)
		if p.peekForm("memory") {
			p.next()
			p.next()
			ref, err := p.parseRef(ast.SpaceMemory)
			if err != nil {
				return err
			}
			if _, err := p.closeParen(); err != nil {
				return err
			}
			seg.Memory = ref
		} else if p.isRef() {
			ref, err := p.parseRef(ast.SpaceMemory)
			if err != nil {
				return err
			}
			seg.Memory = ref
		}
		offset, err := p.parseOffset()
		if err != nil {
			return err
		}
		seg.Offset = offset
	}

	init, err := p.parseDataStrings()
	if err != nil {
		return err
	}
	seg.Init = init

	if _, err := p.closeParen(); err != nil {
		return err
	}
	p.mod.Datas = append(p.mod.Datas, seg)
	return nil
}

func (p *Parser) parseDataStrings() ([]byte, error) {
	init := []byte{}
	for p.peek().Kind == token.String {
		init = append(init, p.next().Bytes...)
	}
	if t := p.peek(); t.Kind != token.RParen {
		return nil, p.unexpected(t, "string or ')'")
	}
	return init, nil
}
