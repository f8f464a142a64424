package parser

import (
	"math/bits"
	"strings"

	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/opcode"
	"github.com/wippyai/watc/wat/internal/token"
)

// parseInstrs parses instructions until a closing paren or the end of
// input. A malformed folded instruction is reported and skipped.
func (p *Parser) parseInstrs(out *[]ast.Instr) error {
	for {
		t := p.peek()
		switch t.Kind {
		case token.RParen, token.EOF:
			return nil
		case token.LParen:
			p.parseFoldedRecover(out)
		case token.Keyword:
			if err := p.parsePlain(out); err != nil {
				return err
			}
		default:
			return p.unexpected(t, "instruction")
		}
	}
}

func (p *Parser) parseFoldedRecover(out *[]ast.Instr) {
	open := p.pos
	depth := len(p.frames)
	if err := p.parseFolded(out); err != nil {
		p.report(err)
		p.skipForm(open)
		p.frames = p.frames[:depth]
	}
}

func (p *Parser) lookupInstr(t *token.Token) (opcode.Info, error) {
	if info, ok := opcode.Lookup(t.Text); ok {
		return info, nil
	}
	if repl, ok := opcode.Deprecated(t.Text); ok {
		p.warnf(t.Loc, "deprecated instruction '%s', use '%s'", t.Text, repl)
		info, _ := opcode.Lookup(repl)
		return info, nil
	}
	return opcode.Info{}, p.errorf(t.Loc, "unknown instruction '%s'", t.Text)
}

// parsePlain parses one instruction in flat form.
func (p *Parser) parsePlain(out *[]ast.Instr) error {
	t := p.next()
	info, err := p.lookupInstr(t)
	if err != nil {
		return err
	}

	switch info.Imm {
	case opcode.ImmBlock:
		in, err := p.parseBlockHead(info, t)
		if err != nil {
			return err
		}
		p.frames = append(p.frames, frame{label: in.Block.Label, op: info.Opcode})
		*out = append(*out, in)
		return nil

	case opcode.ImmElse:
		label, labelLoc := p.optID()
		n := len(p.frames)
		if n == 0 {
			return p.errorf(t.Loc, "unexpected '%s' outside a block", t.Text)
		}
		top := &p.frames[n-1]
		if top.folded {
			return p.errorf(t.Loc, "unexpected '%s' in folded %s", t.Text, blockName(top.op))
		}
		if label != "" && label != top.label {
			return p.errorf(labelLoc, "mismatching label %s, expected %s", label, labelOrNone(top.label))
		}
		if info.Opcode == ast.OpElse {
			if top.op != ast.OpIf || top.sawElse {
				return p.errorf(t.Loc, "unexpected 'else'")
			}
			top.sawElse = true
		} else {
			p.frames = p.frames[:n-1]
		}
		*out = append(*out, ast.Instr{Opcode: info.Opcode, Loc: t.Loc})
		return nil
	}

	in, err := p.parseImmediates(info, t)
	if err != nil {
		return err
	}
	*out = append(*out, in)
	return nil
}

func labelOrNone(label string) string {
	if label == "" {
		return "no label"
	}
	return label
}

// parseFolded parses one parenthesized instruction and flattens it into
// out: operands first, then the instruction.
func (p *Parser) parseFolded(out *[]ast.Instr) error {
	p.next()
	t := p.peek()
	if t.Kind != token.Keyword {
		return p.unexpected(t, "instruction")
	}
	p.next()
	info, err := p.lookupInstr(t)
	if err != nil {
		return err
	}

	switch info.Imm {
	case opcode.ImmBlock:
		head, err := p.parseBlockHead(info, t)
		if err != nil {
			return err
		}
		if info.Opcode == ast.OpIf {
			return p.parseFoldedIf(out, head)
		}
		*out = append(*out, head)
		p.frames = append(p.frames, frame{label: head.Block.Label, op: info.Opcode, folded: true})
		if err := p.parseInstrs(out); err != nil {
			return err
		}
		return p.closeBlock(out)

	case opcode.ImmElse:
		return p.errorf(t.Loc, "unexpected '%s' in folded instruction", t.Text)
	}

	in, err := p.parseImmediates(info, t)
	if err != nil {
		return err
	}
	for p.peek().Kind == token.LParen {
		p.parseFoldedRecover(out)
	}
	if _, err := p.closeParen(); err != nil {
		return err
	}
	*out = append(*out, in)
	return nil
}

// (if label? blocktype foldedinstr* (then instr*) (else instr*)?)
func (p *Parser) parseFoldedIf(out *[]ast.Instr, head ast.Instr) error {
	for p.peek().Kind == token.LParen && !p.peekForm("then") {
		p.parseFoldedRecover(out)
	}
	if !p.peekForm("then") {
		return p.unexpected(p.peek(), "(then ...)")
	}
	*out = append(*out, head)
	p.frames = append(p.frames, frame{label: head.Block.Label, op: ast.OpIf, folded: true})

	p.next()
	p.next()
	if err := p.parseInstrs(out); err != nil {
		return err
	}
	if _, err := p.closeFolded(); err != nil {
		return err
	}

	if p.peekForm("else") {
		p.next()
		kw := p.next()
		p.frames[len(p.frames)-1].sawElse = true
		*out = append(*out, ast.Instr{Opcode: ast.OpElse, Loc: kw.Loc})
		if err := p.parseInstrs(out); err != nil {
			return err
		}
		if _, err := p.closeFolded(); err != nil {
			return err
		}
	}
	return p.closeBlock(out)
}

// closeFolded consumes the ')' of a folded block or one of its clauses.
// A flat block still open inside it is an error.
func (p *Parser) closeFolded() (*token.Token, error) {
	n := len(p.frames)
	if n == 0 {
		return nil, p.errorf(p.peek().Loc, "unexpected ')'")
	}
	if top := p.frames[n-1]; !top.folded {
		return nil, p.errorf(p.peek().Loc, "unclosed %s, expected 'end'", blockName(top.op))
	}
	return p.closeParen()
}

// closeBlock ends a folded structured instruction at its closing paren.
func (p *Parser) closeBlock(out *[]ast.Instr) error {
	end, err := p.closeFolded()
	if err != nil {
		return err
	}
	p.frames = p.frames[:len(p.frames)-1]
	*out = append(*out, ast.Instr{Opcode: ast.OpEnd, Loc: end.Loc})
	return nil
}

func (p *Parser) parseBlockHead(info opcode.Info, t *token.Token) (ast.Instr, error) {
	label, _ := p.optID()
	tu, err := p.parseTypeUse(false)
	if err != nil {
		return ast.Instr{}, err
	}
	return ast.Instr{
		Opcode: info.Opcode,
		Loc:    t.Loc,
		Block:  &ast.BlockType{Label: label, Type: tu},
	}, nil
}

func (p *Parser) parseImmediates(info opcode.Info, t *token.Token) (ast.Instr, error) {
	in := ast.Instr{Opcode: info.Opcode, Subop: info.Subop, Loc: t.Loc}
	var err error

	switch info.Imm {
	case opcode.ImmNone, opcode.ImmMemory:

	case opcode.ImmI32:
		var v int32
		v, err = p.parseI32()
		in.Imm = v
	case opcode.ImmI64:
		var v int64
		v, err = p.parseI64()
		in.Imm = v
	case opcode.ImmF32:
		var v uint32
		v, err = p.parseF32()
		in.Imm = v
	case opcode.ImmF64:
		var v uint64
		v, err = p.parseF64()
		in.Imm = v

	case opcode.ImmMemarg:
		var m ast.Memarg
		m, err = p.parseMemarg(info.Align)
		in.Imm = m

	case opcode.ImmLabel:
		err = p.appendRef(&in, ast.SpaceLabel)
	case opcode.ImmLabelTable:
		for p.isRef() {
			if err = p.appendRef(&in, ast.SpaceLabel); err != nil {
				break
			}
		}
		if err == nil && len(in.Refs) == 0 {
			err = p.unexpected(p.peek(), "label")
		}

	case opcode.ImmFunc:
		err = p.appendRef(&in, ast.SpaceFunc)
	case opcode.ImmLocal:
		err = p.appendRef(&in, ast.SpaceLocal)
	case opcode.ImmGlobal:
		err = p.appendRef(&in, ast.SpaceGlobal)
	case opcode.ImmElem:
		err = p.appendRef(&in, ast.SpaceElem)
	case opcode.ImmData, opcode.ImmMemoryInit:
		err = p.appendRef(&in, ast.SpaceData)

	case opcode.ImmCallIndirect:
		var table ast.Ref
		if table, err = p.parseOptRef(ast.SpaceTable, t.Loc); err != nil {
			break
		}
		in.Refs = []ast.Ref{table}
		var tu ast.TypeUse
		tu, err = p.parseTypeUse(false)
		in.Type = &tu

	case opcode.ImmTable:
		var table ast.Ref
		table, err = p.parseOptRef(ast.SpaceTable, t.Loc)
		in.Refs = []ast.Ref{table}

	case opcode.ImmTableCopy:
		dst := ast.NumRef(ast.SpaceTable, 0, t.Loc)
		src := dst
		if p.isRef() {
			if dst, err = p.parseRef(ast.SpaceTable); err != nil {
				break
			}
			if src, err = p.parseRef(ast.SpaceTable); err != nil {
				break
			}
		}
		in.Refs = []ast.Ref{dst, src}

	case opcode.ImmTableInit:
		// table.init elem | table.init table elem; binary order is elem, table
		var first ast.Ref
		if first, err = p.parseRef(ast.SpaceElem); err != nil {
			break
		}
		table := ast.NumRef(ast.SpaceTable, 0, t.Loc)
		elem := first
		if p.isRef() {
			table = first
			table.Space = ast.SpaceTable
			if elem, err = p.parseRef(ast.SpaceElem); err != nil {
				break
			}
		}
		in.Refs = []ast.Ref{elem, table}

	case opcode.ImmHeapType:
		var vt ast.ValType
		vt, err = p.parseHeapType()
		in.Imm = vt

	case opcode.ImmSelect:
		var types []ast.ValType
		typed := false
		for err == nil && p.peekForm("result") {
			typed = true
			p.next()
			p.next()
			for err == nil && p.peek().Kind != token.RParen {
				var vt ast.ValType
				if vt, err = p.parseValType(); err == nil {
					types = append(types, vt)
				}
			}
			if err == nil {
				p.next()
			}
		}
		if typed {
			in.Opcode = ast.OpSelectTyped
			in.Imm = types
		}

	default:
		err = p.errorf(t.Loc, "unexpected '%s'", t.Text)
	}

	return in, err
}

func (p *Parser) appendRef(in *ast.Instr, space ast.Space) error {
	ref, err := p.parseRef(space)
	if err != nil {
		return err
	}
	in.Refs = append(in.Refs, ref)
	return nil
}

// parseMemarg parses offset=N? align=N?, defaulting to natural alignment.
func (p *Parser) parseMemarg(natural uint32) (ast.Memarg, error) {
	m := ast.Memarg{Align: natural}

	if t := p.peek(); t.Kind == token.Keyword && strings.HasPrefix(t.Text, "offset=") {
		p.next()
		v, ok := parseU32Text(t.Text[len("offset="):])
		if !ok {
			return m, p.errorf(t.Loc, "malformed memory offset '%s'", t.Text)
		}
		m.Offset = v
	}

	if t := p.peek(); t.Kind == token.Keyword && strings.HasPrefix(t.Text, "align=") {
		p.next()
		v, ok := parseU32Text(t.Text[len("align="):])
		if !ok {
			return m, p.errorf(t.Loc, "malformed alignment '%s'", t.Text)
		}
		if v == 0 || v&(v-1) != 0 {
			return m, p.errorf(t.Loc, "alignment must be a power of two")
		}
		m.Align = uint32(bits.TrailingZeros32(v))
	}
	return m, nil
}

func parseU32Text(text string) (uint32, bool) {
	neg, mag, ok := splitInt(text)
	if !ok || neg || strings.HasPrefix(text, "+") {
		return 0, false
	}
	v, err := parseMagnitude(mag, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
