package encoder

import (
	"github.com/wippyai/watc/wat/internal/ast"
)

func (e *encoder) writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	e.count(buf, len(content.Bytes), "section", itoa(int(id)))
	buf.WriteBytes(content.Bytes)
}

func writeValTypes(buf *Buffer, e *encoder, ts []ast.ValType, path ...string) {
	e.count(buf, len(ts), path...)
	for _, t := range ts {
		buf.AppendByte(byte(t))
	}
}

func writeGlobalType(buf *Buffer, gt ast.GlobalType) {
	buf.AppendByte(byte(gt.Type))
	if gt.Mutable {
		buf.AppendByte(0x01)
	} else {
		buf.AppendByte(0x00)
	}
}

func (e *encoder) typeSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Types), "types")
	for i, td := range e.m.Types {
		sec.AppendByte(ast.FuncTypeMarker)
		writeValTypes(sec, e, td.Func.Params, "type", itoa(i), "params")
		writeValTypes(sec, e, td.Func.Results, "type", itoa(i), "results")
	}
	e.writeSection(buf, ast.SectionType, sec)
}

func (e *encoder) importSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Imports), "imports")
	for i := range e.m.Imports {
		imp := &e.m.Imports[i]
		path := []string{"import", itoa(i)}
		e.name(sec, imp.Module, path...)
		e.name(sec, imp.Field, path...)
		sec.AppendByte(imp.Kind)
		switch imp.Kind {
		case ast.KindFunc:
			e.typeIndex(sec, imp.Func, path...)
		case ast.KindTable:
			sec.AppendByte(byte(imp.Table.ElemType))
			sec.WriteLimits(imp.Table.Limits.Min, imp.Table.Limits.Max)
		case ast.KindMemory:
			sec.WriteLimits(imp.Memory.Min, imp.Memory.Max)
		case ast.KindGlobal:
			writeGlobalType(sec, *imp.Global)
		}
	}
	e.writeSection(buf, ast.SectionImport, sec)
}

func (e *encoder) funcSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Funcs), "funcs")
	for i := range e.m.Funcs {
		e.typeIndex(sec, &e.m.Funcs[i].Type, "func", itoa(i))
	}
	e.writeSection(buf, ast.SectionFunc, sec)
}

func (e *encoder) tableSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Tables), "tables")
	for _, t := range e.m.Tables {
		sec.AppendByte(byte(t.Type.ElemType))
		sec.WriteLimits(t.Type.Limits.Min, t.Type.Limits.Max)
	}
	e.writeSection(buf, ast.SectionTable, sec)
}

func (e *encoder) memorySection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Memories), "memories")
	for _, mem := range e.m.Memories {
		sec.WriteLimits(mem.Limits.Min, mem.Limits.Max)
	}
	e.writeSection(buf, ast.SectionMemory, sec)
}

func (e *encoder) globalSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Globals), "globals")
	for i := range e.m.Globals {
		g := &e.m.Globals[i]
		writeGlobalType(sec, g.Type)
		e.expr(sec, g.Init, "global", itoa(i))
	}
	e.writeSection(buf, ast.SectionGlobal, sec)
}

func (e *encoder) exportSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Exports), "exports")
	for i := range e.m.Exports {
		exp := &e.m.Exports[i]
		e.name(sec, exp.Name, "export", itoa(i))
		sec.AppendByte(exp.Kind)
		e.index(sec, exp.Ref, "export", itoa(i))
	}
	e.writeSection(buf, ast.SectionExport, sec)
}

func (e *encoder) startSection(buf *Buffer) {
	sec := &Buffer{}
	e.index(sec, *e.m.Start, "start")
	e.writeSection(buf, ast.SectionStart, sec)
}

// elemFlag picks the most compact segment encoding: flags 0 and 4 imply
// table 0 and funcref.
func elemFlag(seg *ast.Elem) byte {
	var flag byte
	switch seg.Mode {
	case ast.ElemActive:
		if seg.Table.Index != 0 || seg.RefType != ast.ValTypeFuncref {
			flag = ast.ElemFlagActiveTableFunc
		} else {
			flag = ast.ElemFlagActiveFunc
		}
	case ast.ElemPassive:
		flag = ast.ElemFlagPassiveFunc
	case ast.ElemDeclarative:
		flag = ast.ElemFlagDeclarativeFunc
	}
	if seg.UsesExprs() {
		flag |= 0x04
	}
	return flag
}

func (e *encoder) elemSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Elems), "elems")
	for i := range e.m.Elems {
		seg := &e.m.Elems[i]
		path := []string{"elem", itoa(i)}
		flag := elemFlag(seg)
		sec.AppendByte(flag)

		if flag&0x02 != 0 && seg.Mode == ast.ElemActive {
			e.index(sec, seg.Table, path...)
		}
		if seg.Mode == ast.ElemActive {
			e.expr(sec, seg.Offset, path...)
		}
		// flags 0 and 4 carry no element kind or type
		if flag&0x03 != 0 {
			if seg.UsesExprs() {
				sec.AppendByte(byte(seg.RefType))
			} else {
				sec.AppendByte(ast.ElemKindFuncref)
			}
		}

		if seg.UsesExprs() {
			e.count(sec, len(seg.Exprs), path...)
			for _, expr := range seg.Exprs {
				e.expr(sec, expr, path...)
			}
		} else {
			e.count(sec, len(seg.Funcs), path...)
			for _, ref := range seg.Funcs {
				e.index(sec, ref, path...)
			}
		}
	}
	e.writeSection(buf, ast.SectionElem, sec)
}

// expr writes a constant expression and its terminating end.
func (e *encoder) expr(buf *Buffer, instrs []ast.Instr, path ...string) {
	for i := range instrs {
		e.instr(buf, &instrs[i], path...)
	}
	buf.AppendByte(ast.OpEnd)
}

type localGroup struct {
	count uint32
	vt    ast.ValType
}

// groupLocals run-length encodes consecutive locals of the same type.
func groupLocals(locals []ast.Local) []localGroup {
	var groups []localGroup
	for _, l := range locals {
		if n := len(groups); n > 0 && groups[n-1].vt == l.Type {
			groups[n-1].count++
			continue
		}
		groups = append(groups, localGroup{1, l.Type})
	}
	return groups
}

func (e *encoder) codeSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Funcs), "code")
	for i := range e.m.Funcs {
		fn := &e.m.Funcs[i]
		path := []string{"func", itoa(i)}
		code := &Buffer{}

		groups := groupLocals(fn.Locals)
		e.count(code, len(groups), path...)
		for _, g := range groups {
			code.WriteU32(g.count)
			code.AppendByte(byte(g.vt))
		}
		e.expr(code, fn.Body, path...)

		e.count(sec, len(code.Bytes), path...)
		sec.WriteBytes(code.Bytes)
	}
	e.writeSection(buf, ast.SectionCode, sec)
}

func (e *encoder) dataCountSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Datas), "datacount")
	e.writeSection(buf, ast.SectionDataCount, sec)
}

func (e *encoder) dataSection(buf *Buffer) {
	sec := &Buffer{}
	e.count(sec, len(e.m.Datas), "datas")
	for i := range e.m.Datas {
		d := &e.m.Datas[i]
		path := []string{"data", itoa(i)}
		switch {
		case d.Passive:
			sec.AppendByte(ast.DataFlagPassive)
		case d.Memory.Index != 0:
			sec.AppendByte(ast.DataFlagActiveMemIdx)
			e.index(sec, d.Memory, path...)
			e.expr(sec, d.Offset, path...)
		default:
			sec.AppendByte(ast.DataFlagActive)
			e.expr(sec, d.Offset, path...)
		}
		e.count(sec, len(d.Init), path...)
		sec.WriteBytes(d.Init)
	}
	e.writeSection(buf, ast.SectionData, sec)
}
