package validate

import (
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/opcode"
)

var i32 = []ast.ValType{ast.ValTypeI32}

// instr applies one instruction's stack effect.
func (c *checker) instr(in *ast.Instr) {
	name := instrName(in)
	loc := in.Loc

	if in.Prefixed() {
		c.misc(in, name)
		return
	}

	switch in.Opcode {
	case ast.OpUnreachable:
		c.setUnreachable()

	case ast.OpBlock, ast.OpLoop:
		c.popVals(name, loc, in.Block.Type.Params...)
		c.pushFrame(in.Opcode, in.Block, loc)

	case ast.OpIf:
		c.popVals(name, loc, i32...)
		c.popVals(name, loc, in.Block.Type.Params...)
		c.pushFrame(in.Opcode, in.Block, loc)

	case ast.OpElse:
		f := c.top()
		if f.opcode != ast.OpIf {
			c.errorf(loc, "else does not match an if")
			return
		}
		c.checkFrameEnd(f, "if true branch", loc)
		c.stack = append(c.stack[:f.height], f.params...)
		f.opcode = ast.OpElse
		f.unreachable = false

	case ast.OpEnd:
		c.end(in)

	case ast.OpBr:
		if f := c.label(in.Refs[0]); f != nil {
			c.popVals(name, loc, f.labelTypes()...)
		}
		c.setUnreachable()

	case ast.OpBrIf:
		c.popVals(name, loc, i32...)
		if f := c.label(in.Refs[0]); f != nil {
			types := f.labelTypes()
			c.popVals(name, loc, types...)
			c.push(types...)
		}

	case ast.OpBrTable:
		c.brTable(in, name)

	case ast.OpReturn:
		c.popVals(name, loc, c.fn.Type.Results...)
		c.setUnreachable()

	case ast.OpCall:
		ft := c.v.funcs[in.Refs[0].Index]
		c.popVals(name, loc, ft.Params...)
		c.push(ft.Results...)

	case ast.OpCallIndirect:
		c.funcrefTable(name, in)
		c.popVals(name, loc, i32...)
		c.popVals(name, loc, in.Type.Params...)
		c.push(in.Type.Results...)

	case ast.OpReturnCall:
		ft := c.v.funcs[in.Refs[0].Index]
		c.tailCall(name, in, ft)

	case ast.OpReturnCallIndirect:
		c.funcrefTable(name, in)
		c.popVals(name, loc, i32...)
		c.tailCall(name, in, in.Type.Sig())

	case ast.OpDrop:
		c.popAny(name, loc)

	case ast.OpSelect:
		c.popVals(name, loc, i32...)
		a := c.popAny(name, loc)
		b := c.popAny(name, loc)
		t := a
		if t == unknown {
			t = b
		}
		if !matches(a, b) {
			c.errorf(loc, "type mismatch in select, operands are %s and %s", b, a)
			t = unknown
		}
		if t.IsRef() {
			c.errorf(loc, "select on %s requires a result type", t)
		}
		c.push(t)

	case ast.OpSelectTyped:
		types, _ := in.Imm.([]ast.ValType)
		if len(types) != 1 {
			c.errorf(loc, "select must have exactly one result type")
			c.popVals(name, loc, i32...)
			c.popAny(name, loc)
			c.popAny(name, loc)
			c.push(unknown)
			return
		}
		t := types[0]
		c.popVals(name, loc, t, t, ast.ValTypeI32)
		c.push(t)

	case ast.OpLocalGet:
		c.push(c.locals[in.Refs[0].Index])
	case ast.OpLocalSet:
		c.popVals(name, loc, c.locals[in.Refs[0].Index])
	case ast.OpLocalTee:
		t := c.locals[in.Refs[0].Index]
		c.popVals(name, loc, t)
		c.push(t)

	case ast.OpGlobalGet:
		c.push(c.v.globals[in.Refs[0].Index].typ.Type)
	case ast.OpGlobalSet:
		g := c.v.globals[in.Refs[0].Index]
		if !g.typ.Mutable {
			c.errorf(loc, "global.set on immutable global %s", in.Refs[0].String())
		}
		c.popVals(name, loc, g.typ.Type)

	case ast.OpTableGet:
		et := c.v.tables[in.Refs[0].Index].ElemType
		c.popVals(name, loc, i32...)
		c.push(et)
	case ast.OpTableSet:
		et := c.v.tables[in.Refs[0].Index].ElemType
		c.popVals(name, loc, ast.ValTypeI32, et)

	case ast.OpRefNull:
		vt, _ := in.Imm.(ast.ValType)
		c.push(vt)
	case ast.OpRefIsNull:
		t := c.popAny(name, loc)
		if t != unknown && !t.IsRef() {
			c.mismatch(name, loc, []ast.ValType{ast.ValTypeFuncref}, []ast.ValType{t})
		}
		c.push(ast.ValTypeI32)
	case ast.OpRefFunc:
		idx := in.Refs[0].Index
		if !c.v.declared[idx] {
			c.errorf(loc, "undeclared function reference %s", in.Refs[0].String())
		}
		c.push(ast.ValTypeFuncref)

	default:
		c.simple(in, name)
	}
}

// simple handles instructions whose stack effect is a fixed signature.
func (c *checker) simple(in *ast.Instr, name string) {
	info, ok := opcode.LookupOpcode(in.Opcode, in.Subop)
	if !ok || !info.Sig {
		c.errorf(in.Loc, "unknown instruction %s", name)
		return
	}
	if ast.IsMemoryAccess(in.Opcode) {
		c.requireMemory(name, in.Loc)
		if m, ok := in.Imm.(ast.Memarg); ok && m.Align > info.Align {
			c.errorf(in.Loc, "alignment must not be larger than natural alignment (%d)", uint32(1)<<info.Align)
		}
	}
	if in.Opcode == ast.OpMemorySize || in.Opcode == ast.OpMemoryGrow {
		c.requireMemory(name, in.Loc)
	}
	c.popVals(name, in.Loc, info.Params...)
	c.push(info.Results...)
}

// misc handles the 0xFC prefixed instructions.
func (c *checker) misc(in *ast.Instr, name string) {
	loc := in.Loc
	switch in.Subop {
	case ast.MiscOpMemoryInit, ast.MiscOpMemoryCopy, ast.MiscOpMemoryFill:
		c.requireMemory(name, loc)

	case ast.MiscOpTableInit:
		et := c.v.elems[in.Refs[0].Index]
		tt := c.v.tables[in.Refs[1].Index].ElemType
		if et != tt {
			c.errorf(loc, "type mismatch in table.init, table holds %s but segment holds %s", tt, et)
		}

	case ast.MiscOpTableCopy:
		dst := c.v.tables[in.Refs[0].Index].ElemType
		src := c.v.tables[in.Refs[1].Index].ElemType
		if dst != src {
			c.errorf(loc, "type mismatch in table.copy, destination holds %s but source holds %s", dst, src)
		}

	case ast.MiscOpTableGrow:
		et := c.v.tables[in.Refs[0].Index].ElemType
		c.popVals(name, loc, et, ast.ValTypeI32)
		c.push(ast.ValTypeI32)
		return

	case ast.MiscOpTableFill:
		et := c.v.tables[in.Refs[0].Index].ElemType
		c.popVals(name, loc, ast.ValTypeI32, et, ast.ValTypeI32)
		return
	}
	c.simple(in, name)
}

// end closes the innermost block, loop or if.
func (c *checker) end(in *ast.Instr) {
	if len(c.frames) == 1 {
		c.errorf(in.Loc, "unexpected end")
		return
	}
	f := c.top()
	c.checkFrameEnd(f, "block", in.Loc)
	if f.opcode == ast.OpIf && !ast.EqualTypes(f.params, f.results) {
		c.errorf(in.Loc, "type mismatch in if false branch, expected %s but got %s",
			ast.TypesString(f.results), ast.TypesString(f.params))
	}
	c.stack = c.stack[:f.height]
	results := f.results
	c.frames = c.frames[:len(c.frames)-1]
	c.push(results...)
}

func (c *checker) brTable(in *ast.Instr, name string) {
	c.popVals(name, in.Loc, i32...)
	def := c.label(in.Refs[len(in.Refs)-1])
	if def == nil {
		c.setUnreachable()
		return
	}
	want := def.labelTypes()
	for _, ref := range in.Refs[:len(in.Refs)-1] {
		f := c.label(ref)
		if f == nil {
			continue
		}
		types := f.labelTypes()
		if len(types) != len(want) {
			c.errorf(in.Loc, "br_table targets have inconsistent arity, expected %d but got %d", len(want), len(types))
			continue
		}
		c.peekVals(name, in.Loc, types)
	}
	c.popVals(name, in.Loc, want...)
	c.setUnreachable()
}

func (c *checker) funcrefTable(name string, in *ast.Instr) {
	if et := c.v.tables[in.Refs[0].Index].ElemType; et != ast.ValTypeFuncref {
		c.errorf(in.Loc, "%s requires a funcref table, got %s", name, et)
	}
}

// tailCall checks a return_call: the callee's results must be the caller's.
func (c *checker) tailCall(name string, in *ast.Instr, ft ast.FuncType) {
	c.popVals(name, in.Loc, ft.Params...)
	if !ast.EqualTypes(ft.Results, c.fn.Type.Results) {
		c.mismatch(name, in.Loc, c.fn.Type.Results, ft.Results)
	}
	c.setUnreachable()
}
