package encoder

import (
	"fmt"

	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/wat/internal/ast"
)

// instr writes one instruction: opcode, sub-opcode and immediates.
func (e *encoder) instr(buf *Buffer, in *ast.Instr, path ...string) {
	buf.AppendByte(in.Opcode)
	if in.Prefixed() {
		buf.WriteU32(in.Subop)
		e.miscImmediates(buf, in, path...)
		return
	}

	switch in.Opcode {
	case ast.OpBlock, ast.OpLoop, ast.OpIf:
		e.blockType(buf, in.Block, path...)

	case ast.OpBrTable:
		e.count(buf, len(in.Refs)-1, path...)
		e.refs(buf, in.Refs, path...)

	case ast.OpCallIndirect, ast.OpReturnCallIndirect:
		e.typeIndex(buf, in.Type, path...)
		e.refs(buf, in.Refs, path...)

	case ast.OpI32Const:
		buf.WriteI32(e.imm32(in, path))
	case ast.OpI64Const:
		v, ok := in.Imm.(int64)
		e.checkImm(ok, in, path)
		buf.WriteI64(v)
	case ast.OpF32Const:
		v, ok := in.Imm.(uint32)
		e.checkImm(ok, in, path)
		buf.WriteF32(v)
	case ast.OpF64Const:
		v, ok := in.Imm.(uint64)
		e.checkImm(ok, in, path)
		buf.WriteF64(v)

	case ast.OpMemorySize, ast.OpMemoryGrow:
		buf.AppendByte(0x00)

	case ast.OpRefNull:
		vt, ok := in.Imm.(ast.ValType)
		e.checkImm(ok, in, path)
		buf.AppendByte(byte(vt))

	case ast.OpSelectTyped:
		types, ok := in.Imm.([]ast.ValType)
		e.checkImm(ok, in, path)
		writeValTypes(buf, e, types, path...)

	default:
		if ast.IsMemoryAccess(in.Opcode) {
			ma, ok := in.Imm.(ast.Memarg)
			e.checkImm(ok, in, path)
			buf.WriteU32(ma.Align)
			buf.WriteU32(ma.Offset)
			return
		}
		// br, br_if, call, return_call, local.*, global.*, table.get/set, ref.func
		e.refs(buf, in.Refs, path...)
	}
}

func (e *encoder) miscImmediates(buf *Buffer, in *ast.Instr, path ...string) {
	e.refs(buf, in.Refs, path...)
	switch in.Subop {
	case ast.MiscOpMemoryInit, ast.MiscOpMemoryFill:
		buf.AppendByte(0x00)
	case ast.MiscOpMemoryCopy:
		buf.AppendByte(0x00)
		buf.AppendByte(0x00)
	}
}

func (e *encoder) refs(buf *Buffer, refs []ast.Ref, path ...string) {
	for _, ref := range refs {
		e.index(buf, ref, path...)
	}
}

// blockType writes 0x40, a single value type, or an s33 type index.
func (e *encoder) blockType(buf *Buffer, bt *ast.BlockType, path ...string) {
	if bt.IsInline() {
		if len(bt.Type.Results) == 0 {
			buf.AppendByte(ast.BlockTypeEmpty)
		} else {
			buf.AppendByte(byte(bt.Type.Results[0]))
		}
		return
	}
	if !bt.Type.Resolved {
		e.fail(errors.Precondition(errors.PhaseEncode, path, "unresolved block type"))
		return
	}
	buf.WriteI33(int64(bt.Type.Index))
}

func (e *encoder) imm32(in *ast.Instr, path []string) int32 {
	v, ok := in.Imm.(int32)
	e.checkImm(ok, in, path)
	return v
}

func (e *encoder) checkImm(ok bool, in *ast.Instr, path []string) {
	if !ok {
		e.fail(errors.Precondition(errors.PhaseEncode, path,
			fmt.Sprintf("opcode 0x%02x has immediate of type %T", in.Opcode, in.Imm)))
	}
}
