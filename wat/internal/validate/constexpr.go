package validate

import (
	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/opcode"
)

// constExpr checks an initializer: only constants, ref.null, ref.func and
// global.get of an immutable imported global, producing exactly want.
func (v *validator) constExpr(expr []ast.Instr, want ast.ValType, loc diag.Location, what string) {
	var stack []ast.ValType
	for i := range expr {
		in := &expr[i]
		switch in.Opcode {
		case ast.OpI32Const:
			stack = append(stack, ast.ValTypeI32)
		case ast.OpI64Const:
			stack = append(stack, ast.ValTypeI64)
		case ast.OpF32Const:
			stack = append(stack, ast.ValTypeF32)
		case ast.OpF64Const:
			stack = append(stack, ast.ValTypeF64)
		case ast.OpRefNull:
			vt, _ := in.Imm.(ast.ValType)
			stack = append(stack, vt)
		case ast.OpRefFunc:
			stack = append(stack, ast.ValTypeFuncref)
		case ast.OpGlobalGet:
			g := v.globals[in.Refs[0].Index]
			if !g.imported {
				v.errorf(in.Loc, "%s can only reference imported globals", what)
				return
			}
			if g.typ.Mutable {
				v.errorf(in.Loc, "%s cannot reference a mutable global", what)
				return
			}
			stack = append(stack, g.typ.Type)
		default:
			v.errorf(in.Loc, "constant expression required in %s, found %s", what, opcode.Name(in.Opcode, in.Subop))
			return
		}
	}
	if len(stack) != 1 || stack[0] != want {
		v.errorf(loc, "type mismatch in %s, expected [%s] but got %s", what, want, ast.TypesString(stack))
	}
}
