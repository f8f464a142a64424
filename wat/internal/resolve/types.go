package resolve

import (
	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
)

// typeUse binds a signature reference. An explicit (type x) must agree with
// any inline params and results; an inline-only signature reuses the first
// structurally equal type or is appended to the type section.
func (r *resolver) typeUse(tu *ast.TypeUse) {
	if tu.Ref != nil {
		if !r.bind(tu.Ref, r.types) {
			return
		}
		def := r.mod.Types[tu.Ref.Index].Func
		if tu.Inline && !tu.Sig().Equal(def) {
			r.bag.Errorf(diag.Resolution, tu.Loc, "inline function type %s does not match type %s %s",
				tu.Sig(), tu.Ref, def)
			return
		}
		if !tu.Inline {
			tu.Params = def.Params
			tu.Results = def.Results
			tu.ParamNames = make([]string, len(def.Params))
		}
		tu.Index = tu.Ref.Index
		tu.Resolved = true
		return
	}

	tu.Index = r.findOrAddType(tu.Sig(), tu.Loc)
	tu.Resolved = true
}

// blockType binds a block signature. Empty and single-result blocks encode
// inline and need no type entry.
func (r *resolver) blockType(bt *ast.BlockType) {
	if bt.IsInline() {
		bt.Type.Resolved = true
		return
	}
	r.typeUse(&bt.Type)
}

func (r *resolver) findOrAddType(ft ast.FuncType, loc diag.Location) uint32 {
	for i := range r.mod.Types {
		if r.mod.Types[i].Func.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(r.mod.Types))
	r.mod.Types = append(r.mod.Types, ast.TypeDef{Func: ft, Loc: loc})
	r.types.count++
	return idx
}
