package resolve

import (
	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
)

// function resolves a signature, its locals and its body.
func (r *resolver) function(fn *ast.Func) {
	r.typeUse(&fn.Type)

	locals := newNamespace(ast.SpaceLocal)
	names, locs := fn.Type.ParamNames, fn.Type.ParamLocs
	for i := range fn.Type.Params {
		name, loc := "", fn.Loc
		if i < len(names) {
			name = names[i]
		}
		if i < len(locs) {
			loc = locs[i]
		}
		r.declare(locals, name, loc)
	}
	for _, l := range fn.Locals {
		r.declare(locals, l.Name, l.Loc)
	}

	// the function body is the outermost label
	labels := []string{""}
	r.body(fn.Body, locals, labels)
}

// body resolves the references of an instruction sequence. labels is the
// enclosing label stack, innermost last.
func (r *resolver) body(body []ast.Instr, locals *namespace, labels []string) {
	for i := range body {
		in := &body[i]

		switch in.Opcode {
		case ast.OpBlock, ast.OpLoop, ast.OpIf:
			r.blockType(in.Block)
			labels = append(labels, in.Block.Label)
		case ast.OpEnd:
			if len(labels) > 0 {
				labels = labels[:len(labels)-1]
			}
		}

		if in.Type != nil {
			r.typeUse(in.Type)
		}

		for j := range in.Refs {
			ref := &in.Refs[j]
			switch ref.Space {
			case ast.SpaceLabel:
				r.label(ref, labels)
			case ast.SpaceLocal:
				if locals == nil {
					r.bag.Errorf(diag.Resolution, ref.Loc, "local %s used outside a function", ref)
					continue
				}
				r.bind(ref, locals)
			default:
				r.bind(ref, r.space(ref.Space))
			}
		}
	}
}

// label converts a label reference into a relative branch depth.
func (r *resolver) label(ref *ast.Ref, labels []string) {
	if ref.Name != "" {
		for i := len(labels) - 1; i >= 0; i-- {
			if labels[i] == ref.Name {
				ref.Index = uint32(len(labels) - 1 - i)
				ref.Resolved = true
				return
			}
		}
		r.bag.Errorf(diag.Resolution, ref.Loc, "undefined label %s", ref.Name)
		return
	}
	if int(ref.Index) >= len(labels) {
		r.bag.Errorf(diag.Resolution, ref.Loc, "label index %d out of range [0..%d)", ref.Index, len(labels))
		return
	}
	ref.Resolved = true
}
