// Package resolve binds symbolic references in a parsed module to numeric
// indices and checks that every index is in range.
//
// Each index space is an arena in declaration order, imports first, with a
// name table beside it. All conflicts are reported; resolution never stops
// at the first one.
package resolve

import (
	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
)

// namespace maps names to positions in one index space.
type namespace struct {
	names map[string]uint32
	space ast.Space
	count uint32
}

func newNamespace(space ast.Space) *namespace {
	return &namespace{space: space, names: make(map[string]uint32)}
}

type resolver struct {
	mod *ast.Module
	bag *diag.Bag

	types, funcs, tables, mems, globals, elems, datas *namespace
}

// Resolve binds every reference in mod. Errors go to bag with class
// Resolution. When no error was reported every Ref is Resolved and every
// TypeUse carries its type index and full signature.
func Resolve(mod *ast.Module, bag *diag.Bag) {
	r := &resolver{
		mod:     mod,
		bag:     bag,
		types:   newNamespace(ast.SpaceType),
		funcs:   newNamespace(ast.SpaceFunc),
		tables:  newNamespace(ast.SpaceTable),
		mems:    newNamespace(ast.SpaceMemory),
		globals: newNamespace(ast.SpaceGlobal),
		elems:   newNamespace(ast.SpaceElem),
		datas:   newNamespace(ast.SpaceData),
	}
	r.declareAll()

	for i := range mod.Imports {
		if imp := &mod.Imports[i]; imp.Func != nil {
			r.typeUse(imp.Func)
		}
	}
	for i := range mod.Funcs {
		r.function(&mod.Funcs[i])
	}
	for i := range mod.Globals {
		r.expr(mod.Globals[i].Init)
	}
	for i := range mod.Exports {
		exp := &mod.Exports[i]
		r.bind(&exp.Ref, r.space(exp.Ref.Space))
	}
	if mod.Start != nil {
		r.bind(mod.Start, r.funcs)
	}
	for i := range mod.Elems {
		r.elem(&mod.Elems[i])
	}
	for i := range mod.Datas {
		seg := &mod.Datas[i]
		if !seg.Passive {
			r.bind(&seg.Memory, r.mems)
			r.expr(seg.Offset)
		}
	}
}

// declareAll builds the module-level index spaces.
func (r *resolver) declareAll() {
	mod := r.mod
	for i := range mod.Types[:mod.NumExplicitTypes] {
		r.declare(r.types, mod.Types[i].Name, mod.Types[i].Loc)
	}
	for i := range mod.Imports {
		imp := &mod.Imports[i]
		r.declare(r.space(ast.KindSpace(imp.Kind)), imp.Name, imp.Loc)
	}
	for i := range mod.Funcs {
		r.declare(r.funcs, mod.Funcs[i].Name, mod.Funcs[i].Loc)
	}
	for i := range mod.Tables {
		r.declare(r.tables, mod.Tables[i].Name, mod.Tables[i].Loc)
	}
	for i := range mod.Memories {
		r.declare(r.mems, mod.Memories[i].Name, mod.Memories[i].Loc)
	}
	for i := range mod.Globals {
		r.declare(r.globals, mod.Globals[i].Name, mod.Globals[i].Loc)
	}
	for i := range mod.Elems {
		r.declare(r.elems, mod.Elems[i].Name, mod.Elems[i].Loc)
	}
	for i := range mod.Datas {
		r.declare(r.datas, mod.Datas[i].Name, mod.Datas[i].Loc)
	}
}

// declare appends an entry. A duplicate name is reported at the later
// declaration and the first binding is kept.
func (r *resolver) declare(ns *namespace, name string, loc diag.Location) {
	idx := ns.count
	ns.count++
	if name == "" {
		return
	}
	if _, dup := ns.names[name]; dup {
		r.bag.Errorf(diag.Resolution, loc, "redefinition of %s %s", ns.space, name)
		return
	}
	ns.names[name] = idx
}

func (r *resolver) space(s ast.Space) *namespace {
	switch s {
	case ast.SpaceType:
		return r.types
	case ast.SpaceTable:
		return r.tables
	case ast.SpaceMemory:
		return r.mems
	case ast.SpaceGlobal:
		return r.globals
	case ast.SpaceElem:
		return r.elems
	case ast.SpaceData:
		return r.datas
	}
	return r.funcs
}

// bind resolves ref against ns and reports whether it succeeded.
func (r *resolver) bind(ref *ast.Ref, ns *namespace) bool {
	if ref.Name != "" {
		idx, ok := ns.names[ref.Name]
		if !ok {
			r.bag.Errorf(diag.Resolution, ref.Loc, "undefined %s %s", ns.space, ref.Name)
			return false
		}
		ref.Index = idx
	} else if ref.Index >= ns.count {
		r.bag.Errorf(diag.Resolution, ref.Loc, "%s index %d out of range [0..%d)", ns.space, ref.Index, ns.count)
		return false
	}
	ref.Resolved = true
	return true
}

func (r *resolver) elem(seg *ast.Elem) {
	if seg.Mode == ast.ElemActive {
		r.bind(&seg.Table, r.tables)
		r.expr(seg.Offset)
	}
	for i := range seg.Funcs {
		r.bind(&seg.Funcs[i], r.funcs)
	}
	for _, e := range seg.Exprs {
		r.expr(e)
	}
}

// expr resolves a constant expression, which has no locals or labels.
func (r *resolver) expr(body []ast.Instr) {
	r.body(body, nil, nil)
}
