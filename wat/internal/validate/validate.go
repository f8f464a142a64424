// Package validate checks a resolved module against the WebAssembly 2.0
// validation rules: structural constraints on module fields, constant
// expressions, and operand stack typing of every function body.
//
// Validation runs only on a module the resolver accepted, so every Ref is
// in range. Each independent problem is reported; validation never stops at
// the first error.
package validate

import (
	"unicode/utf8"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
)

// global is an entry of the global index space.
type global struct {
	typ      ast.GlobalType
	imported bool
}

// validator holds the module context: the flattened index spaces.
type validator struct {
	mod *ast.Module
	bag *diag.Bag

	funcs    []ast.FuncType
	tables   []ast.TableType
	memories int
	globals  []global
	elems    []ast.ValType

	// declared holds the functions a ref.func in code may name.
	declared map[uint32]bool
}

// Validate reports every validation error in mod to bag with class
// Validation. Duplicate imports are reported as warnings.
func Validate(mod *ast.Module, bag *diag.Bag) {
	v := &validator{mod: mod, bag: bag, declared: make(map[uint32]bool)}
	v.buildContext()

	v.imports()
	v.tablesAndMemories()
	for i := range mod.Globals {
		g := &mod.Globals[i]
		v.constExpr(g.Init, g.Type.Type, g.Loc, "global initializer")
	}
	v.exports()
	v.start()
	v.elemSegments()
	v.dataSegments()

	for i := range mod.Funcs {
		fn := &mod.Funcs[i]
		newChecker(v, fn).run()
	}
}

// buildContext flattens imports and definitions into index spaces and
// collects the declared function references.
func (v *validator) buildContext() {
	mod := v.mod
	for i := range mod.Imports {
		imp := &mod.Imports[i]
		switch imp.Kind {
		case ast.KindFunc:
			v.funcs = append(v.funcs, imp.Func.Sig())
		case ast.KindTable:
			v.tables = append(v.tables, *imp.Table)
		case ast.KindMemory:
			v.memories++
		case ast.KindGlobal:
			v.globals = append(v.globals, global{typ: *imp.Global, imported: true})
		}
	}
	for i := range mod.Funcs {
		v.funcs = append(v.funcs, mod.Funcs[i].Type.Sig())
	}
	for i := range mod.Tables {
		v.tables = append(v.tables, mod.Tables[i].Type)
	}
	v.memories += len(mod.Memories)
	for i := range mod.Globals {
		v.globals = append(v.globals, global{typ: mod.Globals[i].Type})
	}
	for i := range mod.Elems {
		v.elems = append(v.elems, mod.Elems[i].RefType)
	}

	for i := range mod.Exports {
		if exp := &mod.Exports[i]; exp.Kind == ast.KindFunc {
			v.declared[exp.Ref.Index] = true
		}
	}
	for i := range mod.Globals {
		v.declareRefs(mod.Globals[i].Init)
	}
	for i := range mod.Elems {
		seg := &mod.Elems[i]
		for _, ref := range seg.Funcs {
			v.declared[ref.Index] = true
		}
		for _, e := range seg.Exprs {
			v.declareRefs(e)
		}
	}
}

func (v *validator) declareRefs(expr []ast.Instr) {
	for i := range expr {
		if expr[i].Opcode == ast.OpRefFunc && len(expr[i].Refs) == 1 {
			v.declared[expr[i].Refs[0].Index] = true
		}
	}
}

func (v *validator) errorf(loc diag.Location, format string, args ...any) {
	v.bag.Errorf(diag.Validation, loc, format, args...)
}

type importKey struct {
	module, field string
}

func (v *validator) imports() {
	seen := make(map[importKey]bool)
	memories := 0
	for i := range v.mod.Imports {
		imp := &v.mod.Imports[i]
		v.name(imp.Module, "import module", imp.Loc)
		v.name(imp.Field, "import field", imp.Loc)
		key := importKey{imp.Module, imp.Field}
		if seen[key] {
			v.bag.Warnf(diag.Validation, imp.Loc, "duplicate import %q %q", imp.Module, imp.Field)
		}
		seen[key] = true

		switch imp.Kind {
		case ast.KindTable:
			v.limits(imp.Table.Limits, imp.Loc)
		case ast.KindMemory:
			memories++
			if memories > 1 {
				v.errorf(imp.Loc, "multiple memories are not supported")
			}
			v.memoryLimits(*imp.Memory, imp.Loc)
		}
	}
}

func (v *validator) tablesAndMemories() {
	for i := range v.mod.Tables {
		v.limits(v.mod.Tables[i].Type.Limits, v.mod.Tables[i].Loc)
	}
	imported := v.memories - len(v.mod.Memories)
	for i := range v.mod.Memories {
		mem := &v.mod.Memories[i]
		if imported+i > 0 {
			v.errorf(mem.Loc, "multiple memories are not supported")
		}
		v.memoryLimits(mem.Limits, mem.Loc)
	}
}

func (v *validator) limits(l ast.Limits, loc diag.Location) bool {
	if l.Max != nil && l.Min > *l.Max {
		v.errorf(loc, "size minimum must not be greater than maximum")
		return false
	}
	return true
}

func (v *validator) memoryLimits(l ast.Limits, loc diag.Location) {
	if !v.limits(l, loc) {
		return
	}
	if l.Min > ast.MaxPages || (l.Max != nil && *l.Max > ast.MaxPages) {
		v.errorf(loc, "memory size must be at most %d pages (4GiB)", ast.MaxPages)
	}
}

func (v *validator) exports() {
	seen := make(map[string]bool)
	for i := range v.mod.Exports {
		exp := &v.mod.Exports[i]
		v.name(exp.Name, "export", exp.Loc)
		if seen[exp.Name] {
			v.errorf(exp.Loc, "duplicate export %q", exp.Name)
		}
		seen[exp.Name] = true
	}
}

// name checks that an import or export name is valid UTF-8, as the binary
// format stores names that way.
func (v *validator) name(s, what string, loc diag.Location) {
	if !utf8.ValidString(s) {
		v.errorf(loc, "malformed UTF-8 encoding in %s name %q", what, s)
	}
}

func (v *validator) start() {
	if v.mod.Start == nil {
		return
	}
	ft := v.funcs[v.mod.Start.Index]
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		v.errorf(v.mod.Start.Loc, "start function must have type [] -> [], got %s", ft)
	}
}

func (v *validator) elemSegments() {
	for i := range v.mod.Elems {
		seg := &v.mod.Elems[i]
		if seg.Mode == ast.ElemActive {
			v.constExpr(seg.Offset, ast.ValTypeI32, seg.Loc, "elem segment offset")
			if want := v.tables[seg.Table.Index].ElemType; want != seg.RefType {
				v.errorf(seg.Loc, "type mismatch in elem segment, expected %s but got %s", want, seg.RefType)
			}
		}
		if seg.Funcs != nil && seg.RefType != ast.ValTypeFuncref {
			v.errorf(seg.Loc, "function indices require a funcref elem segment, got %s", seg.RefType)
		}
		for _, e := range seg.Exprs {
			loc := seg.Loc
			if len(e) > 0 {
				loc = e[0].Loc
			}
			v.constExpr(e, seg.RefType, loc, "elem expression")
		}
	}
}

func (v *validator) dataSegments() {
	for i := range v.mod.Datas {
		seg := &v.mod.Datas[i]
		if seg.Passive {
			continue
		}
		if v.memories == 0 {
			v.errorf(seg.Loc, "data segment requires a memory")
			continue
		}
		v.constExpr(seg.Offset, ast.ValTypeI32, seg.Loc, "data segment offset")
	}
}
