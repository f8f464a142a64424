// Package ast defines the in-memory module representation shared by the
// parser, resolver, validator and encoder.
//
// Cross references are Refs. The parser leaves them symbolic or as
// unchecked numbers; the resolver binds every Ref to an in-range index and
// marks it Resolved.
package ast

import (
	"strings"

	"github.com/wippyai/watc/diag"
)

// Module is a parsed module. Imported entities are listed in Imports only;
// the defined entities of each kind follow them in the index space.
type Module struct {
	Start    *Ref
	Name     string
	Types    []TypeDef
	Imports  []Import
	Funcs    []Func
	Tables   []Table
	Memories []Memory
	Globals  []Global
	Exports  []Export
	Elems    []Elem
	Datas    []Data
	Loc      diag.Location

	// NumExplicitTypes is the number of types written as (type ...) fields.
	// Types appended for inline type uses follow them.
	NumExplicitTypes int
}

// ImportCount returns the number of imports of the given kind.
func (m *Module) ImportCount(kind byte) int {
	n := 0
	for i := range m.Imports {
		if m.Imports[i].Kind == kind {
			n++
		}
	}
	return n
}

// Space is an index space.
type Space uint8

const (
	SpaceType Space = iota
	SpaceFunc
	SpaceTable
	SpaceMemory
	SpaceGlobal
	SpaceElem
	SpaceData
	SpaceLocal
	SpaceLabel
)

func (s Space) String() string {
	switch s {
	case SpaceType:
		return "type"
	case SpaceFunc:
		return "function"
	case SpaceTable:
		return "table"
	case SpaceMemory:
		return "memory"
	case SpaceGlobal:
		return "global"
	case SpaceElem:
		return "elem segment"
	case SpaceData:
		return "data segment"
	case SpaceLocal:
		return "local"
	case SpaceLabel:
		return "label"
	}
	return "unknown"
}

// Ref references an entity by name ($id) or by number.
type Ref struct {
	Name     string
	Loc      diag.Location
	Index    uint32
	Space    Space
	Resolved bool
}

// NumRef returns an unresolved numeric reference.
func NumRef(space Space, idx uint32, loc diag.Location) Ref {
	return Ref{Space: space, Index: idx, Loc: loc}
}

// NameRef returns a symbolic reference.
func NameRef(space Space, name string, loc diag.Location) Ref {
	return Ref{Space: space, Name: name, Loc: loc}
}

// IsSymbolic reports whether the reference was written as a name.
func (r Ref) IsSymbolic() bool {
	return r.Name != ""
}

func (r Ref) String() string {
	if r.Name != "" {
		return r.Name
	}
	return uitoa(r.Index)
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports structural equality.
func (ft FuncType) Equal(other FuncType) bool {
	return EqualTypes(ft.Params, other.Params) && EqualTypes(ft.Results, other.Results)
}

func (ft FuncType) String() string {
	return TypesString(ft.Params) + " -> " + TypesString(ft.Results)
}

// EqualTypes reports whether two type sequences are identical.
func EqualTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TypesString formats a result type like [i32 i64].
func TypesString(ts []ValType) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(']')
	return b.String()
}

// TypeDef is an entry of the type section.
type TypeDef struct {
	Name string
	Loc  diag.Location
	Func FuncType
}

// TypeUse is a signature reference: an optional (type x) plus optional
// inline params and results. After resolution Index names the type section
// entry and Params/Results hold the full signature.
type TypeUse struct {
	Ref        *Ref
	Params     []ValType
	ParamNames []string
	ParamLocs  []diag.Location
	Results    []ValType
	Loc        diag.Location
	Index      uint32
	Inline     bool
	Resolved   bool
}

// Sig returns the inline signature.
func (tu *TypeUse) Sig() FuncType {
	return FuncType{Params: tu.Params, Results: tu.Results}
}

// Import is a single import. Exactly one of the descriptor fields matches
// Kind.
type Import struct {
	Func   *TypeUse
	Table  *TableType
	Memory *Limits
	Global *GlobalType
	Module string
	Field  string
	Name   string
	Loc    diag.Location
	Kind   byte
}

// Local is a declared local variable.
type Local struct {
	Name string
	Loc  diag.Location
	Type ValType
}

// Func is a defined function. Body excludes the final end.
type Func struct {
	Name   string
	Type   TypeUse
	Locals []Local
	Body   []Instr
	Loc    diag.Location
	EndLoc diag.Location
}

// Limits bounds a table or memory.
type Limits struct {
	Max *uint32
	Min uint32
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

type Table struct {
	Name string
	Loc  diag.Location
	Type TableType
}

type Memory struct {
	Name   string
	Loc    diag.Location
	Limits Limits
}

// GlobalType describes a global.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

type Global struct {
	Name string
	Init []Instr
	Loc  diag.Location
	Type GlobalType
}

// Export exports the entity Ref points at.
type Export struct {
	Name string
	Loc  diag.Location
	Ref  Ref
	Kind byte
}

// ElemMode selects how an element segment is used.
type ElemMode uint8

const (
	ElemActive ElemMode = iota
	ElemPassive
	ElemDeclarative
)

// Elem is an element segment. Funcs is used for the function index form and
// Exprs for the expression form; exactly one is non-nil unless both are empty.
type Elem struct {
	Name    string
	Table   Ref
	Offset  []Instr
	Funcs   []Ref
	Exprs   [][]Instr
	Loc     diag.Location
	Mode    ElemMode
	RefType ValType
}

// UsesExprs reports whether the segment is in expression form.
func (e *Elem) UsesExprs() bool {
	return e.Exprs != nil
}

// Len returns the number of elements.
func (e *Elem) Len() int {
	if e.Exprs != nil {
		return len(e.Exprs)
	}
	return len(e.Funcs)
}

// Data is a data segment.
type Data struct {
	Name    string
	Memory  Ref
	Offset  []Instr
	Init    []byte
	Loc     diag.Location
	Passive bool
}

// Instr is a single instruction in flat form. Structured instructions are
// followed by their body and an OpEnd (with an OpElse between the arms of an
// if).
//
// Imm holds the constant immediate: int32, int64, uint32 (f32 bits),
// uint64 (f64 bits), Memarg, ValType (ref.null) or []ValType (typed select).
// Refs hold index immediates in binary order.
type Instr struct {
	Imm    any
	Block  *BlockType
	Type   *TypeUse
	Refs   []Ref
	Loc    diag.Location
	Subop  uint32
	Opcode byte
}

// Prefixed reports whether the instruction uses the 0xFC prefix.
func (in *Instr) Prefixed() bool {
	return in.Opcode == OpPrefixMisc
}

// Memarg is a memory immediate; Align is the log2 of the alignment.
type Memarg struct {
	Align  uint32
	Offset uint32
}

// BlockType is the label and signature of block, loop and if.
type BlockType struct {
	Label string
	Type  TypeUse
}

// IsInline reports whether the block type encodes without a type index.
func (bt *BlockType) IsInline() bool {
	return bt.Type.Ref == nil && len(bt.Type.Params) == 0 && len(bt.Type.Results) <= 1
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
