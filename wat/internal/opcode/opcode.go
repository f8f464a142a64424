// Package opcode maps text format instruction names to opcodes, immediate
// kinds and stack signatures.
package opcode

import (
	"github.com/wippyai/watc/wat/internal/ast"
)

// ImmKind describes the immediates an instruction takes in text form.
type ImmKind int

const (
	ImmNone         ImmKind = iota
	ImmI32                  // i32.const
	ImmI64                  // i64.const
	ImmF32                  // f32.const
	ImmF64                  // f64.const
	ImmBlock                // block, loop, if
	ImmMemarg               // loads and stores
	ImmLabel                // br, br_if
	ImmLabelTable           // br_table
	ImmFunc                 // call, return_call, ref.func
	ImmCallIndirect         // call_indirect, return_call_indirect
	ImmLocal                // local.*
	ImmGlobal               // global.*
	ImmTable                // table.get/set/size/grow/fill, optional table
	ImmTableCopy            // two optional tables
	ImmTableInit            // optional table then elem segment
	ImmElem                 // elem.drop
	ImmData                 // data.drop
	ImmMemoryInit           // data segment, implicit memory 0
	ImmMemory               // memory.size/grow/copy/fill, implicit memory 0
	ImmHeapType             // ref.null
	ImmSelect               // select with optional result types
	ImmElse                 // else, end: optional label
)

// Info describes one instruction. When Sig is set, Params and Results are
// its complete stack effect; otherwise the validator types it by opcode.
type Info struct {
	Name    string
	Params  []ast.ValType
	Results []ast.ValType
	Subop   uint32
	Align   uint32 // natural alignment (log2) for loads and stores
	Imm     ImmKind
	Opcode  byte
	Sig     bool
}

// Prefixed reports whether the instruction is encoded behind 0xFC.
func (i Info) Prefixed() bool {
	return i.Opcode == ast.OpPrefixMisc
}

// Lookup finds an instruction by its text name.
func Lookup(name string) (Info, bool) {
	info, ok := table[name]
	return info, ok
}

// LookupOpcode finds an instruction by encoding.
func LookupOpcode(op byte, subop uint32) (Info, bool) {
	info, ok := byOpcode[key{op, subop}]
	return info, ok
}

// Name returns the text name for an encoding, or "unknown".
func Name(op byte, subop uint32) string {
	if info, ok := LookupOpcode(op, subop); ok {
		return info.Name
	}
	return "unknown"
}

// Deprecated maps a legacy spelling to its current name.
func Deprecated(name string) (string, bool) {
	n, ok := deprecated[name]
	return n, ok
}

var deprecated = map[string]string{
	"get_local":      "local.get",
	"set_local":      "local.set",
	"tee_local":      "local.tee",
	"get_global":     "global.get",
	"set_global":     "global.set",
	"current_memory": "memory.size",
	"grow_memory":    "memory.grow",
}

type key struct {
	op    byte
	subop uint32
}

var byOpcode = map[key]Info{}

func init() {
	for name, info := range table {
		info.Name = name
		table[name] = info
		byOpcode[key{info.Opcode, info.Subop}] = info
	}
}

const (
	i32 = ast.ValTypeI32
	i64 = ast.ValTypeI64
	f32 = ast.ValTypeF32
	f64 = ast.ValTypeF64
)

func types(ts ...ast.ValType) []ast.ValType {
	return ts
}

func op(code byte, imm ImmKind) Info {
	return Info{Opcode: code, Imm: imm}
}

func sig(code byte, imm ImmKind, params, results []ast.ValType) Info {
	return Info{Opcode: code, Imm: imm, Params: params, Results: results, Sig: true}
}

func constop(code byte, imm ImmKind, t ast.ValType) Info {
	return sig(code, imm, nil, types(t))
}

func unop(code byte, t ast.ValType) Info {
	return sig(code, ImmNone, types(t), types(t))
}

func binop(code byte, t ast.ValType) Info {
	return sig(code, ImmNone, types(t, t), types(t))
}

func testop(code byte, t ast.ValType) Info {
	return sig(code, ImmNone, types(t), types(i32))
}

func relop(code byte, t ast.ValType) Info {
	return sig(code, ImmNone, types(t, t), types(i32))
}

func cvt(code byte, from, to ast.ValType) Info {
	return sig(code, ImmNone, types(from), types(to))
}

func load(code byte, t ast.ValType, align uint32) Info {
	info := sig(code, ImmMemarg, types(i32), types(t))
	info.Align = align
	return info
}

func store(code byte, t ast.ValType, align uint32) Info {
	info := sig(code, ImmMemarg, types(i32, t), nil)
	info.Align = align
	return info
}

func misc(subop uint32, imm ImmKind, params, results []ast.ValType) Info {
	info := sig(ast.OpPrefixMisc, imm, params, results)
	info.Subop = subop
	return info
}

func miscOp(subop uint32, imm ImmKind) Info {
	info := op(ast.OpPrefixMisc, imm)
	info.Subop = subop
	return info
}

func sat(subop uint32, from, to ast.ValType) Info {
	return misc(subop, ImmNone, types(from), types(to))
}

var table = map[string]Info{
	// Control
	"unreachable":          op(0x00, ImmNone),
	"nop":                  sig(0x01, ImmNone, nil, nil),
	"block":                op(0x02, ImmBlock),
	"loop":                 op(0x03, ImmBlock),
	"if":                   op(0x04, ImmBlock),
	"else":                 op(0x05, ImmElse),
	"end":                  op(0x0B, ImmElse),
	"br":                   op(0x0C, ImmLabel),
	"br_if":                op(0x0D, ImmLabel),
	"br_table":             op(0x0E, ImmLabelTable),
	"return":               op(0x0F, ImmNone),
	"call":                 op(0x10, ImmFunc),
	"call_indirect":        op(0x11, ImmCallIndirect),
	"return_call":          op(0x12, ImmFunc),
	"return_call_indirect": op(0x13, ImmCallIndirect),

	// Parametric
	"drop":   op(0x1A, ImmNone),
	"select": op(0x1B, ImmSelect),

	// Variables
	"local.get":  op(0x20, ImmLocal),
	"local.set":  op(0x21, ImmLocal),
	"local.tee":  op(0x22, ImmLocal),
	"global.get": op(0x23, ImmGlobal),
	"global.set": op(0x24, ImmGlobal),

	// Tables
	"table.get": op(0x25, ImmTable),
	"table.set": op(0x26, ImmTable),

	// Memory
	"i32.load":     load(0x28, i32, 2),
	"i64.load":     load(0x29, i64, 3),
	"f32.load":     load(0x2A, f32, 2),
	"f64.load":     load(0x2B, f64, 3),
	"i32.load8_s":  load(0x2C, i32, 0),
	"i32.load8_u":  load(0x2D, i32, 0),
	"i32.load16_s": load(0x2E, i32, 1),
	"i32.load16_u": load(0x2F, i32, 1),
	"i64.load8_s":  load(0x30, i64, 0),
	"i64.load8_u":  load(0x31, i64, 0),
	"i64.load16_s": load(0x32, i64, 1),
	"i64.load16_u": load(0x33, i64, 1),
	"i64.load32_s": load(0x34, i64, 2),
	"i64.load32_u": load(0x35, i64, 2),
	"i32.store":    store(0x36, i32, 2),
	"i64.store":    store(0x37, i64, 3),
	"f32.store":    store(0x38, f32, 2),
	"f64.store":    store(0x39, f64, 3),
	"i32.store8":   store(0x3A, i32, 0),
	"i32.store16":  store(0x3B, i32, 1),
	"i64.store8":   store(0x3C, i64, 0),
	"i64.store16":  store(0x3D, i64, 1),
	"i64.store32":  store(0x3E, i64, 2),
	"memory.size":  sig(0x3F, ImmMemory, nil, types(i32)),
	"memory.grow":  sig(0x40, ImmMemory, types(i32), types(i32)),

	// Constants
	"i32.const": constop(0x41, ImmI32, i32),
	"i64.const": constop(0x42, ImmI64, i64),
	"f32.const": constop(0x43, ImmF32, f32),
	"f64.const": constop(0x44, ImmF64, f64),

	// i32 comparison
	"i32.eqz":  testop(0x45, i32),
	"i32.eq":   relop(0x46, i32),
	"i32.ne":   relop(0x47, i32),
	"i32.lt_s": relop(0x48, i32),
	"i32.lt_u": relop(0x49, i32),
	"i32.gt_s": relop(0x4A, i32),
	"i32.gt_u": relop(0x4B, i32),
	"i32.le_s": relop(0x4C, i32),
	"i32.le_u": relop(0x4D, i32),
	"i32.ge_s": relop(0x4E, i32),
	"i32.ge_u": relop(0x4F, i32),

	// i64 comparison
	"i64.eqz":  testop(0x50, i64),
	"i64.eq":   relop(0x51, i64),
	"i64.ne":   relop(0x52, i64),
	"i64.lt_s": relop(0x53, i64),
	"i64.lt_u": relop(0x54, i64),
	"i64.gt_s": relop(0x55, i64),
	"i64.gt_u": relop(0x56, i64),
	"i64.le_s": relop(0x57, i64),
	"i64.le_u": relop(0x58, i64),
	"i64.ge_s": relop(0x59, i64),
	"i64.ge_u": relop(0x5A, i64),

	// f32 comparison
	"f32.eq": relop(0x5B, f32),
	"f32.ne": relop(0x5C, f32),
	"f32.lt": relop(0x5D, f32),
	"f32.gt": relop(0x5E, f32),
	"f32.le": relop(0x5F, f32),
	"f32.ge": relop(0x60, f32),

	// f64 comparison
	"f64.eq": relop(0x61, f64),
	"f64.ne": relop(0x62, f64),
	"f64.lt": relop(0x63, f64),
	"f64.gt": relop(0x64, f64),
	"f64.le": relop(0x65, f64),
	"f64.ge": relop(0x66, f64),

	// i32 arithmetic
	"i32.clz":    unop(0x67, i32),
	"i32.ctz":    unop(0x68, i32),
	"i32.popcnt": unop(0x69, i32),
	"i32.add":    binop(0x6A, i32),
	"i32.sub":    binop(0x6B, i32),
	"i32.mul":    binop(0x6C, i32),
	"i32.div_s":  binop(0x6D, i32),
	"i32.div_u":  binop(0x6E, i32),
	"i32.rem_s":  binop(0x6F, i32),
	"i32.rem_u":  binop(0x70, i32),
	"i32.and":    binop(0x71, i32),
	"i32.or":     binop(0x72, i32),
	"i32.xor":    binop(0x73, i32),
	"i32.shl":    binop(0x74, i32),
	"i32.shr_s":  binop(0x75, i32),
	"i32.shr_u":  binop(0x76, i32),
	"i32.rotl":   binop(0x77, i32),
	"i32.rotr":   binop(0x78, i32),

	// i64 arithmetic
	"i64.clz":    unop(0x79, i64),
	"i64.ctz":    unop(0x7A, i64),
	"i64.popcnt": unop(0x7B, i64),
	"i64.add":    binop(0x7C, i64),
	"i64.sub":    binop(0x7D, i64),
	"i64.mul":    binop(0x7E, i64),
	"i64.div_s":  binop(0x7F, i64),
	"i64.div_u":  binop(0x80, i64),
	"i64.rem_s":  binop(0x81, i64),
	"i64.rem_u":  binop(0x82, i64),
	"i64.and":    binop(0x83, i64),
	"i64.or":     binop(0x84, i64),
	"i64.xor":    binop(0x85, i64),
	"i64.shl":    binop(0x86, i64),
	"i64.shr_s":  binop(0x87, i64),
	"i64.shr_u":  binop(0x88, i64),
	"i64.rotl":   binop(0x89, i64),
	"i64.rotr":   binop(0x8A, i64),

	// f32 arithmetic
	"f32.abs":      unop(0x8B, f32),
	"f32.neg":      unop(0x8C, f32),
	"f32.ceil":     unop(0x8D, f32),
	"f32.floor":    unop(0x8E, f32),
	"f32.trunc":    unop(0x8F, f32),
	"f32.nearest":  unop(0x90, f32),
	"f32.sqrt":     unop(0x91, f32),
	"f32.add":      binop(0x92, f32),
	"f32.sub":      binop(0x93, f32),
	"f32.mul":      binop(0x94, f32),
	"f32.div":      binop(0x95, f32),
	"f32.min":      binop(0x96, f32),
	"f32.max":      binop(0x97, f32),
	"f32.copysign": binop(0x98, f32),

	// f64 arithmetic
	"f64.abs":      unop(0x99, f64),
	"f64.neg":      unop(0x9A, f64),
	"f64.ceil":     unop(0x9B, f64),
	"f64.floor":    unop(0x9C, f64),
	"f64.trunc":    unop(0x9D, f64),
	"f64.nearest":  unop(0x9E, f64),
	"f64.sqrt":     unop(0x9F, f64),
	"f64.add":      binop(0xA0, f64),
	"f64.sub":      binop(0xA1, f64),
	"f64.mul":      binop(0xA2, f64),
	"f64.div":      binop(0xA3, f64),
	"f64.min":      binop(0xA4, f64),
	"f64.max":      binop(0xA5, f64),
	"f64.copysign": binop(0xA6, f64),

	// Conversions
	"i32.wrap_i64":        cvt(0xA7, i64, i32),
	"i32.trunc_f32_s":     cvt(0xA8, f32, i32),
	"i32.trunc_f32_u":     cvt(0xA9, f32, i32),
	"i32.trunc_f64_s":     cvt(0xAA, f64, i32),
	"i32.trunc_f64_u":     cvt(0xAB, f64, i32),
	"i64.extend_i32_s":    cvt(0xAC, i32, i64),
	"i64.extend_i32_u":    cvt(0xAD, i32, i64),
	"i64.trunc_f32_s":     cvt(0xAE, f32, i64),
	"i64.trunc_f32_u":     cvt(0xAF, f32, i64),
	"i64.trunc_f64_s":     cvt(0xB0, f64, i64),
	"i64.trunc_f64_u":     cvt(0xB1, f64, i64),
	"f32.convert_i32_s":   cvt(0xB2, i32, f32),
	"f32.convert_i32_u":   cvt(0xB3, i32, f32),
	"f32.convert_i64_s":   cvt(0xB4, i64, f32),
	"f32.convert_i64_u":   cvt(0xB5, i64, f32),
	"f32.demote_f64":      cvt(0xB6, f64, f32),
	"f64.convert_i32_s":   cvt(0xB7, i32, f64),
	"f64.convert_i32_u":   cvt(0xB8, i32, f64),
	"f64.convert_i64_s":   cvt(0xB9, i64, f64),
	"f64.convert_i64_u":   cvt(0xBA, i64, f64),
	"f64.promote_f32":     cvt(0xBB, f32, f64),
	"i32.reinterpret_f32": cvt(0xBC, f32, i32),
	"i64.reinterpret_f64": cvt(0xBD, f64, i64),
	"f32.reinterpret_i32": cvt(0xBE, i32, f32),
	"f64.reinterpret_i64": cvt(0xBF, i64, f64),

	// Sign extension
	"i32.extend8_s":  unop(0xC0, i32),
	"i32.extend16_s": unop(0xC1, i32),
	"i64.extend8_s":  unop(0xC2, i64),
	"i64.extend16_s": unop(0xC3, i64),
	"i64.extend32_s": unop(0xC4, i64),

	// Reference types
	"ref.null":    op(0xD0, ImmHeapType),
	"ref.is_null": op(0xD1, ImmNone),
	"ref.func":    op(0xD2, ImmFunc),

	// Saturating truncation
	"i32.trunc_sat_f32_s": sat(0, f32, i32),
	"i32.trunc_sat_f32_u": sat(1, f32, i32),
	"i32.trunc_sat_f64_s": sat(2, f64, i32),
	"i32.trunc_sat_f64_u": sat(3, f64, i32),
	"i64.trunc_sat_f32_s": sat(4, f32, i64),
	"i64.trunc_sat_f32_u": sat(5, f32, i64),
	"i64.trunc_sat_f64_s": sat(6, f64, i64),
	"i64.trunc_sat_f64_u": sat(7, f64, i64),

	// Bulk memory
	"memory.init": misc(8, ImmMemoryInit, types(i32, i32, i32), nil),
	"data.drop":   misc(9, ImmData, nil, nil),
	"memory.copy": misc(10, ImmMemory, types(i32, i32, i32), nil),
	"memory.fill": misc(11, ImmMemory, types(i32, i32, i32), nil),

	// Table operations
	"table.init": misc(12, ImmTableInit, types(i32, i32, i32), nil),
	"elem.drop":  misc(13, ImmElem, nil, nil),
	"table.copy": misc(14, ImmTableCopy, types(i32, i32, i32), nil),
	"table.grow": miscOp(15, ImmTable),
	"table.size": misc(16, ImmTable, nil, types(i32)),
	"table.fill": miscOp(17, ImmTable),
}
