package encoder

import (
	"bytes"
	"testing"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/parser"
	"github.com/wippyai/watc/wat/internal/resolve"
	"github.com/wippyai/watc/wat/internal/token"
)

func TestBufferAppendByte(t *testing.T) {
	b := &Buffer{}
	b.AppendByte(0x42)
	if len(b.Bytes) != 1 || b.Bytes[0] != 0x42 {
		t.Errorf("AppendByte failed: got %v", b.Bytes)
	}
}

func TestBufferWriteBytes(t *testing.T) {
	b := &Buffer{}
	b.WriteBytes([]byte{0x01, 0x02, 0x03})
	if !bytes.Equal(b.Bytes, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("WriteBytes failed: got %v", b.Bytes)
	}
}

func TestBufferWriteU32(t *testing.T) {
	tests := []struct {
		want []byte
		val  uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7F}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xFF, 0x01}, 255},
		{[]byte{0x80, 0x02}, 256},
		{[]byte{0xFF, 0x7F}, 16383},
		{[]byte{0x80, 0x80, 0x01}, 16384},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		b := &Buffer{}
		b.WriteU32(tt.val)
		if !bytes.Equal(b.Bytes, tt.want) {
			t.Errorf("WriteU32(%d) = %v, want %v", tt.val, b.Bytes, tt.want)
		}
	}
}

func TestBufferWriteI32(t *testing.T) {
	tests := []struct {
		want []byte
		val  int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7F}, -1},
		{[]byte{0x3F}, 63},
		{[]byte{0xC0, 0x00}, 64},
		{[]byte{0x40}, -64},
		{[]byte{0xBF, 0x7F}, -65},
		{[]byte{0xFF, 0x00}, 127},
		{[]byte{0x80, 0x7F}, -128},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}, 2147483647},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648},
	}

	for _, tt := range tests {
		b := &Buffer{}
		b.WriteI32(tt.val)
		if !bytes.Equal(b.Bytes, tt.want) {
			t.Errorf("WriteI32(%d) = %v, want %v", tt.val, b.Bytes, tt.want)
		}
	}
}

func TestBufferWriteI64(t *testing.T) {
	tests := []struct {
		want []byte
		val  int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7F}, -1},
		{[]byte{0xFF, 0x00}, 127},
		{[]byte{0x80, 0x7F}, -128},
	}

	for _, tt := range tests {
		b := &Buffer{}
		b.WriteI64(tt.val)
		if !bytes.Equal(b.Bytes, tt.want) {
			t.Errorf("WriteI64(%d) = %v, want %v", tt.val, b.Bytes, tt.want)
		}
	}
}

func TestBufferWriteF32(t *testing.T) {
	b := &Buffer{}
	b.WriteF32(0x3F800000)
	// 1.0 as IEEE 754 float32 little-endian
	want := []byte{0x00, 0x00, 0x80, 0x3F}
	if !bytes.Equal(b.Bytes, want) {
		t.Errorf("WriteF32(1.0) = %v, want %v", b.Bytes, want)
	}
}

func TestBufferWriteF64(t *testing.T) {
	b := &Buffer{}
	b.WriteF64(0x3FF0000000000000)
	// 1.0 as IEEE 754 float64 little-endian
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F}
	if !bytes.Equal(b.Bytes, want) {
		t.Errorf("WriteF64(1.0) = %v, want %v", b.Bytes, want)
	}
}

func TestBufferWriteLimits(t *testing.T) {
	tests := []struct {
		max  *uint32
		name string
		want []byte
		min  uint32
	}{
		{nil, "no_max", []byte{0x00, 0x01}, 1},
		{ptr(10), "with_max", []byte{0x01, 0x01, 0x0A}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Buffer{}
			b.WriteLimits(tt.min, tt.max)
			if !bytes.Equal(b.Bytes, tt.want) {
				t.Errorf("WriteLimits = %v, want %v", b.Bytes, tt.want)
			}
		})
	}
}

func TestBufferWriteI33(t *testing.T) {
	b := &Buffer{}
	b.WriteI33(200)
	if want := []byte{0xC8, 0x01}; !bytes.Equal(b.Bytes, want) {
		t.Errorf("WriteI33(200) = %v, want %v", b.Bytes, want)
	}
}

func ptr(v uint32) *uint32 { return &v }

// compile runs the front end on src and encodes the result.
func compile(t *testing.T, src string) []byte {
	t.Helper()
	bag := diag.NewBag(0)
	lx := token.NewLexer(diag.NewSource("test.wat", []byte(src)), bag)
	mod := parser.New(lx, bag).Parse()
	resolve.Resolve(mod, bag)
	if bag.HasErrors() {
		t.Fatalf("front end failed: %v", bag.Errors())
	}
	wasm, err := Encode(mod)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return wasm
}

func module(sections ...[]byte) []byte {
	out := append([]byte{}, header...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func resolved(space ast.Space, idx uint32) ast.Ref {
	return ast.Ref{Space: space, Index: idx, Resolved: true}
}

func TestEncodeEmptyModule(t *testing.T) {
	wasm, err := Encode(&ast.Module{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(wasm, header) {
		t.Errorf("Encode empty module = %v, want %v", wasm, header)
	}
}

func TestEncodeConstFunction(t *testing.T) {
	got := compile(t, `(module (func (result i32) i32.const 42))`)
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % x\nwant     % x", got, want)
	}
}

func TestEncodeInstr(t *testing.T) {
	block := func(results ...ast.ValType) *ast.BlockType {
		return &ast.BlockType{Type: ast.TypeUse{Results: results, Resolved: true}}
	}
	misc := func(subop uint32, refs ...ast.Ref) ast.Instr {
		return ast.Instr{Opcode: ast.OpPrefixMisc, Subop: subop, Refs: refs}
	}

	tests := []struct {
		name  string
		instr ast.Instr
		want  []byte
	}{
		{"nop", ast.Instr{Opcode: ast.OpNop}, []byte{0x01}},
		{"i32.const", ast.Instr{Opcode: ast.OpI32Const, Imm: int32(-1)}, []byte{0x41, 0x7F}},
		{"i64.const", ast.Instr{Opcode: ast.OpI64Const, Imm: int64(128)}, []byte{0x42, 0x80, 0x01}},
		{"f32.const", ast.Instr{Opcode: ast.OpF32Const, Imm: uint32(0x3F800000)}, []byte{0x43, 0x00, 0x00, 0x80, 0x3F}},
		{"f64.const", ast.Instr{Opcode: ast.OpF64Const, Imm: uint64(0x7FF8000000000000)},
			[]byte{0x44, 0, 0, 0, 0, 0, 0, 0xF8, 0x7F}},
		{"local.get", ast.Instr{Opcode: ast.OpLocalGet, Refs: []ast.Ref{resolved(ast.SpaceLocal, 3)}}, []byte{0x20, 0x03}},
		{"call", ast.Instr{Opcode: ast.OpCall, Refs: []ast.Ref{resolved(ast.SpaceFunc, 200)}}, []byte{0x10, 0xC8, 0x01}},
		{"br_table", ast.Instr{Opcode: ast.OpBrTable, Refs: []ast.Ref{
			resolved(ast.SpaceLabel, 0), resolved(ast.SpaceLabel, 1), resolved(ast.SpaceLabel, 2),
		}}, []byte{0x0E, 0x02, 0x00, 0x01, 0x02}},
		{"call_indirect", ast.Instr{
			Opcode: ast.OpCallIndirect,
			Type:   &ast.TypeUse{Index: 2, Resolved: true},
			Refs:   []ast.Ref{resolved(ast.SpaceTable, 0)},
		}, []byte{0x11, 0x02, 0x00}},
		{"memory.grow", ast.Instr{Opcode: ast.OpMemoryGrow}, []byte{0x40, 0x00}},
		{"i32.load", ast.Instr{Opcode: ast.OpI32Load, Imm: ast.Memarg{Align: 2, Offset: 16}}, []byte{0x28, 0x02, 0x10}},
		{"ref.null", ast.Instr{Opcode: ast.OpRefNull, Imm: ast.ValTypeFuncref}, []byte{0xD0, 0x70}},
		{"select_typed", ast.Instr{Opcode: ast.OpSelectTyped, Imm: []ast.ValType{ast.ValTypeI32}}, []byte{0x1C, 0x01, 0x7F}},
		{"select", ast.Instr{Opcode: ast.OpSelect}, []byte{0x1B}},
		{"block_empty", ast.Instr{Opcode: ast.OpBlock, Block: block()}, []byte{0x02, 0x40}},
		{"block_result", ast.Instr{Opcode: ast.OpLoop, Block: block(ast.ValTypeI64)}, []byte{0x03, 0x7E}},
		{"block_index", ast.Instr{Opcode: ast.OpIf, Block: &ast.BlockType{Type: ast.TypeUse{
			Params: []ast.ValType{ast.ValTypeI32}, Index: 3, Resolved: true,
		}}}, []byte{0x04, 0x03}},
		{"memory.init", misc(ast.MiscOpMemoryInit, resolved(ast.SpaceData, 1)), []byte{0xFC, 0x08, 0x01, 0x00}},
		{"data.drop", misc(ast.MiscOpDataDrop, resolved(ast.SpaceData, 1)), []byte{0xFC, 0x09, 0x01}},
		{"memory.copy", misc(ast.MiscOpMemoryCopy), []byte{0xFC, 0x0A, 0x00, 0x00}},
		{"memory.fill", misc(ast.MiscOpMemoryFill), []byte{0xFC, 0x0B, 0x00}},
		{"table.init", misc(ast.MiscOpTableInit, resolved(ast.SpaceElem, 1), resolved(ast.SpaceTable, 0)),
			[]byte{0xFC, 0x0C, 0x01, 0x00}},
		{"table.copy", misc(ast.MiscOpTableCopy, resolved(ast.SpaceTable, 0), resolved(ast.SpaceTable, 1)),
			[]byte{0xFC, 0x0E, 0x00, 0x01}},
		{"table.size", misc(ast.MiscOpTableSize, resolved(ast.SpaceTable, 2)), []byte{0xFC, 0x10, 0x02}},
		{"trunc_sat", misc(0), []byte{0xFC, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &encoder{m: &ast.Module{}}
			buf := &Buffer{}
			e.instr(buf, &tt.instr)
			if e.err != nil {
				t.Fatalf("instr failed: %v", e.err)
			}
			if !bytes.Equal(buf.Bytes, tt.want) {
				t.Errorf("instr = % x, want % x", buf.Bytes, tt.want)
			}
		})
	}
}

func TestEncodeSections(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []byte
	}{
		{"import", `(module (import "m" "f" (func (param i32))))`, module(
			[]byte{0x01, 0x05, 0x01, 0x60, 0x01, 0x7F, 0x00},
			[]byte{0x02, 0x07, 0x01, 0x01, 'm', 0x01, 'f', 0x00, 0x00},
		)},
		{"table", `(module (table 1 funcref))`, module(
			[]byte{0x04, 0x04, 0x01, 0x70, 0x00, 0x01},
		)},
		{"memory", `(module (memory 1 2))`, module(
			[]byte{0x05, 0x04, 0x01, 0x01, 0x01, 0x02},
		)},
		{"global", `(module (global (mut i32) (i32.const 7)))`, module(
			[]byte{0x06, 0x06, 0x01, 0x7F, 0x01, 0x41, 0x07, 0x0B},
		)},
		{"export_start", `(module (func) (export "f" (func 0)) (start 0))`, module(
			[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
			[]byte{0x03, 0x02, 0x01, 0x00},
			[]byte{0x07, 0x05, 0x01, 0x01, 'f', 0x00, 0x00},
			[]byte{0x08, 0x01, 0x00},
			[]byte{0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B},
		)},
		{"data_active", `(module (memory 1) (data (i32.const 8) "hi"))`, module(
			[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
			[]byte{0x0B, 0x08, 0x01, 0x00, 0x41, 0x08, 0x0B, 0x02, 'h', 'i'},
		)},
		{"data_passive_no_count", `(module (memory 1) (data "x"))`, module(
			[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
			[]byte{0x0B, 0x04, 0x01, 0x01, 0x01, 'x'},
		)},
		{"data_count", `(module (data "x") (func data.drop 0))`, module(
			[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
			[]byte{0x03, 0x02, 0x01, 0x00},
			[]byte{0x0C, 0x01, 0x01},
			[]byte{0x0A, 0x07, 0x01, 0x05, 0x00, 0xFC, 0x09, 0x00, 0x0B},
			[]byte{0x0B, 0x04, 0x01, 0x01, 0x01, 'x'},
		)},
		{"locals", `(module (func (local i32 i32 i64) (local f32)))`, module(
			[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
			[]byte{0x03, 0x02, 0x01, 0x00},
			[]byte{0x0A, 0x0A, 0x01, 0x08, 0x03, 0x02, 0x7F, 0x01, 0x7E, 0x01, 0x7D, 0x0B},
		)},
		{"multi_value_block", `(module (func (result i32 i32)
			block (result i32 i32) i32.const 1 i32.const 2 end))`, module(
			[]byte{0x01, 0x06, 0x01, 0x60, 0x00, 0x02, 0x7F, 0x7F},
			[]byte{0x03, 0x02, 0x01, 0x00},
			[]byte{0x0A, 0x0B, 0x01, 0x09, 0x00, 0x02, 0x00, 0x41, 0x01, 0x41, 0x02, 0x0B, 0x0B},
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compile(t, tt.src)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode = % x\nwant     % x", got, tt.want)
			}
		})
	}
}

func TestEncodeElemFlags(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []byte
	}{
		{"active_table0", `(module (table 1 funcref) (func) (elem (i32.const 0) func 0))`,
			[]byte{0x09, 0x07, 0x01, 0x00, 0x41, 0x00, 0x0B, 0x01, 0x00}},
		{"passive", `(module (func) (elem func 0))`,
			[]byte{0x09, 0x05, 0x01, 0x01, 0x00, 0x01, 0x00}},
		{"declarative", `(module (func) (elem declare func 0))`,
			[]byte{0x09, 0x05, 0x01, 0x03, 0x00, 0x01, 0x00}},
		{"passive_exprs", `(module (elem funcref (ref.null func)))`,
			[]byte{0x09, 0x07, 0x01, 0x05, 0x70, 0x01, 0xD0, 0x70, 0x0B}},
		{"active_table1", `(module (table 1 funcref) (table 1 funcref) (func)
			(elem (table 1) (i32.const 0) func 0))`,
			[]byte{0x09, 0x09, 0x01, 0x02, 0x01, 0x41, 0x00, 0x0B, 0x00, 0x01, 0x00}},
		{"active_exprs", `(module (table 1 funcref) (elem (i32.const 0) funcref (ref.null func)))`,
			[]byte{0x09, 0x09, 0x01, 0x04, 0x41, 0x00, 0x0B, 0x01, 0xD0, 0x70, 0x0B}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compile(t, tt.src)
			if !bytes.Contains(got, tt.want) {
				t.Errorf("Encode = % x\nmissing  % x", got, tt.want)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	src := `(module
		(type (func (param i32)))
		(import "env" "log" (func $log (param i32)))
		(memory (export "mem") 1)
		(func (export "run") (param i32) (result i32)
			(call $log (local.get 0))
			(i32.add (local.get 0) (i32.const 1))))`
	first := compile(t, src)
	second := compile(t, src)
	if !bytes.Equal(first, second) {
		t.Error("encoding is not deterministic")
	}
}

func TestEncodeUnresolvedReference(t *testing.T) {
	m := &ast.Module{
		Types: []ast.TypeDef{{}},
		Funcs: []ast.Func{{
			Type: ast.TypeUse{Resolved: true},
			Body: []ast.Instr{{
				Opcode: ast.OpCall,
				Refs:   []ast.Ref{ast.NameRef(ast.SpaceFunc, "$missing", diag.Location{})},
			}},
		}},
	}

	wasm, err := Encode(m)
	if err == nil {
		t.Fatal("expected error for unresolved reference")
	}
	if wasm != nil {
		t.Error("no bytes expected on failure")
	}
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("error type = %T, want *errors.Error", err)
	}
	if e.Phase != errors.PhaseEncode || e.Kind != errors.KindPrecondition {
		t.Errorf("error = %v, want encode precondition", e)
	}
}

func TestEncodeBadImmediate(t *testing.T) {
	m := &ast.Module{
		Types: []ast.TypeDef{{}},
		Funcs: []ast.Func{{
			Type: ast.TypeUse{Resolved: true},
			Body: []ast.Instr{{Opcode: ast.OpI32Const, Imm: "42"}},
		}},
	}
	if _, err := Encode(m); err == nil {
		t.Fatal("expected error for malformed immediate")
	}
}
