package wat

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/engine"
	"github.com/wippyai/watc/errors"
)

// Integration tests for the public Compile() API.
// Unit tests are in internal packages.

func compileOK(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	res, err := Compile("test.wat", []byte(src), opts...)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK() {
		t.Fatalf("Compile failed: %v", res.Errors())
	}
	return res
}

func compileFail(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	res, err := Compile("test.wat", []byte(src), opts...)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.OK() {
		t.Fatal("expected compilation to fail")
	}
	if res.Binary != nil {
		t.Error("failed compilation returned a binary")
	}
	return res
}

func TestCompile(t *testing.T) {
	t.Run("empty_module", func(t *testing.T) {
		res := compileOK(t, "(module)")
		if len(res.Binary) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(res.Binary))
		}
		if !bytes.Equal(res.Binary[:4], []byte{0x00, 0x61, 0x73, 0x6D}) {
			t.Error("invalid WASM magic")
		}
	})

	t.Run("bare_fields", func(t *testing.T) {
		res := compileOK(t, "(func (export \"f\"))")
		if len(res.Binary) <= 8 {
			t.Errorf("output too small: %d bytes", len(res.Binary))
		}
	})

	t.Run("comment_only", func(t *testing.T) {
		res := compileOK(t, ";; nothing here\n(; still nothing ;)")
		if len(res.Binary) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(res.Binary))
		}
	})
}

func TestScenarioConstFunction(t *testing.T) {
	res := compileOK(t, `(module (func $f (result i32) i32.const 42))`)
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
	}
	if !bytes.Equal(res.Binary, want) {
		t.Errorf("binary = % x\nwant     % x", res.Binary, want)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestScenarioMissingResult(t *testing.T) {
	res := compileFail(t, "(module\n  (func $f (result i32)))")
	errs := res.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one", errs)
	}
	if errs[0].Class != diag.Validation {
		t.Errorf("class = %v, want validation", errs[0].Class)
	}
	if errs[0].Location.Line != 2 || errs[0].Location.Filename != "test.wat" {
		t.Errorf("location = %v, want test.wat line 2", errs[0].Location)
	}
}

func TestScenarioUndefinedCall(t *testing.T) {
	res := compileFail(t, `(module (func (call $undefined)))`)
	errs := res.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one", errs)
	}
	if errs[0].Class != diag.Resolution || !strings.Contains(errs[0].Message, "$undefined") {
		t.Errorf("error = %v", errs[0])
	}
}

func TestScenarioDuplicateName(t *testing.T) {
	res := compileFail(t, `(module (func $f) (func $f))`)
	errs := res.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one", errs)
	}
	if errs[0].Class != diag.Resolution || !strings.Contains(errs[0].Message, "$f") {
		t.Errorf("error = %v", errs[0])
	}
}

func TestEmptyInput(t *testing.T) {
	for _, src := range []string{"", "  \n\t "} {
		res, err := Compile("empty.wat", []byte(src))
		if err == nil {
			t.Fatalf("Compile(%q): expected error", src)
		}
		if res != nil {
			t.Error("no result expected for empty input")
		}
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLex, Kind: errors.KindInvalidInput}) {
			t.Errorf("error = %v, want lex invalid_input", err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
		class              diag.Class
	}{
		{"lexical", "(module (func [))", "unexpected character", diag.Lexical},
		{"unclosed", "(module", "unexpected end of input", diag.Syntax},
		{"unknown_instr", "(module (func (bogus)))", "unknown instruction", diag.Syntax},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type", diag.Syntax},
		{"unknown_label", "(module (func (block (br $x))))", "undefined label $x", diag.Resolution},
		{"type_mismatch", "(module (func (result i64) (i32.const 0)))", "type mismatch", diag.Validation},
		{"flat_end_in_folded", "(module (func (block (nop) end) (nop)))", "unexpected 'end' in folded block", diag.Syntax},
		{"flat_end_in_then", "(module (func (if (i32.const 1) (then end))))", "unexpected 'end' in folded if", diag.Syntax},
		{"export_name_utf8", `(module (func (export "\ff")))`, "malformed UTF-8 encoding in export name", diag.Validation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compileFail(t, tt.wat)
			errs := res.Errors()
			if len(errs) == 0 {
				t.Fatal("expected errors")
			}
			if !strings.Contains(errs[0].Message, tt.wantErr) {
				t.Errorf("error %q missing %q", errs[0].Message, tt.wantErr)
			}
			if errs[0].Class != tt.class {
				t.Errorf("class = %v, want %v", errs[0].Class, tt.class)
			}
		})
	}
}

func TestMultipleErrors(t *testing.T) {
	res := compileFail(t, `(module
		(func (i32.bogus))
		(func (f32.nope))
		(global i32 (i32.const x)))`)

	errs := res.Errors()
	if len(errs) != 3 {
		t.Fatalf("errors = %v, want 3", errs)
	}
	for i, line := range []int{2, 3, 4} {
		if errs[i].Location.Line != line {
			t.Errorf("error %d on line %d, want %d", i, errs[i].Location.Line, line)
		}
	}
}

func TestStageGating(t *testing.T) {
	res := compileFail(t, `(module (func call $missing) (funk))`)
	errs := res.Errors()
	if len(errs) != 1 || errs[0].Class != diag.Syntax {
		t.Errorf("errors = %v, want only the syntax error", errs)
	}
}

func TestWarnings(t *testing.T) {
	src := `(module (func (param i32) (result i32) get_local 0))`

	t.Run("survive_success", func(t *testing.T) {
		res := compileOK(t, src)
		warns := res.Warnings()
		if len(warns) != 1 || !strings.Contains(warns[0].Message, "get_local") {
			t.Errorf("warnings = %v", warns)
		}
		if res.Err() != nil {
			t.Errorf("Err() = %v, want nil", res.Err())
		}
	})

	t.Run("as_errors", func(t *testing.T) {
		res := compileFail(t, src, WithWarningsAsErrors())
		if len(res.Errors()) != 1 {
			t.Errorf("errors = %v, want the promoted warning", res.Errors())
		}
	})

	t.Run("discovery_order", func(t *testing.T) {
		res := compileFail(t, `(module
			(func (param i32) get_local 0 drop i32.bogus)
			(table 1 anyfunc))`)
		d := res.Diagnostics
		if len(d) != 3 {
			t.Fatalf("diagnostics = %v, want 3", d)
		}
		want := []diag.Severity{diag.SevWarning, diag.SevError, diag.SevWarning}
		for i, sev := range want {
			if d[i].Severity != sev {
				t.Errorf("diagnostic %d severity = %v, want %v", i, d[i].Severity, sev)
			}
		}
	})
}

func TestMaxDiagnostics(t *testing.T) {
	res := compileFail(t, `(module (func call $a call $b call $c call $d call $e))`, WithMaxDiagnostics(2))
	if len(res.Diagnostics) != 2 {
		t.Errorf("kept %d diagnostics, want 2", len(res.Diagnostics))
	}
	if res.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", res.Dropped)
	}
}

func TestCompileText(t *testing.T) {
	bin, err := CompileText(`(module (func (export "f")))`)
	if err != nil || len(bin) == 0 {
		t.Fatalf("CompileText = %d bytes, %v", len(bin), err)
	}

	_, err = CompileText(`(module (func call 9))`)
	var list diag.List
	if !stderrors.As(err, &list) {
		t.Fatalf("error = %T, want diag.List", err)
	}
	if len(list) != 1 || !strings.Contains(list[0].Message, "out of range") {
		t.Errorf("errors = %v", list)
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseValidate, Kind: errors.KindCompileFail}) {
		t.Errorf("error = %v, want compile_failed", err)
	}
	if !strings.Contains(err.Error(), "<input>: 1 error(s)") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestDeterministic(t *testing.T) {
	src := `(module
		(import "env" "log" (func $log (param i32)))
		(memory (export "mem") 1)
		(data (i32.const 0) "hello")
		(func $helper (param i64) (result i64) (i64.mul (local.get 0) (i64.const 3)))
		(func (export "run") (param i32) (result i32)
			(call $log (local.get 0))
			(local.get 0)
			(block (param i32) (result i32) (i32.add (i32.const 1)))))`
	a := compileOK(t, src)
	b := compileOK(t, src)
	if !bytes.Equal(a.Binary, b.Binary) {
		t.Error("compiling the same source twice produced different bytes")
	}
}

func TestRender(t *testing.T) {
	res := compileFail(t, "(module\n  (func (call $nowhere)))")
	var buf bytes.Buffer
	if err := res.Render(&buf, diag.RenderOptions{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"test.wat:2:", "error", "(func (call $nowhere))", "^"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	compileOK(t, `(module (func))`, WithLogger(zap.New(core)))

	stages := map[string]bool{}
	for _, e := range logs.FilterMessage("stage done").All() {
		stages[e.ContextMap()["stage"].(string)] = true
	}
	for _, s := range []string{"parse", "resolve", "validate", "encode"} {
		if !stages[s] {
			t.Errorf("stage %s not logged", s)
		}
	}
}

// TestWasmValidation checks compiled output against an independent decoder.
func TestWasmValidation(t *testing.T) {
	tests := []struct {
		name string
		wat  string
	}{
		// Module structure
		{"memory", "(module (memory 1 10))"},
		{"table", "(module (table 10 funcref))"},
		{"global", "(module (global (mut i32) (i32.const 0)))"},
		{"start", "(module (func $main) (start $main))"},

		// Functions
		{"func_params", "(module (func (param i32 i64 f32 f64)))"},
		{"func_results", "(module (func (result i32 i32) (i32.const 1) (i32.const 2)))"},
		{"func_locals", "(module (func (local i32) (local.set 0 (i32.const 1))))"},
		{"func_mixed_params", "(module (func (param i32 i64 f32 f64 funcref externref)))"},

		// Imports/exports
		{"import_func", "(module (import \"m\" \"f\" (func)))"},
		{"import_memory", "(module (import \"m\" \"m\" (memory 1)))"},
		{"import_table", "(module (import \"m\" \"t\" (table 1 funcref)))"},
		{"import_global", "(module (import \"m\" \"g\" (global i32)))"},
		{"export_func", "(module (func $f) (export \"f\" (func $f)))"},
		{"inline_export", "(module (func (export \"f\")))"},

		// Control flow
		{"block", "(module (func (result i32) (block (result i32) (i32.const 1))))"},
		{"loop", "(module (func (loop $l (br $l))))"},
		{"if_else", "(module (func (result i32) (if (result i32) (i32.const 1) (then (i32.const 2)) (else (i32.const 3)))))"},
		{"br_table", "(module (func (param i32) (block $a (block $b (br_table $a $b (local.get 0))))))"},
		{"nested_blocks", "(module (func (block (block (block (nop))))))"},

		// Flat form
		{"flat_block", "(module (func block nop end))"},
		{"flat_if_else", "(module (func i32.const 1 if nop else nop end))"},
		{"flat_loop", "(module (func loop $l br $l end))"},

		// Calls
		{"call", "(module (func $f) (func (call $f)))"},
		{"call_indirect", "(module (type $t (func)) (table 1 funcref) (func (call_indirect (type $t) (i32.const 0))))"},

		// Memory ops
		{"load_store", "(module (memory 1) (func (i32.store (i32.const 0) (i32.const 42))))"},
		{"memory_grow", "(module (memory 1) (func (result i32) (memory.grow (i32.const 1))))"},
		{"memory_fill", "(module (memory 1) (func (memory.fill (i32.const 0) (i32.const 0) (i32.const 10))))"},
		{"memory_copy", "(module (memory 1) (func (memory.copy (i32.const 0) (i32.const 10) (i32.const 5))))"},
		{"memory_init", "(module (memory 1) (data $d \"hello\") (func (memory.init $d (i32.const 0) (i32.const 0) (i32.const 5))))"},
		{"data_drop", "(module (memory 1) (data $d \"hello\") (func (data.drop $d)))"},
		{"load_offset_align", "(module (memory 1) (func (result i32) (i32.load offset=4 align=4 (i32.const 0))))"},

		// Table ops
		{"table_get", "(module (table 1 funcref) (func (result funcref) (table.get (i32.const 0))))"},
		{"table_set", "(module (table 1 funcref) (func (table.set (i32.const 0) (ref.null func))))"},
		{"table_grow", "(module (table 1 funcref) (func (result i32) (table.grow (ref.null func) (i32.const 1))))"},
		{"table_size", "(module (table 1 funcref) (func (result i32) (table.size)))"},
		{"table_fill", "(module (table 10 funcref) (func (table.fill (i32.const 0) (ref.null func) (i32.const 5))))"},
		{"table_init", "(module (table 10 funcref) (func $f) (elem $e func $f) (func (table.init $e (i32.const 0) (i32.const 0) (i32.const 1))))"},
		{"table_copy", "(module (table 10 funcref) (func (table.copy (i32.const 0) (i32.const 5) (i32.const 3))))"},
		{"elem_drop", "(module (func $f) (elem $e func $f) (func (elem.drop $e)))"},

		// Reference types
		{"ref_null_func", "(module (func (result funcref) (ref.null func)))"},
		{"ref_null_extern", "(module (func (result externref) (ref.null extern)))"},
		{"ref_is_null", "(module (func (param funcref) (result i32) (ref.is_null (local.get 0))))"},
		{"ref_func", "(module (func $f) (elem declare func $f) (func (result funcref) (ref.func $f)))"},

		// Select
		{"select", "(module (func (result i32) (select (i32.const 1) (i32.const 2) (i32.const 1))))"},
		{"select_typed", "(module (func (result i32) (select (result i32) (i32.const 1) (i32.const 2) (i32.const 1))))"},

		// Data/elem
		{"data_active", "(module (memory 1) (data (i32.const 0) \"hello\"))"},
		{"data_passive", "(module (memory 1) (data \"hello\"))"},
		{"elem_active", "(module (table 1 funcref) (func $f) (elem (i32.const 0) $f))"},
		{"elem_declare", "(module (func $f) (elem declare func $f))"},
		{"elem_expr", "(module (table 1 funcref) (elem (i32.const 0) funcref (ref.null func)))"},

		// Inline syntax
		{"inline_memory", "(module (memory (data \"test\")))"},
		{"inline_table", "(module (func $f) (table funcref (elem $f)))"},

		// Saturating truncation
		{"trunc_sat_f32_s", "(module (func (result i32) (i32.trunc_sat_f32_s (f32.const 1.5))))"},
		{"trunc_sat_f64_u", "(module (func (result i64) (i64.trunc_sat_f64_u (f64.const 1.5))))"},

		// Sign extension
		{"extend8_s", "(module (func (result i32) (i32.extend8_s (i32.const 255))))"},
		{"extend16_s", "(module (func (result i32) (i32.extend16_s (i32.const 65535))))"},
		{"i64_extend32_s", "(module (func (result i64) (i64.extend32_s (i64.const 0xFFFFFFFF))))"},

		// Numeric edge cases
		{"i32_max", "(module (func (drop (i32.const 2147483647))))"},
		{"i32_min", "(module (func (drop (i32.const -2147483648))))"},
		{"i64_min", "(module (func (drop (i64.const -9223372036854775808))))"},
		{"hex_numbers", "(module (func (drop (i32.const 0xFFFF_FFFF))))"},
		{"f32_nan", "(module (func (drop (f32.const nan))))"},
		{"f64_inf", "(module (func (drop (f64.const inf))))"},
		{"hex_float", "(module (func (drop (f32.const 0x1.0p0))))"},
	}

	ctx := context.Background()
	verifier := engine.New(ctx, nil)
	defer verifier.Close(ctx)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compileOK(t, tt.wat)
			if err := verifier.Verify(ctx, res.Binary); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestTailCalls(t *testing.T) {
	// wazero does not implement tail calls, so these are checked by
	// compilation alone.
	compileOK(t, "(module (func $f (return_call $f)))")
	compileOK(t, "(module (type $t (func)) (table 1 funcref) (func (return_call_indirect (type $t) (i32.const 0))))")
}
