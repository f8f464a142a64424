package validate

import (
	"strings"
	"testing"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/parser"
	"github.com/wippyai/watc/wat/internal/resolve"
	"github.com/wippyai/watc/wat/internal/token"
)

func validateSource(t *testing.T, input string) *diag.Bag {
	t.Helper()
	bag := diag.NewBag(0)
	lx := token.NewLexer(diag.NewSource("test.wat", []byte(input)), bag)
	mod := parser.New(lx, bag).Parse()
	if bag.HasErrors() {
		t.Fatalf("Parse failed: %v", bag.Errors())
	}
	resolve.Resolve(mod, bag)
	if bag.HasErrors() {
		t.Fatalf("Resolve failed: %v", bag.Errors())
	}
	Validate(mod, bag)
	return bag
}

func TestValidModules(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", `(module)`},
		{"const_result", `(module (func (result i32) i32.const 42))`},
		{"params", `(module (func (param i32 i32) (result i32) local.get 0 local.get 1 i32.add))`},
		{"locals", `(module (func (local i64) (local.set 0 (i64.const 1))))`},
		{"block_result", `(module (func (result i32) (block (result i32) (i32.const 1))))`},
		{"multi_value", `(module (func (result i32 i64) i32.const 1 i64.const 2))`},
		{"block_params", `(module (func (result i32)
			i32.const 1
			block (param i32) (result i32) i32.const 2 i32.add end))`},
		{"loop_br", `(module (func (local i32)
			loop $l
				(br_if $l (local.get 0))
			end))`},
		{"if_else", `(module (func (param i32) (result i32)
			(if (result i32) (local.get 0) (then (i32.const 1)) (else (i32.const 2)))))`},
		{"if_no_else", `(module (func (param i32) (if (local.get 0) (then nop))))`},
		{"br_out", `(module (func (result i32) (block $b (result i32) (br $b (i32.const 1)))))`},
		{"br_table", `(module (func (param i32) (result i32)
			block $a (result i32)
				block $b (result i32)
					i32.const 7
					local.get 0
					br_table $a $b
				end
			end))`},
		{"unreachable_poly", `(module (func (result i32) unreachable i32.add))`},
		{"unreachable_drop", `(module (func unreachable drop drop))`},
		{"return", `(module (func (result i64) i64.const 1 return))`},
		{"call", `(module (func $f (param i32) (result i32) local.get 0) (func (result i32) (call $f (i32.const 1))))`},
		{"call_indirect", `(module (type $t (func (result i32))) (table 1 funcref)
			(func (result i32) (call_indirect (type $t) (i32.const 0))))`},
		{"return_call", `(module (func $f (result i32) i32.const 1) (func (result i32) return_call $f))`},
		{"select", `(module (func (result i32) (select (i32.const 1) (i32.const 2) (i32.const 0))))`},
		{"select_typed", `(module (func (result externref)
			(select (result externref) (ref.null extern) (ref.null extern) (i32.const 0))))`},
		{"globals", `(module (import "m" "g" (global $g i32))
			(global $h (mut i32) (global.get $g))
			(func (global.set $h (i32.const 1))))`},
		{"memory_ops", `(module (memory 1)
			(func (result i32)
				(i32.store (i32.const 0) (i32.const 1))
				(drop (memory.grow (i32.const 1)))
				(memory.fill (i32.const 0) (i32.const 0) (i32.const 4))
				(i32.load8_u offset=2 (i32.const 0))))`},
		{"data_drop_without_memory", `(module (data "x") (func data.drop 0))`},
		{"bulk_memory", `(module (memory 1) (data $d "hi") (func (memory.init $d (i32.const 0) (i32.const 0) (i32.const 2))))`},
		{"ref_func_declared", `(module (func $f) (elem declare func $f) (func (result funcref) ref.func $f))`},
		{"ref_func_exported", `(module (func $f (export "f")) (func (result funcref) ref.func $f))`},
		{"ref_is_null", `(module (func (result i32) (ref.is_null (ref.null func))))`},
		{"tables", `(module (table $t 1 externref)
			(func (param externref)
				(table.set $t (i32.const 0) (local.get 0))
				(drop (table.grow $t (ref.null extern) (i32.const 1)))
				(table.fill $t (i32.const 0) (ref.null extern) (i32.const 1))
				(drop (table.size $t))))`},
		{"table_init", `(module (table 1 funcref) (func $f) (elem $e func $f)
			(func (table.init $e (i32.const 0) (i32.const 0) (i32.const 1)) (elem.drop $e)))`},
		{"elem_exprs", `(module (table 2 funcref) (func $f)
			(elem (i32.const 0) funcref (ref.func $f) (ref.null func)))`},
		{"start", `(module (func $main) (start $main))`},
		{"sign_ext", `(module (func (param i32) (result i32) (i32.extend8_s (local.get 0))))`},
		{"trunc_sat", `(module (func (param f64) (result i64) (i64.trunc_sat_f64_s (local.get 0))))`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := validateSource(t, tt.input)
			if bag.HasErrors() {
				t.Errorf("unexpected errors: %v", bag.Errors())
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"implicit_return", `(module (func (result i32) i64.const 1))`,
			"type mismatch in implicit return, expected [i32] but got [i64]"},
		{"missing_result", `(module (func (result i32)))`,
			"type mismatch in implicit return, expected [i32] but got []"},
		{"extra_value", `(module (func i32.const 1))`,
			"type mismatch in implicit return, expected [] but got [i32]"},
		{"binop", `(module (func (result i32) i32.const 1 i64.const 2 i32.add))`,
			"type mismatch in i32.add, expected [i32 i32] but got [i32 i64]"},
		{"underflow", `(module (func (result i32) i32.const 1 i32.add))`,
			"type mismatch in i32.add, expected [i32 i32] but got [i32]"},
		{"drop_empty", `(module (func drop))`, "type mismatch in drop"},
		{"block_end", `(module (func (block (result i32) (i64.const 1)) drop))`,
			"type mismatch in block, expected [i32] but got [i64]"},
		{"if_without_else", `(module (func (result i32) (if (result i32) (i32.const 1) (then (i32.const 2)))))`,
			"type mismatch in if false branch"},
		{"else_branch", `(module (func (result i32)
			(if (result i32) (i32.const 1) (then (i32.const 1)) (else (f32.const 1)))))`,
			"type mismatch in block, expected [i32] but got [f32]"},
		{"br_value", `(module (func (block $b (result i32) (br $b (i64.const 1))) drop))`,
			"type mismatch in br, expected [i32] but got [i64]"},
		{"br_table_arity", `(module (func (param i32)
			block $a (result i32)
				block $b
					i32.const 0
					local.get 0
					br_table $a $b
				end
				i32.const 1
			end
			drop))`, "br_table targets have inconsistent arity"},
		{"call_args", `(module (func $f (param i32)) (func (call $f (f32.const 1))))`,
			"type mismatch in call, expected [i32] but got [f32]"},
		{"return_call_results", `(module (func $f (result i64) i64.const 1) (func (result i32) return_call $f))`,
			"type mismatch in return_call, expected [i32] but got [i64]"},
		{"select_operands", `(module (func (result i32) (select (i32.const 1) (i64.const 2) (i32.const 0))))`,
			"type mismatch in select"},
		{"select_ref", `(module (func (result funcref) (select (ref.null func) (ref.null func) (i32.const 0))))`,
			"select on funcref requires a result type"},
		{"local_set", `(module (func (local i32) (local.set 0 (i64.const 0))))`,
			"type mismatch in local.set, expected [i32] but got [i64]"},
		{"immutable_global", `(module (global $g i32 (i32.const 0)) (func (global.set $g (i32.const 1))))`,
			"global.set on immutable global $g"},
		{"no_memory_load", `(module (func (drop (i32.load (i32.const 0)))))`, "i32.load requires a memory"},
		{"no_memory_size", `(module (func (drop (memory.size))))`, "memory.size requires a memory"},
		{"alignment", `(module (memory 1) (func (drop (i32.load align=8 (i32.const 0)))))`,
			"alignment must not be larger than natural alignment (4)"},
		{"undeclared_ref", `(module (func $f) (func (drop (ref.func $f))))`, "undeclared function reference $f"},
		{"ref_is_null_num", `(module (func (drop (ref.is_null (i32.const 0)))))`, "type mismatch in ref.is_null"},
		{"call_indirect_table", `(module (table 1 externref) (func (call_indirect (i32.const 0))))`,
			"call_indirect requires a funcref table, got externref"},
		{"table_copy", `(module (table $a 1 funcref) (table $b 1 externref)
			(func (table.copy $a $b (i32.const 0) (i32.const 0) (i32.const 0))))`,
			"type mismatch in table.copy"},
		{"table_init", `(module (table 1 externref) (elem $e funcref)
			(func (table.init $e (i32.const 0) (i32.const 0) (i32.const 0))))`,
			"type mismatch in table.init"},
		{"duplicate_export", `(module (func $f) (export "a" (func $f)) (export "a" (func $f)))`,
			`duplicate export "a"`},
		{"export_name_utf8", `(module (func (export "\ff")))`, `malformed UTF-8 encoding in export name "\xff"`},
		{"import_module_utf8", `(module (import "\c3" "f" (func)))`, "malformed UTF-8 encoding in import module name"},
		{"import_field_utf8", `(module (import "env" "a\80b" (global i32)))`, "malformed UTF-8 encoding in import field name"},
		{"two_memories", `(module (memory 1) (memory 1))`, "multiple memories are not supported"},
		{"imported_and_defined_memory", `(module (import "m" "mem" (memory 1)) (memory 1))`,
			"multiple memories are not supported"},
		{"limits", `(module (table 2 1 funcref))`, "size minimum must not be greater than maximum"},
		{"memory_pages", `(module (memory 65537))`, "memory size must be at most 65536 pages"},
		{"start_type", `(module (func $f (param i32)) (start $f))`, "start function must have type [] -> []"},
		{"global_init_type", `(module (global i32 (i64.const 0)))`,
			"type mismatch in global initializer, expected [i32] but got [i64]"},
		{"global_init_const", `(module (global i32 (i32.add (i32.const 1) (i32.const 2))))`,
			"constant expression required in global initializer"},
		{"global_init_local_global", `(module (global $a i32 (i32.const 0)) (global i32 (global.get $a)))`,
			"global initializer can only reference imported globals"},
		{"global_init_mutable", `(module (import "m" "g" (global $g (mut i32))) (global i32 (global.get $g)))`,
			"global initializer cannot reference a mutable global"},
		{"elem_offset", `(module (table 1 funcref) (elem (i64.const 0) func))`,
			"type mismatch in elem segment offset, expected [i32] but got [i64]"},
		{"elem_table_type", `(module (table 1 externref) (func $f) (elem (i32.const 0) func $f))`,
			"type mismatch in elem segment, expected externref but got funcref"},
		{"data_offset", `(module (memory 1) (data (f32.const 0) "x"))`,
			"type mismatch in data segment offset, expected [i32] but got [f32]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := validateSource(t, tt.input)
			errs := bag.Errors()
			if len(errs) != 1 {
				t.Fatalf("errors = %v, want exactly one", errs)
			}
			if !strings.Contains(errs[0].Message, tt.want) {
				t.Errorf("error = %q, want %q", errs[0].Message, tt.want)
			}
			if errs[0].Class != diag.Validation {
				t.Errorf("class = %v, want validation", errs[0].Class)
			}
		})
	}
}

func TestUnicodeNamesAccepted(t *testing.T) {
	bag := validateSource(t, `(module (import "\u{1F600}" "f\c3\a9" (func)) (func (export "caf\u{e9}")))`)
	if bag.HasErrors() {
		t.Errorf("unexpected errors: %v", bag.Errors())
	}
}

func TestImplicitReturnLocation(t *testing.T) {
	bag := validateSource(t, "(module\n  (func $f (result i32)\n    i64.const 1))")
	errs := bag.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	if errs[0].Location.Line != 2 {
		t.Errorf("line = %d, want 2", errs[0].Location.Line)
	}
}

func TestOneDiagnosticPerInstruction(t *testing.T) {
	bag := validateSource(t, `(module (func (result i32)
		f32.const 1
		f64.const 2
		i32.add
		i64.const 3
		i64.eqz))`)

	errs := bag.Errors()
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2", errs)
	}
	if !strings.Contains(errs[0].Message, "i32.add") || !strings.Contains(errs[1].Message, "implicit return") {
		t.Errorf("errors = %v", errs)
	}
}

func TestCheckingResumesAfterError(t *testing.T) {
	bag := validateSource(t, `(module
		(func (result i32) i64.const 1)
		(func (local f32) (local.set 0 (i32.const 1)))
		(func (param i32) (result i32) local.get 0))`)

	if got := bag.ErrorCount(); got < 1 {
		t.Fatalf("errors = %d, want at least 1", got)
	}
	for _, d := range bag.Errors() {
		if d.Location.Line == 4 {
			t.Errorf("valid function reported: %v", d)
		}
	}
}

func TestDuplicateImportWarns(t *testing.T) {
	bag := validateSource(t, `(module
		(import "env" "f" (func))
		(import "env" "f" (func (param i32))))`)

	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Errors())
	}
	warns := bag.Warnings()
	if len(warns) != 1 || !strings.Contains(warns[0].Message, `duplicate import "env" "f"`) {
		t.Errorf("warnings = %v", warns)
	}
}

func TestErrorsInDiscoveryOrder(t *testing.T) {
	bag := validateSource(t, `(module
		(memory 1)
		(memory 1)
		(func (result i32) i64.const 0)
		(func (result f32) i64.const 0))`)

	errs := bag.Errors()
	if len(errs) != 3 {
		t.Fatalf("errors = %v, want 3", errs)
	}
	for i := 1; i < len(errs); i++ {
		if errs[i].Location.Line < errs[i-1].Location.Line {
			t.Errorf("error %d precedes error %d", i, i-1)
		}
	}
}
