// Package wat compiles the WebAssembly text format into binary modules.
//
// Compilation runs as a pipeline: a lazy lexer feeds a recovering parser,
// the resolver binds names to indices, the validator type-checks every
// function, and the encoder writes the binary. Problems in the source are
// collected as diagnostics instead of stopping at the first one.
//
// Basic usage:
//
//	res, err := wat.Compile("add.wat", src)
//	if err != nil {
//		return err // empty input or internal fault
//	}
//	if !res.OK() {
//		res.Render(os.Stderr, diag.RenderOptions{})
//		return res.Err()
//	}
//	os.WriteFile("add.wasm", res.Binary, 0o644)
//
// Supported WASM 2.0 features:
//   - Functions with params, results, locals (named and indexed)
//   - Multi-value returns and block parameters
//   - Memory, global, table declarations with imports/exports
//   - Control flow: if/then/else, loop, block, br, br_if, br_table, return
//   - call, call_indirect, return_call, return_call_indirect
//   - Integer and float arithmetic, comparisons and conversions
//   - Memory: load/store for all types with offset/align
//   - Bulk memory: memory.copy, memory.fill, memory.init, data.drop
//   - Table ops: table.get/set/grow/size/fill/copy/init, elem.drop
//   - Reference types: funcref, externref, ref.null, ref.func, ref.is_null
//   - Saturating truncations and sign extension
//   - Data and elem segments (active, passive, declarative)
//   - Legacy spellings such as get_local and anyfunc, with a warning
//
// Not supported: SIMD (v128), threads/atomics, exception handling, GC types,
// multiple memories.
package wat
