// Package watc is a compiler from the WebAssembly text format to binary
// modules.
//
// It reads .wat source and writes a core WebAssembly module. Every stage
// reports diagnostics instead of stopping at the first problem, so one run
// surfaces as many mistakes as it can.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	watc/
//	├── wat/             Public Compile API and pipeline driver
//	│   └── internal/
//	│       ├── token/     Lexer
//	│       ├── parser/    Folded and flat syntax to module IR
//	│       ├── ast/       Module IR shared by the stages
//	│       ├── opcode/    Instruction table
//	│       ├── resolve/   Names to indices, inline type uses
//	│       ├── validate/  Operand stack typing and module checks
//	│       └── encoder/   IR to binary
//	├── diag/            Diagnostics, source lines, terminal rendering
//	├── engine/          wazero-backed verification and export listing
//	├── errors/          Structured error types for internal faults
//	├── internal/config/ watc.toml / watc.yaml loading
//	└── cmd/watc/        Command-line interface
//
// # Quick Start
//
//	res, err := wat.Compile("add.wat", src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !res.OK() {
//	    res.Render(os.Stderr, diag.RenderOptions{})
//	    os.Exit(1)
//	}
//	os.WriteFile("add.wasm", res.Binary, 0o644)
//
// # Pipeline
//
// Source text goes through lexing, parsing, name resolution, validation and
// encoding. A stage only runs when the previous ones reported no errors;
// warnings never block. Diagnostics keep the order in which they were found.
//
// # Thread Safety
//
// Compile holds no shared state and may be called from many goroutines.
// An engine.Engine is safe for concurrent use.
package watc
