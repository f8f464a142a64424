// Package errors provides structured error types for failures that are not
// source diagnostics: unrecoverable compiler conditions, internal invariant
// faults, binary verification and CLI configuration problems.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Use the Builder for structured construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindPrecondition).
//		Path("code", "3").
//		Detail("unresolved function reference $f").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidInput(errors.PhaseLex, "empty source")
//	err := errors.Overflow(errors.PhaseEncode, path, n, "u32")
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when their Phase and Kind are equal.
package errors
