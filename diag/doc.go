// Package diag holds the source buffer, text locations and the diagnostic
// aggregator shared by every stage of the WAT compiler.
//
// Stages report into a Bag, which keeps diagnostics in discovery order. A Bag
// with at least one error-level entry blocks encoding. Renderer formats a
// diagnostic list against the Source it was produced from:
//
//	add.wat:3:15: error: undefined function $missing
//	    (call $missing (local.get 0))
//	          ^~~~~~~~
package diag
