// Package engine checks compiled modules with the wazero runtime.
//
// The compiler never executes code. The engine only decodes and validates a
// binary the way a consumer would, and lists what it exports, so a module
// that the compiler accepted can be cross-checked by an independent
// implementation.
//
//	if err := engine.Verify(ctx, res.Binary); err != nil {
//		// the binary is malformed or invalid
//	}
//
//	exports, err := engine.Exports(ctx, res.Binary)
//	for _, e := range exports {
//		fmt.Println(e) // add: func(i32, i32) -> i32
//	}
package engine
