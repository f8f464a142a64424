package validate

import (
	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/wat/internal/ast"
	"github.com/wippyai/watc/wat/internal/opcode"
)

// unknown is the operand type produced by a polymorphic stack. It matches
// every type.
const unknown ast.ValType = 0

// frame is an open control construct.
type frame struct {
	params      []ast.ValType
	results     []ast.ValType
	loc         diag.Location
	height      int
	opcode      byte
	unreachable bool
}

// labelTypes returns the operands a branch to this frame carries.
func (f *frame) labelTypes() []ast.ValType {
	if f.opcode == ast.OpLoop {
		return f.params
	}
	return f.results
}

// checker types one function body.
type checker struct {
	v      *validator
	fn     *ast.Func
	locals []ast.ValType
	stack  []ast.ValType
	frames []frame

	// reported limits each instruction to one diagnostic.
	reported bool
}

func newChecker(v *validator, fn *ast.Func) *checker {
	locals := make([]ast.ValType, 0, len(fn.Type.Params)+len(fn.Locals))
	locals = append(locals, fn.Type.Params...)
	for _, l := range fn.Locals {
		locals = append(locals, l.Type)
	}
	return &checker{
		v:      v,
		fn:     fn,
		locals: locals,
		frames: []frame{{results: fn.Type.Results, loc: fn.Loc, opcode: ast.OpBlock}},
	}
}

// run checks the body and the implicit return at the final end.
func (c *checker) run() {
	for i := range c.fn.Body {
		c.reported = false
		c.instr(&c.fn.Body[i])
	}
	c.reported = false
	c.checkFrameEnd(&c.frames[0], "implicit return", c.fn.Loc)
}

func (c *checker) errorf(loc diag.Location, format string, args ...any) {
	if c.reported {
		return
	}
	c.reported = true
	c.v.errorf(loc, format, args...)
}

func (c *checker) mismatch(name string, loc diag.Location, want, got []ast.ValType) {
	c.errorf(loc, "type mismatch in %s, expected %s but got %s", name, ast.TypesString(want), ast.TypesString(got))
}

func (c *checker) top() *frame {
	return &c.frames[len(c.frames)-1]
}

func (c *checker) push(ts ...ast.ValType) {
	c.stack = append(c.stack, ts...)
}

func matches(want, got ast.ValType) bool {
	return want == unknown || got == unknown || want == got
}

// peekVals checks that the top of the current frame holds want and returns
// how many of those operands are actually present.
func (c *checker) peekVals(name string, loc diag.Location, want []ast.ValType) int {
	f := c.top()
	avail := len(c.stack) - f.height
	n := len(want)
	take := min(n, avail)
	got := c.stack[len(c.stack)-take:]

	ok := take == n || f.unreachable
	for i := 0; ok && i < take; i++ {
		ok = matches(want[n-take+i], got[i])
	}
	if !ok {
		c.mismatch(name, loc, want, got)
	}
	return take
}

// popVals pops want from the operand stack. Missing operands below an
// unreachable frame's height are treated as unknown.
func (c *checker) popVals(name string, loc diag.Location, want ...ast.ValType) {
	take := c.peekVals(name, loc, want)
	c.stack = c.stack[:len(c.stack)-take]
}

// popAny pops one operand of any type.
func (c *checker) popAny(name string, loc diag.Location) ast.ValType {
	f := c.top()
	if len(c.stack) == f.height {
		if !f.unreachable {
			c.errorf(loc, "type mismatch in %s, expected [any] but got []", name)
		}
		return unknown
	}
	t := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return t
}

// setUnreachable discards the frame's operands and makes its stack
// polymorphic.
func (c *checker) setUnreachable() {
	f := c.top()
	c.stack = c.stack[:f.height]
	f.unreachable = true
}

func (c *checker) pushFrame(op byte, bt *ast.BlockType, loc diag.Location) {
	c.frames = append(c.frames, frame{
		params:  bt.Type.Params,
		results: bt.Type.Results,
		loc:     loc,
		height:  len(c.stack),
		opcode:  op,
	})
	c.push(bt.Type.Params...)
}

// checkFrameEnd verifies that exactly the frame's results remain.
func (c *checker) checkFrameEnd(f *frame, name string, loc diag.Location) {
	got := c.stack[f.height:]
	want := f.results
	ok := len(got) == len(want) || (f.unreachable && len(got) < len(want))
	for i := 0; ok && i < len(got); i++ {
		ok = matches(want[len(want)-len(got)+i], got[i])
	}
	if !ok {
		c.mismatch(name, loc, want, got)
	}
}

// label returns the frame a branch depth refers to.
func (c *checker) label(ref ast.Ref) *frame {
	depth := int(ref.Index)
	if depth >= len(c.frames) {
		return nil
	}
	return &c.frames[len(c.frames)-1-depth]
}

func (c *checker) requireMemory(name string, loc diag.Location) {
	if c.v.memories == 0 {
		c.errorf(loc, "%s requires a memory", name)
	}
}

func instrName(in *ast.Instr) string {
	if in.Opcode == ast.OpSelectTyped {
		return "select"
	}
	return opcode.Name(in.Opcode, in.Subop)
}
