// Package encoder serializes a resolved, validated module into the
// WebAssembly binary format.
//
// The encoder performs no semantic checks. A reference that was never
// resolved or a count that does not fit a u32 is a broken contract between
// pipeline stages and is returned as a precondition error.
package encoder

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/wat/internal/ast"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00} // magic + version

type encoder struct {
	m   *ast.Module
	err error
}

// Encode returns the binary encoding of m. Sections appear in canonical
// order and empty sections are omitted, so equal modules encode to equal
// bytes.
func Encode(m *ast.Module) ([]byte, error) {
	e := &encoder{m: m}
	buf := &Buffer{}
	buf.WriteBytes(header)

	if len(m.Types) > 0 {
		e.typeSection(buf)
	}
	if len(m.Imports) > 0 {
		e.importSection(buf)
	}
	if len(m.Funcs) > 0 {
		e.funcSection(buf)
	}
	if len(m.Tables) > 0 {
		e.tableSection(buf)
	}
	if len(m.Memories) > 0 {
		e.memorySection(buf)
	}
	if len(m.Globals) > 0 {
		e.globalSection(buf)
	}
	if len(m.Exports) > 0 {
		e.exportSection(buf)
	}
	if m.Start != nil {
		e.startSection(buf)
	}
	if len(m.Elems) > 0 {
		e.elemSection(buf)
	}
	// DataCount must precede Code when code refers to data segments
	if usesDataCount(m) {
		e.dataCountSection(buf)
	}
	if len(m.Funcs) > 0 {
		e.codeSection(buf)
	}
	if len(m.Datas) > 0 {
		e.dataSection(buf)
	}

	if e.err != nil {
		return nil, e.err
	}
	return buf.Bytes, nil
}

// usesDataCount reports whether any function body uses memory.init or
// data.drop, which require the DataCount section.
func usesDataCount(m *ast.Module) bool {
	for i := range m.Funcs {
		for _, in := range m.Funcs[i].Body {
			if in.Prefixed() && (in.Subop == ast.MiscOpMemoryInit || in.Subop == ast.MiscOpDataDrop) {
				return true
			}
		}
	}
	return false
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// count writes a vector length.
func (e *encoder) count(buf *Buffer, n int, path ...string) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		ovf := errors.Overflow(errors.PhaseEncode, path, n, "u32 vector length")
		ovf.Cause = err
		e.fail(ovf)
		return
	}
	buf.WriteU32(v)
}

// name writes a length-prefixed UTF-8 string.
func (e *encoder) name(buf *Buffer, s string, path ...string) {
	e.count(buf, len(s), path...)
	buf.WriteBytes([]byte(s))
}

// index writes a resolved reference.
func (e *encoder) index(buf *Buffer, ref ast.Ref, path ...string) {
	if !ref.Resolved {
		e.fail(errors.Precondition(errors.PhaseEncode, path,
			fmt.Sprintf("unresolved %s reference %s", ref.Space, ref)))
		return
	}
	buf.WriteU32(ref.Index)
}

// typeIndex writes the type section index of a resolved type use.
func (e *encoder) typeIndex(buf *Buffer, tu *ast.TypeUse, path ...string) {
	if !tu.Resolved {
		e.fail(errors.Precondition(errors.PhaseEncode, path, "unresolved type use"))
		return
	}
	buf.WriteU32(tu.Index)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
