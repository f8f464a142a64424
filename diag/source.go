package diag

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// Location is a position in a source file. Lines and columns are 1-based;
// columns count bytes and LastColumn is exclusive.
type Location struct {
	Filename    string
	Line        int
	FirstColumn int
	LastColumn  int
	Offset      int
}

func (l Location) String() string {
	if l.Line == 0 {
		return l.Filename
	}
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.FirstColumn)
}

// IsZero reports whether the location carries no position.
func (l Location) IsZero() bool {
	return l.Line == 0
}

// Span returns a location from the start of l to the end of end, or l when
// the two are on different lines.
func (l Location) Span(end Location) Location {
	if end.Line != l.Line || end.LastColumn < l.FirstColumn {
		return l
	}
	l.LastColumn = end.LastColumn
	return l
}

// Source is an immutable source buffer with its filename. The filename is
// only used for rendering and is never opened.
type Source struct {
	Filename string
	text     []byte

	once  sync.Once
	lines []int
}

// NewSource wraps text. The buffer must not be modified afterwards.
func NewSource(filename string, text []byte) *Source {
	return &Source{Filename: filename, text: text}
}

// Bytes returns the source text.
func (s *Source) Bytes() []byte {
	return s.text
}

// Len returns the size of the source in bytes.
func (s *Source) Len() int {
	return len(s.text)
}

func (s *Source) index() {
	s.once.Do(func() {
		s.lines = append(s.lines, 0)
		for i, b := range s.text {
			if b == '\n' {
				s.lines = append(s.lines, i+1)
			}
		}
	})
}

// LineCount returns the number of lines in the source.
func (s *Source) LineCount() int {
	s.index()
	return len(s.lines)
}

// Line returns line n (1-based) without its terminator.
func (s *Source) Line(n int) (string, bool) {
	s.index()
	if n < 1 || n > len(s.lines) {
		return "", false
	}
	start := s.lines[n-1]
	end := len(s.text)
	if n < len(s.lines) {
		end = s.lines[n] - 1
	}
	line := s.text[start:end]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line), true
}

// Position converts a byte offset to a 1-based line and column.
func (s *Source) Position(offset int) (line, col int) {
	s.index()
	i := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, offset - s.lines[i] + 1
}
