package diag

import (
	"strings"
)

// Diagnostic is a single message attached to a source location.
type Diagnostic struct {
	Message  string
	Location Location
	Severity Severity
	Class    Class
}

// IsError reports whether the diagnostic blocks encoding.
func (d Diagnostic) IsError() bool {
	return d.Severity == SevError
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if loc := d.Location.String(); loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Record is a flat, serializable form of a diagnostic.
type Record struct {
	Severity  string `json:"severity" msgpack:"severity"`
	Class     string `json:"class" msgpack:"class"`
	File      string `json:"file" msgpack:"file"`
	Message   string `json:"message" msgpack:"message"`
	Line      int    `json:"line" msgpack:"line"`
	Column    int    `json:"column" msgpack:"column"`
	EndColumn int    `json:"end_column" msgpack:"end_column"`
}

// Record converts d into its serializable form.
func (d Diagnostic) Record() Record {
	return Record{
		Severity:  d.Severity.String(),
		Class:     d.Class.String(),
		File:      d.Location.Filename,
		Line:      d.Location.Line,
		Column:    d.Location.FirstColumn,
		EndColumn: d.Location.LastColumn,
		Message:   d.Message,
	}
}

// List is an ordered sequence of diagnostics. A non-empty List can be
// returned as an error.
type List []Diagnostic

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no diagnostics"
	case 1:
		return l[0].String()
	}
	var b strings.Builder
	for i, d := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.String())
	}
	return b.String()
}

// Filter returns the diagnostics of severity s, preserving order.
func (l List) Filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any entry is error-level.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Records converts every diagnostic into its serializable form.
func (l List) Records() []Record {
	out := make([]Record, len(l))
	for i, d := range l {
		out[i] = d.Record()
	}
	return out
}
