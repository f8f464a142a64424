package diag

import "fmt"

// Bag accumulates diagnostics for one compilation in discovery order.
// A Bag is not safe for concurrent use.
type Bag struct {
	items   List
	limit   int
	dropped int
	errors  int
}

// NewBag creates a bag that keeps at most limit diagnostics. A limit of zero
// or less keeps everything.
func NewBag(limit int) *Bag {
	return &Bag{limit: limit}
}

// Add appends d. It returns false when the limit dropped it; a dropped error
// still counts for HasErrors.
func (b *Bag) Add(d Diagnostic) bool {
	if d.IsError() {
		b.errors++
	}
	if b.limit > 0 && len(b.items) >= b.limit {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Errorf adds an error-level diagnostic.
func (b *Bag) Errorf(class Class, loc Location, format string, args ...any) {
	b.Add(Diagnostic{
		Severity: SevError,
		Class:    class,
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warnf adds a warning-level diagnostic.
func (b *Bag) Warnf(class Class, loc Location, format string, args ...any) {
	b.Add(Diagnostic{
		Severity: SevWarning,
		Class:    class,
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether at least one error-level diagnostic was added.
func (b *Bag) HasErrors() bool {
	return b.errors > 0
}

// ErrorCount returns the number of error-level diagnostics added, including
// dropped ones.
func (b *Bag) ErrorCount() int {
	return b.errors
}

// HasWarnings reports whether a warning was kept.
func (b *Bag) HasWarnings() bool {
	for _, d := range b.items {
		if d.Severity == SevWarning {
			return true
		}
	}
	return false
}

// Len returns the number of kept diagnostics.
func (b *Bag) Len() int {
	return len(b.items)
}

// Dropped returns how many diagnostics exceeded the limit.
func (b *Bag) Dropped() int {
	return b.dropped
}

// Items returns the kept diagnostics. The slice must not be modified.
func (b *Bag) Items() List {
	return b.items
}

// Errors returns the error-level diagnostics in discovery order.
func (b *Bag) Errors() List {
	return b.items.Filter(SevError)
}

// Warnings returns the warnings in discovery order.
func (b *Bag) Warnings() List {
	return b.items.Filter(SevWarning)
}

// Merge appends every diagnostic of other, respecting the limit.
func (b *Bag) Merge(other *Bag) {
	kept := 0
	for _, d := range other.items {
		if d.IsError() {
			kept++
		}
		b.Add(d)
	}
	b.errors += other.errors - kept
	b.dropped += other.dropped
}

// PromoteWarnings turns every kept warning into an error.
func (b *Bag) PromoteWarnings() {
	for i := range b.items {
		if b.items[i].Severity == SevWarning {
			b.items[i].Severity = SevError
			b.errors++
		}
	}
}
