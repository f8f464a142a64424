package diag

import "fmt"

// Severity is the level of a diagnostic.
type Severity uint8

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "warning":
		*s = SevWarning
	case "error":
		*s = SevError
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Class identifies the pipeline stage that produced a diagnostic.
type Class uint8

const (
	Lexical Class = iota
	Syntax
	Resolution
	Validation
)

func (c Class) String() string {
	switch c {
	case Lexical:
		return "lexical"
	case Syntax:
		return "syntax"
	case Resolution:
		return "resolution"
	case Validation:
		return "validation"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	switch string(b) {
	case "lexical":
		*c = Lexical
	case "syntax":
		*c = Syntax
	case "resolution":
		*c = Resolution
	case "validation":
		*c = Validation
	default:
		return fmt.Errorf("unknown diagnostic class %q", b)
	}
	return nil
}
