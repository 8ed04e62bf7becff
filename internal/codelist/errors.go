package codelist

import "fmt"

// MissingSourceError indicates that a configured source file does not exist.
type MissingSourceError struct {
	Codelist string
	Role     Role
	Path     string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("codelist %s: %s source %s does not exist", e.Codelist, e.Role, e.Path)
}

// DuplicateCodeError indicates that one source lists the same code twice
// with conflicting descriptions.
type DuplicateCodeError struct {
	Codelist string
	Path     string
	Code     string
	Line     int
	First    string
	Second   string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("codelist %s: code %q in %s line %d has conflicting descriptions %q and %q",
		e.Codelist, e.Code, e.Path, e.Line, e.First, e.Second)
}

// FormatError reports a source or term file with an unusable layout.
type FormatError struct {
	Codelist string
	Path     string
	Line     int
	Msg      string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("codelist %s: %s line %d: %s", e.Codelist, e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("codelist %s: %s: %s", e.Codelist, e.Path, e.Msg)
}
