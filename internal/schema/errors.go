package schema

import (
	"fmt"
	"strings"
)

// SchemaMismatchError reports that a file's observed header cannot satisfy
// the columns a step needs.
type SchemaMismatchError struct {
	Table    string
	Path     string
	Missing  []string
	Expected []string
	Observed []string
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("schema mismatch")
	if e.Table != "" {
		fmt.Fprintf(&b, " for table %s", e.Table)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " in %s", e.Path)
	}
	switch {
	case len(e.Missing) > 0:
		fmt.Fprintf(&b, ": missing columns [%s]", strings.Join(e.Missing, ", "))
	case e.Reason != "":
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, " (expected [%s]", strings.Join(e.Expected, ", "))
		fmt.Fprintf(&b, ", observed [%s])", strings.Join(e.Observed, ", "))
	}
	return b.String()
}
