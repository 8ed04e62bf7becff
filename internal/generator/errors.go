package generator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTables indicates that no configured table takes part in a step.
var ErrNoTables = errors.New("no tables to process")

// LookupFileError lists every missing or malformed lookup file.
type LookupFileError struct {
	Problems []string
}

func (e *LookupFileError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid lookup files: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid lookup files:\n  - %s", strings.Join(e.Problems, "\n  - "))
}
