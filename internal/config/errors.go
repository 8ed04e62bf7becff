package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or incomplete configuration document.
// It lists every problem found so they can be fixed in one pass.
type ConfigError struct {
	Path     string
	Problems []string
}

func (e *ConfigError) Error() string {
	prefix := "invalid configuration"
	if e.Path != "" {
		prefix = fmt.Sprintf("invalid configuration %s", e.Path)
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", prefix, e.Problems[0])
	}
	return fmt.Sprintf("%s: %d problems:\n  - %s", prefix, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}
