package research

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/literesearch/provider"
)

// ConfigError reports an invalid setting detected before any external
// call is made. It always aborts the run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFatal reports whether err belongs to the only two categories that
// may abort a run: configuration errors and terminal provider errors.
// Everything else degrades in place.
func IsFatal(err error) bool {
	return IsConfigError(err) || provider.IsTerminal(err)
}
