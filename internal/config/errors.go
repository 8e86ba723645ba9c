package config

import "fmt"

// ConfigurationError names the offending field in an invalid configuration
// document. The Watcher exits 1 on this error before any port is bound.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error at %s: %s", e.Field, e.Message)
}
