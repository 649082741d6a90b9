package sources

import "fmt"

// ParseError represents a response that could not be interpreted.
type ParseError struct {
	Source  string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error in %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Source, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Retryable is false: a malformed response does not improve on retry.
func (e *ParseError) Retryable() bool {
	return false
}

// ConfigError represents an invalid source configuration.
type ConfigError struct {
	Source  string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s config error: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("source %s config error: %s", e.Source, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
