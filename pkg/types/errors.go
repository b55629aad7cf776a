package types

import (
	"fmt"
)

// ConfigError represents a configuration error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// ErrInvalidConfig creates a new configuration error
func ErrInvalidConfig(format string, args ...interface{}) error {
	return ConfigError{
		Message: fmt.Sprintf(format, args...),
	}
}

// Common errors
var (
	ErrSessionCapacity = fmt.Errorf("session store at capacity")
	ErrPolicyNotFound  = fmt.Errorf("policy not found")
)
