package models

import (
	"errors"
	"fmt"
)

// Error variables for configuration validation
var (
	ErrInvalidBatchSize      = errors.New("batch size must be between 1 and 10000")
	ErrInvalidCycleInterval  = errors.New("cycle interval must be between 1 and 60 minutes")
	ErrEmptyDelayPattern     = errors.New("delay pattern cannot be empty")
	ErrNegativeDelay         = errors.New("delay pattern values must be non-negative")
	ErrMalformedDelayPattern = errors.New("delay pattern must be a list of integers")
	ErrMissingPath           = errors.New("file path is required")
	ErrMissingPhoneColumn    = errors.New("phone column is required")
)

// ConfigError reports a malformed or missing configuration value.
// A campaign never starts when one is returned.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid configuration %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
