package config

import (
	"fmt"
	"strings"
)

// validAppEnvs defines the allowed values for APP_ENV.
var validAppEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// ValidationError holds multiple configuration validation errors.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// Is supports errors.Is() pattern for type checking.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// Validate checks configuration for required fields and valid ranges.
// Returns ValidationError with all validation errors collected (not just first).
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateConnections()...)
	errs = append(errs, c.validateApp()...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateConnections checks every configured named connection.
// Note: password is NOT required here to support trust-based local
// development where Postgres may be configured without password
// authentication; password materialization (literal or PasswordCmd) is
// validated lazily by the registry when a pool for that connection is
// first requested.
func (c *Config) validateConnections() []string {
	var errs []string

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.Name == "" {
			errs = append(errs, fmt.Sprintf("connections[%d].name is required", i))
		} else if seen[conn.Name] {
			errs = append(errs, fmt.Sprintf("connections[%d].name %q is duplicated", i, conn.Name))
		} else {
			seen[conn.Name] = true
		}
		if conn.Host == "" {
			errs = append(errs, fmt.Sprintf("connections[%d] (%s): host is required", i, conn.Name))
		}
		if conn.Port < 0 || conn.Port > 65535 {
			errs = append(errs, fmt.Sprintf("connections[%d] (%s): port must be between 0 and 65535", i, conn.Name))
		}
		if conn.Database == "" {
			errs = append(errs, fmt.Sprintf("connections[%d] (%s): database is required", i, conn.Name))
		}
		if conn.PoolSize < 0 {
			errs = append(errs, fmt.Sprintf("connections[%d] (%s): pool_size must be >= 0", i, conn.Name))
		}
	}

	return errs
}

// validateApp checks application configuration.
func (c *Config) validateApp() []string {
	var errs []string

	// App.Env validation (optional but if set, must be valid)
	if c.App.Env != "" && !validAppEnvs[c.App.Env] {
		errs = append(errs, "APP_ENV must be one of: development, staging, production")
	}

	return errs
}
