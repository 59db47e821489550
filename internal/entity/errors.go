package entity

import "fmt"

// ConfigError rejects a request before any upstream call is made.
type ConfigError struct {
	Reason string
	Entity string
}

func (e *ConfigError) Error() string {
	if e.Entity == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Entity)
}
