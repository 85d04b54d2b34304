package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError is a single invalid configuration value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := "configuration validation failed:"
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// CollectErrors drops nil results. It returns nil when nothing failed.
func CollectErrors(errs ...*ValidationError) ValidationErrors {
	var result ValidationErrors
	for _, err := range errs {
		if err != nil {
			result = append(result, *err)
		}
	}
	return result
}

// WhenSet applies err only when cond holds
func WhenSet(cond bool, err *ValidationError) *ValidationError {
	if !cond {
		return nil
	}
	return err
}

func RequireNonEmpty(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func RequirePositiveDuration(field string, value time.Duration) *ValidationError {
	if value <= 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be positive, got %v", value)}
	}
	return nil
}

func RequireInRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d, got %d", min, max, value)}
	}
	return nil
}

// RequireAbsoluteURL checks value parses with a scheme and a host
func RequireAbsoluteURL(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	u, err := url.Parse(value)
	if err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: "must be an absolute URL"}
	}
	return nil
}

func RequireOneOf(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be one of %v, got %q", allowed, value)}
}
