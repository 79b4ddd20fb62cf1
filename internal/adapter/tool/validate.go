package tool

import (
	"fmt"
	"strings"
	"time"

	"devspace/internal/domain"
)

// invalid wraps a parameter problem as domain.ErrInvalidInput.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("'%s' is required", name)
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid("invalid %s %q (want: %s)", name, value, strings.Join(allowed, ", "))
}

// ValidateMaxLength checks that value does not exceed max bytes.
func ValidateMaxLength(name, value string, max int) error {
	if len(value) > max {
		return invalid("%s exceeds maximum length of %d", name, max)
	}
	return nil
}

// ValidateTimezone checks that value names a loadable IANA location.
// An empty value is allowed.
func ValidateTimezone(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return invalid("invalid %s %q", name, value)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
//
//	if err := ValidateAll(RequireField("text", p.Text), ValidateMaxLength("text", p.Text, 4096)); err != nil { ... }
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
