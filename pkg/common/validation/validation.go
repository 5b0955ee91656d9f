package validation

import (
	"fmt"
	"reflect"
	"time"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is non-negative (>= 0).
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return gferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is greater than zero.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 100ms or 60s")
	}
	return nil
}

// ValidateInRange validates that min <= value <= max.
func ValidateInRange(module, field string, value, min, max int) error {
	if value < min || value > max {
		return gferrors.NewValidationError(module, field, value, "out of range").
			WithHint(fmt.Sprintf("use a value between %d and %d", min, max))
	}
	return nil
}

// ValidateOrdered validates that the lower bound of a pair does not exceed
// the upper bound, e.g. a minimum and maximum capacity.
func ValidateOrdered(module, lowField, highField string, low, high int) error {
	if low > high {
		return gferrors.NewValidationError(module, lowField, low, "exceeds "+highField).
			WithHint(fmt.Sprintf("%s must be <= %s (%d)", lowField, highField, high))
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil, including
// typed nil pointers stored in an interface.
func ValidateNotNil(module, field string, value any) error {
	if value == nil {
		return gferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return gferrors.NewValidationError(module, field, nil, "cannot be nil").
				WithHint("provide a valid " + field)
		}
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return gferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
