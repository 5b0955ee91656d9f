// Package validation provides common validation utilities for configuration
// parameters across the gofun library.
//
// Every function returns a *errors.ValidationError, so constructors can
// report a uniform message and callers can match errors.ErrInvalidConfiguration.
package validation
