package domain

import (
	"errors"
	"regexp"
)

// Business-rule violations. Each one carries a stable kind code that callers
// use to tell "pick another date" from "not allowed" from "retry later".
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrDateConflict       = errors.New("date already booked")
	ErrCapacityExceeded   = errors.New("guest count exceeds venue capacity")
	ErrInvalidDate        = errors.New("reservation date must be in the future")
	ErrVenueNotApproved   = errors.New("venue is not approved")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrAlreadyApproved    = errors.New("venue already approved")
	ErrServiceUnavailable = errors.New("service unavailable")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, "VALIDATION_ERROR"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrDateConflict, "DATE_CONFLICT"},
	{ErrConflict, "CONFLICT"},
	{ErrCapacityExceeded, "CAPACITY_EXCEEDED"},
	{ErrInvalidDate, "INVALID_DATE"},
	{ErrVenueNotApproved, "VENUE_NOT_APPROVED"},
	{ErrPermissionDenied, "PERMISSION_DENIED"},
	{ErrUnauthenticated, "UNAUTHENTICATED"},
	{ErrAlreadyApproved, "ALREADY_APPROVED"},
	{ErrServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

// Kind returns the stable kind code of err, or "" when err is not a known
// business error.
func Kind(err error) string {
	_, kind := Match(err)
	return kind
}

// Match returns the business sentinel err wraps and its kind code, or nil and
// "" when there is none. DATE_CONFLICT wins over CONFLICT.
func Match(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err, k.kind
		}
	}
	return nil, ""
}

var phonePattern = regexp.MustCompile(`^\+7\d{10}$`)

// ValidPhone reports whether s is a phone number in the national format: +7 followed by ten digits.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}
