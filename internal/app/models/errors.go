package models

import (
	"errors"
	"fmt"
)

// Domain specific errors.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrBadRequest      = errors.New("bad request")
	ErrValidation      = errors.New("validation failed")
	ErrMissingLocation = fmt.Errorf("%w: user location is required", ErrValidation)

	// ErrPOIServiceUnavailable marks a POI query that failed or timed out, as opposed to one that
	// succeeded with no results.
	ErrPOIServiceUnavailable = errors.New("poi service unavailable")
)
