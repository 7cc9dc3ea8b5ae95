package domain

import "errors"

var (
	// ErrDataUnavailable means the data source has no usable station data
	// for the city (unknown city or no transit data).
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrDegenerateInput means fewer than 3 distinct station coordinates
	// remained after normalization.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrGeometryFailure means clipping or polygon operations produced an
	// invalid result.
	ErrGeometryFailure = errors.New("geometry failure")

	// ErrNotFound means nothing is cached for the slug.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCity means the city name normalizes to an empty slug.
	ErrInvalidCity = errors.New("invalid city name")

	// ErrInvalidCoordinates means a query point is not a valid lat/lon.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrGenerationFailed is returned to callers that waited on a generation
	// which settled as FAILED.
	ErrGenerationFailed = errors.New("generation failed")
)
