package domain

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrBaselineNotFound   = errors.New("baseline not found")
	ErrInvalidThresholds  = errors.New("invalid thresholds")
	ErrInvalidWeights     = errors.New("invalid ensemble weights")
	ErrModelValidation    = errors.New("model validation failed")
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrInvalidCalibration = errors.New("invalid calibration input")
)
