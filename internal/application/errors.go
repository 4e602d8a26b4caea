package application

import "errors"

// Sentinel errors returned by the account and key services.
var (
	// ErrInvalidKey indicates a blank serp key was submitted.
	ErrInvalidKey = errors.New("invalid serp key")

	// ErrInvalidURL indicates a custom URL that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid custom url")

	// ErrInvalidPlan indicates a plan grant with a blank plan name.
	ErrInvalidPlan = errors.New("plan is required")

	// ErrInvalidAmount indicates a non-positive credit amount.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
