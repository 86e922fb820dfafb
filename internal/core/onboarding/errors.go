package onboarding

import "errors"

var (
	ErrValidation            = errors.New("onboarding: validation failed")
	ErrInvalidStatus         = errors.New("onboarding: invalid status")
	ErrInvalidEmployee       = errors.New("onboarding: employee does not exist")
	ErrDependencyUnavailable = errors.New("onboarding: dependency unavailable")
	ErrCaseNotFound          = errors.New("onboarding: case not found")
	ErrTaskNotFound          = errors.New("onboarding: task not found")
	ErrCaseAlreadyExists     = errors.New("onboarding: case already exists")
	ErrVersionConflict       = errors.New("onboarding: version conflict")
	ErrConcurrencyConflict   = errors.New("onboarding: concurrency conflict")
	ErrCaseClosed            = errors.New("onboarding: case is closed")
	ErrCorruptedCaseDocument = errors.New("onboarding: corrupted case document")
)
