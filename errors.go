package sessionguard

import "errors"

var (
	// ErrAuthClientRequired is returned by Build when no auth client was supplied.
	ErrAuthClientRequired = errors.New("auth client required")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrAlreadyStarted is returned by Start on a guard that is already running.
	ErrAlreadyStarted = errors.New("guard already started")
	// ErrGuardClosed is returned by Start after Close.
	ErrGuardClosed = errors.New("guard closed")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownStorage is returned for an unsupported storage kind.
	ErrUnknownStorage = errors.New("unknown storage kind")
)
