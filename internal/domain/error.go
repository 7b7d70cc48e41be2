package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrJobAlreadyActive   = errors.New("an extraction job is already active for this document")
	ErrJobTerminal        = errors.New("job already reached a terminal state")
	ErrInvalidTransition  = errors.New("invalid job state transition")
	ErrNoSuccessfulRanges = errors.New("no sub-range produced a valid payload")
	ErrCostCeiling        = errors.New("job token ceiling exceeded")
	ErrSchemaInvalid      = errors.New("payload failed schema validation")

	// Infra-boundary errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
