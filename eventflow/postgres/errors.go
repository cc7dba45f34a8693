package postgres

import "errors"

var (
	// ErrConnectionRequired indicates the repository was built without a
	// database connection.
	ErrConnectionRequired = errors.New("postgres connection is required")

	// ErrInvalidIdentifier indicates a table name failed SQL identifier
	// validation.
	ErrInvalidIdentifier = errors.New("invalid sql identifier")

	// ErrInvalidDatabaseName indicates the configured database name failed
	// validation.
	ErrInvalidDatabaseName = errors.New("invalid database name")

	// ErrAttemptNotFound indicates a delivery attempt row is missing for the
	// given idempotency key.
	ErrAttemptNotFound = errors.New("delivery attempt not found")

	// ErrAttemptStatusInvalid indicates a failure status outside the
	// failed/dead_letter pair was supplied.
	ErrAttemptStatusInvalid = errors.New("attempt failure status must be failed or dead_letter")
)
