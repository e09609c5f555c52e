package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIncident signals that an incident with the same
	// provider and unique string is already stored.
	ErrDuplicateIncident = errors.New("duplicate incident")

	// ErrNotNormalizable signals that the taxonomy has no canonical
	// identifier for a sport, event group or participant.
	ErrNotNormalizable = errors.New("incident not normalizable")

	// ErrInvalidIncident signals a schema validation failure.
	ErrInvalidIncident = errors.New("invalid incident")

	// ErrNoContent signals a push envelope that carried no payload.
	ErrNoContent = errors.New("no content given")
)
