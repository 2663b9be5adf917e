package sync

import "errors"

var (
	// ErrAmbiguous reports that a query expected to match a unique entity
	// returned more than one result. It is never auto-resolved.
	ErrAmbiguous = errors.New("query result not unique")

	// ErrNoPrimaryKey reports that none of the primary attributes were present
	// in the supplied attribute set, so no lookup query could be built.
	ErrNoPrimaryKey = errors.New("no primary key attribute provided")
)
