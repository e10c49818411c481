package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the actor lacks rights for the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates concurrent changes invalidated the request.
	ErrConflict = errors.New("conflict")
	// ErrPersistence indicates the store was unavailable or rejected a write.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// Error kinds reported to clients.
const (
	KindNotFound           = "NotFound"
	KindUnauthorized       = "Unauthorized"
	KindConflict           = "Conflict"
	KindPersistenceFailure = "PersistenceFailure"
	KindValidationFailure  = "ValidationFailure"
	KindInternal           = "Internal"
)

// KindOf classifies err against the sentinel taxonomy.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidationFailure
	case errors.Is(err, ErrPersistence):
		return KindPersistenceFailure
	default:
		return KindInternal
	}
}
