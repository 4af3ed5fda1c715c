package engine

import "errors"

// Client-visible logical errors. Callers should compare with errors.Is;
// Code classifies any error into one of the stable codes exposed at the
// API boundary.
var (
	ErrNotFound          = errors.New("engine: not found")
	ErrAlreadyExists     = errors.New("engine: already exists")
	ErrVersionMismatch   = errors.New("engine: version mismatch")
	ErrMalformedDocument = errors.New("engine: malformed document")
	ErrEngineNotWritable = errors.New("engine: not writable")
	ErrInternal          = errors.New("engine: internal error")
)

// Code maps err onto one of the stable error codes exposed to callers,
// rather than threading a code field through every internal return path.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrVersionMismatch):
		return "VERSION_ERR"
	case errors.Is(err, ErrEngineNotWritable):
		return "ENGINE_NOT_WRITABLE"
	default:
		return "INTERNAL"
	}
}
