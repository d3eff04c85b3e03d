package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an artcodes error code.
type ErrorCode string

const (
	ErrAmbiguousAddressing ErrorCode = "AMBIGUOUS_ADDRESSING" // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"       // 404
	ErrNameAlreadyExists   ErrorCode = "NAME_ALREADY_EXISTS"  // 409
	ErrDuplicateCode       ErrorCode = "DUPLICATE_CODE"       // 409
	ErrTooManyMarkers      ErrorCode = "TOO_MANY_MARKERS"     // 413
	ErrInvalidMarker       ErrorCode = "INVALID_MARKER"       // 422
	ErrCancelled           ErrorCode = "CANCELLED"            // 499
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// ArtcodesError represents a structured error with code, status, and details.
type ArtcodesError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ArtcodesError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAmbiguousAddressing creates a 400 error for when both ID and name are provided.
func NewAmbiguousAddressing() *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrAmbiguousAddressing,
		Status:  400,
		Message: "cannot specify both id and name; use one addressing mode",
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when an experience cannot be found.
func NewNotFound(identifier string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("experience not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewMarkerNotFound creates a 404 error for a code missing from an experience.
func NewMarkerNotFound(experienceID, code string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("marker %q not found in experience %s", code, experienceID),
		Details: map[string]any{"experience_id": experienceID, "code": code},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNameAlreadyExists creates a 409 error for experience name collisions.
func NewNameAlreadyExists(name string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("experience with name %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewDuplicateCode creates a 409 error when codes repeat within one experience.
func NewDuplicateCode(codes []string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrDuplicateCode,
		Status:  409,
		Message: fmt.Sprintf("marker codes must be unique within an experience: %v", codes),
		Details: map[string]any{"duplicate_codes": codes},
	}
}

// NewTooManyMarkers creates a 413 error when an experience exceeds the marker limit.
func NewTooManyMarkers(max, actual int) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrTooManyMarkers,
		Status:  413,
		Message: fmt.Sprintf("experience has too many markers: %d (max %d)", actual, max),
		Details: map[string]any{"max_markers": max, "actual_markers": actual},
	}
}

// NewInvalidMarker creates a 422 error for markers that cannot be addressed.
func NewInvalidMarker(msg string, indexes []int) *ArtcodesError {
	e := &ArtcodesError{
		Code:    ErrInvalidMarker,
		Status:  422,
		Message: msg,
	}
	if len(indexes) > 0 {
		e.Details = map[string]any{"marker_indexes": indexes}
	}
	return e
}

// NewCancelled creates a 499 error for operations aborted by context cancellation.
func NewCancelled(op string) *ArtcodesError {
	return &ArtcodesError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging only.
func NewInternal(err error) *ArtcodesError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ArtcodesError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if err (or anything it wraps) is an ArtcodesError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *ArtcodesError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}
