package app

import "errors"

// Sentinel errors carry the exact client-facing messages; the HTTP layer maps
// them to status codes with errors.Is.
var (
	// ErrUnauthorized covers every credential or token failure uniformly.
	// Callers never learn whether the email, password, or token was wrong.
	ErrUnauthorized = errors.New("Unauthorized")

	ErrMissingEmail    = errors.New("Missing email")
	ErrMissingPassword = errors.New("Missing password")
	ErrEmailTaken      = errors.New("Already exist")

	ErrMissingName     = errors.New("Missing name")
	ErrMissingType     = errors.New("Missing type")
	ErrMissingData     = errors.New("Missing data")
	ErrParentNotFound  = errors.New("Parent not found")
	ErrParentNotFolder = errors.New("Parent is not a folder")

	// ErrNotFound also stands in for records owned by someone else, so a
	// denial is indistinguishable from a genuinely absent id.
	ErrNotFound = errors.New("Not found")
)

var validationErrors = []error{
	ErrMissingEmail,
	ErrMissingPassword,
	ErrEmailTaken,
	ErrMissingName,
	ErrMissingType,
	ErrMissingData,
	ErrParentNotFound,
	ErrParentNotFolder,
}

// IsValidation reports whether err is a caller-fixable input error.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
