package account

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("value should not be an empty string")

// ErrMismatchedHashAndPassword is returned when a password does not match
// the stored hash
var ErrMismatchedHashAndPassword = errors.New("password does not match")

// ErrTooManyLoginAttempts is returned when an account is cooling down
var ErrTooManyLoginAttempts = errors.New("too many login attempts")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

const (
	// TextCodeActivationInvalid is shared by every activation failure branch
	TextCodeActivationInvalid = "TOKEN_INVALID_OR_EXPIRED"
	// TextCodeTokenExpired marks expired session tokens
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenMalformed marks undecodable session tokens
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	// TextCodeDuplicateEmail marks registration against a taken address
	TextCodeDuplicateEmail = "DUPLICATE_EMAIL"
	// TextCodePasswordMismatch marks password/confirmation disagreement
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
)

// ErrTokenExpired is surfaced for expired session tokens
var ErrTokenExpired = goerrors.New("authentication token has expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is surfaced for undecodable session tokens
var ErrTokenMalformed = goerrors.New("authentication token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// NewActivationError builds the single failure every activation branch
// surfaces. A malformed uid, an unknown user, a bad signature, and an expired
// window are deliberately indistinguishable to the caller.
func NewActivationError() *goerrors.Error {
	return goerrors.New("activation link is invalid or expired", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeActivationInvalid)
}

// IsActivationError reports whether err is the uniform activation failure
func IsActivationError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeActivationInvalid
}

// NewDuplicateEmailError reports a registration or profile update against an
// email that is already taken. Field-level detail follows the serializer
// convention of keying problems by field name.
func NewDuplicateEmailError(email string) *goerrors.Error {
	return goerrors.New("a user with that email already exists", goerrors.CategoryValidation).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeDuplicateEmail).
		WithMetadata(map[string]any{
			"fields": map[string]string{"email": "a user with that email already exists"},
			"email":  email,
		})
}

// NewPasswordMismatchError reports password/confirm_password disagreement
func NewPasswordMismatchError() *goerrors.Error {
	return goerrors.New("passwords don't match", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodePasswordMismatch).
		WithMetadata(map[string]any{
			"fields": map[string]string{"confirm_password": "passwords don't match"},
		})
}

// IsValidationError reports whether err carries field-level validation detail
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation
}

// IsDuplicateConstraintError detects a unique-constraint violation bubbling
// up from the store, which we translate into the duplicate-email validation
// failure when two registrations race.
func IsDuplicateConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique violation")
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired") ||
		strings.Contains(err.Error(), "token has expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
