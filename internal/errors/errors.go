package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so wrapped sentinels
// still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}
	ErrMalformedInput     = &AppError{Code: "MED_002", Message: "malformed input"}
	ErrNoReportData       = &AppError{Code: "MED_003", Message: "no medication data to report"}

	ErrPersistence        = &AppError{Code: "STORE_001", Message: "persistence failure"}
	ErrStorageUnavailable = &AppError{Code: "STORE_002", Message: "storage unavailable"}

	ErrRateLimited = &AppError{Code: "GEN_004", Message: "rate limit exceeded"}
	ErrNotFound    = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest  = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal    = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Malformed builds a MED_002 error describing which input was rejected.
func Malformed(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrMalformedInput.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Persistence wraps an I/O failure from the storage layer.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Code:    ErrPersistence.Code,
		Message: op + " failed",
		Cause:   cause,
	}
}
