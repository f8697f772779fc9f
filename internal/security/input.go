package security

import (
	"errors"
	"unicode"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// InputValidator screens user-supplied strings at the API boundary
type InputValidator struct {
	MaxSize       int
	MaxUserIDSize int
	MaxRepetition int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:       4 * 1024,
		MaxUserIDSize: 256,
		MaxRepetition: 200,
	}
}

// Validate checks a free-text field such as a name or notes
func (v *InputValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for i := 0; i < len(input); i++ {
		if input[i] == 0 {
			return ErrNullByteDetected
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

// ValidateUserID rejects ids that are oversized or carry control characters.
// Any other string, including ones with slashes or dots, is a valid id.
func (v *InputValidator) ValidateUserID(id string) error {
	if v.MaxUserIDSize > 0 && len(id) > v.MaxUserIDSize {
		return apperrors.Malformed("user id: %v", ErrInputTooLarge)
	}
	for _, r := range id {
		if r == 0 {
			return apperrors.Malformed("user id: %v", ErrNullByteDetected)
		}
		if unicode.IsControl(r) {
			return apperrors.Malformed("user id: %v", ErrControlCharacter)
		}
	}
	return nil
}

// Field names one optional input value for ValidateFields
type Field struct {
	Name  string
	Value *string
}

// ValidateFields runs Validate over every non-nil field and reports the
// first failure as malformed input.
func (v *InputValidator) ValidateFields(fields ...Field) error {
	for _, f := range fields {
		if f.Value == nil {
			continue
		}
		if err := v.Validate(*f.Value); err != nil {
			return apperrors.Malformed("%s: %v", f.Name, err)
		}
	}
	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}
