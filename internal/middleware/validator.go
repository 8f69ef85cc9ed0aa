package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

// MaxFieldLength bounds participant metadata fields.
const MaxFieldLength = 256

var participantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateParticipantID validates a client supplied participant id.
// Empty is allowed; the service assigns one.
func ValidateParticipantID(id string) error {
	if id == "" {
		return nil
	}
	if !participantIDPattern.MatchString(id) {
		return fmt.Errorf("invalid participant_id format (alphanumeric, dash, underscore, dot, @ only, max 128 chars)")
	}
	return nil
}

// ValidateFieldLength rejects metadata longer than MaxFieldLength characters.
func ValidateFieldLength(name, value string) error {
	if utf8.RuneCountInString(value) > MaxFieldLength {
		return fmt.Errorf("%s exceeds %d characters", name, MaxFieldLength)
	}
	return nil
}
