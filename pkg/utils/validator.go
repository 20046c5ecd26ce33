package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength bounds actor, assignee and application identifiers
const MaxIdentifierLength = 128

// MaxNoteLength bounds free-text transition notes
const MaxNoteLength = 4000

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@:\-]*$`)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)

// ValidateIdentifier checks an opaque identifier supplied by a caller
func ValidateIdentifier(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters: %q", field, id)
	}
	return nil
}

// SanitizeString removes control characters other than tab and newline
// and trims surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// ValidateNote sanitizes a transition note and enforces its length limit
func ValidateNote(note string) (string, error) {
	clean := SanitizeString(note)
	if len(clean) > MaxNoteLength {
		return "", fmt.Errorf("note exceeds %d characters", MaxNoteLength)
	}
	return clean, nil
}
