package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// UserIDRegex validates platform user identifier format.
var UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateStreamID checks a stream identifier. Stream ids come from the
// platform's stream records and are always positive.
func ValidateStreamID(streamID int64) error {
	if streamID <= 0 {
		return fmt.Errorf("stream ID must be positive")
	}
	return nil
}

// ValidateUserID checks a self-reported user identifier. Empty is
// allowed; anonymous viewers carry no identity.
func ValidateUserID(userID string) error {
	if userID == "" {
		return nil
	}
	if len(userID) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("user ID contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateNonEmptyString validates that a string is not empty after
// trimming.
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
