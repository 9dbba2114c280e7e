package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nationalIDRegex = regexp.MustCompile(`^\d{2,12}$`)
)

// ValidateNationalID checks that id is 2 to 12 ASCII digits.
func ValidateNationalID(id string) error {
	if !nationalIDRegex.MatchString(id) {
		return fmt.Errorf("national id must be numeric and 2-12 digits long")
	}
	return nil
}

// ValidateUsername checks a staff username.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > 64 {
		return fmt.Errorf("username must be at most 64 characters")
	}
	return nil
}

// ValidatePassword checks a staff password.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	// bcrypt ignores input past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password must be at most 72 bytes")
	}
	return nil
}
