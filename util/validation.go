package util

import (
	"fmt"
	"regexp"
	"unicode"
)

// Characters a webfinger acct: username may contain without percent-encoding:
// A-Z a-z 0-9 - . _ ~ ! $ & ' ( ) * + , ; =
var webFingerUsernamePattern = regexp.MustCompile(`^[A-Za-z0-9\-._~!$&'()*+,;=]+$`)

// ValidateWebFingerUsername checks that a username is addressable via
// webfinger without percent-encoding. Unicode letters, spaces, and control
// characters are rejected; remote peers would otherwise fail to resolve the
// acct: URI.
func ValidateWebFingerUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username must be at least 1 character")
	}

	if !webFingerUsernamePattern.MatchString(username) {
		return fmt.Errorf("username contains invalid characters, only A-Z, a-z, 0-9 and -._~!$&'()*+,;= are allowed")
	}

	// The pattern above already excludes these, kept as a second guard
	for _, r := range username {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("username contains non-printable characters")
		}
	}

	return nil
}
