package util

import (
	"strings"
	"testing"
)

func TestValidateWebFingerUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{"simple", "alice", true},
		{"digits", "alice123", true},
		{"hyphen and dot", "alice-bob.c", true},
		{"underscore and tilde", "alice_bob~", true},
		{"all allowed specials", "test!$&'()*+,;=123", true},
		{"empty", "", false},
		{"unicode letter", "älice", false},
		{"cjk", "字", false},
		{"emoji", "alice🔥", false},
		{"inner space", "alice bob", false},
		{"leading space", " alice", false},
		{"newline", "alice\n", false},
		{"tab", "alice\t", false},
		{"at sign", "alice@remote", false},
		{"slash", "alice/bob", false},
		{"colon", "alice:bob", false},
		{"percent", "alice%40bob", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebFingerUsername(tt.username)
			if tt.valid && err != nil {
				t.Errorf("Expected %q to be valid, got %v", tt.username, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected %q to be rejected", tt.username)
			}
		})
	}
}

func TestValidateWebFingerUsernameLongName(t *testing.T) {
	if err := ValidateWebFingerUsername(strings.Repeat("a", 100)); err != nil {
		t.Errorf("Expected long ASCII username to be valid, got %v", err)
	}
}

func TestValidateWebFingerUsernameSingleChars(t *testing.T) {
	for _, char := range []string{"a", "Z", "0", "-", ".", "_", "~", "!", "$", "&", "'", "(", ")", "*", "+", ",", ";", "="} {
		if err := ValidateWebFingerUsername(char); err != nil {
			t.Errorf("Expected single character %q to be valid, got %v", char, err)
		}
	}
}
