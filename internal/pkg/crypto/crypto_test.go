package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewAccessToken(t *testing.T) {
	token, err := NewAccessToken()
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(raw) != AccessTokenBytes {
		t.Errorf("token entropy = %d bytes, want %d", len(raw), AccessTokenBytes)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q contains characters unsafe in a path segment", token)
	}
}

func TestNewAccessTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewAccessToken()
		if err != nil {
			t.Fatalf("NewAccessToken() error = %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestHashKeyVerifyKey(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		presented string
		want      bool
	}{
		{
			name:      "exact match",
			stored:    "autumn-cohort-2026",
			presented: "autumn-cohort-2026",
			want:      true,
		},
		{
			name:      "trailing newline on presented key",
			stored:    "autumn-cohort-2026",
			presented: "autumn-cohort-2026\n",
			want:      true,
		},
		{
			name:      "surrounding spaces on stored key",
			stored:    "  autumn-cohort-2026  ",
			presented: "autumn-cohort-2026",
			want:      true,
		},
		{
			name:      "case mismatch",
			stored:    "autumn-cohort-2026",
			presented: "Autumn-Cohort-2026",
			want:      false,
		},
		{
			name:      "wrong key",
			stored:    "autumn-cohort-2026",
			presented: "spring-cohort-2026",
			want:      false,
		},
		{
			name:      "empty presented key",
			stored:    "autumn-cohort-2026",
			presented: "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashKey(tt.stored, bcrypt.MinCost)
			if err != nil {
				t.Fatalf("HashKey() error = %v", err)
			}
			if got := VerifyKey(hash, tt.presented); got != tt.want {
				t.Errorf("VerifyKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyKeyMalformedHash(t *testing.T) {
	if VerifyKey("not-a-bcrypt-hash", "anything") {
		t.Error("VerifyKey() accepted a malformed hash")
	}
}
