package auth

import (
	"errors"
	"strings"
	"testing"
)

// testParams keeps argon2 cheap in tests.
var testParams = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordHasher_Format(t *testing.T) {
	t.Parallel()

	hash, err := NewPasswordHasher(DefaultArgon2Params).Hash("user123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[1] != "argon2id" || parts[2] != "v=19" {
		t.Errorf("unexpected algorithm/version: %s", hash)
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(testParams)
	hash1, err := h.Hash("admin123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	hash2, _ := h.Hash("admin123")
	if hash1 == hash2 {
		t.Error("Same password should produce different hashes due to random salt")
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "admin123", true},
		{"wrong", "admin124", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := h.Verify(tt.password, hash1)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestPasswordHasher_VerifyUsesEmbeddedParams(t *testing.T) {
	t.Parallel()

	hash, _ := NewPasswordHasher(testParams).Hash("user123")
	ok, err := NewPasswordHasher(DefaultArgon2Params).Verify("user123", hash)
	if err != nil || !ok {
		t.Errorf("Verify = %v, %v; want true, nil", ok, err)
	}
}

func TestPasswordHasher_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"plaintext", "user123", ErrInvalidHash},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", ErrInvalidHash},
		{"missing parts", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"old version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHQ$c29tZWhhc2g", ErrIncompatibleVersion},
	}

	h := NewPasswordHasher(testParams)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := h.Verify("user123", tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify error = %v, want %v", err, tt.wantErr)
			}
			if ok {
				t.Error("invalid hash must not verify")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	key := "sk_live_" + strings.Repeat("ab", 32)
	if Fingerprint(key) != Fingerprint(key) {
		t.Error("Fingerprint should be deterministic")
	}
	if len(Fingerprint(key)) != 32 {
		t.Errorf("Fingerprint should be 32 chars, got %d", len(Fingerprint(key)))
	}
	if Fingerprint(key) == Fingerprint(key+"0") {
		t.Error("different input should produce different fingerprints")
	}
}
