package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func newTestManager(t *testing.T, now time.Time) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	return m.WithClock(func() time.Time { return now })
}

func TestNewTokenManager_WeakSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenManager("short", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("expected ErrWeakSecret, got %v", err)
	}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	m := newTestManager(t, now)

	token, expires, err := m.Issue("01HQZX3V7K8M9N0P1Q2R3S4T5U")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expires.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("expires = %v, want %v", expires, now.Add(24*time.Hour))
	}

	userID, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "01HQZX3V7K8M9N0P1Q2R3S4T5U" {
		t.Errorf("userID = %s", userID)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	token, _, err := newTestManager(t, now).Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"just before expiry", now.Add(24*time.Hour - time.Second), nil},
		{"just after expiry", now.Add(24*time.Hour + time.Second), ErrTokenExpired},
		{"a week later", now.Add(7 * 24 * time.Hour), ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestManager(t, tt.at).Verify(token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenManager_Invalid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := newTestManager(t, now)
	token, _, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	other, err := NewTokenManager(strings.Repeat("x", 40), 0)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	foreign, _, _ := other.Issue("user-1")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"tampered signature", tampered},
		{"foreign secret", foreign},
		{"alg none", none},
		{"api key", "sk_live_" + strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := m.Verify(tt.token)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
