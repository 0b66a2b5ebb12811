package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// mapIdentityCache mirrors the Redis cache: writes never replace an entry
// and revoked fingerprints stay unresolvable.
type mapIdentityCache struct {
	mu        sync.Mutex
	m         map[string]*model.Identity
	revoked   map[string]bool
	revokeErr error
}

func newMapIdentityCache() *mapIdentityCache {
	return &mapIdentityCache{m: make(map[string]*model.Identity), revoked: make(map[string]bool)}
}

func (c *mapIdentityCache) GetIdentity(_ context.Context, fp string) (*model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[fp], nil
}

func (c *mapIdentityCache) SetIdentity(_ context.Context, fp string, id *model.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[fp]; ok || c.revoked[fp] {
		return nil
	}
	c.m[fp] = id
	return nil
}

func (c *mapIdentityCache) RevokeIdentity(_ context.Context, fp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revokeErr != nil {
		return c.revokeErr
	}
	delete(c.m, fp)
	c.revoked[fp] = true
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *testutil.MemoryStore, *metrics.InMemoryRecorder) {
	t.Helper()
	store := testutil.NewMemoryStore()
	tokens, err := auth.NewTokenManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	recorder := metrics.NewInMemory()
	svc := NewAuthService(store, newMapIdentityCache(), hasher, tokens, testutil.DiscardLogger(), recorder)
	return svc, store, recorder
}

func TestRegister_CreatesFreeUserWithKey(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: " Budi ", Email: "budi@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	u := res.User
	if u.Name != "Budi" {
		t.Errorf("expected trimmed name, got %q", u.Name)
	}
	if u.Plan != model.PlanFree || u.Role != model.RoleUser {
		t.Errorf("expected FREE/USER, got %s/%s", u.Plan, u.Role)
	}
	if u.MonthlyQuota != 1000 || u.DailyQuota != 100 {
		t.Errorf("expected quotas 1000/100, got %d/%d", u.MonthlyQuota, u.DailyQuota)
	}
	if u.APIKey == nil || !auth.ValidateKeyFormat(*u.APIKey) {
		t.Fatalf("expected a well-formed api key, got %v", u.APIKey)
	}
	if u.PasswordHash == "secret1" || !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
		t.Errorf("password not hashed: %q", u.PasswordHash)
	}

	id, err := svc.ResolveSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if id.UserID != u.ID {
		t.Errorf("session resolved to %s, want %s", id.UserID, u.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{"missing_name", RegisterInput{Email: "a@example.com", Password: "secret1"}, ErrMissingFields},
		{"blank_name", RegisterInput{Name: "   ", Email: "a@example.com", Password: "secret1"}, ErrMissingFields},
		{"missing_email", RegisterInput{Name: "A", Password: "secret1"}, ErrMissingFields},
		{"missing_password", RegisterInput{Name: "A", Email: "a@example.com"}, ErrMissingFields},
		{"short_password", RegisterInput{Name: "A", Email: "a@example.com", Password: "12345"}, ErrInvalidPassword},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), test.input)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	in := RegisterInput{Name: "A", Email: "dup@example.com", Password: "secret1"}
	if _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if _, err := svc.Register(ctx, in); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegister_RetriesOnKeyCollision(t *testing.T) {
	svc, store, _ := newTestAuthService(t)
	ctx := context.Background()

	taken := auth.KeyPrefix + strings.Repeat("a", 64)
	fresh := auth.KeyPrefix + strings.Repeat("b", 64)
	holder := testutil.NewTestUser(t, model.PlanFree)
	holder.APIKey = &taken
	store.SetUser(holder)

	keys := []string{taken, fresh}
	svc.keygen = func() (string, error) {
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}

	res, err := svc.Register(ctx, RegisterInput{Name: "B", Email: "b@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if *res.User.APIKey != fresh {
		t.Fatalf("expected the non-colliding key, got %s", *res.User.APIKey)
	}
}

func TestRegister_KeyGenerationExhausted(t *testing.T) {
	svc, store, _ := newTestAuthService(t)

	taken := auth.KeyPrefix + strings.Repeat("c", 64)
	holder := testutil.NewTestUser(t, model.PlanFree)
	holder.APIKey = &taken
	store.SetUser(holder)
	svc.keygen = func() (string, error) { return taken, nil }

	_, err := svc.Register(context.Background(), RegisterInput{Name: "C", Email: "c@example.com", Password: "secret1"})
	if !errors.Is(err, ErrKeyGeneration) {
		t.Fatalf("expected ErrKeyGeneration, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "login@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"ok", "login@example.com", "secret1", nil},
		{"wrong_password", "login@example.com", "secret2", ErrInvalidCredentials},
		{"unknown_email", "nobody@example.com", "secret1", ErrInvalidCredentials},
		{"missing_password", "login@example.com", "", ErrMissingFields},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := svc.Login(ctx, test.email, test.password)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
			if test.wantErr == nil && res.Token == "" {
				t.Fatal("expected a session token")
			}
		})
	}
}

func TestRegenerateKey_RevokesPreviousKey(t *testing.T) {
	svc, _, recorder := newTestAuthService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "rotate@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	oldKey := *res.User.APIKey

	// Resolve twice so the identity is cached.
	for i := 0; i < 2; i++ {
		if _, err := svc.ResolveAPIKey(ctx, oldKey); err != nil {
			t.Fatalf("ResolveAPIKey failed: %v", err)
		}
	}
	snap := recorder.Snapshot()
	if snap.APIKeyCacheHits != 1 || snap.APIKeyCacheMiss != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d/%d", snap.APIKeyCacheHits, snap.APIKeyCacheMiss)
	}

	newKey, err := svc.RegenerateKey(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("RegenerateKey failed: %v", err)
	}
	if newKey == oldKey || !auth.ValidateKeyFormat(newKey) {
		t.Fatalf("unexpected new key %q", newKey)
	}

	if _, err := svc.ResolveAPIKey(ctx, oldKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("old key should be rejected, got %v", err)
	}
	id, err := svc.ResolveAPIKey(ctx, newKey)
	if err != nil {
		t.Fatalf("new key should resolve: %v", err)
	}
	if id.UserID != res.User.ID {
		t.Errorf("new key resolved to %s", id.UserID)
	}

	// Session tokens survive regeneration.
	if _, err := svc.ResolveSession(ctx, res.Token); err != nil {
		t.Errorf("session should survive key regeneration: %v", err)
	}
}

func TestRegenerateKey_RefusedWhenCacheCannotRevoke(t *testing.T) {
	store := testutil.NewMemoryStore()
	tokens, err := auth.NewTokenManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	cache := newMapIdentityCache()
	svc := NewAuthService(store, cache, hasher, tokens, testutil.DiscardLogger(), metrics.NewInMemory())
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	oldKey := *res.User.APIKey
	if _, err := svc.ResolveAPIKey(ctx, oldKey); err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}

	cache.revokeErr = errors.New("redis: connection refused")
	if _, err := svc.RegenerateKey(ctx, res.User.ID); err == nil {
		t.Fatal("RegenerateKey must fail when the cached identity cannot be revoked")
	}

	// Nothing rotated, so the key the caller holds is still the live one.
	u, err := store.GetUserByID(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.APIKey == nil || *u.APIKey != oldKey {
		t.Fatalf("stored key changed despite failed revocation")
	}
}

func TestRegenerateKey_StaleCacheWriteCannotRestoreOldKey(t *testing.T) {
	store := testutil.NewMemoryStore()
	tokens, err := auth.NewTokenManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	cache := newMapIdentityCache()
	svc := NewAuthService(store, cache, hasher, tokens, testutil.DiscardLogger(), metrics.NewInMemory())
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	oldKey := *res.User.APIKey

	if _, err := svc.RegenerateKey(ctx, res.User.ID); err != nil {
		t.Fatalf("RegenerateKey failed: %v", err)
	}

	// A lookup that loaded the user before the rotation writes back late.
	if err := cache.SetIdentity(ctx, auth.Fingerprint(oldKey), res.User.Identity()); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}

	if _, err := svc.ResolveAPIKey(ctx, oldKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("old key should stay rejected, got %v", err)
	}
}

func TestProfile_ReportsCurrentWindow(t *testing.T) {
	svc, store, _ := newTestAuthService(t)
	ctx := context.Background()

	jakarta := time.FixedZone("WIB", 7*60*60)
	svc.SetQuotaLocation(jakarta)
	// 16 March 01:00 in Jakarta, still 15 March in UTC.
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) }

	tests := []struct {
		name        string
		lastReset   time.Time
		wantDaily   int64
		wantMonthly int64
	}{
		{"call earlier today", time.Date(2024, 3, 16, 0, 30, 0, 0, jakarta), 4, 40},
		{"last call yesterday", time.Date(2024, 3, 15, 23, 0, 0, 0, jakarta), 0, 40},
		{"last call last month", time.Date(2024, 2, 29, 12, 0, 0, 0, jakarta), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := testutil.NewTestUser(t, model.PlanFree)
			u.DailyCalls, u.MonthlyCalls, u.APICalls = 4, 40, 90
			u.LastReset = tt.lastReset
			store.SetUser(u)

			got, err := svc.Profile(ctx, u.ID)
			if err != nil {
				t.Fatalf("Profile failed: %v", err)
			}
			if got.DailyCalls != tt.wantDaily || got.MonthlyCalls != tt.wantMonthly {
				t.Errorf("counters = %d/%d, want %d/%d", got.DailyCalls, got.MonthlyCalls, tt.wantDaily, tt.wantMonthly)
			}
			if got.APICalls != 90 {
				t.Errorf("apiCalls = %d, want 90", got.APICalls)
			}
		})
	}
}

func TestRegenerateKey_UnknownUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	if _, err := svc.RegenerateKey(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResolveAPIKey_Rejects(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong_prefix", "sk_test_" + strings.Repeat("a", 64)},
		{"uppercase_hex", auth.KeyPrefix + strings.Repeat("A", 64)},
		{"well_formed_unknown", auth.KeyPrefix + strings.Repeat("d", 64)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := svc.ResolveAPIKey(context.Background(), test.key); !errors.Is(err, ErrInvalidAPIKey) {
				t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
			}
		})
	}
}

func TestResolveSession_Errors(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	ghost, _, err := svc.tokens.Issue("ghost")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := svc.ResolveSession(context.Background(), ghost); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("token for a deleted user: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := svc.ResolveSession(context.Background(), "garbage"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("garbage token: expected ErrTokenInvalid, got %v", err)
	}
}
