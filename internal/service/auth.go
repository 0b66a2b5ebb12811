package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/quota"
	"github.com/idxstock/stockapi/internal/repository"
)

const (
	minPasswordLength = 6
	maxKeyAttempts    = 3
)

// AuthService handles accounts, credentials and identity resolution.
type AuthService struct {
	users   UserStore
	cache   IdentityCache
	hasher  *auth.PasswordHasher
	tokens  *auth.TokenManager
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
	keygen  func() (string, error)
	// quotaLoc places the day and month boundaries reported by Profile.
	quotaLoc *time.Location
}

// NewAuthService creates an AuthService. A nil cache disables identity caching.
func NewAuthService(users UserStore, cache IdentityCache, hasher *auth.PasswordHasher, tokens *auth.TokenManager, logger *slog.Logger, recorder metrics.Recorder) *AuthService {
	if cache == nil {
		cache = noopIdentityCache{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		users:    users,
		cache:    cache,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger.With("component", "auth"),
		metrics:  recorder,
		now:      time.Now,
		keygen:   auth.GenerateAPIKey,
		quotaLoc: time.UTC,
	}
}

// SetQuotaLocation sets the timezone of the quota windows, matching the
// accountant's. It must be called before the service handles requests.
func (s *AuthService) SetQuotaLocation(loc *time.Location) {
	if loc != nil {
		s.quotaLoc = loc
	}
}

// RegisterInput defines input for registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is a user with a freshly issued session token.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Register creates a FREE plan user with an API key and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, ErrInvalidPassword
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	limits := model.PlanFree.Limits()
	user := &model.User{
		ID:           ulid.Make().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Plan:         model.PlanFree,
		MonthlyQuota: limits.Monthly,
		DailyQuota:   limits.Daily,
		LastReset:    now,
		CreatedAt:    now,
	}

	// The key is checked for uniqueness before insert; a concurrent
	// collision still surfaces as ErrAPIKeyExists and is retried.
	for attempt := 1; ; attempt++ {
		key, err := s.uniqueKey(ctx)
		if err != nil {
			return nil, err
		}
		user.APIKey = &key

		err = s.users.CreateUser(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		if !errors.Is(err, repository.ErrAPIKeyExists) || attempt >= maxKeyAttempts {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "plan", user.Plan)
	return &AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}

// Login verifies credentials and issues a session token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}

// Profile returns the user's account, including API key and counters.
// Counters of a window that ended since the last admitted call read as 0.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	w := quota.WindowAt(s.now(), s.quotaLoc)
	user.ApplyWindow(w.DayStart, w.MonthStart)
	return user, nil
}

// RegenerateKey replaces the user's API key. The previous key stops
// authenticating immediately: its cache entry is revoked before the row
// changes, and the rotation is refused if that fails. Outstanding session
// tokens are unaffected.
func (s *AuthService) RegenerateKey(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	if user.APIKey != nil {
		if err := s.revoke(ctx, *user.APIKey); err != nil {
			return "", err
		}
	}

	for attempt := 1; ; attempt++ {
		key, err := s.uniqueKey(ctx)
		if err != nil {
			return "", err
		}

		previous, err := s.users.UpdateUserAPIKey(ctx, userID, key)
		if err == nil {
			// A concurrent rotation may have replaced the key read above.
			if previous != nil && (user.APIKey == nil || *previous != *user.APIKey) {
				if err := s.revoke(ctx, *previous); err != nil {
					return "", err
				}
			}
			s.logger.Info("api key regenerated", "user_id", userID)
			return key, nil
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		if !errors.Is(err, repository.ErrAPIKeyExists) || attempt >= maxKeyAttempts {
			return "", fmt.Errorf("update api key: %w", err)
		}
	}
}

func (s *AuthService) revoke(ctx context.Context, key string) error {
	if err := s.cache.RevokeIdentity(ctx, auth.Fingerprint(key)); err != nil {
		return fmt.Errorf("revoke cached identity: %w", err)
	}
	return nil
}

// uniqueKey generates a key not currently held by any user.
func (s *AuthService) uniqueKey(ctx context.Context) (string, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		key, err := s.keygen()
		if err != nil {
			return "", fmt.Errorf("generate api key: %w", err)
		}
		exists, err := s.users.APIKeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
		s.logger.Warn("generated api key collided, retrying", "attempt", i+1)
	}
	return "", ErrKeyGeneration
}

// ResolveSession verifies a session token and loads its user.
// Errors are auth.ErrTokenExpired, auth.ErrTokenInvalid or a store error.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*model.Identity, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrTokenInvalid
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user.Identity(), nil
}

// ResolveAPIKey maps an API key to its owner. Keys that fail the format
// check are rejected without a lookup.
func (s *AuthService) ResolveAPIKey(ctx context.Context, key string) (*model.Identity, error) {
	if !auth.ValidateKeyFormat(key) {
		return nil, ErrInvalidAPIKey
	}

	fp := auth.Fingerprint(key)
	if id, err := s.cache.GetIdentity(ctx, fp); err != nil {
		s.logger.Warn("identity cache read failed", "error", err)
	} else if id != nil {
		s.metrics.IncAPIKeyCacheHit()
		return id, nil
	}
	s.metrics.IncAPIKeyCacheMiss()

	user, err := s.users.GetUserByAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("get user by api key: %w", err)
	}

	id := user.Identity()
	if err := s.cache.SetIdentity(ctx, fp, id); err != nil {
		s.logger.Warn("identity cache write failed", "error", err)
	}
	return id, nil
}
