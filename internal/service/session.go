package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/model"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	minPasswordLength = 8
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrMisconfigured = errors.New("auth config invalid")
)

// UserStore is the identity storage the session service depends on. It owns
// the single refresh_token slot per user; all mutation of that slot goes
// through these methods.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, fullName, passwordHash string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	SetRefreshToken(ctx context.Context, userID int64, token string) error
	ClearRefreshToken(ctx context.Context, userID int64) error
	SwapRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionService orchestrates login, logout and refresh-token rotation on top
// of the UserStore and TokenIssuer.
type SessionService struct {
	store     UserStore
	tokens    *TokenIssuer
	cookieCfg CookieConfig
}

func NewSessionService(store UserStore, cfg config.AuthConfig) (*SessionService, error) {
	accessTTL, err := time.ParseDuration(cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ACCESS_TOKEN_TTL", ErrMisconfigured)
	}

	refreshTTL, err := time.ParseDuration(cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REFRESH_TOKEN_TTL", ErrMisconfigured)
	}

	tokens, err := NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, accessTTL, refreshTTL)
	if err != nil {
		return nil, err
	}

	cookieSecure, err := parseBool(cfg.CookieSecure, true)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SECURE", ErrMisconfigured)
	}

	cookieSameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SAMESITE", ErrMisconfigured)
	}

	if cookieSameSite == http.SameSiteNoneMode && !cookieSecure {
		return nil, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	return &SessionService{
		store:  store,
		tokens: tokens,
		cookieCfg: CookieConfig{
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cookieSecure,
			SameSite: cookieSameSite,
		},
	}, nil
}

func (s *SessionService) CookieConfig() CookieConfig { return s.cookieCfg }
func (s *SessionService) Tokens() *TokenIssuer       { return s.tokens }

// AccessCookieName and RefreshCookieName are the cookie names both tokens
// travel under. Clearing must reuse them with identical attributes.
func AccessCookieName() string  { return accessCookieName }
func RefreshCookieName() string { return refreshCookieName }

func (s *SessionService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	fullName := strings.TrimSpace(req.FullName)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if fullName == "" || username == "" || email == "" || req.Password == "" {
		return model.PublicUser{}, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return model.PublicUser{}, fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return model.PublicUser{}, err
	}

	user, err := s.store.CreateUser(ctx, username, email, fullName, hash)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.PublicUser{}, fmt.Errorf("%w: username or email already exists", ErrConflict)
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// Login verifies the credentials, issues a fresh token pair and persists the
// refresh half, superseding any previously active session for the user.
func (s *SessionService) Login(ctx context.Context, login, password string) (TokenPair, model.PublicUser, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return TokenPair{}, model.PublicUser{}, fmt.Errorf("%w: login and password are required", ErrInvalidInput)
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if db.IsNoRows(err) {
			return TokenPair{}, model.PublicUser{}, fmt.Errorf("%w: user does not exist", ErrNotFound)
		}
		return TokenPair{}, model.PublicUser{}, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return TokenPair{}, model.PublicUser{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return TokenPair{}, model.PublicUser{}, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return TokenPair{}, model.PublicUser{}, err
	}

	return pair, user.Public(), nil
}

// Logout clears the stored refresh token. An unknown user is treated as
// already logged out.
func (s *SessionService) Logout(ctx context.Context, userID int64) error {
	err := s.store.ClearRefreshToken(ctx, userID)
	if err != nil && db.IsNoRows(err) {
		return nil
	}
	return err
}

// Refresh rotates the refresh token. The presented token must be
// cryptographically valid and byte-for-byte equal to the stored one; the
// replacement is persisted with a compare-and-swap so of two concurrent
// refreshes only one wins and the other is forced back to login.
func (s *SessionService) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, fmt.Errorf("%w: no refresh token provided", ErrUnauthorized)
	}

	userID, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: invalid or expired refresh token", ErrUnauthorized)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return TokenPair{}, err
	}

	// A rotated or cleared token no longer matches the stored value; treat a
	// mismatch the same as a forged token.
	if user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshToken)) != 1 {
		return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	swapped, err := s.store.SwapRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !swapped {
		// Lost a concurrent rotation (or a logout) between compare and write.
		return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	return pair, nil
}

func (s *SessionService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new passwords are required", ErrInvalidInput)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("%w: user does not exist", ErrNotFound)
		}
		return err
	}

	if !CheckPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.store.UpdatePasswordHash(ctx, userID, hash)
}

func (s *SessionService) CurrentUser(ctx context.Context, userID int64) (model.PublicUser, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return model.PublicUser{}, fmt.Errorf("%w: user does not exist", ErrNotFound)
		}
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ParseAccessToken validates an access token for the middleware and returns
// the authenticated principal.
func (s *SessionService) ParseAccessToken(ctx context.Context, tokenStr string) (*model.AuthUser, error) {
	userID, err := s.tokens.VerifyAccessToken(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &model.AuthUser{ID: user.ID, Username: user.Username}, nil
}

func (s *SessionService) issueTokens(userID int64) (TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseSameSite(value string) (http.SameSite, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return http.SameSiteLaxMode, nil
	}
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, ErrInvalidInput
	}
}
