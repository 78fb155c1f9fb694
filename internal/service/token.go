package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer signs and verifies the two token kinds. Access and refresh
// tokens use distinct secrets and distinct lifetimes; both are HS256 JWTs
// with the user ID as subject and a uuid jti, so two tokens minted within
// the same second are still distinct strings.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" {
		return nil, fmt.Errorf("%w: ACCESS_TOKEN_SECRET is required", ErrMisconfigured)
	}
	if refreshSecret == "" {
		return nil, fmt.Errorf("%w: REFRESH_TOKEN_SECRET is required", ErrMisconfigured)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token TTLs must be positive", ErrMisconfigured)
	}

	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

func (t *TokenIssuer) AccessTTL() time.Duration  { return t.accessTTL }
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

func (t *TokenIssuer) IssueAccessToken(userID int64) (string, error) {
	return sign(userID, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) IssueRefreshToken(userID int64) (string, error) {
	return sign(userID, t.refreshSecret, t.refreshTTL)
}

// VerifyAccessToken checks signature and expiry and returns the subject user
// ID. All failure modes collapse to ErrUnauthorized.
func (t *TokenIssuer) VerifyAccessToken(tokenStr string) (int64, error) {
	return verify(tokenStr, t.accessSecret)
}

func (t *TokenIssuer) VerifyRefreshToken(tokenStr string) (int64, error) {
	return verify(tokenStr, t.refreshSecret)
}

func sign(userID int64, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(tokenStr string, secret []byte) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrUnauthorized
	}
	return userID, nil
}
