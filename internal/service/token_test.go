package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer error: %v", err)
	}
	return issuer
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	tok, err := issuer.IssueRefreshToken(42)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}

	userID, err := issuer.VerifyRefreshToken(tok)
	if err != nil {
		t.Fatalf("VerifyRefreshToken error: %v", err)
	}
	if userID != 42 {
		t.Fatalf("userID mismatch: got %d want 42", userID)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	tok, err := issuer.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	userID, err := issuer.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("VerifyAccessToken error: %v", err)
	}
	if userID != 7 {
		t.Fatalf("userID mismatch: got %d want 7", userID)
	}
}

func TestTokenKindsUseDistinctSecrets(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	access, err := issuer.IssueAccessToken(1)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	if _, err := issuer.VerifyRefreshToken(access); err == nil {
		t.Fatalf("expected refresh verification of an access token to fail")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	// A token that expired one second ago must fail; one valid for another
	// hour must pass.
	expired := signedWith(t, issuer.refreshSecret, 5, time.Now().Add(-time.Second))
	if _, err := issuer.VerifyRefreshToken(expired); err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}

	valid := signedWith(t, issuer.refreshSecret, 5, time.Now().Add(time.Hour))
	userID, err := issuer.VerifyRefreshToken(valid)
	if err != nil {
		t.Fatalf("VerifyRefreshToken error: %v", err)
	}
	if userID != 5 {
		t.Fatalf("userID mismatch: got %d want 5", userID)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	forged := signedWith(t, []byte("some-other-secret"), 5, time.Now().Add(time.Hour))
	if _, err := issuer.VerifyRefreshToken(forged); err == nil {
		t.Fatalf("expected error for token signed with wrong secret, got nil")
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	if _, err := issuer.VerifyRefreshToken("not.a.jwt"); err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}

func TestTokensMintedTogetherAreDistinct(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	first, err := issuer.IssueRefreshToken(9)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}
	second, err := issuer.IssueRefreshToken(9)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}
	if first == second {
		t.Fatalf("two tokens issued back to back must differ")
	}
}

func TestNewTokenIssuerRequiresSecrets(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer("", "r", time.Minute, time.Hour); err == nil {
		t.Fatalf("expected error for missing access secret")
	}
	if _, err := NewTokenIssuer("a", "", time.Minute, time.Hour); err == nil {
		t.Fatalf("expected error for missing refresh secret")
	}
	if _, err := NewTokenIssuer("a", "r", 0, time.Hour); err == nil {
		t.Fatalf("expected error for zero TTL")
	}
}

func signedWith(t *testing.T, secret []byte, userID int64, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	return tok
}
