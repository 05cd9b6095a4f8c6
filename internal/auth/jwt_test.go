package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{
		ClientID: "phone",
		Scopes:   []string{ScopeRemote},
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ClientID != "phone" || claims.Subject != "phone" {
		t.Fatalf("unexpected client %q subject %q", claims.ClientID, claims.Subject)
	}
	if !claims.HasScope(ScopeRemote) || claims.HasScope(ScopeRead) {
		t.Fatalf("unexpected scopes %v", claims.Scopes)
	}
}

func TestIssue_WithoutExpiry(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{ClientID: "desk"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", claims.ExpiresAt)
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID: "phone",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	tokenStr, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		ClientID: "phone",
		Scopes:   []string{ScopeRemote},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "phone",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestParse_RejectsWrongSecret(t *testing.T) {
	token, err := Issue([]byte("one"), Claims{ClientID: "phone"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse([]byte("two"), token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}
