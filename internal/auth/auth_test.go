package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	digest, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if digest == "hunter22" {
		t.Fatalf("digest must not equal the password")
	}
	if err := CheckPassword(digest, "hunter22"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(digest, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestHashPassword_InvalidCostFallsBack(t *testing.T) {
	digest, err := HashPassword("pw", 99)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil || cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d (%v)", cost, err)
	}
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	tok, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	id, err := tokens.Parse(tok)
	if err != nil || id != "user-1" {
		t.Fatalf("unexpected parse result %q (%v)", id, err)
	}
}

func TestTokens_WrongSecret(t *testing.T) {
	tok, _ := NewTokens("a", time.Hour).Issue("user-1")
	if _, err := NewTokens("b", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokens_Expired(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	tok, _ := token.SignedString([]byte("s"))
	if _, err := NewTokens("s", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokens_MissingUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok, _ := token.SignedString([]byte("s"))
	if _, err := NewTokens("s", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected ErrInvalidClaims, got %v", err)
	}
}
