package utils

import (
	"strings"
	"testing"
	"time"
)

func TestTokenPairSharesSession(t *testing.T) {
	svc := NewJWTService("secret")
	pair, err := svc.GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.SessionID == "" {
		t.Fatal("expected session id")
	}

	access, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if access.SessionID != pair.SessionID || refresh.SessionID != pair.SessionID {
		t.Errorf("session ids differ: %s %s %s", access.SessionID, refresh.SessionID, pair.SessionID)
	}
	if access.UserID != "u1" || access.Email != "a@example.com" {
		t.Errorf("unexpected claims %+v", access)
	}
}

func TestTokenTypeIsEnforced(t *testing.T) {
	svc := NewJWTService("secret")
	pair, err := svc.GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateRefreshToken(pair.AccessToken); err == nil {
		t.Error("access token accepted as refresh token")
	}
	if _, err := svc.ValidateAccessToken(pair.RefreshToken); err == nil {
		t.Error("refresh token accepted as access token")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	pair, err := NewJWTService("one").GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTService("two").ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("secret")
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	pair, err := svc.GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return issued.Add(AccessTokenTTL + time.Minute) }
	if _, err := svc.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Error("expired access token accepted")
	}
	if _, err := svc.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Errorf("refresh token should still be valid: %v", err)
	}
}

func TestRefreshKeepsSession(t *testing.T) {
	svc := NewJWTService("secret")
	pair, err := svc.GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	token, exp, claims, err := svc.RefreshAccessToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if exp <= 0 || claims.SessionID != pair.SessionID {
		t.Errorf("unexpected refresh result exp=%d claims=%+v", exp, claims)
	}
	access, err := svc.ValidateAccessToken(token)
	if err != nil || access.SessionID != pair.SessionID {
		t.Errorf("refreshed token invalid: %v", err)
	}

	if _, _, _, err := svc.RefreshAccessToken(pair.AccessToken); err == nil {
		t.Error("access token should not refresh")
	}
}

func TestGenerateURLToken(t *testing.T) {
	a, err := GenerateURLToken(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 32 {
		t.Errorf("default token length = %d", len(a))
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("token not url safe: %s", a)
	}
	b, _ := GenerateURLToken(0)
	if a == b {
		t.Error("tokens repeat")
	}
}
