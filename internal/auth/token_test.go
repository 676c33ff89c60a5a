package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, clock func() time.Time) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "renderline-hub",
		Audience:      "renderline-channel",
		TokenTTL:      time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return manager
}

func TestIssueAndValidateChannelToken(t *testing.T) {
	manager := newTestManager(t, nil)

	token, err := manager.IssueChannelToken("user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	subject, err := manager.ValidateChannelToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if subject != "user-123" {
		t.Fatalf("expected subject user-123, got %s", subject)
	}
}

func TestValidateChannelTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	clock := func() time.Time { return issuedAt }
	manager := newTestManager(t, func() time.Time { return clock() })

	token, err := manager.IssueChannelToken("user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	clock = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ValidateChannelToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateChannelTokenRejectsForeignSecret(t *testing.T) {
	manager := newTestManager(t, nil)
	other, err := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("a-different-secret"),
		Issuer:        "renderline-hub",
		Audience:      "renderline-channel",
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, err := other.IssueChannelToken("user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := manager.ValidateChannelToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestIssueChannelTokenRequiresSubject(t *testing.T) {
	manager := newTestManager(t, nil)
	if _, err := manager.IssueChannelToken("  "); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager(TokenManagerConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing signing secret error, got %v", err)
	}
}
