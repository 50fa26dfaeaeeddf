package httpapi

import (
	"context"
	"testing"
	"time"

	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := newTestAuth(t)

	for _, token := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := auth.ParseToken(token); err == nil {
			t.Fatalf("expected parse failure for %q", token)
		}
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := newTestAuth(t)
	other := NewAuthManager("a-completely-different-secret", time.Hour, memory.NewSeeded())

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login on other manager: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with a different secret must be rejected")
	}
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(t)

	cases := []struct {
		name string
		req  domain.UserCreateRequest
	}{
		{"short username", domain.UserCreateRequest{Username: "ab", Password: "secret123"}},
		{"username with space", domain.UserCreateRequest{Username: "new user", Password: "secret123"}},
		{"short password", domain.UserCreateRequest{Username: "newuser", Password: "123"}},
		{"unknown role", domain.UserCreateRequest{Username: "newuser", Password: "secret123", Role: "wizard"}},
		{"duplicate", domain.UserCreateRequest{Username: "admin", Password: "secret123"}},
	}
	for _, tc := range cases {
		if _, err := auth.CreateUser(tc.req); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestCreateUserDefaultsToOperator(t *testing.T) {
	auth := newTestAuth(t)

	user, err := auth.CreateUser(domain.UserCreateRequest{Username: "Cajero9", Password: "secret123"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "cajero9" {
		t.Fatalf("expected lowercased username, got %s", user.Username)
	}
	if user.Role != domain.RoleOperator {
		t.Fatalf("expected operator default, got %s", user.Role)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "cajero9", Password: "secret123"}); err != nil {
		t.Fatalf("new user login: %v", err)
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plaintextpw",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintextpw"}); err != nil {
		t.Fatalf("legacy login after upgrade: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, u := range users {
		if u.Username == "legacy" && !isPasswordHash(u.Password) {
			t.Fatalf("expected stored password to be upgraded to a hash")
		}
	}
}
