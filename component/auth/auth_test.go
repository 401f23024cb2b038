package auth

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestAnonymousAuthenticator(t *testing.T) {
	a := NewAnonymousAuthenticator()

	id, err := a.Authenticate(context.Background(), "rig.01", "whatever")
	if err != nil {
		t.Fatalf("anonymous auth failed: %v", err)
	}
	if id.Worker != "rig.01" {
		t.Errorf("expected worker preserved, got %q", id.Worker)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := NewStaticAuthenticator(map[string]string{
		"rig.01": string(hash),
		"rig.02": "", // 空哈希只校验矿工名
	})

	if _, err := a.Authenticate(context.Background(), "rig.01", "secret"); err != nil {
		t.Errorf("expected valid credentials accepted, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "rig.01", "wrong"); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized for wrong password, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "rig.02", ""); err != nil {
		t.Errorf("expected empty hash to accept any password, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "unknown", "x"); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized for unknown worker, got %v", err)
	}
}

func TestManagerDispatch(t *testing.T) {
	m := NewManager(ModeStatic)
	m.Register(NewStaticAuthenticator(map[string]string{"rig.01": ""}))
	m.Register(NewAnonymousAuthenticator())

	if _, err := m.Verify(context.Background(), "rig.01", ""); err != nil {
		t.Errorf("expected static authenticator to accept, got %v", err)
	}
	if _, err := m.Verify(context.Background(), "stranger", ""); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestManagerMissingAuthenticator(t *testing.T) {
	m := NewManager(ModePostgres)

	_, err := m.Verify(context.Background(), "rig.01", "")
	if err == nil {
		t.Fatal("expected error for unregistered mode")
	}
}
