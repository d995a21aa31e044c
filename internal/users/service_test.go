package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &sequenceIDProvider{prefix: "user"},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	account, err := service.Register(ctx, "Ada@Example.com", "Ada", "s3cret")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if account.UserID != "user-1" {
		t.Fatalf("unexpected user id %s", account.UserID)
	}
	if account.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %s", account.Email)
	}
	if account.PasswordHash == "s3cret" {
		t.Fatalf("password must be stored hashed")
	}
	if account.CreatedAtSeconds != 1700000000 {
		t.Fatalf("unexpected creation time %d", account.CreatedAtSeconds)
	}

	authenticated, err := service.Authenticate(ctx, "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if authenticated.UserID != account.UserID {
		t.Fatalf("expected same account, got %s", authenticated.UserID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "ada@example.com", "Ada", "pw"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Register(ctx, "ADA@example.com", "Other Ada", "pw2")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterTranslatesUniqueIndexViolation(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "ada@example.com", "Ada", "pw"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	// A concurrent registration bypasses the pre-insert lookup and lands on
	// the unique index; the resulting driver error must read as a duplicate.
	err := db.Create(&Account{
		UserID:           "user-racer",
		Email:            "ada@example.com",
		DisplayName:      "Other Ada",
		PasswordHash:     "hash",
		CreatedAtSeconds: 1,
	}).Error
	if err == nil {
		t.Fatalf("expected unique index violation")
	}
	if !isDuplicateEmail(err) {
		t.Fatalf("driver constraint error must map to ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidatesPayload(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		display  string
		password string
	}{
		{name: "missing email", email: "", display: "Ada", password: "pw"},
		{name: "malformed email", email: "not-an-email", display: "Ada", password: "pw"},
		{name: "missing name", email: "a@b.c", display: " ", password: "pw"},
		{name: "missing password", email: "a@b.c", display: "Ada", password: ""},
	}
	for _, tc := range cases {
		if _, err := service.Register(ctx, tc.email, tc.display, tc.password); !errors.Is(err, ErrInvalidRegistration) {
			t.Fatalf("%s: expected ErrInvalidRegistration, got %v", tc.name, err)
		}
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "ada@example.com", "Ada", "pw"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	if _, err := service.Authenticate(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "nobody@example.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestGetReturnsNotFoundForUnknownID(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
