package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealtrack/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates that the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAccountNotFound indicates that no account exists for the identifier.
	ErrAccountNotFound = errors.New("users: account not found")
	// ErrInvalidRegistration indicates the registration payload is unusable.
	ErrInvalidRegistration = errors.New("users: invalid registration")
)

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages registration and credential verification.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
	ids   IDProvider
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock, ids: cfg.IDProvider}, nil
}

// Register creates an account, rejecting duplicate emails.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (Account, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, fmt.Errorf("%w: email", ErrInvalidRegistration)
	}
	if displayName == "" {
		return Account{}, fmt.Errorf("%w: name", ErrInvalidRegistration)
	}
	if password == "" {
		return Account{}, fmt.Errorf("%w: password", ErrInvalidRegistration)
	}

	var existing Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return Account{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return Account{}, err
	}
	userID, err := s.ids.NewID()
	if err != nil {
		return Account{}, err
	}

	account := Account{
		UserID:           userID,
		Email:            email,
		DisplayName:      displayName,
		PasswordHash:     hashed,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		// A concurrent registration can slip past the lookup above; the
		// unique index is the authority.
		if isDuplicateEmail(err) {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return account, nil
}

func isDuplicateEmail(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: users.email")
}

// Authenticate verifies the email/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if !auth.VerifyPassword(password, account.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Get returns the account for the user id.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}
