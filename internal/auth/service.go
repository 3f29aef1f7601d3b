package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/campus-dispatch/internal/apperr"
	mailer "github.com/example/campus-dispatch/internal/mail"
	"github.com/example/campus-dispatch/internal/models"
	"github.com/example/campus-dispatch/internal/storage"
)

// Service is the credential/identity boundary: registration, login
// and email verification. The core only ever sees the user id a
// token resolves to.
type Service struct {
	store   storage.Store
	tokens  *TokenManager
	codes   CodeStore
	mailer  mailer.Mailer
	codeTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store storage.Store, tokens *TokenManager, codes CodeStore, m mailer.Mailer, codeTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{store: store, tokens: tokens, codes: codes, mailer: m, codeTTL: codeTTL, logger: logger, now: time.Now}
}

func (s *Service) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrValidation)
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	code := NewCode()
	if err := s.codes.Set(ctx, email, code, s.codeTTL); err != nil {
		return nil, fmt.Errorf("store verification code: %w", err)
	}
	// mail failures never fail registration
	if err := s.mailer.Send(email, "Verify your account", "Your verification code is "+code); err != nil {
		s.logger.Warn("verification mail failed", "email", email, "error", err)
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: bad credentials", apperr.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("%w: bad credentials", apperr.ErrUnauthorized)
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// VerifyEmail consumes a pending code and flips the account to
// verified + assignee-eligible.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	ok, err := s.codes.Consume(ctx, email, code)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: invalid or expired code", apperr.ErrValidation)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.store.MarkVerified(ctx, u.ID)
}
