package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

const (
	DefaultOTPTTL      = 10 * time.Minute
	DefaultOTPCooldown = 30 * time.Second
	minPasswordLength  = 8
)

type AuthService struct {
	users    port.UserRepository
	otps     port.OTPStore
	mailer   port.Mailer
	otpTTL   time.Duration
	cooldown time.Duration
	logger   zerolog.Logger
}

func NewAuthService(users port.UserRepository, otps port.OTPStore, mailer port.Mailer, otpTTL, cooldown time.Duration, logger zerolog.Logger) *AuthService {
	if otpTTL <= 0 {
		otpTTL = DefaultOTPTTL
	}
	if cooldown <= 0 {
		cooldown = DefaultOTPCooldown
	}
	return &AuthService{
		users:    users,
		otps:     otps,
		mailer:   mailer,
		otpTTL:   otpTTL,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "auth_service").Logger(),
	}
}

// SignUp registers an unverified user and mails a verification code.
// The user is removed again when the code cannot be delivered.
func (s *AuthService) SignUp(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := validateSignUp(name, email, password); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	if _, err := s.otps.AcquireResendSlot(ctx, email, s.cooldown); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("start resend cooldown")
	}

	if err := s.issueCode(ctx, user); err != nil {
		if delErr := s.users.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("user_id", user.ID).Msg("remove user after failed verification mail")
		}
		return domain.User{}, err
	}

	return user, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user.Verified() {
		return domain.ErrAlreadyVerified
	}

	result, err := s.otps.ConsumeOTP(ctx, user.Email, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	switch result {
	case port.OTPMissing:
		return domain.ErrOTPExpired
	case port.OTPMismatch:
		return domain.ErrOTPInvalid
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user.Verified() {
		return domain.ErrAlreadyVerified
	}

	ok, err := s.otps.AcquireResendSlot(ctx, user.Email, s.cooldown)
	if err != nil {
		return fmt.Errorf("acquire resend slot: %w", err)
	}
	if !ok {
		return domain.ErrOTPCooldown
	}

	return s.issueCode(ctx, user)
}

// SignIn checks the credentials of a verified user. Unknown emails and wrong
// passwords both report domain.ErrUnauthorized.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	if !user.Verified() {
		return domain.User{}, domain.ErrEmailNotVerified
	}
	return user, nil
}

func (s *AuthService) issueCode(ctx context.Context, user domain.User) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := s.otps.SaveOTP(ctx, user.Email, code, s.otpTTL); err != nil {
		return fmt.Errorf("save code: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, user.Email, user.Name, code); err != nil {
		if delErr := s.otps.DeleteOTP(ctx, user.Email); delErr != nil {
			s.logger.Warn().Err(delErr).Str("email", user.Email).Msg("discard undelivered code")
		}
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSignUp(name, email, password string) error {
	if utf8.RuneCountInString(name) < 2 {
		return domain.InvalidInput("name must be at least 2 characters")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.InvalidInput("invalid email address")
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.InvalidInput("password must be at least %d characters", minPasswordLength)
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return domain.InvalidInput("password needs an uppercase letter, a lowercase letter and a digit")
	}
	return nil
}
