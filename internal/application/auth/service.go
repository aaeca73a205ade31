package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailverify-auth/internal/domain"
	"github.com/mailverify-auth/internal/infrastructure/smtp"
	"github.com/mailverify-auth/internal/pkg/logging"
	"github.com/mailverify-auth/internal/pkg/otp"
	"github.com/mailverify-auth/internal/pkg/token"
	"github.com/mailverify-auth/internal/pkg/validate"
)

const (
	defaultVerificationTTL = 10 * time.Minute
	defaultAppName         = "RateMyLandlord"
)

// UserStore is the account table. Implementations are not required to be safe
// for concurrent use; the service serializes all access.
type UserStore interface {
	Find(email string) (domain.Account, bool)
	Insert(a domain.Account)
	Remove(email string)
	PersistAll(ctx context.Context) error
}

// VerificationStore is the pending-verification registry, with the same
// concurrency contract as UserStore.
type VerificationStore interface {
	Begin(email, code string, ttl time.Duration)
	Confirm(email, code string) domain.Confirmation
	TakeIfVerified(email string) (domain.PendingVerification, bool)
	Restore(email string, v domain.PendingVerification)
}

type Service interface {
	RequestVerification(ctx context.Context, req domain.RequestVerificationRequest) error
	VerifyCode(ctx context.Context, req domain.VerifyCodeRequest) error
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error)
	// Identify resolves an Authorization header value to its account.
	Identify(ctx context.Context, authHeader string) (*domain.Account, error)
}

type ServiceDeps struct {
	Users           UserStore
	Verifications   VerificationStore
	Mailer          smtp.Mailer
	Logger          *slog.Logger
	AppName         string
	VerificationTTL time.Duration
	NewCode         func() (string, error) // defaults to otp.New
}

type service struct {
	// mu guards users and verifications together.
	mu            sync.Mutex
	users         UserStore
	verifications VerificationStore

	mailer  smtp.Mailer
	logger  *slog.Logger
	appName string
	ttl     time.Duration
	newCode func() (string, error)
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:         deps.Users,
		verifications: deps.Verifications,
		mailer:        deps.Mailer,
		logger:        deps.Logger,
		appName:       deps.AppName,
		ttl:           deps.VerificationTTL,
		newCode:       deps.NewCode,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ttl <= 0 {
		s.ttl = defaultVerificationTTL
	}
	if s.appName == "" {
		s.appName = defaultAppName
	}
	if s.newCode == nil {
		s.newCode = otp.New
	}
	return s
}

func (s *service) RequestVerification(ctx context.Context, req domain.RequestVerificationRequest) error {
	req.Email = validate.Trim(req.Email)
	if err := validate.Struct(req); err != nil {
		return domain.ErrEmailRequired
	}
	email := req.Email

	s.mu.Lock()
	_, exists := s.users.Find(email)
	s.mu.Unlock()
	if exists {
		return domain.ErrUserExists
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("request verification: %w", err)
	}

	// Delivery happens outside the lock; a pending record exists only once it succeeded.
	subject, body := s.verificationMessage(code)
	if err := s.mailer.SendEmail(email, subject, body); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			"email", logging.RedactEmail(email), "err", err)
		return domain.ErrVerificationSendFailed
	}

	s.mu.Lock()
	s.verifications.Begin(email, code, s.ttl)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "verification code emailed", "email", logging.RedactEmail(email))
	return nil
}

func (s *service) VerifyCode(ctx context.Context, req domain.VerifyCodeRequest) error {
	req.Email = validate.Trim(req.Email)
	req.Code = validate.Trim(req.Code)
	if err := validate.Struct(req); err != nil {
		return domain.ErrEmailAndCodeRequired
	}

	s.mu.Lock()
	outcome := s.verifications.Confirm(req.Email, req.Code)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "verification attempt",
		"email", logging.RedactEmail(req.Email), "outcome", outcome.String())

	switch outcome {
	case domain.ConfirmVerified:
		return nil
	case domain.ConfirmNotFound:
		return domain.ErrVerificationNotFound
	case domain.ConfirmExpired:
		return domain.ErrVerificationExpired
	default:
		return domain.ErrInvalidCode
	}
}

func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error) {
	req.Email = validate.Trim(req.Email)
	req.Name = validate.Trim(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, domain.ErrSignupFieldsRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users.Find(req.Email); exists {
		return nil, domain.ErrUserExists
	}
	pending, ok := s.verifications.TakeIfVerified(req.Email)
	if !ok {
		return nil, domain.ErrNotVerified
	}

	acc := domain.Account{Email: req.Email, Password: req.Password, Name: req.Name}
	s.users.Insert(acc)
	if err := s.users.PersistAll(ctx); err != nil {
		s.users.Remove(acc.Email)
		s.verifications.Restore(acc.Email, pending)
		s.logger.ErrorContext(ctx, "failed to persist accounts",
			"email", logging.RedactEmail(acc.Email), "err", err)
		return nil, domain.ErrAccountSaveFailed
	}

	s.logger.InfoContext(ctx, "account registered", "email", logging.RedactEmail(acc.Email))
	return &domain.AuthResult{Token: token.Issue(acc.Email), Name: acc.Name, Email: acc.Email}, nil
}

// Login compares the raw email and password; nothing is trimmed.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, domain.ErrLoginFieldsRequired
	}

	s.mu.Lock()
	acc, ok := s.users.Find(req.Email)
	s.mu.Unlock()

	if !ok || acc.Password != req.Password {
		s.logger.InfoContext(ctx, "login rejected", "email", logging.RedactEmail(req.Email))
		return nil, domain.ErrInvalidCredentials
	}
	return &domain.AuthResult{Token: token.Issue(acc.Email), Name: acc.Name, Email: acc.Email}, nil
}

func (s *service) Identify(_ context.Context, authHeader string) (*domain.Account, error) {
	email := token.Parse(authHeader)
	if email == "" {
		return nil, domain.ErrNoIdentity
	}

	s.mu.Lock()
	acc, ok := s.users.Find(email)
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNoIdentity
	}
	return &acc, nil
}

func (s *service) verificationMessage(code string) (subject, body string) {
	subject = fmt.Sprintf("Your %s verification code", s.appName)
	body = "Hi,\r\n\r\n" +
		fmt.Sprintf("Your %s verification code is: %s\r\n", s.appName, code) +
		fmt.Sprintf("It expires in %s.\r\n\r\n", humanDuration(s.ttl)) +
		"If you did not request this code you can ignore this email.\r\n"
	return subject, body
}

func humanDuration(d time.Duration) string {
	if d%time.Minute != 0 || d < time.Minute {
		return d.String()
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
