package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/email"
	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
)

// Errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrWeakPassword       = fmt.Errorf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength)
)

// BirthdateLayout is the accepted birthdate format.
const BirthdateLayout = "2006-01-02"

var usernamePattern = regexp.MustCompile(`^[-_.]?([[:alnum:]]+[-_.]?)+$`)

// RegisterInput is the registration form.
type RegisterInput struct {
	Username      string
	Email         string
	Password      string
	FullName      string
	Birthdate     string // YYYY-MM-DD
	CountryAlpha2 string
}

// Validate returns validation.Errors keyed by form field name.
func (in RegisterInput) Validate(now time.Time) error {
	return validation.Errors{
		"username": validation.Validate(in.Username,
			validation.Required, validation.RuneLength(3, 16), validation.Match(usernamePattern)),
		"email": validation.Validate(in.Email, validation.Required, is.EmailFormat),
		"password": validation.Validate(in.Password,
			validation.Required, validation.Length(MinPasswordLength, MaxPasswordLength)),
		"full_name": validation.Validate(in.FullName, validation.Required, validation.RuneLength(2, 256)),
		"birthdate": validation.Validate(in.Birthdate, validation.Required, validation.Date(BirthdateLayout).
			Max(now).Error("must be a valid date (YYYY-MM-DD)").RangeError("must not be in the future")),
		"country_alpha2": validation.Validate(in.CountryAlpha2, validation.Required, validation.In(countryCodes...).Error("must be a country code")),
	}.Filter()
}

// FieldErrors extracts per-field messages from a registration error.
func FieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}
	return out
}

// UserService handles accounts.
type UserService struct {
	db           *db.DB
	hasher       PasswordHasher
	emailService email.EmailService
	loginURL     string
	clock        Clock
}

// NewUserService creates a user service. loginURL is linked from the welcome
// email.
func NewUserService(store *db.DB, hasher PasswordHasher, emailSvc email.EmailService, loginURL string) *UserService {
	return &UserService{
		db:           store,
		hasher:       hasher,
		emailService: emailSvc,
		loginURL:     loginURL,
		clock:        realClock{},
	}
}

// SetClock replaces the clock. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// Register validates the form, creates a user account and sends the welcome
// email. Invalid input returns an InvalidArgument error wrapping
// validation.Errors; a taken username or email returns ErrAccountExists.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*db.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.CountryAlpha2 = strings.ToUpper(strings.TrimSpace(in.CountryAlpha2))

	if err := in.Validate(s.clock.Now()); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "invalid registration", err)
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &db.User{
		ID:            uuid.NewString(),
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		FullName:      in.FullName,
		Birthdate:     in.Birthdate,
		CountryAlpha2: in.CountryAlpha2,
		Role:          db.RoleUser,
		CreatedAt:     s.clock.Now().Unix(),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	if s.emailService != nil {
		err := s.emailService.Send(user.Email, email.TemplateWelcome, email.WelcomeData{
			Username: user.Username,
			FullName: user.FullName,
			LoginURL: s.loginURL,
		})
		if err != nil {
			obs.From(ctx).Warn("welcome_email_failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// Authenticate checks a username-or-email and password pair.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*db.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.db.GetUserByLogin(ctx, login)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*db.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]*db.User, error) {
	return s.db.ListUsers(ctx)
}

// SetDisabled disables or re-enables an account.
func (s *UserService) SetDisabled(ctx context.Context, id string, disabled bool) error {
	err := s.db.SetUserDisabled(ctx, id, disabled, s.clock.Now())
	if errors.Is(err, db.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// EnsureAdmin creates the administrator account unless one with that
// username already exists. An existing non-admin account is an error.
func (s *UserService) EnsureAdmin(ctx context.Context, username, emailAddr, password string) (*db.User, error) {
	existing, err := s.db.GetUserByLogin(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, errs.New(errs.FailedPrecondition, fmt.Sprintf("user %q exists without the admin role", username))
		}
		return existing, nil
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &db.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         emailAddr,
		PasswordHash:  hash,
		FullName:      "Administrator",
		Birthdate:     "1970-01-01",
		CountryAlpha2: "US",
		Role:          db.RoleAdmin,
		CreatedAt:     s.clock.Now().Unix(),
	}
	if err := s.db.CreateUser(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	obs.From(ctx).Info("admin_seeded", "user_id", admin.ID, "username", username)
	return admin, nil
}
