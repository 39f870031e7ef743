package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panyam/authkit/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Events reported to Options.OnEvent.
const (
	EventRegister             = "register"
	EventLogin                = "login"
	EventRefresh              = "refresh"
	EventOAuthLogin           = "oauth_login"
	EventPasswordResetRequest = "password_reset_request"
	EventPasswordReset        = "password_reset"
)

// EventHook observes the outcome of every AuthService operation. err is nil
// on success.
type EventHook func(event string, err error)

// Options configures an AuthService.
type Options struct {
	Store  UserStore    // Required
	Tokens *TokenIssuer // Required

	// EmailSender delivers reset mails. When nil, reset links are only logged.
	EmailSender EmailSender

	// RefreshGuard rejects refresh tokens that were already exchanged.
	// Optional.
	RefreshGuard *RefreshGuard

	MinPasswordLength int // Defaults to DefaultMinPasswordLength
	BcryptCost        int // Defaults to DefaultBcryptCost

	Logger  *zap.Logger
	Tracer  trace.Tracer
	OnEvent EventHook

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// AuthResponse is the result of every operation that logs a user in.
type AuthResponse struct {
	User   *PublicUser `json:"user"`
	Tokens *TokenPair  `json:"tokens"`
}

// AuthService implements registration, login, token refresh, OAuth account
// linking and the password reset flow on top of a UserStore.
type AuthService struct {
	store   UserStore
	tokens  *TokenIssuer
	email   EmailSender
	guard   *RefreshGuard
	minPass int
	cost    int
	log     *zap.Logger
	tracer  trace.Tracer
	onEvent EventHook
	now     func() time.Time
}

// NewAuthService validates opts and builds the service.
func NewAuthService(opts Options) (*AuthService, error) {
	if opts.Store == nil {
		return nil, errors.New("authkit: Store is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("authkit: Tokens is required")
	}
	if opts.Tokens.AccessSecret == "" || opts.Tokens.RefreshSecret == "" {
		return nil, errors.New("authkit: access and refresh secrets are required")
	}
	s := &AuthService{
		store:   opts.Store,
		tokens:  opts.Tokens,
		email:   opts.EmailSender,
		guard:   opts.RefreshGuard,
		minPass: opts.MinPasswordLength,
		cost:    opts.BcryptCost,
		log:     opts.Logger,
		tracer:  opts.Tracer,
		onEvent: opts.OnEvent,
		now:     opts.Now,
	}
	if s.minPass <= 0 {
		s.minPass = DefaultMinPasswordLength
	}
	if s.cost == 0 {
		s.cost = DefaultBcryptCost
	}
	if s.log == nil {
		s.log = logging.Named("auth")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/panyam/authkit")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Store returns the underlying user store.
func (s *AuthService) Store() UserStore { return s.store }

// Tokens returns the token issuer.
func (s *AuthService) Tokens() *TokenIssuer { return s.tokens }

// Register creates a local account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (resp *AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, EventRegister)
	defer func() { s.finish(span, EventRegister, err) }()

	email = NormalizeEmail(email)
	if err := ValidateCredentials(email, password, s.minPass); err != nil {
		return nil, err
	}

	existing, findErr := s.store.FindUserByEmail(ctx, email)
	if findErr == nil && existing != nil {
		return nil, ErrUserExists
	}
	if findErr != nil && !errors.Is(findErr, ErrNotFound) {
		return nil, ErrInternal.Wrap(findErr)
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}

	user, err := s.store.CreateUser(ctx, &User{
		Email:    email,
		Password: hash,
		Name:     name,
		Role:     RoleUser,
		Provider: ProviderLocal,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, ErrInternal.Wrap(fmt.Errorf("create user: %w", err))
	}

	s.log.Info("user registered", logging.UserID(user.ID), logging.Email(user.Email))
	return s.respond(user)
}

// Login verifies an email/password pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (resp *AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, EventLogin)
	defer func() { s.finish(span, EventLogin, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrValidation.WithMessage("Email and password are required")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInternal.Wrap(err)
	}
	if !user.HasPassword() {
		return nil, ErrDifferentLoginMethod
	}

	ok, err := ComparePassword(user.Password, password)
	if err != nil {
		s.log.Warn("stored password hash unusable", logging.UserID(user.ID), logging.Err(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.respond(user)
}

// CurrentUser loads the user an access token was issued to.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*PublicUser, error) {
	ctx, span := s.startSpan(ctx, "current_user")
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		recordError(span, err)
		return nil, ErrInternal.Wrap(err)
	}
	return user.Public(), nil
}

// ValidateToken verifies an access token.
func (s *AuthService) ValidateToken(token string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(token)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (resp *AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, EventRefresh)
	defer func() { s.finish(span, EventRefresh, err) }()

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken.Wrap(err)
	}

	if s.guard != nil {
		var exp time.Time
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		if !s.guard.MarkUsed(claims.ID, exp) {
			s.log.Warn("refresh token replayed", logging.UserID(claims.UserID))
			return nil, ErrRefreshTokenReused
		}
	}

	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken.Wrap(err)
	}
	return s.respond(user)
}

func (s *AuthService) respond(user *User) (*AuthResponse, error) {
	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	return &AuthResponse{User: user.Public(), Tokens: tokens}, nil
}

func (s *AuthService) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "authkit."+op, trace.WithAttributes(attribute.String("operation", op)))
}

func (s *AuthService) finish(span trace.Span, event string, err error) {
	if err != nil {
		recordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	if s.onEvent != nil {
		s.onEvent(event, err)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
