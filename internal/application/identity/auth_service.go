package identity

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/auth"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

// RoleAdmin is the only role issued today
const RoleAdmin = "admin"

// AuthServiceConfig contains configuration for the auth service
type AuthServiceConfig struct {
	MaxLoginAttempts int           // Maximum failed login attempts before lock
	LockDuration     time.Duration // How long to lock the operator after max attempts
}

// DefaultAuthServiceConfig returns default configuration
func DefaultAuthServiceConfig() AuthServiceConfig {
	return AuthServiceConfig{
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
	}
}

// LoginInput is an operator login request
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// LoginResult carries the issued access token
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
	Operator    string    `json:"operator"`
}

// AuthService logs the operator of the admin API in against the configured
// account and issues access tokens
type AuthService struct {
	admin      config.AdminConfig
	jwtService *auth.JWTService
	config     AuthServiceConfig
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(admin config.AdminConfig, jwtService *auth.JWTService, cfg AuthServiceConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		admin:      admin,
		jwtService: jwtService,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Login verifies the credentials and returns a token
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	log := s.logger.With(zap.String("username", input.Username), zap.String("ip", input.IP))

	if s.admin.PasswordHash == "" {
		log.Warn("Login attempt while no admin password is configured")
		return nil, shared.NewDomainError("LOGIN_DISABLED", "Admin login is not configured")
	}
	if s.isLocked() {
		log.Warn("Login attempt for locked account")
		return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Account is locked. Please try again later")
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(input.Username)), []byte(s.admin.Username)) == 1
	// Always run bcrypt so an unknown username costs the same as a bad password.
	passErr := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(input.Password))
	if !userOK || passErr != nil {
		if s.recordFailure() {
			log.Warn("Account locked after too many failed attempts", zap.Int("attempts", s.config.MaxLoginAttempts))
			return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Too many failed login attempts. Account has been locked")
		}
		log.Warn("Invalid credentials")
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
	}

	token, err := s.jwtService.Issue(s.admin.Username, RoleAdmin)
	if err != nil {
		log.Error("Failed to issue access token", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication token")
	}
	s.recordSuccess()

	log.Info("Operator logged in")
	return &LoginResult{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
		TokenType:   token.TokenType,
		Operator:    s.admin.Username,
	}, nil
}

// Authenticate validates a bearer token
func (s *AuthService) Authenticate(tokenString string) (*auth.Claims, error) {
	claims, err := s.jwtService.Validate(tokenString)
	if err != nil {
		switch err {
		case auth.ErrExpiredToken:
			return nil, shared.NewDomainError("TOKEN_EXPIRED", "Access token has expired")
		default:
			return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid access token")
		}
	}
	return claims, nil
}

func (s *AuthService) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.lockedUntil)
}

// recordFailure counts a failed attempt and reports whether it locked the account
func (s *AuthService) recordFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.config.MaxLoginAttempts > 0 && s.failures >= s.config.MaxLoginAttempts {
		s.failures = 0
		s.lockedUntil = s.now().Add(s.config.LockDuration)
		return true
	}
	return false
}

func (s *AuthService) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.lockedUntil = time.Time{}
}

// HashPassword returns the bcrypt hash to put in admin.password_hash
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", shared.NewDomainError("INVALID_PASSWORD", "Password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
