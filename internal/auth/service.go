// Package auth covers administrator sessions: operator credentials are
// checked with bcrypt and exchanged for a short-lived HS256 token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	RoleAdmin = "admin"

	defaultTTL = 12 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Config struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTTTL            time.Duration `mapstructure:"jwt_ttl"`
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
}

func (c Config) JWT() JWTConfig {
	ttl := c.JWTTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return JWTConfig{Secret: c.JWTSecret, TTL: ttl}
}

type Service struct {
	config Config
}

func NewService(config Config) *Service {
	return &Service{config: config}
}

// Login returns a session token for the configured operator.
func (s *Service) Login(username, password string) (string, error) {
	if s.config.AdminUsername == "" || s.config.AdminPasswordHash == "" {
		slog.Warn("Admin login attempted but no operator is configured")
		return "", ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.config.AdminUsername)) == 1
	passOK := CheckPassword(password, s.config.AdminPasswordHash)
	if !userOK || !passOK {
		slog.Warn("Failed admin login", "username", username)
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.config.JWT(), username, RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	slog.Info("Admin logged in", "username", username)
	return token, nil
}
