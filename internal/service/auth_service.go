package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fireplus/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

// Errors returned by AuthService.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrUserExists      = errors.New("user already exists")
	ErrEmptyUsername   = errors.New("username is empty")
)

// AuthService issues and checks the bearer tokens that guard the device API.
type AuthService struct {
	users      repository.Authorization
	signingKey []byte
	tokenTTL   time.Duration
	parser     *jwt.Parser
}

func NewAuthService(users repository.Authorization, signingKey string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{
		users:      users,
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// SignUp stores a new operator account. A taken username yields ErrUserExists.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrEmptyUsername
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	id, err := s.users.Create(ctx, username, hash)
	switch {
	case errors.Is(err, repository.ErrUserExists):
		return 0, ErrUserExists
	case err != nil:
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// GenerateToken checks the credentials and signs a token for the account.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidPassword
	}
	return s.issueToken(u.ID)
}

// ParseToken returns the user id carried by a valid token. Every failure
// wraps ErrInvalidToken.
func (s *AuthService) ParseToken(accessToken string) (int, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(accessToken, claims, func(*jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) issueToken(userID int) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	})
	return token.SignedString(s.signingKey)
}
