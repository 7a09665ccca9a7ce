// Package auth handles account registration, login and token issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/services"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/pkg/logger"
)

const tokenTTL = 7 * 24 * time.Hour

var (
	// ErrEmailTaken indicates a registration attempt with an email that is
	// already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown emails and wrong passwords so
	// callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRole indicates a registration with a role outside the allowed
	// set.
	ErrInvalidRole = errors.New("invalid role")
)

// Claims is the JWT payload issued on registration and login.
type Claims struct {
	UserID string    `json:"id"`
	Email  string    `json:"email"`
	Role   user.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service manages user accounts and session tokens.
type Service struct {
	users  storage.UserStore
	secret []byte
	log    *logger.Logger
	now    func() time.Time
}

// New constructs an auth service signing tokens with the given secret.
func New(users storage.UserStore, secret string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{users: users, secret: []byte(secret), log: log, now: time.Now}
}

// RegisterInput carries the fields required to create an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     user.Role
}

// Register creates an account, hashes the password and returns the user with
// a signed session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Password == "" || in.Name == "" || in.Role == "" {
		return user.User{}, "", services.InvalidInput("missing required fields")
	}
	if !in.Role.Valid() {
		return user.User{}, "", ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, user.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Role:         in.Role,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return user.User{}, "", ErrEmailTaken
		}
		return user.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.issueToken(u)
	if err != nil {
		return user.User{}, "", err
	}

	s.log.WithField("user_id", u.ID).WithField("role", string(u.Role)).Info("user registered")
	return u, token, nil
}

// Login verifies the credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return user.User{}, "", services.InvalidInput("missing required fields")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, "", ErrInvalidCredentials
		}
		return user.User{}, "", fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return user.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(u)
	if err != nil {
		return user.User{}, "", err
	}
	return u, token, nil
}

// GetUser loads an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.users.GetUser(ctx, id)
}

// ParseToken validates a signed token and returns its claims.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Service) issueToken(u user.User) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
