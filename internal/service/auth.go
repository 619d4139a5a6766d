package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	if role != models.RoleLender && role != models.RoleBorrower {
		return nil, apperr.Wrap(apperr.ErrValidation, "role must be lender or borrower")
	}
	if email == "" || password == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "email and password are required")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Infof("User registered: %s (%s)", user.Email, user.Role)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrForbidden, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", apperr.Wrap(apperr.ErrForbidden, "invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"role": string(user.Role),
		"exp":  jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}
