package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshua-takyi/gatherly/internal/helpers"
	"github.com/joshua-takyi/gatherly/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	usersRepo models.UserRepo
}

func NewUserService(usersRepo models.UserRepo) *UserService {
	return &UserService{
		usersRepo: usersRepo,
	}
}

// AuthResult pairs a freshly issued token with the user's public projection.
type AuthResult struct {
	Token string         `json:"token"`
	User  models.Creator `json:"user"`
}

func (us *UserService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("name, email and password are required")
	}
	if !helpers.IsPasswordStrong(password) {
		return nil, fmt.Errorf("password must be at least 8 characters with upper, lower and numeric characters")
	}

	if _, err := us.usersRepo.GetUserByEmail(ctx, email); err == nil {
		return nil, models.ErrUserExists
	} else if err != models.ErrUserNotFound {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
	}
	created, err := us.usersRepo.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}

	return us.issueToken(created)
}

func (us *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := us.usersRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == models.ErrUserNotFound {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return us.issueToken(user)
}

// ResolveUser turns a bearer credential into a registered user id. Absent,
// malformed or unknown credentials resolve to ErrUnauthorized; callers treat
// those sessions as guests.
func (us *UserService) ResolveUser(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", models.ErrUnauthorized
	}
	claims, err := helpers.ValidateToken(token)
	if err != nil {
		return "", models.ErrUnauthorized
	}
	if _, err := us.usersRepo.GetUserByID(ctx, claims.UserID()); err != nil {
		return "", models.ErrUnauthorized
	}
	return claims.UserID(), nil
}

func (us *UserService) issueToken(user *models.User) (*AuthResult, error) {
	token, err := helpers.GenerateToken(user.ID.Hex(), user.Email, user.Name)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{
		Token: token,
		User:  user.Public(),
	}, nil
}
