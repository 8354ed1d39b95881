package service

import (
	"SecureDrop/internal/model"
	"SecureDrop/internal/repo"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// UserService: регистрация и вход.
type UserService struct {
	repo repo.UserRepository
}

func NewUserService(r repo.UserRepository) *UserService {
	return &UserService{repo: r}
}

// Register создаёт пользователя с bcrypt-хешем пароля. Email нужен, чтобы
// пользователю можно было отправить файл.
func (s *UserService) Register(ctx context.Context, login, email, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	email = strings.ToLower(strings.TrimSpace(email))
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", ErrInvalidRequest)
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidRequest)
	}

	_, err := s.repo.GetUserByLogin(ctx, login)
	switch {
	case err == nil:
		return nil, ErrLoginTaken
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	if email != "" {
		_, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return nil, ErrEmailTaken
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, &model.User{Login: login, Email: email, Password: string(hash)})
}

// Login проверяет пароль. Неизвестный логин и неверный пароль неразличимы.
func (s *UserService) Login(ctx context.Context, login, password string) (*model.User, error) {
	user, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
