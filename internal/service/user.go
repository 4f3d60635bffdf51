package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository"
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (domain.User, error)
	Deposit(ctx context.Context, userID uint, amount int64) error
}

type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{
		repo: repo,
	}
}

func (s *UserService) GetUser(ctx context.Context, id uint) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, ErrUserNotFound
		}

		return domain.User{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	return user, nil
}

// Deposit credits the user's wallet. Amounts must be positive.
func (s *UserService) Deposit(ctx context.Context, userID uint, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit must be positive", ErrPreconditionViolation)
	}

	err := s.repo.Deposit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}

		return fmt.Errorf("s.repo.Deposit -> %w", err)
	}

	return nil
}
