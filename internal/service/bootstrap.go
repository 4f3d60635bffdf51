package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository"
)

// EnsureAdmin makes sure the configured admin account exists and holds the
// admin role. Safe to run on every startup.
func EnsureAdmin(ctx context.Context, repo AuthUserRepository, roles RoleStore, email, password, name string) (domain.User, error) {
	admin, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, fmt.Errorf("repo.FindByEmail -> %w", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}

		admin, err = repo.Create(ctx, domain.User{
			Email:    email,
			Password: string(hash),
			Name:     name,
		})
		if err != nil {
			return domain.User{}, fmt.Errorf("repo.Create -> %w", err)
		}
	}

	if err = roles.Grant(ctx, admin.ID, domain.RoleAdmin); err != nil {
		return domain.User{}, fmt.Errorf("roles.Grant -> %w", err)
	}

	return admin, nil
}
