package repository

import (
	"context"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository/dao"
)

var (
	ErrUserEmailExists     = dao.ErrUserEmailExists
	ErrUserNotFound        = dao.ErrUserNotFound
	ErrInsufficientBalance = dao.ErrInsufficientBalance
	ErrPaymentSelfTransfer = dao.ErrPaymentSelfTransfer
)

type UserDAO interface {
	Insert(ctx context.Context, user dao.User) (dao.User, error)
	FindByID(ctx context.Context, id uint) (dao.User, error)
	FindByEmail(ctx context.Context, email string) (dao.User, error)
	TransferBalance(ctx context.Context, fromID, toID uint, amount int64) error
	Deposit(ctx context.Context, userID uint, amount int64) error
}

type RoleDAO interface {
	Grant(ctx context.Context, userID uint, role string) error
	Revoke(ctx context.Context, userID uint, role string) error
	Has(ctx context.Context, userID uint, role string) (bool, error)
	RolesOf(ctx context.Context, userID uint) ([]string, error)
}

type UserRepository struct {
	dao   UserDAO
	roles RoleDAO
}

func NewUserRepository(dao UserDAO, roles RoleDAO) *UserRepository {
	return &UserRepository{
		dao:   dao,
		roles: roles,
	}
}

func (r *UserRepository) daoToDomain(u dao.User) domain.User {
	return domain.User{
		ID:            u.ID,
		Email:         u.Email,
		Password:      u.Password,
		Name:          u.Name,
		WalletBalance: u.WalletBalance,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	created, err := r.dao.Insert(ctx, dao.User{
		Email:         user.Email,
		Password:      user.Password,
		Name:          user.Name,
		WalletBalance: user.WalletBalance,
	})
	if err != nil {
		return domain.User{}, err
	}

	return r.daoToDomain(created), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (domain.User, error) {
	user, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	found := r.daoToDomain(user)

	roles, err := r.roles.RolesOf(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	for _, role := range roles {
		found.Roles = append(found.Roles, domain.Role(role))
	}

	return found, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := r.dao.FindByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}

	return r.daoToDomain(user), nil
}

// SendValue forwards value between wallets. It backs the ledger's payment
// collaborator; a debit that cannot be covered aborts with
// ErrInsufficientBalance and the caller's transaction rolls back.
func (r *UserRepository) SendValue(ctx context.Context, fromID, toID uint, amount int64) error {
	return r.dao.TransferBalance(ctx, fromID, toID, amount)
}

func (r *UserRepository) Deposit(ctx context.Context, userID uint, amount int64) error {
	return r.dao.Deposit(ctx, userID, amount)
}
