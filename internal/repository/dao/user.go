package dao

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserEmailExists     = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrPaymentSelfTransfer = errors.New("payment sender and recipient are the same account")
)

type User struct {
	ID uint `gorm:"primaryKey"`

	Email    string `gorm:"unique;not null"`
	Password string `gorm:"not null"`
	Name     string `gorm:"not null"`

	WalletBalance int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type UserDAO struct {
	db *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{
		db: db,
	}
}

func (d *UserDAO) Insert(ctx context.Context, user User) (User, error) {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Create(&user)
	if result.Error != nil {
		var err *pgconn.PgError
		if errors.As(result.Error, &err) &&
			err.Code == pgerrcode.UniqueViolation &&
			strings.Contains(err.Message, `unique constraint "uni_users_email"`) {
			return User{}, ErrUserEmailExists
		}

		return User{}, result.Error
	}

	return user, nil
}

func (d *UserDAO) FindByID(ctx context.Context, id uint) (User, error) {
	var user User

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}

		return User{}, result.Error
	}

	return user, nil
}

func (d *UserDAO) FindByEmail(ctx context.Context, email string) (User, error) {
	var user User

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}

		return User{}, result.Error
	}

	return user, nil
}

// TransferBalance moves amount from one wallet to another. The debit is
// guarded in SQL so a wallet can never go negative; a failed guard surfaces
// as ErrInsufficientBalance and leaves both wallets untouched.
func (d *UserDAO) TransferBalance(ctx context.Context, fromID, toID uint, amount int64) error {
	if fromID == toID {
		return ErrPaymentSelfTransfer
	}

	db := dbFromContext(ctx, d.db).WithContext(ctx)

	debit := db.Model(&User{}).
		Where("id = ? AND wallet_balance >= ?", fromID, amount).
		Update("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
	if debit.Error != nil {
		return debit.Error
	}
	if debit.RowsAffected == 0 {
		if _, err := d.FindByID(ctx, fromID); err != nil {
			return err
		}

		return ErrInsufficientBalance
	}

	credit := db.Model(&User{}).
		Where("id = ?", toID).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if credit.Error != nil {
		return credit.Error
	}
	if credit.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Deposit credits a wallet, used to fund accounts for testing and demos.
func (d *UserDAO) Deposit(ctx context.Context, userID uint, amount int64) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}
