package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRoleNotHeld = errors.New("account does not hold the role")

type UserRole struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_user_roles_user_role"`
	Role   string `gorm:"not null;uniqueIndex:idx_user_roles_user_role"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

type RoleDAO struct {
	db *gorm.DB
}

func NewRoleDAO(db *gorm.DB) *RoleDAO {
	return &RoleDAO{
		db: db,
	}
}

// Grant is idempotent; granting a role an account already holds is a no-op.
func (d *RoleDAO) Grant(ctx context.Context, userID uint, role string) error {
	entry := UserRole{
		UserID: userID,
		Role:   role,
	}

	result := dbFromContext(ctx, d.db).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry)

	return result.Error
}

func (d *RoleDAO) Revoke(ctx context.Context, userID uint, role string) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		Delete(&UserRole{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoleNotHeld
	}

	return nil
}

func (d *RoleDAO) Has(ctx context.Context, userID uint, role string) (bool, error) {
	var count int64

	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}

	return count > 0, nil
}

func (d *RoleDAO) RolesOf(ctx context.Context, userID uint) ([]string, error) {
	var roles []string

	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&UserRole{}).
		Where("user_id = ?", userID).
		Order("role").
		Pluck("role", &roles)
	if result.Error != nil {
		return nil, result.Error
	}

	return roles, nil
}
