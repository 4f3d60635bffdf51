package repository

import (
	"context"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository/dao"
)

var ErrRoleNotHeld = dao.ErrRoleNotHeld

// RoleRepository backs the ledger's role-store collaborator. Admin
// administers every role, itself included.
type RoleRepository struct {
	dao RoleDAO
}

func NewRoleRepository(dao RoleDAO) *RoleRepository {
	return &RoleRepository{
		dao: dao,
	}
}

func (r *RoleRepository) Grant(ctx context.Context, userID uint, role domain.Role) error {
	return r.dao.Grant(ctx, userID, string(role))
}

func (r *RoleRepository) Revoke(ctx context.Context, userID uint, role domain.Role) error {
	return r.dao.Revoke(ctx, userID, string(role))
}

func (r *RoleRepository) Has(ctx context.Context, userID uint, role domain.Role) (bool, error) {
	return r.dao.Has(ctx, userID, string(role))
}

func (r *RoleRepository) AdminRoleOf(role domain.Role) domain.Role {
	return domain.RoleAdmin
}
