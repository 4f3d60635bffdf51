package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gridwatt/wattmarket/internal/repository/dao"
)

// TxManager runs a function inside a single database transaction. The open
// transaction travels in the context so every DAO call within fn lands on it,
// which makes each ledger operation all-or-nothing.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{
		db: db,
	}
}

func (m *TxManager) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dao.WithTx(ctx, tx))
	})
}
