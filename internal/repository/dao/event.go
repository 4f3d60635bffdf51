package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type LedgerEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Type           string `gorm:"not null;index"`
	TokenID        uint64 `gorm:"index"`
	ActorID        uint   `gorm:"not null"`
	CounterpartyID uint
	Amount         int64

	CreatedAt time.Time `gorm:"not null"`
}

func (LedgerEvent) TableName() string {
	return "ledger_events"
}

type EventDAO struct {
	db *gorm.DB
}

func NewEventDAO(db *gorm.DB) *EventDAO {
	return &EventDAO{
		db: db,
	}
}

func (d *EventDAO) Insert(ctx context.Context, event LedgerEvent) (LedgerEvent, error) {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Create(&event)
	if result.Error != nil {
		return LedgerEvent{}, result.Error
	}

	return event, nil
}

func (d *EventDAO) FindByTokenID(ctx context.Context, tokenID uint64) ([]LedgerEvent, error) {
	var events []LedgerEvent

	result := dbFromContext(ctx, d.db).WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("id").
		Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}
