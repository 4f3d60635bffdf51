package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSaleNotFound = errors.New("sale record not found")

// TokenSale keeps the listing state of a token. The row outlives the token:
// burning does not remove it, and withdrawing a listing leaves the last price
// in place with IsForSale flipped off.
type TokenSale struct {
	TokenID   uint64 `gorm:"primaryKey"`
	IsForSale bool   `gorm:"not null;default:false"`
	Price     int64  `gorm:"not null;default:0"`
}

func (TokenSale) TableName() string {
	return "token_sales"
}

type SaleDAO struct {
	db *gorm.DB
}

func NewSaleDAO(db *gorm.DB) *SaleDAO {
	return &SaleDAO{
		db: db,
	}
}

func (d *SaleDAO) Upsert(ctx context.Context, sale TokenSale) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_for_sale", "price"}),
		}).
		Create(&sale)

	return result.Error
}

func (d *SaleDAO) FindByTokenID(ctx context.Context, tokenID uint64) (TokenSale, error) {
	var sale TokenSale

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&sale, tokenID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return TokenSale{}, ErrSaleNotFound
		}

		return TokenSale{}, result.Error
	}

	return sale, nil
}

// SetForSale flips only the listing flag; the stored price is untouched.
func (d *SaleDAO) SetForSale(ctx context.Context, tokenID uint64, forSale bool) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&TokenSale{}).
		Where("token_id = ?", tokenID).
		Update("is_for_sale", forSale)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSaleNotFound
	}

	return nil
}
