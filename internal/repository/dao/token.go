package dao

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenWrongOwner    = errors.New("token is not owned by the given account")
	ErrTokenAlreadyMinted = errors.New("token is already registered")
)

type EnergyToken struct {
	TokenID uint64 `gorm:"primaryKey;autoIncrement"`

	OwnerID    uint   `gorm:"not null"` // minting provider, never rewritten
	EnergyType string `gorm:"not null"`

	ValidFrom int64 `gorm:"not null"`
	ValidTo   int64 `gorm:"not null"`
	StartTime int   `gorm:"not null"`
	EndTime   int   `gorm:"not null"`

	AmountKW  int64 `gorm:"not null"`
	BalanceKW int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (EnergyToken) TableName() string {
	return "energy_tokens"
}

// TokenOwnership is the authoritative ownership registry row. Purchases and
// burns resolve the owner from here, not from EnergyToken.OwnerID.
type TokenOwnership struct {
	TokenID  uint64 `gorm:"primaryKey"`
	OwnerID  uint   `gorm:"not null;index"`
	TokenURI string `gorm:"not null"`
}

func (TokenOwnership) TableName() string {
	return "token_ownerships"
}

type TokenDAO struct {
	db *gorm.DB
}

func NewTokenDAO(db *gorm.DB) *TokenDAO {
	return &TokenDAO{
		db: db,
	}
}

func (d *TokenDAO) Insert(ctx context.Context, token EnergyToken) (EnergyToken, error) {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Create(&token)
	if result.Error != nil {
		return EnergyToken{}, result.Error
	}

	return token, nil
}

func (d *TokenDAO) FindByID(ctx context.Context, tokenID uint64) (EnergyToken, error) {
	var token EnergyToken

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&token, tokenID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return EnergyToken{}, ErrTokenNotFound
		}

		return EnergyToken{}, result.Error
	}

	return token, nil
}

func (d *TokenDAO) FindByIDs(ctx context.Context, tokenIDs []uint64) ([]EnergyToken, error) {
	var tokens []EnergyToken

	result := dbFromContext(ctx, d.db).WithContext(ctx).
		Where("token_id IN ?", tokenIDs).
		Order("token_id").
		Find(&tokens)
	if result.Error != nil {
		return nil, result.Error
	}

	return tokens, nil
}

func (d *TokenDAO) Delete(ctx context.Context, tokenID uint64) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Delete(&EnergyToken{}, tokenID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// Mint registers the initial owner and metadata URI of a freshly inserted token.
func (d *TokenDAO) Mint(ctx context.Context, tokenID uint64, ownerID uint, tokenURI string) error {
	entry := TokenOwnership{
		TokenID:  tokenID,
		OwnerID:  ownerID,
		TokenURI: tokenURI,
	}

	result := dbFromContext(ctx, d.db).WithContext(ctx).Create(&entry)
	if result.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrTokenAlreadyMinted
		}

		return result.Error
	}

	return nil
}

// Transfer rewrites the registry owner. The WHERE clause pins the expected
// current owner so a concurrent transfer cannot be silently overwritten.
func (d *TokenDAO) Transfer(ctx context.Context, tokenID uint64, fromID, toID uint) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&TokenOwnership{}).
		Where("token_id = ? AND owner_id = ?", tokenID, fromID).
		Update("owner_id", toID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := d.OwnerOf(ctx, tokenID); err != nil {
			return err
		}

		return ErrTokenWrongOwner
	}

	return nil
}

func (d *TokenDAO) Burn(ctx context.Context, tokenID uint64) error {
	result := dbFromContext(ctx, d.db).WithContext(ctx).Delete(&TokenOwnership{}, tokenID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}

	return nil
}

func (d *TokenDAO) OwnerOf(ctx context.Context, tokenID uint64) (uint, error) {
	var entry TokenOwnership

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&entry, tokenID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, ErrTokenNotFound
		}

		return 0, result.Error
	}

	return entry.OwnerID, nil
}

func (d *TokenDAO) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	var entry TokenOwnership

	result := dbFromContext(ctx, d.db).WithContext(ctx).First(&entry, tokenID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", ErrTokenNotFound
		}

		return "", result.Error
	}

	return entry.TokenURI, nil
}

func (d *TokenDAO) TokensOf(ctx context.Context, ownerID uint) ([]uint64, error) {
	var tokenIDs []uint64

	result := dbFromContext(ctx, d.db).WithContext(ctx).Model(&TokenOwnership{}).
		Where("owner_id = ?", ownerID).
		Order("token_id").
		Pluck("token_id", &tokenIDs)
	if result.Error != nil {
		return nil, result.Error
	}

	return tokenIDs, nil
}
