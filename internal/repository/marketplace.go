package repository

import (
	"context"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository/dao"
)

var (
	ErrTokenNotFound      = dao.ErrTokenNotFound
	ErrTokenWrongOwner    = dao.ErrTokenWrongOwner
	ErrTokenAlreadyMinted = dao.ErrTokenAlreadyMinted
	ErrSaleNotFound       = dao.ErrSaleNotFound
)

type TokenDAO interface {
	Insert(ctx context.Context, token dao.EnergyToken) (dao.EnergyToken, error)
	FindByID(ctx context.Context, tokenID uint64) (dao.EnergyToken, error)
	FindByIDs(ctx context.Context, tokenIDs []uint64) ([]dao.EnergyToken, error)
	Delete(ctx context.Context, tokenID uint64) error
	Mint(ctx context.Context, tokenID uint64, ownerID uint, tokenURI string) error
	Transfer(ctx context.Context, tokenID uint64, fromID, toID uint) error
	Burn(ctx context.Context, tokenID uint64) error
	OwnerOf(ctx context.Context, tokenID uint64) (uint, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	TokensOf(ctx context.Context, ownerID uint) ([]uint64, error)
}

type SaleDAO interface {
	Upsert(ctx context.Context, sale dao.TokenSale) error
	FindByTokenID(ctx context.Context, tokenID uint64) (dao.TokenSale, error)
	SetForSale(ctx context.Context, tokenID uint64, forSale bool) error
}

type EventDAO interface {
	Insert(ctx context.Context, event dao.LedgerEvent) (dao.LedgerEvent, error)
	FindByTokenID(ctx context.Context, tokenID uint64) ([]dao.LedgerEvent, error)
}

type MarketplaceRepository struct {
	tokens TokenDAO
	sales  SaleDAO
	events EventDAO
}

func NewMarketplaceRepository(tokens TokenDAO, sales SaleDAO, events EventDAO) *MarketplaceRepository {
	return &MarketplaceRepository{
		tokens: tokens,
		sales:  sales,
		events: events,
	}
}

func (r *MarketplaceRepository) tokenDomainToDao(t domain.EnergyToken) dao.EnergyToken {
	return dao.EnergyToken{
		TokenID:    t.TokenID,
		OwnerID:    t.OwnerID,
		EnergyType: t.EnergyType,
		ValidFrom:  t.ValidFrom,
		ValidTo:    t.ValidTo,
		StartTime:  t.StartTime,
		EndTime:    t.EndTime,
		AmountKW:   t.AmountKW,
		BalanceKW:  t.BalanceKW,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func (r *MarketplaceRepository) tokenDaoToDomain(t dao.EnergyToken) domain.EnergyToken {
	return domain.EnergyToken{
		TokenID:    t.TokenID,
		OwnerID:    t.OwnerID,
		EnergyType: t.EnergyType,
		ValidFrom:  t.ValidFrom,
		ValidTo:    t.ValidTo,
		StartTime:  t.StartTime,
		EndTime:    t.EndTime,
		AmountKW:   t.AmountKW,
		BalanceKW:  t.BalanceKW,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func (r *MarketplaceRepository) saleDaoToDomain(s dao.TokenSale) domain.TokenSale {
	return domain.TokenSale{
		TokenID:   s.TokenID,
		IsForSale: s.IsForSale,
		Price:     s.Price,
	}
}

func (r *MarketplaceRepository) eventDaoToDomain(e dao.LedgerEvent) domain.LedgerEvent {
	return domain.LedgerEvent{
		ID:             e.ID,
		Type:           domain.LedgerEventType(e.Type),
		TokenID:        e.TokenID,
		ActorID:        e.ActorID,
		CounterpartyID: e.CounterpartyID,
		Amount:         e.Amount,
		CreatedAt:      e.CreatedAt,
	}
}

func (r *MarketplaceRepository) InsertToken(ctx context.Context, token domain.EnergyToken) (domain.EnergyToken, error) {
	created, err := r.tokens.Insert(ctx, r.tokenDomainToDao(token))
	if err != nil {
		return domain.EnergyToken{}, err
	}

	return r.tokenDaoToDomain(created), nil
}

func (r *MarketplaceRepository) FindTokenByID(ctx context.Context, tokenID uint64) (domain.EnergyToken, error) {
	token, err := r.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return domain.EnergyToken{}, err
	}

	return r.tokenDaoToDomain(token), nil
}

func (r *MarketplaceRepository) FindTokensByIDs(ctx context.Context, tokenIDs []uint64) ([]domain.EnergyToken, error) {
	tokens, err := r.tokens.FindByIDs(ctx, tokenIDs)
	if err != nil {
		return nil, err
	}

	result := make([]domain.EnergyToken, len(tokens))
	for i, t := range tokens {
		result[i] = r.tokenDaoToDomain(t)
	}

	return result, nil
}

func (r *MarketplaceRepository) DeleteToken(ctx context.Context, tokenID uint64) error {
	return r.tokens.Delete(ctx, tokenID)
}

func (r *MarketplaceRepository) UpsertSale(ctx context.Context, sale domain.TokenSale) error {
	return r.sales.Upsert(ctx, dao.TokenSale{
		TokenID:   sale.TokenID,
		IsForSale: sale.IsForSale,
		Price:     sale.Price,
	})
}

func (r *MarketplaceRepository) FindSaleByTokenID(ctx context.Context, tokenID uint64) (domain.TokenSale, error) {
	sale, err := r.sales.FindByTokenID(ctx, tokenID)
	if err != nil {
		return domain.TokenSale{}, err
	}

	return r.saleDaoToDomain(sale), nil
}

func (r *MarketplaceRepository) SetForSale(ctx context.Context, tokenID uint64, forSale bool) error {
	return r.sales.SetForSale(ctx, tokenID, forSale)
}

func (r *MarketplaceRepository) RecordEvent(ctx context.Context, event domain.LedgerEvent) error {
	_, err := r.events.Insert(ctx, dao.LedgerEvent{
		Type:           string(event.Type),
		TokenID:        event.TokenID,
		ActorID:        event.ActorID,
		CounterpartyID: event.CounterpartyID,
		Amount:         event.Amount,
	})

	return err
}

func (r *MarketplaceRepository) FindEventsByTokenID(ctx context.Context, tokenID uint64) ([]domain.LedgerEvent, error) {
	events, err := r.events.FindByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.LedgerEvent, len(events))
	for i, e := range events {
		result[i] = r.eventDaoToDomain(e)
	}

	return result, nil
}

// Registry operations delegate to the ownership table; they back the ledger's
// ownership-registry collaborator.

func (r *MarketplaceRepository) Mint(ctx context.Context, tokenID uint64, ownerID uint, tokenURI string) error {
	return r.tokens.Mint(ctx, tokenID, ownerID, tokenURI)
}

func (r *MarketplaceRepository) Transfer(ctx context.Context, tokenID uint64, fromID, toID uint) error {
	return r.tokens.Transfer(ctx, tokenID, fromID, toID)
}

func (r *MarketplaceRepository) Burn(ctx context.Context, tokenID uint64) error {
	return r.tokens.Burn(ctx, tokenID)
}

func (r *MarketplaceRepository) OwnerOf(ctx context.Context, tokenID uint64) (uint, error) {
	return r.tokens.OwnerOf(ctx, tokenID)
}

func (r *MarketplaceRepository) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	return r.tokens.TokenURI(ctx, tokenID)
}

func (r *MarketplaceRepository) TokensOf(ctx context.Context, ownerID uint) ([]uint64, error) {
	return r.tokens.TokensOf(ctx, ownerID)
}
