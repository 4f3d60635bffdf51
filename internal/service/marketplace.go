package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository"
)

var (
	ErrTokenNotFound         = repository.ErrTokenNotFound
	ErrInsufficientBalance   = repository.ErrInsufficientBalance
	ErrPaymentSelfTransfer   = repository.ErrPaymentSelfTransfer
	ErrRoleNotHeld           = repository.ErrRoleNotHeld
	ErrPreconditionViolation = errors.New("precondition violation")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotForSale            = errors.New("token is not for sale")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOutsideValidityWindow = errors.New("token is outside its validity window")
	ErrReentrantCall         = errors.New("reentrant call")
)

type MarketplaceRepository interface {
	InsertToken(ctx context.Context, token domain.EnergyToken) (domain.EnergyToken, error)
	FindTokenByID(ctx context.Context, tokenID uint64) (domain.EnergyToken, error)
	FindTokensByIDs(ctx context.Context, tokenIDs []uint64) ([]domain.EnergyToken, error)
	DeleteToken(ctx context.Context, tokenID uint64) error
	UpsertSale(ctx context.Context, sale domain.TokenSale) error
	FindSaleByTokenID(ctx context.Context, tokenID uint64) (domain.TokenSale, error)
	SetForSale(ctx context.Context, tokenID uint64, forSale bool) error
	RecordEvent(ctx context.Context, event domain.LedgerEvent) error
	FindEventsByTokenID(ctx context.Context, tokenID uint64) ([]domain.LedgerEvent, error)
}

// OwnershipRegistry is the authoritative token-ownership collaborator. The
// ledger never trusts the cached owner column on the token record.
type OwnershipRegistry interface {
	Mint(ctx context.Context, tokenID uint64, ownerID uint, tokenURI string) error
	Transfer(ctx context.Context, tokenID uint64, fromID, toID uint) error
	Burn(ctx context.Context, tokenID uint64) error
	OwnerOf(ctx context.Context, tokenID uint64) (uint, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	TokensOf(ctx context.Context, ownerID uint) ([]uint64, error)
}

type RoleStore interface {
	Grant(ctx context.Context, userID uint, role domain.Role) error
	Revoke(ctx context.Context, userID uint, role domain.Role) error
	Has(ctx context.Context, userID uint, role domain.Role) (bool, error)
	AdminRoleOf(role domain.Role) domain.Role
}

// PaymentSender forwards value between accounts. A rejected transfer must
// return an error so the enclosing operation aborts.
type PaymentSender interface {
	SendValue(ctx context.Context, fromID, toID uint, amount int64) error
}

type TxManager interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// buyingKey marks a context that is already inside an in-flight purchase.
type buyingKey struct{}

// MarketplaceService is the marketplace ledger. Mutating operations serialize
// on mu, and every precondition is re-checked inside the locked transaction so
// it cannot go stale between check and mutation. The purchase path marks its
// context before running, so a nested purchase issued from within the payment
// step is rejected deterministically while unrelated concurrent purchases just
// wait their turn on the mutex.
type MarketplaceService struct {
	repo     MarketplaceRepository
	registry OwnershipRegistry
	roles    RoleStore
	payments PaymentSender
	tm       TxManager

	mu sync.Mutex

	now func() time.Time
}

func NewMarketplaceService(
	repo MarketplaceRepository,
	registry OwnershipRegistry,
	roles RoleStore,
	payments PaymentSender,
	tm TxManager,
) *MarketplaceService {
	return &MarketplaceService{
		repo:     repo,
		registry: registry,
		roles:    roles,
		payments: payments,
		tm:       tm,
		now:      time.Now,
	}
}

// CreateTokenInput carries the mint parameters. ValidFrom/ValidTo are unix
// seconds; StartTime/EndTime are seconds of day.
type CreateTokenInput struct {
	EnergyType string
	ValidFrom  int64
	ValidTo    int64
	StartTime  int
	EndTime    int
	AmountKW   int64
	TokenURI   string
}

// CreateToken mints a new energy token to the calling provider. Token IDs are
// assigned sequentially starting at 1.
func (s *MarketplaceService) CreateToken(ctx context.Context, callerID uint, input CreateTokenInput) (domain.EnergyToken, error) {
	if input.ValidFrom >= input.ValidTo {
		return domain.EnergyToken{}, fmt.Errorf("%w: validFrom must precede validTo", ErrPreconditionViolation)
	}
	if input.StartTime >= input.EndTime {
		return domain.EnergyToken{}, fmt.Errorf("%w: startTime must precede endTime", ErrPreconditionViolation)
	}
	if input.AmountKW <= 0 {
		return domain.EnergyToken{}, fmt.Errorf("%w: amount must be positive", ErrPreconditionViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created domain.EnergyToken
	err := s.tm.Transact(ctx, func(ctx context.Context) error {
		isProvider, err := s.roles.Has(ctx, callerID, domain.RoleProvider)
		if err != nil {
			return fmt.Errorf("s.roles.Has -> %w", err)
		}
		if !isProvider {
			return fmt.Errorf("%w: caller %d is not a provider", ErrUnauthorized, callerID)
		}

		created, err = s.repo.InsertToken(ctx, domain.EnergyToken{
			OwnerID:    callerID,
			EnergyType: input.EnergyType,
			ValidFrom:  input.ValidFrom,
			ValidTo:    input.ValidTo,
			StartTime:  input.StartTime,
			EndTime:    input.EndTime,
			AmountKW:   input.AmountKW,
			BalanceKW:  input.AmountKW,
		})
		if err != nil {
			return fmt.Errorf("s.repo.InsertToken -> %w", err)
		}

		if err = s.registry.Mint(ctx, created.TokenID, callerID, input.TokenURI); err != nil {
			return fmt.Errorf("s.registry.Mint -> %w", err)
		}

		if err = s.repo.UpsertSale(ctx, domain.TokenSale{TokenID: created.TokenID}); err != nil {
			return fmt.Errorf("s.repo.UpsertSale -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:    domain.EventTokenCreated,
			TokenID: created.TokenID,
			ActorID: callerID,
			Amount:  input.AmountKW,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
	if err != nil {
		return domain.EnergyToken{}, err
	}

	return created, nil
}

// ListTokenForSale puts a token on sale at the given price. A zero price is
// accepted; only ownership is checked.
func (s *MarketplaceService) ListTokenForSale(ctx context.Context, callerID uint, tokenID uint64, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		if err := s.requireOwner(ctx, callerID, tokenID); err != nil {
			return err
		}

		err := s.repo.UpsertSale(ctx, domain.TokenSale{
			TokenID:   tokenID,
			IsForSale: true,
			Price:     price,
		})
		if err != nil {
			return fmt.Errorf("s.repo.UpsertSale -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:    domain.EventTokenListed,
			TokenID: tokenID,
			ActorID: callerID,
			Amount:  price,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

// WithdrawTokenFromSale clears the listing flag. The last price stays in the
// sale record but is inert.
func (s *MarketplaceService) WithdrawTokenFromSale(ctx context.Context, callerID uint, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		if err := s.requireOwner(ctx, callerID, tokenID); err != nil {
			return err
		}

		if err := s.repo.SetForSale(ctx, tokenID, false); err != nil {
			return fmt.Errorf("s.repo.SetForSale -> %w", err)
		}

		if err := s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:    domain.EventSaleWithdrawn,
			TokenID: tokenID,
			ActorID: callerID,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

// BuyToken executes the purchase state transition: resolve the seller from
// the registry, move ownership, forward the buyer's entire payment to the
// seller, clear the listing, record the event at the listed price. The whole
// transition runs in one transaction; a failed payment rolls back the
// ownership transfer. A purchase re-entered from within the payment step
// carries the marked context and fails before touching the mutex; purchases
// arriving on their own call chains queue on the mutex like any other
// operation.
func (s *MarketplaceService) BuyToken(ctx context.Context, buyerID uint, tokenID uint64, payment int64) error {
	if ctx.Value(buyingKey{}) != nil {
		return ErrReentrantCall
	}
	ctx = context.WithValue(ctx, buyingKey{}, struct{}{})

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		sale, err := s.repo.FindSaleByTokenID(ctx, tokenID)
		if err != nil {
			if errors.Is(err, repository.ErrSaleNotFound) {
				return fmt.Errorf("%w: token %d", ErrNotForSale, tokenID)
			}

			return fmt.Errorf("s.repo.FindSaleByTokenID -> %w", err)
		}
		if !sale.IsForSale {
			return fmt.Errorf("%w: token %d", ErrNotForSale, tokenID)
		}

		if payment < sale.Price {
			return fmt.Errorf("%w: need %d, got %d", ErrInsufficientFunds, sale.Price, payment)
		}

		sellerID, err := s.registry.OwnerOf(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("s.registry.OwnerOf -> %w", err)
		}

		if err = s.registry.Transfer(ctx, tokenID, sellerID, buyerID); err != nil {
			return fmt.Errorf("s.registry.Transfer -> %w", err)
		}

		// Full attached payment goes to the seller; no change is returned.
		if err = s.payments.SendValue(ctx, buyerID, sellerID, payment); err != nil {
			return fmt.Errorf("s.payments.SendValue -> %w", err)
		}

		if err = s.repo.SetForSale(ctx, tokenID, false); err != nil {
			return fmt.Errorf("s.repo.SetForSale -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:           domain.EventTokenPurchased,
			TokenID:        tokenID,
			ActorID:        buyerID,
			CounterpartyID: sellerID,
			Amount:         sale.Price,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

// BurnToken redeems a token: the consuming owner destroys it while it is
// inside its validity window. Role, ownership and validity are all checked
// inside the locked transaction, so a token sold while the burn waited on the
// mutex is safe from its former owner. The sale record is left behind
// untouched.
func (s *MarketplaceService) BurnToken(ctx context.Context, callerID uint, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		isConsumer, err := s.roles.Has(ctx, callerID, domain.RoleConsumer)
		if err != nil {
			return fmt.Errorf("s.roles.Has -> %w", err)
		}
		if !isConsumer {
			return fmt.Errorf("%w: caller %d is not a consumer", ErrUnauthorized, callerID)
		}

		if err = s.requireOwner(ctx, callerID, tokenID); err != nil {
			return err
		}

		within, err := s.IsWithinValidPeriod(ctx, tokenID)
		if err != nil {
			return err
		}
		if !within {
			return fmt.Errorf("%w: token %d", ErrOutsideValidityWindow, tokenID)
		}

		if err = s.repo.DeleteToken(ctx, tokenID); err != nil {
			return fmt.Errorf("s.repo.DeleteToken -> %w", err)
		}

		if err = s.registry.Burn(ctx, tokenID); err != nil {
			return fmt.Errorf("s.registry.Burn -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:    domain.EventTokenBurned,
			TokenID: tokenID,
			ActorID: callerID,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

// IsWithinValidPeriod reports whether the token is currently redeemable: the
// clock must fall inside [ValidFrom, ValidTo] and the time of day inside
// [StartTime, EndTime]. A record with StartTime > EndTime never matches; the
// window does not wrap past midnight.
func (s *MarketplaceService) IsWithinValidPeriod(ctx context.Context, tokenID uint64) (bool, error) {
	token, err := s.repo.FindTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return false, ErrTokenNotFound
		}

		return false, fmt.Errorf("s.repo.FindTokenByID -> %w", err)
	}

	now := s.now().Unix()
	withinDate := token.ValidFrom <= now && now <= token.ValidTo

	timeOfDay := now % domain.SecondsPerDay
	withinTime := int64(token.StartTime) <= timeOfDay && timeOfDay <= int64(token.EndTime)

	return withinDate && withinTime, nil
}

func (s *MarketplaceService) GetToken(ctx context.Context, tokenID uint64) (domain.EnergyToken, error) {
	token, err := s.repo.FindTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return domain.EnergyToken{}, ErrTokenNotFound
		}

		return domain.EnergyToken{}, fmt.Errorf("s.repo.FindTokenByID -> %w", err)
	}

	return token, nil
}

func (s *MarketplaceService) GetTokenSale(ctx context.Context, tokenID uint64) (domain.TokenSale, error) {
	sale, err := s.repo.FindSaleByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrSaleNotFound) {
			return domain.TokenSale{}, ErrTokenNotFound
		}

		return domain.TokenSale{}, fmt.Errorf("s.repo.FindSaleByTokenID -> %w", err)
	}

	return sale, nil
}

func (s *MarketplaceService) GetOwner(ctx context.Context, tokenID uint64) (uint, error) {
	ownerID, err := s.registry.OwnerOf(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return 0, ErrTokenNotFound
		}

		return 0, fmt.Errorf("s.registry.OwnerOf -> %w", err)
	}

	return ownerID, nil
}

func (s *MarketplaceService) GetTokenURI(ctx context.Context, tokenID uint64) (string, error) {
	uri, err := s.registry.TokenURI(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", ErrTokenNotFound
		}

		return "", fmt.Errorf("s.registry.TokenURI -> %w", err)
	}

	return uri, nil
}

// ListTokensByOwner resolves ownership from the registry and loads the token
// records for it.
func (s *MarketplaceService) ListTokensByOwner(ctx context.Context, ownerID uint) ([]domain.EnergyToken, error) {
	tokenIDs, err := s.registry.TokensOf(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("s.registry.TokensOf -> %w", err)
	}
	if len(tokenIDs) == 0 {
		return []domain.EnergyToken{}, nil
	}

	tokens, err := s.repo.FindTokensByIDs(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("s.repo.FindTokensByIDs -> %w", err)
	}

	return tokens, nil
}

func (s *MarketplaceService) GetTokenEvents(ctx context.Context, tokenID uint64) ([]domain.LedgerEvent, error) {
	events, err := s.repo.FindEventsByTokenID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("s.repo.FindEventsByTokenID -> %w", err)
	}

	return events, nil
}

// GrantRole grants a role on behalf of a caller holding its administering role.
func (s *MarketplaceService) GrantRole(ctx context.Context, callerID uint, role domain.Role, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		isAdmin, err := s.roles.Has(ctx, callerID, s.roles.AdminRoleOf(role))
		if err != nil {
			return fmt.Errorf("s.roles.Has -> %w", err)
		}
		if !isAdmin {
			return fmt.Errorf("%w: caller %d cannot administer role %q", ErrUnauthorized, callerID, role)
		}

		if err = s.roles.Grant(ctx, accountID, role); err != nil {
			return fmt.Errorf("s.roles.Grant -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:           domain.EventRoleGranted,
			ActorID:        callerID,
			CounterpartyID: accountID,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

func (s *MarketplaceService) RevokeRole(ctx context.Context, callerID uint, role domain.Role, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		isAdmin, err := s.roles.Has(ctx, callerID, s.roles.AdminRoleOf(role))
		if err != nil {
			return fmt.Errorf("s.roles.Has -> %w", err)
		}
		if !isAdmin {
			return fmt.Errorf("%w: caller %d cannot administer role %q", ErrUnauthorized, callerID, role)
		}

		if err = s.roles.Revoke(ctx, accountID, role); err != nil {
			return fmt.Errorf("s.roles.Revoke -> %w", err)
		}

		if err = s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:           domain.EventRoleRevoked,
			ActorID:        callerID,
			CounterpartyID: accountID,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

// AddProvider grants the provider role; admin only.
func (s *MarketplaceService) AddProvider(ctx context.Context, callerID, accountID uint) error {
	return s.GrantRole(ctx, callerID, domain.RoleProvider, accountID)
}

// RegisterAsConsumer grants the consumer role to the caller directly. This is
// deliberate self-registration: no admin check applies.
func (s *MarketplaceService) RegisterAsConsumer(ctx context.Context, callerID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tm.Transact(ctx, func(ctx context.Context) error {
		if err := s.roles.Grant(ctx, callerID, domain.RoleConsumer); err != nil {
			return fmt.Errorf("s.roles.Grant -> %w", err)
		}

		if err := s.repo.RecordEvent(ctx, domain.LedgerEvent{
			Type:           domain.EventRoleGranted,
			ActorID:        callerID,
			CounterpartyID: callerID,
		}); err != nil {
			return fmt.Errorf("s.repo.RecordEvent -> %w", err)
		}

		return nil
	})
}

func (s *MarketplaceService) HasRole(ctx context.Context, accountID uint, role domain.Role) (bool, error) {
	return s.roles.Has(ctx, accountID, role)
}

func (s *MarketplaceService) requireOwner(ctx context.Context, callerID uint, tokenID uint64) error {
	ownerID, err := s.registry.OwnerOf(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrTokenNotFound
		}

		return fmt.Errorf("s.registry.OwnerOf -> %w", err)
	}
	if ownerID != callerID {
		return fmt.Errorf("%w: caller %d does not own token %d", ErrUnauthorized, callerID, tokenID)
	}

	return nil
}
