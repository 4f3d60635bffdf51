package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/repository"
)

// fakeLedger backs every collaborator interface with in-memory maps. Its
// Transact snapshots the state before running fn and restores it when fn
// fails, matching the all-or-nothing behavior of the real transaction manager.
type fakeLedger struct {
	nextID   uint64
	tokens   map[uint64]domain.EnergyToken
	owners   map[uint64]uint
	uris     map[uint64]string
	sales    map[uint64]domain.TokenSale
	roles    map[uint]map[domain.Role]bool
	balances map[uint]int64
	events   []domain.LedgerEvent

	// sendHook, when set, replaces the default wallet transfer.
	sendHook func(ctx context.Context, fromID, toID uint, amount int64) error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		nextID:   1,
		tokens:   make(map[uint64]domain.EnergyToken),
		owners:   make(map[uint64]uint),
		uris:     make(map[uint64]string),
		sales:    make(map[uint64]domain.TokenSale),
		roles:    make(map[uint]map[domain.Role]bool),
		balances: make(map[uint]int64),
	}
}

func (l *fakeLedger) InsertToken(_ context.Context, token domain.EnergyToken) (domain.EnergyToken, error) {
	token.TokenID = l.nextID
	l.nextID++
	l.tokens[token.TokenID] = token

	return token, nil
}

func (l *fakeLedger) FindTokenByID(_ context.Context, tokenID uint64) (domain.EnergyToken, error) {
	token, ok := l.tokens[tokenID]
	if !ok {
		return domain.EnergyToken{}, repository.ErrTokenNotFound
	}

	return token, nil
}

func (l *fakeLedger) FindTokensByIDs(_ context.Context, tokenIDs []uint64) ([]domain.EnergyToken, error) {
	tokens := make([]domain.EnergyToken, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if token, ok := l.tokens[id]; ok {
			tokens = append(tokens, token)
		}
	}

	return tokens, nil
}

func (l *fakeLedger) DeleteToken(_ context.Context, tokenID uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return repository.ErrTokenNotFound
	}
	delete(l.tokens, tokenID)

	return nil
}

func (l *fakeLedger) UpsertSale(_ context.Context, sale domain.TokenSale) error {
	l.sales[sale.TokenID] = sale

	return nil
}

func (l *fakeLedger) FindSaleByTokenID(_ context.Context, tokenID uint64) (domain.TokenSale, error) {
	sale, ok := l.sales[tokenID]
	if !ok {
		return domain.TokenSale{}, repository.ErrSaleNotFound
	}

	return sale, nil
}

func (l *fakeLedger) SetForSale(_ context.Context, tokenID uint64, forSale bool) error {
	sale, ok := l.sales[tokenID]
	if !ok {
		return repository.ErrSaleNotFound
	}
	sale.IsForSale = forSale
	l.sales[tokenID] = sale

	return nil
}

func (l *fakeLedger) RecordEvent(_ context.Context, event domain.LedgerEvent) error {
	event.ID = uint64(len(l.events) + 1)
	l.events = append(l.events, event)

	return nil
}

func (l *fakeLedger) FindEventsByTokenID(_ context.Context, tokenID uint64) ([]domain.LedgerEvent, error) {
	var events []domain.LedgerEvent
	for _, event := range l.events {
		if event.TokenID == tokenID {
			events = append(events, event)
		}
	}

	return events, nil
}

func (l *fakeLedger) Mint(_ context.Context, tokenID uint64, ownerID uint, tokenURI string) error {
	l.owners[tokenID] = ownerID
	l.uris[tokenID] = tokenURI

	return nil
}

func (l *fakeLedger) Transfer(_ context.Context, tokenID uint64, fromID, toID uint) error {
	ownerID, ok := l.owners[tokenID]
	if !ok {
		return repository.ErrTokenNotFound
	}
	if ownerID != fromID {
		return repository.ErrTokenWrongOwner
	}
	l.owners[tokenID] = toID

	return nil
}

func (l *fakeLedger) Burn(_ context.Context, tokenID uint64) error {
	if _, ok := l.owners[tokenID]; !ok {
		return repository.ErrTokenNotFound
	}
	delete(l.owners, tokenID)
	delete(l.uris, tokenID)

	return nil
}

func (l *fakeLedger) OwnerOf(_ context.Context, tokenID uint64) (uint, error) {
	ownerID, ok := l.owners[tokenID]
	if !ok {
		return 0, repository.ErrTokenNotFound
	}

	return ownerID, nil
}

func (l *fakeLedger) TokenURI(_ context.Context, tokenID uint64) (string, error) {
	uri, ok := l.uris[tokenID]
	if !ok {
		return "", repository.ErrTokenNotFound
	}

	return uri, nil
}

func (l *fakeLedger) TokensOf(_ context.Context, ownerID uint) ([]uint64, error) {
	var tokenIDs []uint64
	for tokenID, owner := range l.owners {
		if owner == ownerID {
			tokenIDs = append(tokenIDs, tokenID)
		}
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })

	return tokenIDs, nil
}

func (l *fakeLedger) Grant(_ context.Context, userID uint, role domain.Role) error {
	if l.roles[userID] == nil {
		l.roles[userID] = make(map[domain.Role]bool)
	}
	l.roles[userID][role] = true

	return nil
}

func (l *fakeLedger) Revoke(_ context.Context, userID uint, role domain.Role) error {
	if !l.roles[userID][role] {
		return repository.ErrRoleNotHeld
	}
	delete(l.roles[userID], role)

	return nil
}

func (l *fakeLedger) Has(_ context.Context, userID uint, role domain.Role) (bool, error) {
	return l.roles[userID][role], nil
}

func (l *fakeLedger) AdminRoleOf(_ domain.Role) domain.Role {
	return domain.RoleAdmin
}

func (l *fakeLedger) SendValue(ctx context.Context, fromID, toID uint, amount int64) error {
	if l.sendHook != nil {
		return l.sendHook(ctx, fromID, toID, amount)
	}
	if fromID == toID {
		return repository.ErrPaymentSelfTransfer
	}
	if l.balances[fromID] < amount {
		return repository.ErrInsufficientBalance
	}
	l.balances[fromID] -= amount
	l.balances[toID] += amount

	return nil
}

func (l *fakeLedger) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := l.snapshot()
	if err := fn(ctx); err != nil {
		l.restore(snapshot)

		return err
	}

	return nil
}

func (l *fakeLedger) snapshot() *fakeLedger {
	s := newFakeLedger()
	s.nextID = l.nextID
	for k, v := range l.tokens {
		s.tokens[k] = v
	}
	for k, v := range l.owners {
		s.owners[k] = v
	}
	for k, v := range l.uris {
		s.uris[k] = v
	}
	for k, v := range l.sales {
		s.sales[k] = v
	}
	for userID, roles := range l.roles {
		s.roles[userID] = make(map[domain.Role]bool, len(roles))
		for role, held := range roles {
			s.roles[userID][role] = held
		}
	}
	for k, v := range l.balances {
		s.balances[k] = v
	}
	s.events = append(s.events, l.events...)

	return s
}

func (l *fakeLedger) restore(s *fakeLedger) {
	l.nextID = s.nextID
	l.tokens = s.tokens
	l.owners = s.owners
	l.uris = s.uris
	l.sales = s.sales
	l.roles = s.roles
	l.balances = s.balances
	l.events = s.events
}

const (
	providerID uint = 1
	consumerID uint = 2
	adminID    uint = 9
)

func newTestService(t *testing.T) (*MarketplaceService, *fakeLedger) {
	t.Helper()

	ledger := newFakeLedger()
	svc := NewMarketplaceService(ledger, ledger, ledger, ledger, ledger)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	ctx := context.Background()
	require.NoError(t, ledger.Grant(ctx, adminID, domain.RoleAdmin))
	require.NoError(t, ledger.Grant(ctx, providerID, domain.RoleProvider))
	require.NoError(t, ledger.Grant(ctx, consumerID, domain.RoleConsumer))

	return svc, ledger
}

func openInput() CreateTokenInput {
	return CreateTokenInput{
		EnergyType: "solar",
		ValidFrom:  0,
		ValidTo:    1_000_000_000_000,
		StartTime:  0,
		EndTime:    domain.SecondsPerDay - 1,
		AmountKW:   100,
		TokenURI:   "https://tokens.gridwatt.io/solar/1",
	}
}

func TestCreateToken_AssignsSequentialIDs(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		created, err := svc.CreateToken(ctx, providerID, openInput())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), created.TokenID)
	}

	ownerID, err := svc.GetOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, providerID, ownerID)

	input := openInput()
	token, err := svc.GetToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, providerID, token.OwnerID)
	assert.Equal(t, input.EnergyType, token.EnergyType)
	assert.Equal(t, input.ValidFrom, token.ValidFrom)
	assert.Equal(t, input.ValidTo, token.ValidTo)
	assert.Equal(t, input.StartTime, token.StartTime)
	assert.Equal(t, input.EndTime, token.EndTime)
	assert.Equal(t, input.AmountKW, token.AmountKW)
	assert.Equal(t, input.AmountKW, token.BalanceKW)

	uri, err := svc.GetTokenURI(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, input.TokenURI, uri)

	sale, err := svc.GetTokenSale(ctx, 1)
	require.NoError(t, err)
	assert.False(t, sale.IsForSale)

	assert.Len(t, ledger.events, 3)
	assert.Equal(t, domain.EventTokenCreated, ledger.events[0].Type)
}

func TestCreateToken_RequiresProviderRole(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateToken(context.Background(), consumerID, openInput())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateToken_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateTokenInput)
	}{
		{"validFrom equals validTo", func(in *CreateTokenInput) { in.ValidFrom, in.ValidTo = 500, 500 }},
		{"validFrom after validTo", func(in *CreateTokenInput) { in.ValidFrom, in.ValidTo = 900, 100 }},
		{"startTime equals endTime", func(in *CreateTokenInput) { in.StartTime, in.EndTime = 3600, 3600 }},
		{"startTime after endTime", func(in *CreateTokenInput) { in.StartTime, in.EndTime = 7200, 3600 }},
		{"zero amount", func(in *CreateTokenInput) { in.AmountKW = 0 }},
		{"negative amount", func(in *CreateTokenInput) { in.AmountKW = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ledger := newTestService(t)

			input := openInput()
			tt.mutate(&input)

			_, err := svc.CreateToken(context.Background(), providerID, input)
			assert.ErrorIs(t, err, ErrPreconditionViolation)
			assert.Empty(t, ledger.tokens)
		})
	}
}

func TestListTokenForSale(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.True(t, sale.IsForSale)
	assert.Equal(t, int64(1000), sale.Price)
}

func TestListTokenForSale_ZeroPriceAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 0))

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.True(t, sale.IsForSale)
	assert.Zero(t, sale.Price)
}

func TestListTokenForSale_NotOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	err = svc.ListTokenForSale(ctx, consumerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListTokenForSale_UnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.ListTokenForSale(context.Background(), providerID, 42, 1000)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestWithdrawTokenFromSale_KeepsLastPrice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 500))

	require.NoError(t, svc.WithdrawTokenFromSale(ctx, providerID, created.TokenID))

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.False(t, sale.IsForSale)
	assert.Equal(t, int64(500), sale.Price)
}

func TestBuyToken_Success(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000

	// Overpayment is forwarded to the seller in full.
	require.NoError(t, svc.BuyToken(ctx, consumerID, created.TokenID, 1200))

	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, consumerID, ownerID)

	assert.Equal(t, int64(3800), ledger.balances[consumerID])
	assert.Equal(t, int64(1200), ledger.balances[providerID])

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.False(t, sale.IsForSale)

	// The token record still carries the minter as its owner column; the
	// registry is the source of truth.
	token, err := svc.GetToken(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, providerID, token.OwnerID)

	last := ledger.events[len(ledger.events)-1]
	assert.Equal(t, domain.EventTokenPurchased, last.Type)
	assert.Equal(t, consumerID, last.ActorID)
	assert.Equal(t, providerID, last.CounterpartyID)
	assert.Equal(t, int64(1000), last.Amount, "purchase event records the listed price, not the payment")
}

func TestBuyToken_NotForSale(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	ledger.balances[consumerID] = 5000

	err = svc.BuyToken(ctx, consumerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, ErrNotForSale)

	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))
	require.NoError(t, svc.WithdrawTokenFromSale(ctx, providerID, created.TokenID))

	err = svc.BuyToken(ctx, consumerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, ErrNotForSale)
}

func TestBuyToken_PaymentBelowPrice(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000

	err = svc.BuyToken(ctx, consumerID, created.TokenID, 999)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, providerID, ownerID)
}

func TestBuyToken_WalletShortfallRollsBack(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 100

	err = svc.BuyToken(ctx, consumerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	// The ownership transfer that ran before the payment was rolled back.
	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, providerID, ownerID)

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.True(t, sale.IsForSale)
	assert.Equal(t, int64(100), ledger.balances[consumerID])
}

func TestBuyToken_ReentrantPaymentRejected(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000

	// A payment callback that tries to buy again mid-purchase.
	ledger.sendHook = func(ctx context.Context, fromID, toID uint, amount int64) error {
		return svc.BuyToken(ctx, fromID, created.TokenID, amount)
	}

	err = svc.BuyToken(ctx, consumerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, ErrReentrantCall)

	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, providerID, ownerID)

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.True(t, sale.IsForSale)
	assert.Equal(t, int64(5000), ledger.balances[consumerID])

	// The guard is scoped to the call chain, so a later purchase on a fresh
	// context goes through.
	ledger.sendHook = nil
	require.NoError(t, svc.BuyToken(ctx, consumerID, created.TokenID, 1000))
}

func TestBuyToken_IndependentPurchaseDuringPayment(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	second, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, first.TokenID, 1000))
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, second.TokenID, 800))

	otherBuyerID := uint(3)
	ledger.balances[consumerID] = 5000
	ledger.balances[otherBuyerID] = 5000

	// While the first purchase is paying out, another buyer starts a purchase
	// of a different token on its own call chain. It must queue behind the
	// in-flight purchase and then succeed, not be rejected as reentrant.
	otherResult := make(chan error, 1)
	ledger.sendHook = func(ctx context.Context, fromID, toID uint, amount int64) error {
		ledger.sendHook = nil
		go func() {
			otherResult <- svc.BuyToken(context.Background(), otherBuyerID, second.TokenID, 800)
		}()
		ledger.balances[fromID] -= amount
		ledger.balances[toID] += amount

		return nil
	}

	require.NoError(t, svc.BuyToken(ctx, consumerID, first.TokenID, 1000))
	require.NoError(t, <-otherResult)

	firstOwner, err := svc.GetOwner(ctx, first.TokenID)
	require.NoError(t, err)
	assert.Equal(t, consumerID, firstOwner)

	secondOwner, err := svc.GetOwner(ctx, second.TokenID)
	require.NoError(t, err)
	assert.Equal(t, otherBuyerID, secondOwner)

	sale, err := svc.GetTokenSale(ctx, second.TokenID)
	require.NoError(t, err)
	assert.False(t, sale.IsForSale)
}

func TestBuyToken_SelfPurchaseRejected(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[providerID] = 5000

	err = svc.BuyToken(ctx, providerID, created.TokenID, 1000)
	assert.ErrorIs(t, err, ErrPaymentSelfTransfer)

	// The aborted payment rolled the whole purchase back.
	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, providerID, ownerID)

	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.True(t, sale.IsForSale)
	assert.Equal(t, int64(5000), ledger.balances[providerID])
}

func TestIsWithinValidPeriod(t *testing.T) {
	// 2023-11-14T22:13:20Z, 80_000 seconds into the day.
	now := int64(1_700_000_000)
	timeOfDay := int(now % domain.SecondsPerDay)

	tests := []struct {
		name   string
		mutate func(*CreateTokenInput)
		want   bool
	}{
		{"inside both windows", func(in *CreateTokenInput) {}, true},
		{"now equals validFrom", func(in *CreateTokenInput) { in.ValidFrom = now }, true},
		{"now equals validTo", func(in *CreateTokenInput) { in.ValidTo = now }, true},
		{"before validFrom", func(in *CreateTokenInput) { in.ValidFrom = now + 1 }, false},
		{"after validTo", func(in *CreateTokenInput) { in.ValidFrom, in.ValidTo = 1, now - 1 }, false},
		{"time of day at startTime", func(in *CreateTokenInput) { in.StartTime = timeOfDay }, true},
		{"time of day at endTime", func(in *CreateTokenInput) { in.EndTime = timeOfDay }, true},
		{"before startTime", func(in *CreateTokenInput) { in.StartTime = timeOfDay + 1 }, false},
		{"after endTime", func(in *CreateTokenInput) { in.StartTime, in.EndTime = 0, timeOfDay - 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()

			input := openInput()
			tt.mutate(&input)

			created, err := svc.CreateToken(ctx, providerID, input)
			require.NoError(t, err)

			got, err := svc.IsWithinValidPeriod(ctx, created.TokenID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsWithinValidPeriod_InvertedDailyWindowNeverMatches(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	// A record with startTime after endTime cannot be minted, but one written
	// directly must read as never redeemable rather than wrapping midnight.
	ledger.tokens[7] = domain.EnergyToken{
		TokenID:   7,
		ValidFrom: 0,
		ValidTo:   2_000_000_000,
		StartTime: 80_000,
		EndTime:   100,
	}

	got, err := svc.IsWithinValidPeriod(ctx, 7)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsWithinValidPeriod_UnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.IsWithinValidPeriod(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestBurnToken(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000
	require.NoError(t, svc.BuyToken(ctx, consumerID, created.TokenID, 1000))

	require.NoError(t, svc.BurnToken(ctx, consumerID, created.TokenID))

	_, err = svc.GetToken(ctx, created.TokenID)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = svc.GetOwner(ctx, created.TokenID)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// The sale record survives the burn.
	sale, err := svc.GetTokenSale(ctx, created.TokenID)
	require.NoError(t, err)
	assert.False(t, sale.IsForSale)
	assert.Equal(t, int64(1000), sale.Price)

	last := ledger.events[len(ledger.events)-1]
	assert.Equal(t, domain.EventTokenBurned, last.Type)
}

func TestBurnToken_RequiresConsumerRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	err = svc.BurnToken(ctx, providerID, created.TokenID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBurnToken_RequiresOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)

	err = svc.BurnToken(ctx, consumerID, created.TokenID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBurnToken_DeniedAfterConcurrentSale(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	require.NoError(t, ledger.Grant(ctx, providerID, domain.RoleConsumer))

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000

	// The seller tries to burn the token while its sale is in flight. The
	// burn queues behind the purchase, and by the time it runs the ownership
	// check inside the transaction the token belongs to the buyer.
	burnResult := make(chan error, 1)
	ledger.sendHook = func(ctx context.Context, fromID, toID uint, amount int64) error {
		ledger.sendHook = nil
		go func() {
			burnResult <- svc.BurnToken(context.Background(), providerID, created.TokenID)
		}()
		ledger.balances[fromID] -= amount
		ledger.balances[toID] += amount

		return nil
	}

	require.NoError(t, svc.BuyToken(ctx, consumerID, created.TokenID, 1000))
	assert.ErrorIs(t, <-burnResult, ErrUnauthorized)

	// The new owner's token survived.
	ownerID, err := svc.GetOwner(ctx, created.TokenID)
	require.NoError(t, err)
	assert.Equal(t, consumerID, ownerID)

	_, err = svc.GetToken(ctx, created.TokenID)
	require.NoError(t, err)
}

func TestBurnToken_OutsideValidityWindow(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	input := openInput()
	input.ValidFrom = 1_700_000_100
	input.ValidTo = 1_800_000_000

	created, err := svc.CreateToken(ctx, providerID, input)
	require.NoError(t, err)
	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))

	ledger.balances[consumerID] = 5000
	require.NoError(t, svc.BuyToken(ctx, consumerID, created.TokenID, 1000))

	err = svc.BurnToken(ctx, consumerID, created.TokenID)
	assert.ErrorIs(t, err, ErrOutsideValidityWindow)

	_, err = svc.GetToken(ctx, created.TokenID)
	assert.NoError(t, err)
}

func TestGrantRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var accountID uint = 5

	require.NoError(t, svc.GrantRole(ctx, adminID, domain.RoleProvider, accountID))

	held, err := svc.HasRole(ctx, accountID, domain.RoleProvider)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestGrantRole_RequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.GrantRole(context.Background(), providerID, domain.RoleProvider, 5)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRevokeRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RevokeRole(ctx, adminID, domain.RoleProvider, providerID))

	held, err := svc.HasRole(ctx, providerID, domain.RoleProvider)
	require.NoError(t, err)
	assert.False(t, held)

	_, err = svc.CreateToken(ctx, providerID, openInput())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegisterAsConsumer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var accountID uint = 5

	require.NoError(t, svc.RegisterAsConsumer(ctx, accountID))

	held, err := svc.HasRole(ctx, accountID, domain.RoleConsumer)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestListTokensByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateToken(ctx, providerID, openInput())
		require.NoError(t, err)
	}

	tokens, err := svc.ListTokensByOwner(ctx, providerID)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, uint64(1), tokens[0].TokenID)

	tokens, err = svc.ListTokensByOwner(ctx, consumerID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

// TestMarketplaceLifecycle walks the full provider-to-consumer flow on one
// token: mint, list, buy, redeem.
func TestMarketplaceLifecycle(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	var buyerID uint = 5
	ledger.balances[buyerID] = 10_000

	created, err := svc.CreateToken(ctx, providerID, openInput())
	require.NoError(t, err)
	require.Equal(t, uint64(1), created.TokenID)

	require.NoError(t, svc.ListTokenForSale(ctx, providerID, created.TokenID, 1000))
	require.NoError(t, svc.RegisterAsConsumer(ctx, buyerID))
	require.NoError(t, svc.BuyToken(ctx, buyerID, created.TokenID, 1000))

	within, err := svc.IsWithinValidPeriod(ctx, created.TokenID)
	require.NoError(t, err)
	require.True(t, within)

	require.NoError(t, svc.BurnToken(ctx, buyerID, created.TokenID))

	assert.Equal(t, int64(9000), ledger.balances[buyerID])
	assert.Equal(t, int64(1000), ledger.balances[providerID])

	events, err := svc.GetTokenEvents(ctx, created.TokenID)
	require.NoError(t, err)
	types := make([]domain.LedgerEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	assert.Equal(t, []domain.LedgerEventType{
		domain.EventTokenCreated,
		domain.EventTokenListed,
		domain.EventTokenPurchased,
		domain.EventTokenBurned,
	}, types)
}
