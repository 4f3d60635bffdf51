package domain

import "time"

type LedgerEventType string

const (
	EventTokenCreated   LedgerEventType = "TokenCreated"
	EventTokenListed    LedgerEventType = "TokenListed"
	EventSaleWithdrawn  LedgerEventType = "SaleWithdrawn"
	EventTokenPurchased LedgerEventType = "TokenPurchased"
	EventTokenBurned    LedgerEventType = "TokenBurned"
	EventRoleGranted    LedgerEventType = "RoleGranted"
	EventRoleRevoked    LedgerEventType = "RoleRevoked"
)

// LedgerEvent is the audit record written alongside every successful mutating
// ledger operation. For purchases, Amount is the listed price, not the amount
// the buyer actually attached.
type LedgerEvent struct {
	ID             uint64          `json:"id"`
	Type           LedgerEventType `json:"type"`
	TokenID        uint64          `json:"token_id,omitempty"`
	ActorID        uint            `json:"actor_id"`
	CounterpartyID uint            `json:"counterparty_id,omitempty"`
	Amount         int64           `json:"amount,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
