package domain

import "time"

// SecondsPerDay bounds the daily usage window of a token.
const SecondsPerDay = 86400

// EnergyToken is one minted block of energy. OwnerID records the minting
// provider and is not rewritten when the token changes hands; the
// authoritative owner lives in TokenOwnership.
type EnergyToken struct {
	TokenID    uint64    `json:"token_id"`
	OwnerID    uint      `json:"owner_id"`
	EnergyType string    `json:"energy_type"`
	ValidFrom  int64     `json:"valid_from"`
	ValidTo    int64     `json:"valid_to"`
	StartTime  int       `json:"start_time"`
	EndTime    int       `json:"end_time"`
	AmountKW   int64     `json:"amount_in_kw"`
	BalanceKW  int64     `json:"balance_in_kw"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TokenOwnership is the registry entry holding the current owner and the
// metadata URI of a token.
type TokenOwnership struct {
	TokenID  uint64 `json:"token_id"`
	OwnerID  uint   `json:"owner_id"`
	TokenURI string `json:"token_uri"`
}

// TokenSale is the sale listing attached to a token. The price stays in place
// after a withdrawal; only IsForSale decides whether the token can be bought.
type TokenSale struct {
	TokenID   uint64 `json:"token_id"`
	IsForSale bool   `json:"is_for_sale"`
	Price     int64  `json:"price"`
}
