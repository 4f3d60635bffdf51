package response

import "github.com/gridwatt/wattmarket/internal/domain"

// TokenResponse joins the token record with its registry owner and listing
// state.
type TokenResponse struct {
	Token    domain.EnergyToken `json:"token"`
	OwnerID  uint               `json:"owner_id"`
	TokenURI string             `json:"token_uri"`
	Sale     domain.TokenSale   `json:"sale"`
}

type ValidityResponse struct {
	TokenID       uint64 `json:"token_id"`
	WithinPeriod  bool   `json:"within_valid_period"`
	CheckedAtUnix int64  `json:"checked_at"`
}

type WalletResponse struct {
	UserID  uint  `json:"user_id"`
	Balance int64 `json:"balance"`
}
