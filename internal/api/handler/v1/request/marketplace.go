package request

import (
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/gridwatt/wattmarket/internal/domain"
)

type CreateTokenRequest struct {
	EnergyType string `json:"energy_type"`
	ValidFrom  int64  `json:"valid_from"`
	ValidTo    int64  `json:"valid_to"`
	StartTime  int    `json:"start_time"`
	EndTime    int    `json:"end_time"`
	AmountKW   int64  `json:"amount_kw"`
	TokenURI   string `json:"token_uri"`
}

func (req *CreateTokenRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		// Free-form label, providers pick their own wording.
		validation.Field(&req.EnergyType, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.ValidFrom, validation.Min(int64(0))),
		validation.Field(&req.ValidTo, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.StartTime, validation.Min(0), validation.Max(domain.SecondsPerDay-1)),
		validation.Field(&req.EndTime, validation.Required, validation.Min(1), validation.Max(domain.SecondsPerDay-1)),
		validation.Field(&req.AmountKW, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.TokenURI, validation.Length(0, 2048)),
	)
}

// ListTokenRequest carries the asking price. Zero is a valid price, so the
// field is deliberately not required.
type ListTokenRequest struct {
	Price int64 `json:"price"`
}

func (req *ListTokenRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Price, validation.Min(int64(0))),
	)
}

type BuyTokenRequest struct {
	Payment int64 `json:"payment"`
}

func (req *BuyTokenRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Payment, validation.Min(int64(0))),
	)
}

type GrantRoleRequest struct {
	AccountID uint `json:"account_id"`
}

func (req *GrantRoleRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.AccountID, validation.Required),
	)
}

type DepositRequest struct {
	Amount int64 `json:"amount"`
}

func (req *DepositRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
	)
}
