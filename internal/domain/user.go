package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleConsumer Role = "consumer"
)

type User struct {
	ID            uint      `json:"id"`
	Email         string    `json:"email"`
	Password      string    `json:"-"`
	Name          string    `json:"name"`
	WalletBalance int64     `json:"wallet_balance"`
	Roles         []Role    `json:"roles,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
