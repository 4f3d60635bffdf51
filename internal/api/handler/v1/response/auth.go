package response

import "github.com/gridwatt/wattmarket/internal/domain"

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}
