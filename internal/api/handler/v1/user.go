package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridwatt/wattmarket/internal/api/handler/v1/request"
	"github.com/gridwatt/wattmarket/internal/api/handler/v1/response"
	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/service"
)

type UserService interface {
	GetUser(ctx context.Context, id uint) (domain.User, error)
	Deposit(ctx context.Context, userID uint, amount int64) error
}

type UserHandler struct {
	svc UserService
}

func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{
		svc: svc,
	}
}

// HandleGetUser godoc
// @Summary      Get a user by ID
// @Tags         users
// @Produce      json
// @Param        userID   path       int  true "user ID"
// @Success      200      {object}   domain.User
// @Failure      400      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /users/{userID} [get]
func (h *UserHandler) HandleGetUser(ctx *gin.Context) {
	userID, err := parseUserID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errors.New("invalid user ID")))

		return
	}

	user, err := h.svc.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.RenderErr(ctx, response.ErrNotFound(service.ErrUserNotFound))

			return
		}

		err = fmt.Errorf("v1.HandleGetUser -> h.svc.GetUser -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))

		return
	}

	ctx.JSON(http.StatusOK, user)
}

// HandleGetWallet godoc
// @Summary      Get the caller's wallet balance
// @Tags         users
// @Produce      json
// @Success      200      {object}   response.WalletResponse
// @Failure      401      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /wallet [get]
func (h *UserHandler) HandleGetWallet(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	user, err := h.svc.GetUser(ctx.Request.Context(), callerID)
	if err != nil {
		err = fmt.Errorf("v1.HandleGetWallet -> h.svc.GetUser -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))

		return
	}

	ctx.JSON(http.StatusOK, response.WalletResponse{
		UserID:  user.ID,
		Balance: user.WalletBalance,
	})
}

// HandleDeposit godoc
// @Summary      Credit the caller's wallet
// @Tags         users
// @Produce      json
// @Param        request  body       request.DepositRequest true "request body"
// @Success      200      {object}   response.WalletResponse
// @Failure      400      {object}   response.Err
// @Failure      401      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /wallet/deposit [post]
func (h *UserHandler) HandleDeposit(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	var req request.DepositRequest
	if err = ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = h.svc.Deposit(ctx.Request.Context(), callerID, req.Amount); err != nil {
		if errors.Is(err, service.ErrPreconditionViolation) {
			response.RenderErr(ctx, response.ErrBadRequest(err))

			return
		}

		err = fmt.Errorf("v1.HandleDeposit -> h.svc.Deposit -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))

		return
	}

	user, err := h.svc.GetUser(ctx.Request.Context(), callerID)
	if err != nil {
		err = fmt.Errorf("v1.HandleDeposit -> h.svc.GetUser -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))

		return
	}

	ctx.JSON(http.StatusOK, response.WalletResponse{
		UserID:  user.ID,
		Balance: user.WalletBalance,
	})
}
