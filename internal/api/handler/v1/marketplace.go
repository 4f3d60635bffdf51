package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridwatt/wattmarket/internal/api/handler/v1/request"
	"github.com/gridwatt/wattmarket/internal/api/handler/v1/response"
	"github.com/gridwatt/wattmarket/internal/domain"
	"github.com/gridwatt/wattmarket/internal/service"
)

type MarketplaceService interface {
	CreateToken(ctx context.Context, callerID uint, input service.CreateTokenInput) (domain.EnergyToken, error)
	ListTokenForSale(ctx context.Context, callerID uint, tokenID uint64, price int64) error
	WithdrawTokenFromSale(ctx context.Context, callerID uint, tokenID uint64) error
	BuyToken(ctx context.Context, buyerID uint, tokenID uint64, payment int64) error
	BurnToken(ctx context.Context, callerID uint, tokenID uint64) error
	IsWithinValidPeriod(ctx context.Context, tokenID uint64) (bool, error)
	GetToken(ctx context.Context, tokenID uint64) (domain.EnergyToken, error)
	GetTokenSale(ctx context.Context, tokenID uint64) (domain.TokenSale, error)
	GetOwner(ctx context.Context, tokenID uint64) (uint, error)
	GetTokenURI(ctx context.Context, tokenID uint64) (string, error)
	ListTokensByOwner(ctx context.Context, ownerID uint) ([]domain.EnergyToken, error)
	GetTokenEvents(ctx context.Context, tokenID uint64) ([]domain.LedgerEvent, error)
	AddProvider(ctx context.Context, callerID, accountID uint) error
	RevokeRole(ctx context.Context, callerID uint, role domain.Role, accountID uint) error
	RegisterAsConsumer(ctx context.Context, callerID uint) error
}

type MarketplaceHandler struct {
	svc MarketplaceService
}

func NewMarketplaceHandler(svc MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{
		svc: svc,
	}
}

var errInvalidTokenID = errors.New("invalid token ID")

func renderMarketplaceErr(ctx *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		response.RenderErr(ctx, response.ErrNotFound(service.ErrTokenNotFound))
	case errors.Is(err, service.ErrUnauthorized):
		response.RenderErr(ctx, response.ErrPermissionDenied(err))
	case errors.Is(err, service.ErrPreconditionViolation):
		response.RenderErr(ctx, response.ErrBadRequest(err))
	case errors.Is(err, service.ErrNotForSale),
		errors.Is(err, service.ErrOutsideValidityWindow),
		errors.Is(err, service.ErrReentrantCall),
		errors.Is(err, service.ErrRoleNotHeld),
		errors.Is(err, service.ErrPaymentSelfTransfer):
		response.RenderErr(ctx, response.ErrConflict(err))
	case errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInsufficientBalance):
		response.RenderErr(ctx, response.ErrUnprocessableEntity(err))
	default:
		response.RenderErr(ctx, response.ErrInternalServerError(fmt.Errorf("%v -> %w", op, err)))
	}
}

// HandleCreateToken godoc
// @Summary      Mint a new energy token
// @Tags         tokens
// @Produce      json
// @Param        request  body       request.CreateTokenRequest true "request body"
// @Success      201      {object}   domain.EnergyToken
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens [post]
func (h *MarketplaceHandler) HandleCreateToken(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	var req request.CreateTokenRequest
	if err = ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	created, err := h.svc.CreateToken(ctx.Request.Context(), callerID, service.CreateTokenInput{
		EnergyType: req.EnergyType,
		ValidFrom:  req.ValidFrom,
		ValidTo:    req.ValidTo,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		AmountKW:   req.AmountKW,
		TokenURI:   req.TokenURI,
	})
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleCreateToken -> h.svc.CreateToken", err)

		return
	}

	ctx.JSON(http.StatusCreated, created)
}

// HandleGetToken godoc
// @Summary      Get a token with its owner and listing state
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Success      200      {object}   response.TokenResponse
// @Failure      400      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID} [get]
func (h *MarketplaceHandler) HandleGetToken(ctx *gin.Context) {
	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	token, err := h.svc.GetToken(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetToken -> h.svc.GetToken", err)

		return
	}

	ownerID, err := h.svc.GetOwner(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetToken -> h.svc.GetOwner", err)

		return
	}

	tokenURI, err := h.svc.GetTokenURI(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetToken -> h.svc.GetTokenURI", err)

		return
	}

	sale, err := h.svc.GetTokenSale(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetToken -> h.svc.GetTokenSale", err)

		return
	}

	ctx.JSON(http.StatusOK, response.TokenResponse{
		Token:    token,
		OwnerID:  ownerID,
		TokenURI: tokenURI,
		Sale:     sale,
	})
}

// HandleGetTokenValidity godoc
// @Summary      Check whether a token is inside its validity window
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Success      200      {object}   response.ValidityResponse
// @Failure      400      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/validity [get]
func (h *MarketplaceHandler) HandleGetTokenValidity(ctx *gin.Context) {
	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	within, err := h.svc.IsWithinValidPeriod(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetTokenValidity -> h.svc.IsWithinValidPeriod", err)

		return
	}

	ctx.JSON(http.StatusOK, response.ValidityResponse{
		TokenID:       tokenID,
		WithinPeriod:  within,
		CheckedAtUnix: time.Now().Unix(),
	})
}

// HandleListToken godoc
// @Summary      Put a token up for sale
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Param        request  body       request.ListTokenRequest true "request body"
// @Success      200      {object}   domain.TokenSale
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/list [post]
func (h *MarketplaceHandler) HandleListToken(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	var req request.ListTokenRequest
	if err = ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = h.svc.ListTokenForSale(ctx.Request.Context(), callerID, tokenID, req.Price); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleListToken -> h.svc.ListTokenForSale", err)

		return
	}

	sale, err := h.svc.GetTokenSale(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleListToken -> h.svc.GetTokenSale", err)

		return
	}

	ctx.JSON(http.StatusOK, sale)
}

// HandleWithdrawToken godoc
// @Summary      Withdraw a token from sale
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Success      200      {object}   domain.TokenSale
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/withdraw [post]
func (h *MarketplaceHandler) HandleWithdrawToken(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	if err = h.svc.WithdrawTokenFromSale(ctx.Request.Context(), callerID, tokenID); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleWithdrawToken -> h.svc.WithdrawTokenFromSale", err)

		return
	}

	sale, err := h.svc.GetTokenSale(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleWithdrawToken -> h.svc.GetTokenSale", err)

		return
	}

	ctx.JSON(http.StatusOK, sale)
}

// HandleBuyToken godoc
// @Summary      Buy a listed token
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Param        request  body       request.BuyTokenRequest true "request body"
// @Success      200      {object}   response.TokenResponse
// @Failure      400      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      409      {object}   response.Err
// @Failure      422      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/buy [post]
func (h *MarketplaceHandler) HandleBuyToken(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	var req request.BuyTokenRequest
	if err = ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = h.svc.BuyToken(ctx.Request.Context(), callerID, tokenID, req.Payment); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleBuyToken -> h.svc.BuyToken", err)

		return
	}

	h.HandleGetToken(ctx)
}

// HandleBurnToken godoc
// @Summary      Burn (redeem) a token
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Success      204
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      404      {object}   response.Err
// @Failure      409      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/burn [post]
func (h *MarketplaceHandler) HandleBurnToken(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	if err = h.svc.BurnToken(ctx.Request.Context(), callerID, tokenID); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleBurnToken -> h.svc.BurnToken", err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleGetTokenEvents godoc
// @Summary      Get the audit trail of a token
// @Tags         tokens
// @Produce      json
// @Param        tokenID  path       int  true "token ID"
// @Success      200      {array}    domain.LedgerEvent
// @Failure      400      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /tokens/{tokenID}/events [get]
func (h *MarketplaceHandler) HandleGetTokenEvents(ctx *gin.Context) {
	tokenID, err := parseTokenID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidTokenID))

		return
	}

	events, err := h.svc.GetTokenEvents(ctx.Request.Context(), tokenID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetTokenEvents -> h.svc.GetTokenEvents", err)

		return
	}

	ctx.JSON(http.StatusOK, events)
}

// HandleGetUserTokens godoc
// @Summary      List tokens owned by a user
// @Tags         users
// @Produce      json
// @Param        userID   path       int  true "user ID"
// @Success      200      {array}    domain.EnergyToken
// @Failure      400      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /users/{userID}/tokens [get]
func (h *MarketplaceHandler) HandleGetUserTokens(ctx *gin.Context) {
	userID, err := parseUserID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errors.New("invalid user ID")))

		return
	}

	tokens, err := h.svc.ListTokensByOwner(ctx.Request.Context(), userID)
	if err != nil {
		renderMarketplaceErr(ctx, "v1.HandleGetUserTokens -> h.svc.ListTokensByOwner", err)

		return
	}

	ctx.JSON(http.StatusOK, tokens)
}

// HandleAddProvider godoc
// @Summary      Grant the provider role to an account
// @Tags         roles
// @Produce      json
// @Param        request  body       request.GrantRoleRequest true "request body"
// @Success      204
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /roles/providers [post]
func (h *MarketplaceHandler) HandleAddProvider(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	var req request.GrantRoleRequest
	if err = ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))

		return
	}

	if err = h.svc.AddProvider(ctx.Request.Context(), callerID, req.AccountID); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleAddProvider -> h.svc.AddProvider", err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleRevokeProvider godoc
// @Summary      Revoke the provider role from an account
// @Tags         roles
// @Produce      json
// @Param        userID   path       int  true "user ID"
// @Success      204
// @Failure      400      {object}   response.Err
// @Failure      403      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /roles/providers/{userID} [delete]
func (h *MarketplaceHandler) HandleRevokeProvider(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	accountID, err := parseUserID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errors.New("invalid user ID")))

		return
	}

	if err = h.svc.RevokeRole(ctx.Request.Context(), callerID, domain.RoleProvider, accountID); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleRevokeProvider -> h.svc.RevokeRole", err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleRegisterConsumer godoc
// @Summary      Register the caller as a consumer
// @Tags         roles
// @Produce      json
// @Success      204
// @Failure      401      {object}   response.Err
// @Failure      500      {object}   response.Err
// @Security     BearerAuth
// @Router       /roles/consumers/register [post]
func (h *MarketplaceHandler) HandleRegisterConsumer(ctx *gin.Context) {
	callerID, err := getCallerID(ctx)
	if err != nil {
		response.RenderErr(ctx, response.ErrWrongCredentials(err))

		return
	}

	if err = h.svc.RegisterAsConsumer(ctx.Request.Context(), callerID); err != nil {
		renderMarketplaceErr(ctx, "v1.HandleRegisterConsumer -> h.svc.RegisterAsConsumer", err)

		return
	}

	ctx.Status(http.StatusNoContent)
}
