package v1

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gridwatt/wattmarket/internal/api/middleware"
)

var errMissingCaller = errors.New("no authenticated user in request context")

func getCallerID(ctx *gin.Context) (uint, error) {
	value, exists := ctx.Get(middleware.ContextKeyUserID)
	if !exists {
		return 0, errMissingCaller
	}

	callerID, ok := value.(uint)
	if !ok {
		return 0, errMissingCaller
	}

	return callerID, nil
}

func parseTokenID(ctx *gin.Context) (uint64, error) {
	return strconv.ParseUint(ctx.Param("tokenID"), 10, 64)
}

func parseUserID(ctx *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("userID"), 10, 32)
	if err != nil {
		return 0, err
	}

	return uint(id), nil
}
