package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var domainErrorMappings = []errorMapping{
	{target: wallet.ErrInvalidAmount, status: http.StatusBadRequest, code: "invalid_amount"},
	{target: wallet.ErrInvalidUserID, status: http.StatusBadRequest, code: "invalid_user_id"},
	{target: wallet.ErrInvalidRequestID, status: http.StatusBadRequest, code: "invalid_request_id"},
	{target: wallet.ErrInvalidRequestAction, status: http.StatusBadRequest, code: "invalid_action"},
	{target: wallet.ErrInsufficientBalance, status: http.StatusBadRequest, code: "insufficient_balance"},
	{target: wallet.ErrDuplicatePendingRequest, status: http.StatusBadRequest, code: "pending_request_exists"},
	{target: wallet.ErrRequestProcessed, status: http.StatusBadRequest, code: "request_already_processed"},
	{target: wallet.ErrUnknownUser, status: http.StatusBadRequest, code: "unknown_user"},
	{target: wallet.ErrUnknownRequest, status: http.StatusNotFound, code: "request_not_found"},
	{target: wallet.ErrUnknownRestaurant, status: http.StatusNotFound, code: "restaurant_not_found"},
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps domain failures to client errors and logs everything else.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	for _, mapping := range domainErrorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, mapping.target.Error()))
			return
		}
	}
	handler.logger.Error(operation+" failed", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeInternal, messageInternalFailure))
}
