package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/gateway"
)

// Generator runs a generation for a user.
type Generator interface {
	Generate(ctx context.Context, userID string, in gateway.Input) gateway.Result
}

// GenerateHandler serves prompt generation.
type GenerateHandler struct {
	gen Generator
}

// NewGenerateHandler constructs a GenerateHandler.
func NewGenerateHandler(gen Generator) *GenerateHandler {
	return &GenerateHandler{gen: gen}
}

// Generate runs one generation and maps failures to HTTP statuses.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body gateway.Input
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gateway.Result{Error: "invalid json", Code: gateway.CodeInvalidInput})
		return
	}

	result := h.gen.Generate(c.Request.Context(), auth.UserID(c), body)
	if result.Failed() {
		c.JSON(StatusForCode(result.Code), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StatusForCode maps a generation failure code to an HTTP status.
func StatusForCode(code gateway.Code) int {
	switch code {
	case gateway.CodeUnauthorized:
		return http.StatusUnauthorized
	case gateway.CodeInvalidInput, gateway.CodeContentBlocked, gateway.CodeInvalidModel:
		return http.StatusBadRequest
	case gateway.CodeSubscriptionNotFound:
		return http.StatusForbidden
	case gateway.CodeQuotaExceededNoKey, gateway.CodeQuotaExceededUpgradeRequired:
		return http.StatusPaymentRequired
	case gateway.CodeRateLimited:
		return http.StatusTooManyRequests
	case gateway.CodeUnsupportedProvider, gateway.CodeUpstreamProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
