package handler

import (
	"errors"
	"net/http"

	"github.com/Baaaki/scooter-fleet/internal/moderation"
	"github.com/Baaaki/scooter-fleet/internal/ratelimit"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/Baaaki/scooter-fleet/internal/utils"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// apiError is the transport-neutral shape of a failed operation, shared by
// the REST handlers and the realtime gateway.
type apiError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
}

func classify(err error) apiError {
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return apiError{http.StatusTooManyRequests, "rate_limited", "Message limit reached, try again later", exceeded}
	case errors.Is(err, moderation.ErrPendingApproval):
		return apiError{http.StatusForbidden, "pending_approval", err.Error(), nil}
	case errors.Is(err, moderation.ErrChatBlocked):
		return apiError{http.StatusForbidden, "chat_blocked", err.Error(), nil}
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrAdminRequired):
		return apiError{http.StatusForbidden, "forbidden", err.Error(), nil}
	case errors.Is(err, service.ErrChatNotFound), errors.Is(err, service.ErrUserNotFound):
		return apiError{http.StatusNotFound, "not_found", err.Error(), nil}
	case errors.Is(err, service.ErrInvalidInput):
		return apiError{http.StatusBadRequest, "bad_request", err.Error(), nil}
	case errors.Is(err, service.ErrEmailAlreadyExists):
		return apiError{http.StatusConflict, "conflict", err.Error(), nil}
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, utils.ErrInvalidToken),
		errors.Is(err, utils.ErrExpiredToken):
		return apiError{http.StatusUnauthorized, "unauthorized", err.Error(), nil}
	default:
		return apiError{http.StatusInternalServerError, "internal", "Something went wrong", nil}
	}
}

func writeError(c *gin.Context, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		logger.Log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if e.Details != nil {
		body["details"] = e.Details
	}
	c.JSON(e.Status, body)
}
