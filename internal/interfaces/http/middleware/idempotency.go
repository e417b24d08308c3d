package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/logger"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the client-chosen key of a payment request
	IdempotencyKeyHeader = "Idempotency-Key"
	// MaxIdempotencyKeyLength bounds the header value
	MaxIdempotencyKeyLength = 128
	// PartiallyAppliedKey is set by handlers whose error response still
	// committed ledger changes; the key then stays claimed.
	PartiallyAppliedKey = "partially_applied"
)

// Idempotency claims the request's Idempotency-Key before the handler runs.
// A key seen within ttl answers 409 CONFLICT. When the handler answers with
// an error status the claim is dropped so the client can retry with the
// same key, unless the handler flagged PartiallyAppliedKey. Requests
// without the header pass through unchecked.
func Idempotency(store shared.IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	if store == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		requestID := GetRequestID(c)
		if len(key) > MaxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.CodeBadRequest, "Idempotency-Key is too long", requestID))
			return
		}

		scoped := c.Request.Method + " " + c.FullPath() + " " + key
		claimed, err := store.MarkProcessed(c.Request.Context(), scoped, ttl)
		if err != nil {
			logger.GetGinLogger(c).Error("idempotency store unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
				dto.CodeUnavailable, "cannot verify Idempotency-Key, retry later", requestID))
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
				dto.CodeConflict, "a request with this Idempotency-Key was already processed", requestID))
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest && !c.GetBool(PartiallyAppliedKey) {
			// The request context may already be cancelled.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
			defer cancel()
			if err := store.Release(ctx, scoped); err != nil {
				logger.GetGinLogger(c).Warn("failed to release idempotency key", zap.Error(err))
			}
		}
	}
}
