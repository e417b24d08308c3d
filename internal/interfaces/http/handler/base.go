// Package handler exposes the ledger services over gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/logger"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status derived from code
func (h *BaseHandler) Error(c *gin.Context, code, message string, details any) {
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithDetails(
		code, message, middleware.GetRequestID(c), details))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.CodeBadRequest, message, nil)
}

// BindError answers a failed ShouldBind: field failures become a
// VALIDATION_ERROR listing them, anything else (bad JSON) a BAD_REQUEST.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		h.Error(c, dto.CodeRequestTooLarge, "Request body exceeds maximum allowed size", nil)
		return
	}
	if details := middleware.ValidationDetails(err); details != nil {
		c.Set(middleware.ErrorCodeKey, dto.CodeValidation)
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed", middleware.GetRequestID(c), details))
		return
	}
	h.BadRequest(c, "Malformed request body: "+err.Error())
}

// HandleError translates err into the envelope. Domain errors keep their
// code, message and details; anything else is logged and answered with a
// generic 500 so internals never reach the client.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if domainErr := asDomainError(err); domainErr != nil {
		var details any
		if len(domainErr.Details) > 0 {
			details = domainErr.Details
		}
		h.Error(c, domainErr.Code, domainErr.Message, details)
		return
	}

	h.logInternal(c, err)
	h.Error(c, dto.CodeInternal, "An unexpected error occurred", nil)
}

func (h *BaseHandler) logInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.GetGinLogger(c).Error("unhandled error", zap.Error(err))
}

// pathUUID parses the named path parameter, answering 400 when it is not a UUID
func (h *BaseHandler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID parses an optional query parameter
func (h *BaseHandler) queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return nil, false
	}
	return &id, true
}

func asDomainError(err error) *shared.DomainError {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}
