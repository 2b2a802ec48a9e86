// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pushboard/pushboard/app/dto"
	businessflow "github.com/pushboard/pushboard/business_flow"
)

// SegmentHandlerInterface defines the contract for segment catalog handlers
type SegmentHandlerInterface interface {
	ListSegments(c fiber.Ctx) error
	SegmentValues(c fiber.Ctx) error
	PreviewAudience(c fiber.Ctx) error
}

// SegmentHandler handles segment catalog HTTP requests
type SegmentHandler struct {
	catalog      businessflow.SegmentCatalogFlow
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(catalog businessflow.SegmentCatalogFlow, campaignFlow businessflow.CampaignFlow) *SegmentHandler {
	return &SegmentHandler{
		catalog:      catalog,
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *SegmentHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SegmentHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListSegments returns the segment catalog
func (h *SegmentHandler) ListSegments(c fiber.Ctx) error {
	result, err := h.catalog.ListDimensions(h.createRequestContext(c))
	if err != nil {
		log.Println("Failed to list segments", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list segments", "SEGMENT_CATALOG_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Segment catalog retrieved successfully", result)
}

// SegmentValues returns the admissible values of one dimension
func (h *SegmentHandler) SegmentValues(c fiber.Ctx) error {
	dimension := c.Params("dimension")
	if dimension == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Segment dimension is required", "MISSING_DIMENSION", nil)
	}

	result, err := h.catalog.DimensionValues(h.createRequestContext(c), dimension)
	if err != nil {
		if businessflow.IsUnknownSegmentDimension(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Unknown segment dimension", "SEGMENT_DIMENSION_UNKNOWN", nil)
		}
		log.Println("Failed to list segment values", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list segment values", "SEGMENT_VALUES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Segment values retrieved successfully", result)
}

// PreviewAudience returns the audience size for a filter set
func (h *SegmentHandler) PreviewAudience(c fiber.Ctx) error {
	var req dto.PreviewAudienceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.campaignFlow.PreviewAudience(h.createRequestContext(c), &req)
	if err != nil {
		switch {
		case businessflow.IsUnknownSegmentDimension(err),
			businessflow.IsDuplicateSegmentDimension(err),
			businessflow.IsUnknownSegmentValue(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		}
		log.Println("Audience preview failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Audience preview failed", "AUDIENCE_PREVIEW_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Audience preview computed successfully", result)
}

func (h *SegmentHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_ = cancel

	ctx = context.WithValue(ctx, requestIDContextKey, c.Get("X-Request-ID"))
	return ctx
}
