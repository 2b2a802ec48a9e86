// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pushboard/pushboard/app/dto"
	businessflow "github.com/pushboard/pushboard/business_flow"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	PublishCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	DownloadReport(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	reportFlow   businessflow.ReportFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, reportFlow businessflow.ReportFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		reportFlow:   reportFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles campaign draft creation
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
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

	result, err := h.campaignFlow.CreateCampaign(h.createRequestContext(c), &req)
	if err != nil {
		return h.handleCampaignError(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// UpdateCampaign handles campaign edits
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.UpdateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = campaignUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.campaignFlow.UpdateCampaign(h.createRequestContext(c), &req)
	if err != nil {
		return h.handleCampaignError(c, err, "Campaign update failed", "CAMPAIGN_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign updated successfully", result)
}

// GetCampaign returns one campaign by UUID
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	result, err := h.campaignFlow.GetCampaign(h.createRequestContext(c), campaignUUID)
	if err != nil {
		return h.handleCampaignError(c, err, "Failed to get campaign", "CAMPAIGN_GET_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns returns a page of campaigns, optionally filtered by status
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	req := dto.ListCampaignsRequest{Page: 1, Limit: 20}

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page parameter", "INVALID_PAGE", nil)
		}
		req.Page = page
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid limit parameter", "INVALID_LIMIT", nil)
		}
		req.Limit = limit
	}
	if v := c.Query("status"); v != "" {
		req.Status = &v
	}

	result, err := h.campaignFlow.ListCampaigns(h.createRequestContext(c), &req)
	if err != nil {
		return h.handleCampaignError(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// PublishCampaign moves a draft into the delivery pipeline
func (h *CampaignHandler) PublishCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	result, err := h.campaignFlow.PublishCampaign(h.createRequestContext(c), campaignUUID)
	if err != nil {
		return h.handleCampaignError(c, err, "Campaign publish failed", "CAMPAIGN_PUBLISH_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign published successfully", result)
}

// CancelCampaign cancels a draft or scheduled campaign
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	result, err := h.campaignFlow.CancelCampaign(h.createRequestContext(c), campaignUUID)
	if err != nil {
		return h.handleCampaignError(c, err, "Campaign cancellation failed", "CAMPAIGN_CANCEL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign cancelled successfully", result)
}

// DownloadReport streams the delivery outcome workbook for a campaign
func (h *CampaignHandler) DownloadReport(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	// Report generation walks every outcome row; give it more room than the
	// default request budget.
	filename, content, err := h.reportFlow.DownloadOutcomesExcel(h.createRequestContextWithTimeout(c, 2*time.Minute), campaignUUID)
	if err != nil {
		return h.handleCampaignError(c, err, "Report export failed", "REPORT_EXPORT_FAILED")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	return c.Send(content)
}

func (h *CampaignHandler) handleCampaignError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsCampaignNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	case businessflow.IsCampaignNotEditable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign can no longer be edited", "CAMPAIGN_NOT_EDITABLE", nil)
	case businessflow.IsCampaignNotCancellable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign can no longer be cancelled", "CAMPAIGN_NOT_CANCELLABLE", nil)
	case businessflow.IsUnknownSegmentDimension(err),
		businessflow.IsDuplicateSegmentDimension(err),
		businessflow.IsUnknownSegmentValue(err),
		businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	log.Println(message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// createRequestContext creates a context with the default timeout
func (h *CampaignHandler) createRequestContext(c fiber.Ctx) context.Context {
	return h.createRequestContextWithTimeout(c, 30*time.Second)
}

func (h *CampaignHandler) createRequestContextWithTimeout(c fiber.Ctx, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	_ = cancel

	ctx = context.WithValue(ctx, requestIDContextKey, c.Get("X-Request-ID"))
	return ctx
}

type contextKey string

const requestIDContextKey contextKey = "request_id"
