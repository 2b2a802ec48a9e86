package dto

import (
	"time"

	"github.com/pushboard/pushboard/models"
)

// SegmentFilterDTO is one audience restriction on a campaign
type SegmentFilterDTO struct {
	Type   string   `json:"type" validate:"required"`
	Values []string `json:"values" validate:"required"`
}

// PushMessageDTO is the notification payload of a campaign
type PushMessageDTO struct {
	Title              string  `json:"title" validate:"required,max=65"`
	Body               string  `json:"body" validate:"max=180"`
	URL                *string `json:"url,omitempty" validate:"omitempty,url"`
	Icon               *string `json:"icon,omitempty" validate:"omitempty,url"`
	Image              *string `json:"image,omitempty" validate:"omitempty,url"`
	Badge              *string `json:"badge,omitempty" validate:"omitempty,url"`
	RequireInteraction bool    `json:"require_interaction"`
	Renotify           bool    `json:"renotify"`
	Silent             bool    `json:"silent"`
}

// CreateCampaignRequest represents the request to create a new campaign draft
type CreateCampaignRequest struct {
	Name     string             `json:"name" validate:"required,max=255"`
	Message  PushMessageDTO     `json:"message" validate:"required"`
	Segments []SegmentFilterDTO `json:"segments" validate:"omitempty,dive"`
	SendAt   *time.Time         `json:"send_at,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	UUID string `json:"uuid"`
}

// UpdateCampaignRequest represents the request to update an editable campaign
type UpdateCampaignRequest struct {
	UUID     string             `json:"-"`
	Name     *string            `json:"name,omitempty" validate:"omitempty,max=255"`
	Message  *PushMessageDTO    `json:"message,omitempty"`
	Segments []SegmentFilterDTO `json:"segments,omitempty" validate:"omitempty,dive"`
	SendAt   *time.Time         `json:"send_at,omitempty"`

	// ClearSendAt switches a scheduled draft back to send-on-publish
	ClearSendAt bool `json:"clear_send_at,omitempty"`
}

// PublishCampaignRequest represents the request to publish a campaign
type PublishCampaignRequest struct {
	UUID string `json:"-"`
}

// PublishCampaignResponse reports the status the campaign landed in
type PublishCampaignResponse struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

// CancelCampaignRequest represents the request to cancel a campaign
type CancelCampaignRequest struct {
	UUID string `json:"-"`
}

// GetCampaignResponse represents a campaign in API responses
type GetCampaignResponse struct {
	UUID        string             `json:"uuid"`
	Name        string             `json:"name"`
	Message     PushMessageDTO     `json:"message"`
	Segments    []SegmentFilterDTO `json:"segments"`
	Status      string             `json:"status"`
	SendAt      *time.Time         `json:"send_at,omitempty"`
	SentCount   int                `json:"sent_count"`
	FailedCount int                `json:"failed_count"`
	QueuedAt    *time.Time         `json:"queued_at,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
}

// ListCampaignsRequest represents the paginated listing request
type ListCampaignsRequest struct {
	Status *string `json:"status,omitempty"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// ListCampaignsResponse wraps a page of campaigns
type ListCampaignsResponse struct {
	Items []GetCampaignResponse `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// NewPushMessageDTO maps the model payload to its DTO form
func NewPushMessageDTO(m models.PushMessage) PushMessageDTO {
	return PushMessageDTO{
		Title:              m.Title,
		Body:               m.Body,
		URL:                m.URL,
		Icon:               m.Icon,
		Image:              m.Image,
		Badge:              m.Badge,
		RequireInteraction: m.RequireInteraction,
		Renotify:           m.Renotify,
		Silent:             m.Silent,
	}
}

// ToModel maps the DTO payload to its model form
func (d PushMessageDTO) ToModel() models.PushMessage {
	return models.PushMessage{
		Title:              d.Title,
		Body:               d.Body,
		URL:                d.URL,
		Icon:               d.Icon,
		Image:              d.Image,
		Badge:              d.Badge,
		RequireInteraction: d.RequireInteraction,
		Renotify:           d.Renotify,
		Silent:             d.Silent,
	}
}

// NewSegmentFilterDTOs maps model filters to their DTO form
func NewSegmentFilterDTOs(list models.SegmentFilterList) []SegmentFilterDTO {
	out := make([]SegmentFilterDTO, 0, len(list))
	for _, f := range list {
		out = append(out, SegmentFilterDTO{
			Type:   f.Type.String(),
			Values: f.Values,
		})
	}
	return out
}

// SegmentFiltersToModel maps DTO filters to their model form
func SegmentFiltersToModel(filters []SegmentFilterDTO) models.SegmentFilterList {
	out := make(models.SegmentFilterList, 0, len(filters))
	for _, f := range filters {
		out = append(out, models.SegmentFilter{
			Type:   models.SegmentDimension(f.Type),
			Values: f.Values,
		})
	}
	return out
}

// NewGetCampaignResponse maps a campaign model to its response form
func NewGetCampaignResponse(c *models.Campaign) GetCampaignResponse {
	return GetCampaignResponse{
		UUID:        c.UUID.String(),
		Name:        c.Name,
		Message:     NewPushMessageDTO(c.Message),
		Segments:    NewSegmentFilterDTOs(c.Segments),
		Status:      c.Status.String(),
		SendAt:      c.SendAt,
		SentCount:   c.SentCount,
		FailedCount: c.FailedCount,
		QueuedAt:    c.QueuedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
