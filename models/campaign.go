package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/utils"
	"gorm.io/gorm"
)

// Push payload length limits enforced at publish time
const (
	MaxTitleLength = 65
	MaxBodyLength  = 180
)

// CampaignStatus represents the status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusQueued    CampaignStatus = "queued"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusQueued,
		CampaignStatusSending, CampaignStatusCompleted, CampaignStatusFailed,
		CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// PushMessage is the web-push payload of a campaign, stored as jsonb
type PushMessage struct {
	Title              string  `json:"title"`
	Body               string  `json:"body"`
	URL                *string `json:"url,omitempty"`
	Icon               *string `json:"icon,omitempty"`
	Image              *string `json:"image,omitempty"`
	Badge              *string `json:"badge,omitempty"`
	RequireInteraction bool    `json:"require_interaction"`
	Renotify           bool    `json:"renotify"`
	Silent             bool    `json:"silent"`
}

// Value implements the driver.Valuer interface for PushMessage
func (m PushMessage) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for PushMessage
func (m *PushMessage) Scan(value any) error {
	if value == nil {
		*m = PushMessage{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PushMessage", value)
	}

	return json.Unmarshal(bytes, m)
}

// Validate enforces the payload constraints checked before any dispatch
func (m PushMessage) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("push title is required")
	}
	if len([]rune(m.Title)) > MaxTitleLength {
		return fmt.Errorf("push title exceeds %d characters", MaxTitleLength)
	}
	if len([]rune(m.Body)) > MaxBodyLength {
		return fmt.Errorf("push body exceeds %d characters", MaxBodyLength)
	}
	return nil
}

// Campaign represents a push-notification broadcast definition
type Campaign struct {
	ID       uint              `gorm:"primaryKey" json:"id"`
	UUID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	Name     string            `gorm:"size:255;not null" json:"name"`
	Message  PushMessage       `gorm:"type:jsonb;not null" json:"message"`
	Segments SegmentFilterList `gorm:"type:jsonb;not null" json:"segments"`
	Status   CampaignStatus    `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`

	// SendAt is nil for "send immediately on publish"
	SendAt *time.Time `gorm:"index:idx_campaigns_send_at" json:"send_at,omitempty"`

	SentCount   int `gorm:"not null;default:0" json:"sent_count"`
	FailedCount int `gorm:"not null;default:0" json:"failed_count"`

	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"index:idx_campaigns_updated_at" json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.Segments == nil {
		c.Segments = SegmentFilterList{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsEditable checks if the campaign can still be modified.
// Anything at or past queued is owned by the delivery pipeline.
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusCancelled
}

// IsCancellable checks if cancellation is still honored
func (c *Campaign) IsCancellable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusScheduled
}

// IsTerminal reports whether the campaign reached a final state
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusCompleted || c.Status == CampaignStatusFailed
}

// CanTransitionTo checks if the campaign can transition to the given status.
// Transitions only move forward, except draft/scheduled which may be cancelled
// and cancelled which may return to draft for editing.
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled ||
			newStatus == CampaignStatusQueued ||
			newStatus == CampaignStatusCancelled
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusQueued ||
			newStatus == CampaignStatusCancelled
	case CampaignStatusQueued:
		return newStatus == CampaignStatusSending
	case CampaignStatusSending:
		return newStatus == CampaignStatusCompleted ||
			newStatus == CampaignStatusFailed
	case CampaignStatusCancelled:
		return newStatus == CampaignStatusDraft
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	Name          *string         `json:"name,omitempty"`
	SendBefore    *time.Time      `json:"send_before,omitempty"`
	SendAfter     *time.Time      `json:"send_after,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
