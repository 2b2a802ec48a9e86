package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/utils"
	"gorm.io/gorm"
)

// Subscriber represents a push-notification recipient. Attribute snapshots
// (browser, os, country, last_seen_at) are written by the ingestion pipeline;
// this service only reads them and flips the active flag on gone endpoints.
type Subscriber struct {
	ID   int64     `gorm:"primaryKey;autoIncrement;type:bigserial" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_subscribers_uuid" json:"uuid"`

	// Web-push endpoint credentials, opaque to the delivery core
	Endpoint string `gorm:"type:text;not null;uniqueIndex:uk_subscribers_endpoint" json:"endpoint"`
	P256dh   string `gorm:"size:255;not null" json:"p256dh"`
	Auth     string `gorm:"size:255;not null" json:"auth"`

	Browser    string     `gorm:"size:32;not null;index:idx_subscribers_browser" json:"browser"`
	OS         string     `gorm:"size:32;not null;index:idx_subscribers_os" json:"os"`
	Country    string     `gorm:"size:2;not null;index:idx_subscribers_country" json:"country"`
	LastSeenAt *time.Time `gorm:"index:idx_subscribers_last_seen_at" json:"last_seen_at,omitempty"`

	Active bool `gorm:"not null;default:true;index:idx_subscribers_active" json:"active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (Subscriber) TableName() string {
	return "subscribers"
}

// BeforeCreate is called before creating a new record
func (s *Subscriber) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// TimeRange is a half-open [From, To) window on last_seen_at. A nil bound
// leaves that side unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// SubscriberFilter represents filter criteria for subscriber queries.
// Slice fields are OR'ed internally; distinct fields are AND'ed together,
// matching how segment filters combine.
type SubscriberFilter struct {
	ID             *int64
	UUID           *uuid.UUID
	Browsers       []string
	OSes           []string
	Countries      []string
	LastSeenRanges []TimeRange
	Active         *bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}
