package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// OutcomeStatus enumerates the per-recipient delivery result states
type OutcomeStatus string

const (
	OutcomeStatusPending         OutcomeStatus = "pending"
	OutcomeStatusSent            OutcomeStatus = "sent"
	OutcomeStatusFailedTransient OutcomeStatus = "failed_transient"
	OutcomeStatusFailedPermanent OutcomeStatus = "failed_permanent"
)

// String returns the string representation of the status
func (s OutcomeStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeStatusPending, OutcomeStatusSent,
		OutcomeStatusFailedTransient, OutcomeStatusFailedPermanent:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further attempts will be made
func (s OutcomeStatus) IsTerminal() bool {
	return s == OutcomeStatusSent || s == OutcomeStatusFailedPermanent
}

// Scan implements the sql.Scanner interface for OutcomeStatus
func (s *OutcomeStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = OutcomeStatus(v)
	case []byte:
		*s = OutcomeStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into OutcomeStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for OutcomeStatus
func (s OutcomeStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid OutcomeStatus: %s", s)
	}
	return string(s), nil
}

// DeliveryOutcome records one recipient's result for one campaign. The unique
// (campaign_id, subscriber_id) pair is the idempotence anchor: a subscriber
// already marked sent is never dispatched again for the same campaign.
type DeliveryOutcome struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	CampaignID   uint          `gorm:"not null;uniqueIndex:uk_delivery_outcomes_campaign_subscriber;index:idx_delivery_outcomes_campaign_id" json:"campaign_id"`
	SubscriberID int64         `gorm:"not null;uniqueIndex:uk_delivery_outcomes_campaign_subscriber" json:"subscriber_id"`
	Status       OutcomeStatus `gorm:"type:delivery_outcome_status;not null;default:'pending';index:idx_delivery_outcomes_status" json:"status"`

	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `gorm:"index:idx_delivery_outcomes_next_attempt_at" json:"next_attempt_at,omitempty"`
	FailureReason *string    `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (DeliveryOutcome) TableName() string {
	return "delivery_outcomes"
}

// DeliveryOutcomeFilter provides filter fields for repository queries
type DeliveryOutcomeFilter struct {
	ID           *uint
	CampaignID   *uint
	SubscriberID *int64
	Status       *OutcomeStatus
}
