// Package testing provides test utilities and database setup for testing the campaign service
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestSubscriber creates an active subscriber with the given attributes
func (tf *TestFixtures) CreateTestSubscriber(browser, os, country string, lastSeen time.Time) (*models.Subscriber, error) {
	sub := &models.Subscriber{
		UUID:       uuid.New(),
		Endpoint:   fmt.Sprintf("https://push.example.org/send/%d", rand.Int63()),
		P256dh:     "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
		Auth:       "tBHItJI5svbpez7KI4CCXg",
		Browser:    browser,
		OS:         os,
		Country:    country,
		LastSeenAt: utils.ToPtr(lastSeen),
		Active:     true,
	}

	if err := tf.DB.DB.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create test subscriber: %w", err)
	}
	return sub, nil
}

// CreateTestCampaign creates a campaign in the given status
func (tf *TestFixtures) CreateTestCampaign(status models.CampaignStatus, segments models.SegmentFilterList, sendAt *time.Time) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID: uuid.New(),
		Name: fmt.Sprintf("test campaign %d", rand.Intn(100000)),
		Message: models.PushMessage{
			Title: "Weekly digest is ready",
			Body:  "Open the app to see what changed this week.",
		},
		Segments: segments,
		Status:   status,
		SendAt:   sendAt,
	}

	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestOutcome creates a delivery outcome row for the pair
func (tf *TestFixtures) CreateTestOutcome(campaignID uint, subscriberID int64, status models.OutcomeStatus) (*models.DeliveryOutcome, error) {
	outcome := &models.DeliveryOutcome{
		CampaignID:   campaignID,
		SubscriberID: subscriberID,
		Status:       status,
	}

	if err := tf.DB.DB.Create(outcome).Error; err != nil {
		return nil, fmt.Errorf("failed to create test outcome: %w", err)
	}
	return outcome, nil
}
