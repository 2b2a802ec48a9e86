// Package services provides external service integrations and technical concerns like push transport and tokens
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
)

// PushOutcome classifies a single dispatch attempt
type PushOutcome int

const (
	// PushDelivered means the push service accepted the message
	PushDelivered PushOutcome = iota
	// PushGone means the subscription no longer exists; the subscriber must be deactivated
	PushGone
	// PushTransientError means the attempt may succeed on retry (rate limit, timeout, 5xx)
	PushTransientError
	// PushRejected means the push service refused the message permanently without invalidating the subscription
	PushRejected
)

// String returns a human-readable outcome name
func (o PushOutcome) String() string {
	switch o {
	case PushDelivered:
		return "delivered"
	case PushGone:
		return "gone"
	case PushTransientError:
		return "transient-error"
	case PushRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PushService delivers a payload to one subscriber endpoint
type PushService interface {
	Send(ctx context.Context, subscriber *models.Subscriber, payload []byte) (PushOutcome, error)
}

// WebPushService implements PushService over the Web Push protocol with VAPID
type WebPushService struct {
	config *config.PushConfig
	client *http.Client
}

// NewWebPushService creates a new web-push service instance
func NewWebPushService(cfg *config.PushConfig) PushService {
	return &WebPushService{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send dispatches the payload to the subscriber's push endpoint and classifies
// the response. The caller decides what each class means for the outcome record.
func (s *WebPushService) Send(ctx context.Context, subscriber *models.Subscriber, payload []byte) (PushOutcome, error) {
	sub := &webpush.Subscription{
		Endpoint: subscriber.Endpoint,
		Keys: webpush.Keys{
			P256dh: subscriber.P256dh,
			Auth:   subscriber.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.config.SubscriberEmail,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		TTL:             s.config.TTL,
	})
	if err != nil {
		// Network-level failures are worth retrying
		return PushTransientError, fmt.Errorf("push request failed for subscriber %d: %w", subscriber.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return PushDelivered, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return PushGone, fmt.Errorf("push endpoint gone for subscriber %d: status %d", subscriber.ID, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return PushTransientError, fmt.Errorf("push service unavailable for subscriber %d: status %d", subscriber.ID, resp.StatusCode)
	default:
		return PushRejected, fmt.Errorf("push rejected for subscriber %d: status %d", subscriber.ID, resp.StatusCode)
	}
}

// MockPushService implements PushService for testing
type MockPushService struct {
	mu           sync.Mutex
	SentMessages []MockPushMessage

	// OutcomeByEndpoint scripts the result per endpoint; unlisted endpoints deliver
	OutcomeByEndpoint map[string]PushOutcome

	// TransientBudget makes an endpoint fail transiently this many times before delivering
	TransientBudget map[string]int
}

// MockPushMessage records one mock dispatch
type MockPushMessage struct {
	SubscriberID int64
	Endpoint     string
	Payload      []byte
	SentAt       time.Time
}

// NewMockPushService creates a new mock push service
func NewMockPushService() *MockPushService {
	return &MockPushService{
		SentMessages:      make([]MockPushMessage, 0),
		OutcomeByEndpoint: make(map[string]PushOutcome),
		TransientBudget:   make(map[string]int),
	}
}

// Send records the dispatch and returns the scripted outcome
func (m *MockPushService) Send(ctx context.Context, subscriber *models.Subscriber, payload []byte) (PushOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentMessages = append(m.SentMessages, MockPushMessage{
		SubscriberID: subscriber.ID,
		Endpoint:     subscriber.Endpoint,
		Payload:      payload,
		SentAt:       utils.UTCNow(),
	})

	if budget, ok := m.TransientBudget[subscriber.Endpoint]; ok && budget > 0 {
		m.TransientBudget[subscriber.Endpoint] = budget - 1
		return PushTransientError, fmt.Errorf("mock transient failure for %s", subscriber.Endpoint)
	}

	if outcome, ok := m.OutcomeByEndpoint[subscriber.Endpoint]; ok {
		if outcome != PushDelivered {
			return outcome, fmt.Errorf("mock %s for %s", outcome, subscriber.Endpoint)
		}
		return outcome, nil
	}
	return PushDelivered, nil
}

// GetSentMessages returns a copy of the recorded dispatches
func (m *MockPushService) GetSentMessages() []MockPushMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockPushMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}

// SentCountFor returns how many times an endpoint was dispatched to
func (m *MockPushService) SentCountFor(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.SentMessages {
		if msg.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// ClearSentMessages resets the recorded dispatches
func (m *MockPushService) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = m.SentMessages[:0]
}
