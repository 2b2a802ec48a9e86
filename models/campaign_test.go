package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"draft to scheduled", CampaignStatusDraft, CampaignStatusScheduled, true},
		{"draft to queued", CampaignStatusDraft, CampaignStatusQueued, true},
		{"draft to cancelled", CampaignStatusDraft, CampaignStatusCancelled, true},
		{"draft to sending", CampaignStatusDraft, CampaignStatusSending, false},
		{"scheduled to queued", CampaignStatusScheduled, CampaignStatusQueued, true},
		{"scheduled to cancelled", CampaignStatusScheduled, CampaignStatusCancelled, true},
		{"scheduled to completed", CampaignStatusScheduled, CampaignStatusCompleted, false},
		{"queued to sending", CampaignStatusQueued, CampaignStatusSending, true},
		{"queued to cancelled", CampaignStatusQueued, CampaignStatusCancelled, false},
		{"sending to completed", CampaignStatusSending, CampaignStatusCompleted, true},
		{"sending to failed", CampaignStatusSending, CampaignStatusFailed, true},
		{"sending to cancelled", CampaignStatusSending, CampaignStatusCancelled, false},
		{"cancelled to draft", CampaignStatusCancelled, CampaignStatusDraft, true},
		{"completed is terminal", CampaignStatusCompleted, CampaignStatusDraft, false},
		{"failed is terminal", CampaignStatusFailed, CampaignStatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{Status: tt.from}
			assert.Equal(t, tt.allowed, c.CanTransitionTo(tt.to))
		})
	}
}

func TestCampaignEditability(t *testing.T) {
	editable := []CampaignStatus{CampaignStatusDraft, CampaignStatusCancelled}
	for _, status := range editable {
		c := &Campaign{Status: status}
		assert.True(t, c.IsEditable(), "status %s should be editable", status)
	}

	locked := []CampaignStatus{
		CampaignStatusScheduled, CampaignStatusQueued, CampaignStatusSending,
		CampaignStatusCompleted, CampaignStatusFailed,
	}
	for _, status := range locked {
		c := &Campaign{Status: status}
		assert.False(t, c.IsEditable(), "status %s should not be editable", status)
	}
}

func TestCampaignCancellability(t *testing.T) {
	assert.True(t, (&Campaign{Status: CampaignStatusDraft}).IsCancellable())
	assert.True(t, (&Campaign{Status: CampaignStatusScheduled}).IsCancellable())
	assert.False(t, (&Campaign{Status: CampaignStatusQueued}).IsCancellable())
	assert.False(t, (&Campaign{Status: CampaignStatusSending}).IsCancellable())
	assert.False(t, (&Campaign{Status: CampaignStatusCompleted}).IsCancellable())
}

func TestPushMessageValidate(t *testing.T) {
	valid := PushMessage{Title: "Hello", Body: "World"}
	require.NoError(t, valid.Validate())

	missing := PushMessage{Body: "no title"}
	assert.Error(t, missing.Validate())

	longTitle := PushMessage{Title: strings.Repeat("a", MaxTitleLength+1)}
	assert.Error(t, longTitle.Validate())

	longBody := PushMessage{Title: "ok", Body: strings.Repeat("b", MaxBodyLength+1)}
	assert.Error(t, longBody.Validate())

	// Length limits count characters, not bytes
	multibyteTitle := PushMessage{Title: strings.Repeat("é", MaxTitleLength)}
	assert.NoError(t, multibyteTitle.Validate())
}

func TestSegmentFilterListEmptyValueSet(t *testing.T) {
	assert.False(t, SegmentFilterList{}.HasEmptyValueSet())
	assert.False(t, SegmentFilterList{
		{Type: SegmentDimensionBrowser, Values: []string{"chrome"}},
	}.HasEmptyValueSet())
	assert.True(t, SegmentFilterList{
		{Type: SegmentDimensionBrowser, Values: []string{"chrome"}},
		{Type: SegmentDimensionCountry, Values: []string{}},
	}.HasEmptyValueSet())
}

func TestSegmentFilterListDuplicateDimension(t *testing.T) {
	assert.Equal(t, SegmentDimension(""), SegmentFilterList{
		{Type: SegmentDimensionBrowser, Values: []string{"chrome"}},
		{Type: SegmentDimensionOS, Values: []string{"android"}},
	}.DuplicateDimension())

	assert.Equal(t, SegmentDimensionBrowser, SegmentFilterList{
		{Type: SegmentDimensionBrowser, Values: []string{"chrome"}},
		{Type: SegmentDimensionOS, Values: []string{"android"}},
		{Type: SegmentDimensionBrowser, Values: []string{"firefox"}},
	}.DuplicateDimension())
}

func TestSegmentFilterListScanRoundtrip(t *testing.T) {
	original := SegmentFilterList{
		{Type: SegmentDimensionCountry, Values: []string{"US", "CA"}},
		{Type: SegmentDimensionEngagement, Values: []string{EngagementActive}},
	}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded SegmentFilterList
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)
}

func TestOutcomeStatusTerminal(t *testing.T) {
	assert.True(t, OutcomeStatusSent.IsTerminal())
	assert.True(t, OutcomeStatusFailedPermanent.IsTerminal())
	assert.False(t, OutcomeStatusPending.IsTerminal())
	assert.False(t, OutcomeStatusFailedTransient.IsTerminal())
}

func TestCampaignStatusValueRejectsUnknown(t *testing.T) {
	_, err := CampaignStatus("bogus").Value()
	assert.Error(t, err)

	v, err := CampaignStatusDraft.Value()
	require.NoError(t, err)
	assert.Equal(t, "draft", v)
}

func TestCampaignBeforeCreateDefaults(t *testing.T) {
	c := &Campaign{Name: "x", Message: PushMessage{Title: "t"}}
	require.NoError(t, c.BeforeCreate(nil))

	assert.NotEqual(t, "", c.UUID.String())
	assert.Equal(t, CampaignStatusDraft, c.Status)
	assert.NotNil(t, c.Segments)
	assert.WithinDuration(t, time.Now().UTC(), c.CreatedAt, time.Minute)
}
