// Package businessflow contains the core business logic and use cases for delivery reporting workflows
package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/repository"
	"github.com/xuri/excelize/v2"
)

// Outcome rows are exported in pages of this size
const reportPageSize = 5000

// ReportFlow provides use cases for campaign delivery reporting
type ReportFlow interface {
	// DownloadOutcomesExcel returns a workbook of per-recipient delivery
	// outcomes for a campaign, with a summary sheet of tallies.
	DownloadOutcomesExcel(ctx context.Context, campaignUUID string) (string, []byte, error)
}

// ReportFlowImpl implements the reporting business flow
type ReportFlowImpl struct {
	campaignRepo repository.CampaignRepository
	outcomeRepo  repository.DeliveryOutcomeRepository
}

// NewReportFlow creates a new report flow instance
func NewReportFlow(campaignRepo repository.CampaignRepository, outcomeRepo repository.DeliveryOutcomeRepository) ReportFlow {
	return &ReportFlowImpl{
		campaignRepo: campaignRepo,
		outcomeRepo:  outcomeRepo,
	}
}

// DownloadOutcomesExcel builds the delivery report workbook
func (s *ReportFlowImpl) DownloadOutcomesExcel(ctx context.Context, campaignUUID string) (string, []byte, error) {
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return "", nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return "", nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "outcomes"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"subscriber_id", "status", "attempts", "last_attempt_at", "next_attempt_at", "failure_reason"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	rowIdx := 2
	offset := 0
	for {
		outcomes, err := s.outcomeRepo.ListByCampaign(ctx, campaign.ID, reportPageSize, offset)
		if err != nil {
			return "", nil, NewBusinessError("REPORT_EXPORT_FAILED", "Failed to load delivery outcomes", err)
		}
		for _, o := range outcomes {
			record := []string{
				strconv.FormatInt(o.SubscriberID, 10),
				o.Status.String(),
				strconv.Itoa(o.Attempts),
				formatTimePtr(o.LastAttemptAt),
				formatTimePtr(o.NextAttemptAt),
				stringPtrValue(o.FailureReason),
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, rowIdx)
			_ = xl.SetSheetRow(sheet, cellRef, &record)
			rowIdx++
		}
		if len(outcomes) < reportPageSize {
			break
		}
		offset += reportPageSize
	}

	if err := s.writeSummarySheet(ctx, xl, campaign); err != nil {
		return "", nil, err
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("REPORT_EXPORT_FAILED", "Failed to serialize report workbook", err)
	}

	filename := fmt.Sprintf("campaign_%s_outcomes.xlsx", campaign.UUID.String())
	return filename, buf.Bytes(), nil
}

func (s *ReportFlowImpl) writeSummarySheet(ctx context.Context, xl *excelize.File, campaign *models.Campaign) error {
	counts, err := s.outcomeRepo.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return NewBusinessError("REPORT_EXPORT_FAILED", "Failed to tally delivery outcomes", err)
	}

	sheet := "summary"
	if _, err := xl.NewSheet(sheet); err != nil {
		return NewBusinessError("REPORT_EXPORT_FAILED", "Failed to create summary sheet", err)
	}

	rows := [][]string{
		{"campaign", campaign.Name},
		{"uuid", campaign.UUID.String()},
		{"status", campaign.Status.String()},
		{"sent_count", strconv.Itoa(campaign.SentCount)},
		{"failed_count", strconv.Itoa(campaign.FailedCount)},
		{"sent", strconv.FormatInt(counts[models.OutcomeStatusSent], 10)},
		{"failed_transient", strconv.FormatInt(counts[models.OutcomeStatusFailedTransient], 10)},
		{"failed_permanent", strconv.FormatInt(counts[models.OutcomeStatusFailedPermanent], 10)},
		{"pending", strconv.FormatInt(counts[models.OutcomeStatusPending], 10)},
	}
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = xl.SetSheetRow(sheet, cellRef, &row)
	}
	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
