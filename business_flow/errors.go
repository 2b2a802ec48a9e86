// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrCampaignNotEditable    = errors.New("campaign can no longer be edited")
	ErrCampaignNotCancellable = errors.New("campaign can no longer be cancelled")
	ErrCampaignNameRequired   = errors.New("campaign name is required")
	ErrCampaignUUIDRequired   = errors.New("campaign UUID is required")
	ErrTitleRequired          = errors.New("push title is required")
	ErrTitleTooLong           = errors.New("push title exceeds the maximum length")
	ErrBodyTooLong            = errors.New("push body exceeds the maximum length")
	ErrSendAtInPast           = errors.New("send time is in the past")

	// Segment-related errors
	ErrUnknownSegmentDimension   = errors.New("unknown segment dimension")
	ErrDuplicateSegmentDimension = errors.New("segment dimension appears more than once")
	ErrUnknownSegmentValue       = errors.New("unknown segment value")

	// Filter errors
	ErrInvalidPage  = errors.New("page must be at least 1")
	ErrInvalidLimit = errors.New("limit must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error checking helpers

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignNotEditable(err error) bool {
	return errors.Is(err, ErrCampaignNotEditable)
}

func IsCampaignNotCancellable(err error) bool {
	return errors.Is(err, ErrCampaignNotCancellable)
}

func IsUnknownSegmentDimension(err error) bool {
	return errors.Is(err, ErrUnknownSegmentDimension)
}

func IsDuplicateSegmentDimension(err error) bool {
	return errors.Is(err, ErrDuplicateSegmentDimension)
}

func IsUnknownSegmentValue(err error) bool {
	return errors.Is(err, ErrUnknownSegmentValue)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrCampaignNameRequired) ||
		errors.Is(err, ErrTitleRequired) ||
		errors.Is(err, ErrTitleTooLong) ||
		errors.Is(err, ErrBodyTooLong) ||
		errors.Is(err, ErrSendAtInPast) ||
		errors.Is(err, ErrInvalidPage) ||
		errors.Is(err, ErrInvalidLimit)
}
