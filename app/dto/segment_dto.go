package dto

// SegmentDimensionDTO describes one filterable dimension in the catalog
type SegmentDimensionDTO struct {
	Type   string   `json:"type"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// ListSegmentsResponse is the full segment catalog
type ListSegmentsResponse struct {
	Dimensions []SegmentDimensionDTO `json:"dimensions"`
}

// SegmentValuesResponse lists the admissible values of one dimension
type SegmentValuesResponse struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// PreviewAudienceRequest asks for the audience size of a filter set
type PreviewAudienceRequest struct {
	Segments []SegmentFilterDTO `json:"segments" validate:"omitempty,dive"`
}

// PreviewAudienceResponse reports the matching subscriber count
type PreviewAudienceResponse struct {
	Count int64 `json:"count"`
}
