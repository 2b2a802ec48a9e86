package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SegmentDimension identifies a filterable subscriber attribute
type SegmentDimension string

const (
	SegmentDimensionBrowser    SegmentDimension = "browser"
	SegmentDimensionOS         SegmentDimension = "os"
	SegmentDimensionCountry    SegmentDimension = "country"
	SegmentDimensionEngagement SegmentDimension = "engagement"
)

// String returns the string representation of the dimension
func (d SegmentDimension) String() string {
	return string(d)
}

// Engagement bucket values derived from last_seen_at
const (
	EngagementActive   = "active"   // seen within the last 7 days
	EngagementDormant  = "dormant"  // seen within 7-30 days
	EngagementInactive = "inactive" // not seen for over 30 days
)

// SegmentFilter restricts a campaign's audience on one dimension.
// Values are OR'ed within the filter; filters are AND'ed across dimensions.
type SegmentFilter struct {
	Type   SegmentDimension `json:"type"`
	Values []string         `json:"values"`
}

// SegmentFilterList is the ordered filter set attached to a campaign,
// stored as a jsonb column.
type SegmentFilterList []SegmentFilter

// Value implements the driver.Valuer interface for SegmentFilterList
func (l SegmentFilterList) Value() (driver.Value, error) {
	if l == nil {
		l = SegmentFilterList{}
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for SegmentFilterList
func (l *SegmentFilterList) Scan(value any) error {
	if value == nil {
		*l = SegmentFilterList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SegmentFilterList", value)
	}

	return json.Unmarshal(bytes, l)
}

// HasEmptyValueSet reports whether any filter carries no values.
// Such a filter matches no subscriber, which empties the whole intersection.
func (l SegmentFilterList) HasEmptyValueSet() bool {
	for _, f := range l {
		if len(f.Values) == 0 {
			return true
		}
	}
	return false
}

// DuplicateDimension returns the first dimension that appears more than once,
// or an empty string when all dimensions are distinct.
func (l SegmentFilterList) DuplicateDimension() SegmentDimension {
	seen := make(map[SegmentDimension]struct{}, len(l))
	for _, f := range l {
		if _, ok := seen[f.Type]; ok {
			return f.Type
		}
		seen[f.Type] = struct{}{}
	}
	return ""
}
