package types

import (
	"time"

	"github.com/google/uuid"
)

// DiffStatus classifies the comparison of one field attribute between the
// source and target side of a comparison.
type DiffStatus string

const (
	DiffEqual         DiffStatus = "EQUAL"
	DiffDifferent     DiffStatus = "DIFFERENT"
	DiffNotApplicable DiffStatus = "NOT_APPLICABLE"
)

// FieldChangeStatus classifies one reconciled field identifier across the
// two versions.
type FieldChangeStatus string

const (
	FieldAdded     FieldChangeStatus = "ADDED"
	FieldRemoved   FieldChangeStatus = "REMOVED"
	FieldModified  FieldChangeStatus = "MODIFIED"
	FieldUnchanged FieldChangeStatus = "UNCHANGED"
)

// Rect is a field bounding box in page coordinates.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// FieldSnapshot is one field as it existed in a specific version, decoded
// into the form the diff engine consumes. Supplied by the snapshot store,
// never mutated here.
type FieldSnapshot struct {
	FieldID      string
	FieldType    string
	PageNumber   int
	NearText     *string
	ValueOptions []string
	Position     *Rect
}

// PositionChange records which geometry axes differ for a field present on
// both sides, along with both raw rectangles.
type PositionChange struct {
	XChanged      bool `json:"x_changed"`
	YChanged      bool `json:"y_changed"`
	WidthChanged  bool `json:"width_changed"`
	HeightChanged bool `json:"height_changed"`
	Source        Rect `json:"source"`
	Target        Rect `json:"target"`
}

// FieldChange is the reconciliation result for one field_id.
//
// Invariants: ADDED rows carry no source_* values and REMOVED rows no
// target_* values; an UNCHANGED row never carries a DIFFERENT attribute
// status; PositionChange is non-nil exactly when PositionDiff is DIFFERENT.
type FieldChange struct {
	FieldID            string            `json:"field_id"`
	Status             FieldChangeStatus `json:"status"`
	FieldType          string            `json:"field_type"`
	SourcePageNumber   *int              `json:"source_page_number,omitempty"`
	TargetPageNumber   *int              `json:"target_page_number,omitempty"`
	PageNumberChanged  bool              `json:"page_number_changed"`
	NearTextDiff       DiffStatus        `json:"near_text_diff"`
	SourceNearText     *string           `json:"source_near_text,omitempty"`
	TargetNearText     *string           `json:"target_near_text,omitempty"`
	ValueOptionsDiff   DiffStatus        `json:"value_options_diff"`
	SourceValueOptions []string          `json:"source_value_options,omitempty"`
	TargetValueOptions []string          `json:"target_value_options,omitempty"`
	PositionDiff       DiffStatus        `json:"position_diff"`
	SourcePosition     *Rect             `json:"source_position,omitempty"`
	TargetPosition     *Rect             `json:"target_position,omitempty"`
	PositionChange     *PositionChange   `json:"position_change,omitempty"`
}

// GlobalMetrics aggregates one whole comparison.
type GlobalMetrics struct {
	SourcePageCount        int     `json:"source_page_count"`
	TargetPageCount        int     `json:"target_page_count"`
	SourceFieldCount       int     `json:"source_field_count"`
	TargetFieldCount       int     `json:"target_field_count"`
	PageCountChanged       bool    `json:"page_count_changed"`
	FieldCountChanged      bool    `json:"field_count_changed"`
	FieldsAdded            int     `json:"fields_added"`
	FieldsRemoved          int     `json:"fields_removed"`
	FieldsModified         int     `json:"fields_modified"`
	FieldsUnchanged        int     `json:"fields_unchanged"`
	ModificationPercentage float64 `json:"modification_percentage"`
}

// ComparisonResult is the in-memory outcome of analyzing two versions.
// AnalyzedAt stays nil until the result is persisted; a result that is never
// saved is simply discarded.
type ComparisonResult struct {
	SourceVersionID uuid.UUID     `json:"source_version_id"`
	TargetVersionID uuid.UUID     `json:"target_version_id"`
	Metrics         GlobalMetrics `json:"metrics"`
	Fields          []FieldChange `json:"fields"`
	AnalyzedAt      *time.Time    `json:"analyzed_at,omitempty"`
}
