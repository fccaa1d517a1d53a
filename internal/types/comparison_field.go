package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ComparisonField is one FieldChange flattened into a persisted row.
// Geometry and option payloads live in jsonb columns; the position diff
// status is not stored separately because it is fully determined by the
// presence of the two rectangles and the position_change payload.
type ComparisonField struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ComparisonID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"comparison_id"`
	Comparison         *Comparison    `gorm:"constraint:OnDelete:CASCADE;foreignKey:ComparisonID;references:ID" json:"comparison,omitempty"`
	FieldID            string         `gorm:"column:field_id;not null" json:"field_id"`
	Status             string         `gorm:"column:status;not null" json:"status"`
	FieldType          string         `gorm:"column:field_type;not null" json:"field_type"`
	SourcePageNumber   *int           `gorm:"column:source_page_number" json:"source_page_number,omitempty"`
	TargetPageNumber   *int           `gorm:"column:target_page_number" json:"target_page_number,omitempty"`
	PageNumberChanged  bool           `gorm:"column:page_number_changed;not null" json:"page_number_changed"`
	NearTextDiff       string         `gorm:"column:near_text_diff;not null" json:"near_text_diff"`
	SourceNearText     *string        `gorm:"column:source_near_text" json:"source_near_text,omitempty"`
	TargetNearText     *string        `gorm:"column:target_near_text" json:"target_near_text,omitempty"`
	ValueOptionsDiff   string         `gorm:"column:value_options_diff;not null" json:"value_options_diff"`
	SourceValueOptions datatypes.JSON `gorm:"type:jsonb;column:source_value_options" json:"source_value_options,omitempty"`
	TargetValueOptions datatypes.JSON `gorm:"type:jsonb;column:target_value_options" json:"target_value_options,omitempty"`
	PositionChange     datatypes.JSON `gorm:"type:jsonb;column:position_change" json:"position_change,omitempty"`
	SourcePosition     datatypes.JSON `gorm:"type:jsonb;column:source_position" json:"source_position,omitempty"`
	TargetPosition     datatypes.JSON `gorm:"type:jsonb;column:target_position" json:"target_position,omitempty"`
}

func (ComparisonField) TableName() string { return "comparison_field" }

// NewComparisonField flattens one FieldChange into a row for the given
// parent comparison.
func NewComparisonField(comparisonID uuid.UUID, change FieldChange) (*ComparisonField, error) {
	row := &ComparisonField{
		ID:                uuid.New(),
		ComparisonID:      comparisonID,
		FieldID:           change.FieldID,
		Status:            string(change.Status),
		FieldType:         change.FieldType,
		SourcePageNumber:  change.SourcePageNumber,
		TargetPageNumber:  change.TargetPageNumber,
		PageNumberChanged: change.PageNumberChanged,
		NearTextDiff:      string(change.NearTextDiff),
		SourceNearText:    change.SourceNearText,
		TargetNearText:    change.TargetNearText,
		ValueOptionsDiff:  string(change.ValueOptionsDiff),
	}
	var err error
	if row.SourceValueOptions, err = marshalOptional(change.SourceValueOptions, change.SourceValueOptions != nil); err != nil {
		return nil, fmt.Errorf("field %s: encode source_value_options: %w", change.FieldID, err)
	}
	if row.TargetValueOptions, err = marshalOptional(change.TargetValueOptions, change.TargetValueOptions != nil); err != nil {
		return nil, fmt.Errorf("field %s: encode target_value_options: %w", change.FieldID, err)
	}
	if row.SourcePosition, err = marshalOptional(change.SourcePosition, change.SourcePosition != nil); err != nil {
		return nil, fmt.Errorf("field %s: encode source_position: %w", change.FieldID, err)
	}
	if row.TargetPosition, err = marshalOptional(change.TargetPosition, change.TargetPosition != nil); err != nil {
		return nil, fmt.Errorf("field %s: encode target_position: %w", change.FieldID, err)
	}
	if row.PositionChange, err = marshalOptional(change.PositionChange, change.PositionChange != nil); err != nil {
		return nil, fmt.Errorf("field %s: encode position_change: %w", change.FieldID, err)
	}
	return row, nil
}

// FieldChange rebuilds the in-memory change from the persisted row. The
// position diff status is reconstructed: both rectangles present with a
// recorded change means DIFFERENT, both present without one means EQUAL,
// anything else NOT_APPLICABLE.
func (f *ComparisonField) FieldChange() (FieldChange, error) {
	change := FieldChange{
		FieldID:           f.FieldID,
		Status:            FieldChangeStatus(f.Status),
		FieldType:         f.FieldType,
		SourcePageNumber:  f.SourcePageNumber,
		TargetPageNumber:  f.TargetPageNumber,
		PageNumberChanged: f.PageNumberChanged,
		NearTextDiff:      DiffStatus(f.NearTextDiff),
		SourceNearText:    f.SourceNearText,
		TargetNearText:    f.TargetNearText,
		ValueOptionsDiff:  DiffStatus(f.ValueOptionsDiff),
	}
	if len(f.SourceValueOptions) > 0 {
		if err := json.Unmarshal(f.SourceValueOptions, &change.SourceValueOptions); err != nil {
			return change, fmt.Errorf("field %s: decode source_value_options: %w", f.FieldID, err)
		}
	}
	if len(f.TargetValueOptions) > 0 {
		if err := json.Unmarshal(f.TargetValueOptions, &change.TargetValueOptions); err != nil {
			return change, fmt.Errorf("field %s: decode target_value_options: %w", f.FieldID, err)
		}
	}
	if len(f.SourcePosition) > 0 {
		change.SourcePosition = &Rect{}
		if err := json.Unmarshal(f.SourcePosition, change.SourcePosition); err != nil {
			return change, fmt.Errorf("field %s: decode source_position: %w", f.FieldID, err)
		}
	}
	if len(f.TargetPosition) > 0 {
		change.TargetPosition = &Rect{}
		if err := json.Unmarshal(f.TargetPosition, change.TargetPosition); err != nil {
			return change, fmt.Errorf("field %s: decode target_position: %w", f.FieldID, err)
		}
	}
	if len(f.PositionChange) > 0 {
		change.PositionChange = &PositionChange{}
		if err := json.Unmarshal(f.PositionChange, change.PositionChange); err != nil {
			return change, fmt.Errorf("field %s: decode position_change: %w", f.FieldID, err)
		}
	}
	switch {
	case change.SourcePosition == nil || change.TargetPosition == nil:
		change.PositionDiff = DiffNotApplicable
	case change.PositionChange != nil:
		change.PositionDiff = DiffDifferent
	default:
		change.PositionDiff = DiffEqual
	}
	if change.Status == FieldAdded || change.Status == FieldRemoved {
		change.PositionDiff = DiffNotApplicable
	}
	return change, nil
}

func marshalOptional(v interface{}, present bool) (datatypes.JSON, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
