package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TemplateField is one extracted form field as it existed in a specific
// template version. Rows are written once by the extraction pipeline and
// never mutated here.
type TemplateField struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateVersionID uuid.UUID        `gorm:"type:uuid;not null;index" json:"template_version_id"`
	TemplateVersion   *TemplateVersion `gorm:"constraint:OnDelete:CASCADE;foreignKey:TemplateVersionID;references:ID" json:"template_version,omitempty"`
	FieldID           string           `gorm:"column:field_id;not null" json:"field_id"`
	FieldType         string           `gorm:"column:field_type;not null" json:"field_type"`
	PageNumber        int              `gorm:"column:page_number;not null" json:"page_number"`
	NearText          *string          `gorm:"column:near_text" json:"near_text,omitempty"`
	ValueOptions      datatypes.JSON   `gorm:"type:jsonb;column:value_options" json:"value_options,omitempty"`
	Position          datatypes.JSON   `gorm:"type:jsonb;column:position" json:"position,omitempty"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
}

func (TemplateField) TableName() string { return "template_field" }

// Snapshot decodes the jsonb payload columns into the in-memory form the
// diff engine consumes. Shape validation happens here, at the application
// boundary, rather than in the storage schema.
func (f *TemplateField) Snapshot() (FieldSnapshot, error) {
	snap := FieldSnapshot{
		FieldID:    f.FieldID,
		FieldType:  f.FieldType,
		PageNumber: f.PageNumber,
		NearText:   f.NearText,
	}
	if len(f.ValueOptions) > 0 {
		var opts []string
		if err := json.Unmarshal(f.ValueOptions, &opts); err != nil {
			return snap, fmt.Errorf("field %s: decode value_options: %w", f.FieldID, err)
		}
		snap.ValueOptions = opts
	}
	if len(f.Position) > 0 {
		var rect Rect
		if err := json.Unmarshal(f.Position, &rect); err != nil {
			return snap, fmt.Errorf("field %s: decode position: %w", f.FieldID, err)
		}
		snap.Position = &rect
	}
	return snap, nil
}
