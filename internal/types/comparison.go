package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ComparisonStatusCompleted = "completed"
)

// Comparison is one persisted version-to-version comparison. Rows are
// written exactly once inside a transaction and never updated; deletion
// cascades to the comparison_field children.
//
// There is intentionally no uniqueness constraint on the version pair:
// re-comparing the same two versions is permitted data, and the duplicate
// check is advisory only.
type Comparison struct {
	ID                     uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SourceVersionID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"source_version_id"`
	SourceVersion          *TemplateVersion `gorm:"foreignKey:SourceVersionID;references:ID" json:"source_version,omitempty"`
	TargetVersionID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"target_version_id"`
	TargetVersion          *TemplateVersion `gorm:"foreignKey:TargetVersionID;references:ID" json:"target_version,omitempty"`
	ModificationPercentage float64          `gorm:"column:modification_percentage;not null" json:"modification_percentage"`
	FieldsAdded            int              `gorm:"column:fields_added;not null" json:"fields_added"`
	FieldsRemoved          int              `gorm:"column:fields_removed;not null" json:"fields_removed"`
	FieldsModified         int              `gorm:"column:fields_modified;not null" json:"fields_modified"`
	FieldsUnchanged        int              `gorm:"column:fields_unchanged;not null" json:"fields_unchanged"`
	CreatedBy              *uuid.UUID       `gorm:"type:uuid;column:created_by" json:"created_by,omitempty"`
	Creator                *User            `gorm:"constraint:OnDelete:SET NULL;foreignKey:CreatedBy;references:ID" json:"creator,omitempty"`
	Status                 string           `gorm:"column:status;not null" json:"status"`
	CreatedAt              time.Time        `gorm:"not null;index" json:"created_at"`
	CompletedAt            *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Comparison) TableName() string { return "comparison" }

// ComparisonSummary is the lister's row shape: comparison aggregates joined
// against both sides' version and template metadata.
type ComparisonSummary struct {
	ID                     uuid.UUID  `json:"id"`
	SourceVersionID        uuid.UUID  `json:"source_version_id"`
	TargetVersionID        uuid.UUID  `json:"target_version_id"`
	SourceTemplateName     string     `json:"source_template_name"`
	TargetTemplateName     string     `json:"target_template_name"`
	SourceVersionNumber    int        `json:"source_version_number"`
	TargetVersionNumber    int        `json:"target_version_number"`
	ModificationPercentage float64    `json:"modification_percentage"`
	FieldsAdded            int        `json:"fields_added"`
	FieldsRemoved          int        `json:"fields_removed"`
	FieldsModified         int        `json:"fields_modified"`
	FieldsUnchanged        int        `json:"fields_unchanged"`
	CreatedBy              *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}
