package types

import (
	"time"

	"github.com/google/uuid"
)

// TemplateVersion is an immutable snapshot header for one uploaded revision
// of a template. Page/field counts are denormalized at extraction time so
// comparison metrics never have to rescan the field rows.
type TemplateVersion struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID     uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`
	Template       *Template `gorm:"constraint:OnDelete:CASCADE;foreignKey:TemplateID;references:ID" json:"template,omitempty"`
	VersionNumber  int       `gorm:"column:version_number;not null" json:"version_number"`
	PageCount      int       `gorm:"column:page_count;not null" json:"page_count"`
	FieldCount     int       `gorm:"column:field_count;not null" json:"field_count"`
	SourceFileName string    `gorm:"column:source_file_name" json:"source_file_name"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (TemplateVersion) TableName() string { return "template_version" }
