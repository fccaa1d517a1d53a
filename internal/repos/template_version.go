package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/types"
)

// TemplateVersionRepo is the read side of the snapshot store: version
// headers and their extracted field rows. The comparison core never writes
// through this repo.
type TemplateVersionRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.TemplateVersion, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, versionIDs []uuid.UUID) ([]*types.TemplateVersion, error)
	GetWithTemplate(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.TemplateVersion, error)
	GetFieldsByVersionID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) ([]*types.TemplateField, error)
}

type templateVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateVersionRepo(db *gorm.DB, baseLog *logger.Logger) TemplateVersionRepo {
	repoLog := baseLog.With("repo", "TemplateVersionRepo")
	return &templateVersionRepo{db: db, log: repoLog}
}

func (r *templateVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Where("id = ?", versionID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *templateVersionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, versionIDs []uuid.UUID) ([]*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TemplateVersion
	if len(versionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", versionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *templateVersionRepo) GetWithTemplate(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Preload("Template").
		Where("id = ?", versionID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *templateVersionRepo) GetFieldsByVersionID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) ([]*types.TemplateField, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TemplateField
	if err := transaction.WithContext(ctx).
		Where("template_version_id = ?", versionID).
		Order("field_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
