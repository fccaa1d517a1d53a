package repos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/types"
)

// Sortable list columns, keyed by the API-facing name. Anything outside
// this map is rejected before a query is built.
var comparisonSortColumns = map[string]string{
	"created_at":              "comparison.created_at",
	"modification_percentage": "comparison.modification_percentage",
	"fields_added":            "comparison.fields_added",
	"fields_removed":          "comparison.fields_removed",
	"fields_modified":         "comparison.fields_modified",
}

// SortableComparisonColumn reports whether the given API sort key is allowed.
func SortableComparisonColumn(name string) bool {
	_, ok := comparisonSortColumns[name]
	return ok
}

type ComparisonListParams struct {
	Offset    int
	Limit     int
	SortBy    string
	SortOrder string
	Search    string
}

type ComparisonRepo interface {
	Create(ctx context.Context, tx *gorm.DB, comparison *types.Comparison) (*types.Comparison, error)
	CreateFields(ctx context.Context, tx *gorm.DB, fields []*types.ComparisonField) ([]*types.ComparisonField, error)
	GetByID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) (*types.Comparison, error)
	GetFieldsByComparisonID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) ([]*types.ComparisonField, error)
	FindByVersionPair(ctx context.Context, tx *gorm.DB, versionA, versionB uuid.UUID) (*types.Comparison, error)
	List(ctx context.Context, tx *gorm.DB, params ComparisonListParams) ([]*types.ComparisonSummary, int64, error)
	FullDeleteByID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) (int64, error)
}

type comparisonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewComparisonRepo(db *gorm.DB, baseLog *logger.Logger) ComparisonRepo {
	repoLog := baseLog.With("repo", "ComparisonRepo")
	return &comparisonRepo{db: db, log: repoLog}
}

func (r *comparisonRepo) Create(ctx context.Context, tx *gorm.DB, comparison *types.Comparison) (*types.Comparison, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(comparison).Error; err != nil {
		return nil, err
	}
	return comparison, nil
}

func (r *comparisonRepo) CreateFields(ctx context.Context, tx *gorm.DB, fields []*types.ComparisonField) ([]*types.ComparisonField, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return []*types.ComparisonField{}, nil
	}

	if err := transaction.WithContext(ctx).CreateInBatches(&fields, 200).Error; err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *comparisonRepo) GetByID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) (*types.Comparison, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Comparison
	if err := transaction.WithContext(ctx).
		Preload("SourceVersion").
		Preload("SourceVersion.Template").
		Preload("TargetVersion").
		Preload("TargetVersion.Template").
		Where("id = ?", comparisonID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *comparisonRepo) GetFieldsByComparisonID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) ([]*types.ComparisonField, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ComparisonField
	if err := transaction.WithContext(ctx).
		Where("comparison_id = ?", comparisonID).
		Order("field_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindByVersionPair looks up a prior comparison of the two versions in
// either direction. The newest row wins, with id as the tie-break. A miss
// is returned as (nil, nil), not as an error.
func (r *comparisonRepo) FindByVersionPair(ctx context.Context, tx *gorm.DB, versionA, versionB uuid.UUID) (*types.Comparison, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Comparison
	if err := transaction.WithContext(ctx).
		Where("(source_version_id = ? AND target_version_id = ?) OR (source_version_id = ? AND target_version_id = ?)",
			versionA, versionB, versionB, versionA).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *comparisonRepo) List(ctx context.Context, tx *gorm.DB, params ComparisonListParams) ([]*types.ComparisonSummary, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	column, ok := comparisonSortColumns[params.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsortable column %q", params.SortBy)
	}
	direction := "ASC"
	if strings.EqualFold(params.SortOrder, "desc") {
		direction = "DESC"
	}

	base := transaction.WithContext(ctx).
		Table("comparison").
		Joins("JOIN template_version source_version ON source_version.id = comparison.source_version_id").
		Joins("JOIN template source_template ON source_template.id = source_version.template_id").
		Joins("JOIN template_version target_version ON target_version.id = comparison.target_version_id").
		Joins("JOIN template target_template ON target_template.id = target_version.template_id")

	if search := strings.TrimSpace(params.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		base = base.Where("LOWER(source_template.name) LIKE ? OR LOWER(target_template.name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.ComparisonSummary
	if err := base.Session(&gorm.Session{}).
		Select(`comparison.id,
			comparison.source_version_id,
			comparison.target_version_id,
			source_template.name AS source_template_name,
			target_template.name AS target_template_name,
			source_version.version_number AS source_version_number,
			target_version.version_number AS target_version_number,
			comparison.modification_percentage,
			comparison.fields_added,
			comparison.fields_removed,
			comparison.fields_modified,
			comparison.fields_unchanged,
			comparison.created_by,
			comparison.created_at`).
		Order(column + " " + direction).
		Order("comparison.id " + direction).
		Offset(params.Offset).
		Limit(params.Limit).
		Scan(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (r *comparisonRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, comparisonID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("id = ?", comparisonID).
		Delete(&types.Comparison{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
