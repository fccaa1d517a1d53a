package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/formlens/formlens-backend/internal/apierr"
	"github.com/formlens/formlens-backend/internal/diff"
	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/repos"
	"github.com/formlens/formlens-backend/internal/types"
)

const (
	ListPageSizeDefault = 10
	ListPageSizeMax     = 100
)

type ComparisonListQuery struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Search    string
}

type ComparisonListResult struct {
	Items      []*types.ComparisonSummary
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// DuplicateInfo is the outcome of a duplicate check. Existence is a normal
// query result, never an error; callers decide whether to treat it as a
// soft warning.
type DuplicateInfo struct {
	Exists       bool       `json:"exists"`
	ComparisonID *uuid.UUID `json:"comparison_id,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

type ComparisonService interface {
	Analyze(ctx context.Context, sourceVersionID, targetVersionID uuid.UUID) (*types.ComparisonResult, error)
	Save(ctx context.Context, result *types.ComparisonResult, createdBy *uuid.UUID) (uuid.UUID, error)
	Get(ctx context.Context, comparisonID uuid.UUID) (*types.ComparisonResult, error)
	List(ctx context.Context, query ComparisonListQuery) (*ComparisonListResult, error)
	CheckDuplicate(ctx context.Context, versionA, versionB uuid.UUID) (*DuplicateInfo, error)
	Delete(ctx context.Context, comparisonID uuid.UUID) error
}

type comparisonService struct {
	db          *gorm.DB
	log         *logger.Logger
	versionRepo repos.TemplateVersionRepo
	compRepo    repos.ComparisonRepo
	cache       ComparisonCache
}

func NewComparisonService(
	db *gorm.DB,
	baseLog *logger.Logger,
	versionRepo repos.TemplateVersionRepo,
	compRepo repos.ComparisonRepo,
	cache ComparisonCache,
) ComparisonService {
	serviceLog := baseLog.With("service", "ComparisonService")
	return &comparisonService{
		db:          db,
		log:         serviceLog,
		versionRepo: versionRepo,
		compRepo:    compRepo,
		cache:       cache,
	}
}

// Analyze reconciles the two versions' field snapshots into an in-memory
// result. It reads from the snapshot store and nothing else; the result has
// no analyzed_at until it is saved.
func (s *comparisonService) Analyze(ctx context.Context, sourceVersionID, targetVersionID uuid.UUID) (*types.ComparisonResult, error) {
	if sourceVersionID == uuid.Nil || targetVersionID == uuid.Nil {
		return nil, apierr.InvalidRequest("both version ids are required")
	}
	if sourceVersionID == targetVersionID {
		return nil, apierr.InvalidRequest("cannot compare a version with itself")
	}

	sourceVersion, targetVersion, err := s.resolveVersions(ctx, sourceVersionID, targetVersionID)
	if err != nil {
		return nil, err
	}

	var sourceFields, targetFields []types.FieldSnapshot
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		sourceFields, err = s.loadSnapshots(groupCtx, sourceVersionID)
		return err
	})
	group.Go(func() error {
		var err error
		targetFields, err = s.loadSnapshots(groupCtx, targetVersionID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	changes := diff.Diff(sourceFields, targetFields)
	metrics := diff.Aggregate(changes,
		diff.VersionStats{PageCount: sourceVersion.PageCount, FieldCount: sourceVersion.FieldCount},
		diff.VersionStats{PageCount: targetVersion.PageCount, FieldCount: targetVersion.FieldCount},
	)
	s.log.Debug("Analyze complete",
		"source_version_id", sourceVersionID,
		"target_version_id", targetVersionID,
		"fields", len(changes),
		"modification_percentage", metrics.ModificationPercentage,
	)
	return &types.ComparisonResult{
		SourceVersionID: sourceVersionID,
		TargetVersionID: targetVersionID,
		Metrics:         metrics,
		Fields:          changes,
	}, nil
}

// Save persists the result as one comparison row plus its field rows in a
// single transaction. It performs no duplicate rejection; callers consult
// CheckDuplicate first if they care, and two racing saves of the same pair
// are both allowed to land.
func (s *comparisonService) Save(ctx context.Context, result *types.ComparisonResult, createdBy *uuid.UUID) (uuid.UUID, error) {
	if result == nil {
		return uuid.Nil, apierr.InvalidRequest("missing comparison payload")
	}
	if result.SourceVersionID == uuid.Nil || result.TargetVersionID == uuid.Nil {
		return uuid.Nil, apierr.InvalidRequest("both version ids are required")
	}
	if result.SourceVersionID == result.TargetVersionID {
		return uuid.Nil, apierr.InvalidRequest("cannot compare a version with itself")
	}
	if _, _, err := s.resolveVersions(ctx, result.SourceVersionID, result.TargetVersionID); err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	comparison := &types.Comparison{
		ID:                     uuid.New(),
		SourceVersionID:        result.SourceVersionID,
		TargetVersionID:        result.TargetVersionID,
		ModificationPercentage: result.Metrics.ModificationPercentage,
		FieldsAdded:            result.Metrics.FieldsAdded,
		FieldsRemoved:          result.Metrics.FieldsRemoved,
		FieldsModified:         result.Metrics.FieldsModified,
		FieldsUnchanged:        result.Metrics.FieldsUnchanged,
		CreatedBy:              createdBy,
		Status:                 types.ComparisonStatusCompleted,
		CreatedAt:              now,
		CompletedAt:            &now,
	}
	fields := make([]*types.ComparisonField, 0, len(result.Fields))
	for _, change := range result.Fields {
		row, err := types.NewComparisonField(comparison.ID, change)
		if err != nil {
			return uuid.Nil, apierr.InvalidRequest("invalid field payload: %v", err)
		}
		fields = append(fields, row)
	}

	// Once the transaction starts it runs to commit or rollback; caller
	// cancellation must not leave a parent row without its children.
	writeCtx := context.WithoutCancel(ctx)
	err := s.db.WithContext(writeCtx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.compRepo.Create(writeCtx, tx, comparison); err != nil {
			return err
		}
		if _, err := s.compRepo.CreateFields(writeCtx, tx, fields); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.log.Error("Save failed", "error", err,
			"source_version_id", result.SourceVersionID,
			"target_version_id", result.TargetVersionID,
		)
		return uuid.Nil, apierr.PersistenceFailure(err)
	}
	s.log.Info("Comparison saved", "comparison_id", comparison.ID, "fields", len(fields))
	return comparison.ID, nil
}

// Get reconstructs the persisted result: one read for the parent with its
// version metadata and one read for all field rows, ordered by field_id.
func (s *comparisonService) Get(ctx context.Context, comparisonID uuid.UUID) (*types.ComparisonResult, error) {
	if comparisonID == uuid.Nil {
		return nil, apierr.InvalidRequest("missing comparison id")
	}
	if s.cache != nil {
		if result, ok := s.cache.GetResult(ctx, comparisonID); ok {
			return result, nil
		}
	}

	comparison, err := s.compRepo.GetByID(ctx, nil, comparisonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.ComparisonNotFound(comparisonID)
		}
		return nil, apierr.PersistenceFailure(err)
	}
	rows, err := s.compRepo.GetFieldsByComparisonID(ctx, nil, comparisonID)
	if err != nil {
		return nil, apierr.PersistenceFailure(err)
	}

	changes := make([]types.FieldChange, 0, len(rows))
	for _, row := range rows {
		change, err := row.FieldChange()
		if err != nil {
			return nil, apierr.PersistenceFailure(err)
		}
		changes = append(changes, change)
	}

	metrics := types.GlobalMetrics{
		FieldsAdded:            comparison.FieldsAdded,
		FieldsRemoved:          comparison.FieldsRemoved,
		FieldsModified:         comparison.FieldsModified,
		FieldsUnchanged:        comparison.FieldsUnchanged,
		ModificationPercentage: comparison.ModificationPercentage,
	}
	if comparison.SourceVersion != nil && comparison.TargetVersion != nil {
		metrics.SourcePageCount = comparison.SourceVersion.PageCount
		metrics.TargetPageCount = comparison.TargetVersion.PageCount
		metrics.SourceFieldCount = comparison.SourceVersion.FieldCount
		metrics.TargetFieldCount = comparison.TargetVersion.FieldCount
		metrics.PageCountChanged = metrics.SourcePageCount != metrics.TargetPageCount
		metrics.FieldCountChanged = metrics.SourceFieldCount != metrics.TargetFieldCount
	}

	analyzedAt := comparison.CreatedAt
	result := &types.ComparisonResult{
		SourceVersionID: comparison.SourceVersionID,
		TargetVersionID: comparison.TargetVersionID,
		Metrics:         metrics,
		Fields:          changes,
		AnalyzedAt:      &analyzedAt,
	}
	if s.cache != nil {
		s.cache.SetResult(ctx, comparisonID, result)
	}
	return result, nil
}

func (s *comparisonService) List(ctx context.Context, query ComparisonListQuery) (*ComparisonListResult, error) {
	page := query.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, apierr.InvalidRequest("page must be >= 1")
	}
	pageSize := query.PageSize
	if pageSize == 0 {
		pageSize = ListPageSizeDefault
	}
	if pageSize < 1 || pageSize > ListPageSizeMax {
		return nil, apierr.InvalidRequest("page_size must be between 1 and %d", ListPageSizeMax)
	}
	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	if !repos.SortableComparisonColumn(sortBy) {
		return nil, apierr.InvalidRequest("unsupported sort_by %q", query.SortBy)
	}
	sortOrder := query.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return nil, apierr.InvalidRequest("sort_order must be asc or desc")
	}

	items, total, err := s.compRepo.List(ctx, nil, repos.ComparisonListParams{
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Search:    query.Search,
	})
	if err != nil {
		return nil, apierr.PersistenceFailure(err)
	}
	if items == nil {
		items = []*types.ComparisonSummary{}
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &ComparisonListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// CheckDuplicate looks for a prior comparison of the pair in either
// direction. It is advisory only: there is no uniqueness constraint behind
// it, and a concurrent save racing this check is accepted behavior.
func (s *comparisonService) CheckDuplicate(ctx context.Context, versionA, versionB uuid.UUID) (*DuplicateInfo, error) {
	if versionA == uuid.Nil || versionB == uuid.Nil {
		return nil, apierr.InvalidRequest("both version ids are required")
	}
	existing, err := s.compRepo.FindByVersionPair(ctx, nil, versionA, versionB)
	if err != nil {
		return nil, apierr.PersistenceFailure(err)
	}
	if existing == nil {
		return &DuplicateInfo{Exists: false}, nil
	}
	id := existing.ID
	createdAt := existing.CreatedAt
	return &DuplicateInfo{Exists: true, ComparisonID: &id, CreatedAt: &createdAt}, nil
}

func (s *comparisonService) Delete(ctx context.Context, comparisonID uuid.UUID) error {
	if comparisonID == uuid.Nil {
		return apierr.InvalidRequest("missing comparison id")
	}
	affected, err := s.compRepo.FullDeleteByID(ctx, nil, comparisonID)
	if err != nil {
		return apierr.PersistenceFailure(err)
	}
	if affected == 0 {
		return apierr.ComparisonNotFound(comparisonID)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, comparisonID)
	}
	s.log.Info("Comparison deleted", "comparison_id", comparisonID)
	return nil
}

// resolveVersions loads both version headers, reporting which id is missing.
func (s *comparisonService) resolveVersions(ctx context.Context, sourceVersionID, targetVersionID uuid.UUID) (*types.TemplateVersion, *types.TemplateVersion, error) {
	versions, err := s.versionRepo.GetByIDs(ctx, nil, []uuid.UUID{sourceVersionID, targetVersionID})
	if err != nil {
		return nil, nil, apierr.PersistenceFailure(err)
	}
	byID := make(map[uuid.UUID]*types.TemplateVersion, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
	}
	source, ok := byID[sourceVersionID]
	if !ok {
		return nil, nil, apierr.VersionNotFound(sourceVersionID)
	}
	target, ok := byID[targetVersionID]
	if !ok {
		return nil, nil, apierr.VersionNotFound(targetVersionID)
	}
	return source, target, nil
}

func (s *comparisonService) loadSnapshots(ctx context.Context, versionID uuid.UUID) ([]types.FieldSnapshot, error) {
	rows, err := s.versionRepo.GetFieldsByVersionID(ctx, nil, versionID)
	if err != nil {
		return nil, apierr.PersistenceFailure(err)
	}
	snapshots := make([]types.FieldSnapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.Snapshot()
		if err != nil {
			return nil, apierr.PersistenceFailure(err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
