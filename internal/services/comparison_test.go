package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/formlens/formlens-backend/internal/apierr"
	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/repos"
	"github.com/formlens/formlens-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Template{},
		&types.TemplateVersion{},
		&types.TemplateField{},
		&types.Comparison{},
		&types.ComparisonField{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) ComparisonService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	versionRepo := repos.NewTemplateVersionRepo(db, log)
	compRepo := repos.NewComparisonRepo(db, log)
	return NewComparisonService(db, log, versionRepo, compRepo, nil)
}

type seedField struct {
	fieldID      string
	fieldType    string
	page         int
	nearText     string
	valueOptions []string
	position     *types.Rect
}

func seedTemplate(t *testing.T, db *gorm.DB, name string) uuid.UUID {
	t.Helper()
	tpl := &types.Template{ID: uuid.New(), Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl.ID
}

func seedVersion(t *testing.T, db *gorm.DB, templateID uuid.UUID, versionNumber, pageCount int, fields []seedField) uuid.UUID {
	t.Helper()
	version := &types.TemplateVersion{
		ID:            uuid.New(),
		TemplateID:    templateID,
		VersionNumber: versionNumber,
		PageCount:     pageCount,
		FieldCount:    len(fields),
		CreatedAt:     time.Now(),
	}
	if err := db.Create(version).Error; err != nil {
		t.Fatalf("seed version: %v", err)
	}
	for _, f := range fields {
		row := &types.TemplateField{
			ID:                uuid.New(),
			TemplateVersionID: version.ID,
			FieldID:           f.fieldID,
			FieldType:         f.fieldType,
			PageNumber:        f.page,
			CreatedAt:         time.Now(),
		}
		if f.nearText != "" {
			nearText := f.nearText
			row.NearText = &nearText
		}
		if f.valueOptions != nil {
			raw, err := json.Marshal(f.valueOptions)
			if err != nil {
				t.Fatalf("marshal options: %v", err)
			}
			row.ValueOptions = raw
		}
		if f.position != nil {
			raw, err := json.Marshal(f.position)
			if err != nil {
				t.Fatalf("marshal position: %v", err)
			}
			row.Position = raw
		}
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed field %s: %v", f.fieldID, err)
		}
	}
	return version.ID
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apierr.Error, got %T: %v", err, err)
	}
	return ae.Code
}

func TestAnalyzeClassifiesChanges(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "Intake Form")
	sourceID := seedVersion(t, db, tplID, 1, 2, []seedField{
		{fieldID: "F1", fieldType: "text", page: 1, nearText: "Name"},
		{fieldID: "F2", fieldType: "checkbox", page: 1},
	})
	targetID := seedVersion(t, db, tplID, 2, 2, []seedField{
		{fieldID: "F1", fieldType: "text", page: 1, nearText: "Full Name"},
		{fieldID: "F3", fieldType: "select", page: 1, valueOptions: []string{"A", "B"}},
	})

	result, err := svc.Analyze(ctx, sourceID, targetID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.AnalyzedAt != nil {
		t.Fatalf("analyzed_at must be unset before save")
	}
	if got := len(result.Fields); got != 3 {
		t.Fatalf("field changes: want=3 got=%d", got)
	}
	statuses := map[string]types.FieldChangeStatus{}
	for _, c := range result.Fields {
		statuses[c.FieldID] = c.Status
	}
	if statuses["F1"] != types.FieldModified || statuses["F2"] != types.FieldRemoved || statuses["F3"] != types.FieldAdded {
		t.Fatalf("statuses: got %v", statuses)
	}
	m := result.Metrics
	if m.FieldsModified != 1 || m.FieldsRemoved != 1 || m.FieldsAdded != 1 || m.FieldsUnchanged != 0 {
		t.Fatalf("metrics counts: got %+v", m)
	}
	if m.ModificationPercentage != 100.0 {
		t.Fatalf("percentage: want=100.0 got=%v", m.ModificationPercentage)
	}
}

func TestAnalyzeSameVersionRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	id := uuid.New()
	_, err := svc.Analyze(context.Background(), id, id)
	if err == nil {
		t.Fatalf("expected error for identical version ids")
	}
	if code := apiCode(t, err); code != "invalid_request" {
		t.Fatalf("code: want=invalid_request got=%s", code)
	}
}

func TestAnalyzeUnknownVersion(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "Intake Form")
	sourceID := seedVersion(t, db, tplID, 1, 1, nil)
	missing := uuid.New()

	_, err := svc.Analyze(ctx, sourceID, missing)
	if err == nil {
		t.Fatalf("expected error for unknown version")
	}
	if code := apiCode(t, err); code != "version_not_found" {
		t.Fatalf("code: want=version_not_found got=%s", code)
	}
	if got := err.Error(); !strings.Contains(got, missing.String()) {
		t.Fatalf("error should name the missing id, got %q", got)
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "Claim Form")
	sourceID := seedVersion(t, db, tplID, 1, 1, []seedField{
		{fieldID: "name", fieldType: "text", page: 1, nearText: "Name",
			position: &types.Rect{X0: 10, Y0: 20, X1: 110, Y1: 40}},
		{fieldID: "state", fieldType: "select", page: 1, valueOptions: []string{"CA", "NY"}},
	})
	targetID := seedVersion(t, db, tplID, 2, 1, []seedField{
		{fieldID: "name", fieldType: "text", page: 1, nearText: "Name",
			position: &types.Rect{X0: 12, Y0: 20, X1: 112, Y1: 40}},
		{fieldID: "state", fieldType: "select", page: 1, valueOptions: []string{"CA", "NY", "TX"}},
	})

	analyzed, err := svc.Analyze(ctx, sourceID, targetID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	id, err := svc.Save(ctx, analyzed, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.AnalyzedAt == nil {
		t.Fatalf("loaded result must carry analyzed_at")
	}
	if loaded.Metrics != analyzed.Metrics {
		t.Fatalf("metrics mismatch:\nwant %+v\ngot  %+v", analyzed.Metrics, loaded.Metrics)
	}
	if len(loaded.Fields) != len(analyzed.Fields) {
		t.Fatalf("field count: want=%d got=%d", len(analyzed.Fields), len(loaded.Fields))
	}
	for i := range analyzed.Fields {
		want, got := analyzed.Fields[i], loaded.Fields[i]
		if want.FieldID != got.FieldID || want.Status != got.Status {
			t.Fatalf("field %d: want %s/%s got %s/%s", i, want.FieldID, want.Status, got.FieldID, got.Status)
		}
		if want.PositionDiff != got.PositionDiff {
			t.Fatalf("field %s position diff: want=%s got=%s", want.FieldID, want.PositionDiff, got.PositionDiff)
		}
		if want.ValueOptionsDiff != got.ValueOptionsDiff {
			t.Fatalf("field %s value options diff: want=%s got=%s", want.FieldID, want.ValueOptionsDiff, got.ValueOptionsDiff)
		}
	}
}

func TestGetUnknownComparison(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Get(context.Background(), uuid.New())
	if err == nil {
		t.Fatalf("expected error for unknown comparison")
	}
	if code := apiCode(t, err); code != "comparison_not_found" {
		t.Fatalf("code: want=comparison_not_found got=%s", code)
	}
}

func TestCheckDuplicateSymmetric(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "W-9")
	v1 := seedVersion(t, db, tplID, 1, 1, nil)
	v2 := seedVersion(t, db, tplID, 2, 1, nil)

	before, err := svc.CheckDuplicate(ctx, v1, v2)
	if err != nil {
		t.Fatalf("CheckDuplicate: %v", err)
	}
	if before.Exists {
		t.Fatalf("no comparison saved yet, exists should be false")
	}

	analyzed, err := svc.Analyze(ctx, v1, v2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	id, err := svc.Save(ctx, analyzed, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	forward, err := svc.CheckDuplicate(ctx, v1, v2)
	if err != nil {
		t.Fatalf("CheckDuplicate forward: %v", err)
	}
	backward, err := svc.CheckDuplicate(ctx, v2, v1)
	if err != nil {
		t.Fatalf("CheckDuplicate backward: %v", err)
	}
	if !forward.Exists || !backward.Exists {
		t.Fatalf("exists: forward=%v backward=%v", forward.Exists, backward.Exists)
	}
	if *forward.ComparisonID != id || *backward.ComparisonID != id {
		t.Fatalf("comparison ids: forward=%s backward=%s want=%s", forward.ComparisonID, backward.ComparisonID, id)
	}
}

// The duplicate check is check-then-act with no uniqueness constraint
// behind it. Two callers that both pass the check both get to save; the
// second save must not be rejected.
func TestSaveDuplicatePairBothSucceed(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "I-9")
	v1 := seedVersion(t, db, tplID, 1, 1, nil)
	v2 := seedVersion(t, db, tplID, 2, 1, nil)

	dupA, err := svc.CheckDuplicate(ctx, v1, v2)
	if err != nil {
		t.Fatalf("CheckDuplicate A: %v", err)
	}
	dupB, err := svc.CheckDuplicate(ctx, v1, v2)
	if err != nil {
		t.Fatalf("CheckDuplicate B: %v", err)
	}
	if dupA.Exists || dupB.Exists {
		t.Fatalf("both checks should pass before either save")
	}

	analyzed, err := svc.Analyze(ctx, v1, v2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	idA, err := svc.Save(ctx, analyzed, nil)
	if err != nil {
		t.Fatalf("Save A: %v", err)
	}
	idB, err := svc.Save(ctx, analyzed, nil)
	if err != nil {
		t.Fatalf("Save B: %v", err)
	}
	if idA == idB {
		t.Fatalf("saves must produce distinct comparisons")
	}

	var count int64
	if err := db.Model(&types.Comparison{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("comparison rows: want=2 got=%d", count)
	}
}

func seedComparison(t *testing.T, svc ComparisonService, v1, v2 uuid.UUID, pct float64, added int) uuid.UUID {
	t.Helper()
	id, err := svc.Save(context.Background(), &types.ComparisonResult{
		SourceVersionID: v1,
		TargetVersionID: v2,
		Metrics: types.GlobalMetrics{
			ModificationPercentage: pct,
			FieldsAdded:            added,
		},
	}, nil)
	if err != nil {
		t.Fatalf("seed comparison: %v", err)
	}
	return id
}

func TestListSortsAndPaginates(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "Lease Agreement")
	v1 := seedVersion(t, db, tplID, 1, 1, nil)
	v2 := seedVersion(t, db, tplID, 2, 1, nil)
	v3 := seedVersion(t, db, tplID, 3, 1, nil)

	seedComparison(t, svc, v1, v2, 10, 0)
	seedComparison(t, svc, v2, v3, 50, 0)
	seedComparison(t, svc, v1, v3, 30, 0)

	page1, err := svc.List(ctx, ComparisonListQuery{
		Page: 1, PageSize: 2, SortBy: "modification_percentage", SortOrder: "desc",
	})
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if page1.Total != 3 || page1.TotalPages != 2 {
		t.Fatalf("totals: total=%d total_pages=%d", page1.Total, page1.TotalPages)
	}
	if len(page1.Items) != 2 || page1.Items[0].ModificationPercentage != 50 || page1.Items[1].ModificationPercentage != 30 {
		t.Fatalf("page 1 order: got %v", summaries(page1.Items))
	}

	page2, err := svc.List(ctx, ComparisonListQuery{
		Page: 2, PageSize: 2, SortBy: "modification_percentage", SortOrder: "desc",
	})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(page2.Items) != 1 || page2.Items[0].ModificationPercentage != 10 {
		t.Fatalf("page 2 order: got %v", summaries(page2.Items))
	}
}

func summaries(items []*types.ComparisonSummary) []float64 {
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.ModificationPercentage
	}
	return out
}

func TestListRejectsUnknownSortField(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.List(context.Background(), ComparisonListQuery{SortBy: "bogus_field"})
	if err == nil {
		t.Fatalf("expected validation error for unknown sort field")
	}
	if code := apiCode(t, err); code != "invalid_request" {
		t.Fatalf("code: want=invalid_request got=%s", code)
	}
}

func TestListRejectsOutOfRangePageSize(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.List(context.Background(), ComparisonListQuery{PageSize: 500})
	if err == nil {
		t.Fatalf("expected validation error for oversized page_size")
	}
	if code := apiCode(t, err); code != "invalid_request" {
		t.Fatalf("code: want=invalid_request got=%s", code)
	}
}

func TestListSearchMatchesEitherTemplateName(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	leaseID := seedTemplate(t, db, "Lease Agreement")
	claimID := seedTemplate(t, db, "Claim Form")
	lease1 := seedVersion(t, db, leaseID, 1, 1, nil)
	lease2 := seedVersion(t, db, leaseID, 2, 1, nil)
	claim1 := seedVersion(t, db, claimID, 1, 1, nil)

	seedComparison(t, svc, lease1, lease2, 5, 0)
	seedComparison(t, svc, lease2, claim1, 15, 0)

	result, err := svc.List(ctx, ComparisonListQuery{Search: "claim"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || len(result.Items) != 1 {
		t.Fatalf("search result: total=%d items=%d", result.Total, len(result.Items))
	}
	if result.Items[0].TargetTemplateName != "Claim Form" {
		t.Fatalf("target template name: got %q", result.Items[0].TargetTemplateName)
	}

	empty, err := svc.List(ctx, ComparisonListQuery{Search: "no such template"})
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if empty.Total != 0 || len(empty.Items) != 0 {
		t.Fatalf("no-match search should return an empty page, got total=%d items=%d", empty.Total, len(empty.Items))
	}
}

func TestDeleteCascadesToFields(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tplID := seedTemplate(t, db, "Permit Application")
	v1 := seedVersion(t, db, tplID, 1, 1, []seedField{{fieldID: "a", fieldType: "text", page: 1, nearText: "A"}})
	v2 := seedVersion(t, db, tplID, 2, 1, []seedField{{fieldID: "a", fieldType: "text", page: 1, nearText: "B"}})

	analyzed, err := svc.Analyze(ctx, v1, v2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	id, err := svc.Save(ctx, analyzed, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, id); err == nil {
		t.Fatalf("Get after delete should fail")
	}
	var fieldCount int64
	if err := db.Model(&types.ComparisonField{}).Where("comparison_id = ?", id).Count(&fieldCount).Error; err != nil {
		t.Fatalf("count fields: %v", err)
	}
	if fieldCount != 0 {
		t.Fatalf("field rows should cascade on delete, got %d", fieldCount)
	}

	if err := svc.Delete(ctx, id); err == nil {
		t.Fatalf("second delete should report not found")
	}
}
