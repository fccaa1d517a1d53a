package diff

import (
	"math"

	"github.com/formlens/formlens-backend/internal/types"
)

// VersionStats is the denormalized metadata of one version as it feeds the
// aggregate metrics.
type VersionStats struct {
	PageCount  int
	FieldCount int
}

// Aggregate reduces a change sequence into GlobalMetrics. The four status
// counts always sum to the number of changes, and the percentage is the
// changed share of that total, rounded to two decimals for display
// stability. An empty change set has a percentage of 0.
func Aggregate(changes []types.FieldChange, source, target VersionStats) types.GlobalMetrics {
	metrics := types.GlobalMetrics{
		SourcePageCount:   source.PageCount,
		TargetPageCount:   target.PageCount,
		SourceFieldCount:  source.FieldCount,
		TargetFieldCount:  target.FieldCount,
		PageCountChanged:  source.PageCount != target.PageCount,
		FieldCountChanged: source.FieldCount != target.FieldCount,
	}
	for _, change := range changes {
		switch change.Status {
		case types.FieldAdded:
			metrics.FieldsAdded++
		case types.FieldRemoved:
			metrics.FieldsRemoved++
		case types.FieldModified:
			metrics.FieldsModified++
		case types.FieldUnchanged:
			metrics.FieldsUnchanged++
		}
	}
	total := metrics.FieldsAdded + metrics.FieldsRemoved + metrics.FieldsModified + metrics.FieldsUnchanged
	if total > 0 {
		changed := metrics.FieldsAdded + metrics.FieldsRemoved + metrics.FieldsModified
		pct := 100 * float64(changed) / float64(total)
		metrics.ModificationPercentage = math.Round(pct*100) / 100
	}
	return metrics
}
