// Package diff implements the version comparison core: reconciling two
// field snapshots into classified changes and reducing those changes into
// aggregate metrics. Everything here is pure; no I/O, no shared state.
package diff

import (
	"sort"

	"github.com/formlens/formlens-backend/internal/types"
)

var choiceFieldTypes = map[string]struct{}{
	"select":   {},
	"radio":    {},
	"checkbox": {},
	"combobox": {},
	"listbox":  {},
}

// IsChoiceType reports whether a field type carries a value-option list.
func IsChoiceType(fieldType string) bool {
	_, ok := choiceFieldTypes[fieldType]
	return ok
}

// Diff reconciles the source and target field snapshots into one FieldChange
// per field identifier, ordered by field_id. Matching is by identity, not by
// position in the input slices, so input ordering never affects the output.
func Diff(source, target []types.FieldSnapshot) []types.FieldChange {
	sourceByID := make(map[string]types.FieldSnapshot, len(source))
	for _, snap := range source {
		sourceByID[snap.FieldID] = snap
	}
	targetByID := make(map[string]types.FieldSnapshot, len(target))
	for _, snap := range target {
		targetByID[snap.FieldID] = snap
	}

	ids := make([]string, 0, len(sourceByID)+len(targetByID))
	for id := range sourceByID {
		ids = append(ids, id)
	}
	for id := range targetByID {
		if _, ok := sourceByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	changes := make([]types.FieldChange, 0, len(ids))
	for _, id := range ids {
		src, inSource := sourceByID[id]
		tgt, inTarget := targetByID[id]
		switch {
		case !inSource:
			changes = append(changes, addedChange(tgt))
		case !inTarget:
			changes = append(changes, removedChange(src))
		default:
			changes = append(changes, comparedChange(src, tgt))
		}
	}
	return changes
}

func addedChange(tgt types.FieldSnapshot) types.FieldChange {
	page := tgt.PageNumber
	return types.FieldChange{
		FieldID:            tgt.FieldID,
		Status:             types.FieldAdded,
		FieldType:          tgt.FieldType,
		TargetPageNumber:   &page,
		NearTextDiff:       types.DiffNotApplicable,
		TargetNearText:     tgt.NearText,
		ValueOptionsDiff:   types.DiffNotApplicable,
		TargetValueOptions: tgt.ValueOptions,
		PositionDiff:       types.DiffNotApplicable,
		TargetPosition:     tgt.Position,
	}
}

func removedChange(src types.FieldSnapshot) types.FieldChange {
	page := src.PageNumber
	return types.FieldChange{
		FieldID:            src.FieldID,
		Status:             types.FieldRemoved,
		FieldType:          src.FieldType,
		SourcePageNumber:   &page,
		NearTextDiff:       types.DiffNotApplicable,
		SourceNearText:     src.NearText,
		ValueOptionsDiff:   types.DiffNotApplicable,
		SourceValueOptions: src.ValueOptions,
		PositionDiff:       types.DiffNotApplicable,
		SourcePosition:     src.Position,
	}
}

func comparedChange(src, tgt types.FieldSnapshot) types.FieldChange {
	srcPage := src.PageNumber
	tgtPage := tgt.PageNumber
	change := types.FieldChange{
		FieldID:            src.FieldID,
		Status:             types.FieldUnchanged,
		FieldType:          tgt.FieldType,
		SourcePageNumber:   &srcPage,
		TargetPageNumber:   &tgtPage,
		PageNumberChanged:  srcPage != tgtPage,
		SourceNearText:     src.NearText,
		TargetNearText:     tgt.NearText,
		SourceValueOptions: src.ValueOptions,
		TargetValueOptions: tgt.ValueOptions,
		SourcePosition:     src.Position,
		TargetPosition:     tgt.Position,
	}

	// Near text is always comparable when the field exists on both sides;
	// null and empty read as the same label.
	if derefString(src.NearText) == derefString(tgt.NearText) {
		change.NearTextDiff = types.DiffEqual
	} else {
		change.NearTextDiff = types.DiffDifferent
	}

	switch {
	case !IsChoiceType(src.FieldType) || !IsChoiceType(tgt.FieldType):
		change.ValueOptionsDiff = types.DiffNotApplicable
	case stringSlicesEqual(src.ValueOptions, tgt.ValueOptions):
		change.ValueOptionsDiff = types.DiffEqual
	default:
		change.ValueOptionsDiff = types.DiffDifferent
	}

	switch {
	case src.Position == nil || tgt.Position == nil:
		change.PositionDiff = types.DiffNotApplicable
	default:
		posChange := types.PositionChange{
			XChanged:      src.Position.X0 != tgt.Position.X0,
			YChanged:      src.Position.Y0 != tgt.Position.Y0,
			WidthChanged:  src.Position.Width() != tgt.Position.Width(),
			HeightChanged: src.Position.Height() != tgt.Position.Height(),
			Source:        *src.Position,
			Target:        *tgt.Position,
		}
		if posChange.XChanged || posChange.YChanged || posChange.WidthChanged || posChange.HeightChanged {
			change.PositionDiff = types.DiffDifferent
			change.PositionChange = &posChange
		} else {
			change.PositionDiff = types.DiffEqual
		}
	}

	if change.PageNumberChanged ||
		change.NearTextDiff == types.DiffDifferent ||
		change.ValueOptionsDiff == types.DiffDifferent ||
		change.PositionDiff == types.DiffDifferent {
		change.Status = types.FieldModified
	}
	return change
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
