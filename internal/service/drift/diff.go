package drift

import (
	"strings"

	"lakegov/internal/domain"
)

// DefaultRenameSimilarity is the name similarity at or above which a
// removed/added pair of identically typed columns is treated as a rename.
const DefaultRenameSimilarity = 0.8

// Diff classifies every difference between two schema snapshots. The result
// is deterministic: changes to existing columns come first in from order,
// then added columns in to order.
func Diff(from, to domain.Schema, renameThreshold float64) ([]domain.Change, domain.DriftSeverity) {
	oldCols := indexColumns(from)
	newCols := indexColumns(to)

	var removed, added []domain.Column
	for _, c := range from.Columns {
		if _, ok := newCols[c.Name]; !ok {
			removed = append(removed, c)
		}
	}
	for _, c := range to.Columns {
		if _, ok := oldCols[c.Name]; !ok {
			added = append(added, c)
		}
	}
	renames := matchRenames(removed, added, renameThreshold)
	renamedTo := make(map[string]bool, len(renames))
	for _, r := range renames {
		renamedTo[r.New] = true
	}

	var changes []domain.Change
	for _, oc := range from.Columns {
		if nc, ok := newCols[oc.Name]; ok {
			if ch, changed := classifyColumn(oc, nc); changed {
				changes = append(changes, ch)
			}
			continue
		}
		if r, ok := renames[oc.Name]; ok {
			changes = append(changes, r)
			continue
		}
		changes = append(changes, domain.ColumnRemoved{Column: oc})
	}
	for _, nc := range added {
		if renamedTo[nc.Name] {
			continue
		}
		changes = append(changes, domain.NewColumnAdded(nc, addSeverity(nc)))
	}

	severity := domain.DriftCompatible
	for _, ch := range changes {
		severity = domain.MaxSeverity(severity, ch.Severity())
	}
	return changes, severity
}

// addSeverity: a required column with no default breaks nothing already
// landed but rejects producers that do not send it.
func addSeverity(c domain.Column) domain.DriftSeverity {
	if !c.Nullable && c.Default == nil {
		return domain.DriftWarning
	}
	return domain.DriftCompatible
}

func classifyColumn(o, n domain.Column) (domain.Change, bool) {
	typeChanged := !sameType(o.Type, n.Type)
	nullChanged := o.Nullable != n.Nullable
	if !typeChanged && !nullChanged {
		return nil, false
	}

	severity := domain.DriftCompatible
	var reasons []string
	if typeChanged {
		sev, reason := classifyType(o.Type, n.Type)
		severity = domain.MaxSeverity(severity, sev)
		reasons = append(reasons, reason)
	}
	if nullChanged {
		switch {
		case n.Nullable:
			reasons = append(reasons, "nullability relaxed")
		case n.Default != nil:
			severity = domain.MaxSeverity(severity, domain.DriftWarning)
			reasons = append(reasons, "made non-nullable with default")
		default:
			severity = domain.MaxSeverity(severity, domain.DriftBreaking)
			reasons = append(reasons, "made non-nullable without default")
		}
	}
	return domain.NewColumnTypeChanged(o.Name, describeType(o), describeType(n),
		strings.Join(reasons, "; "), severity), true
}

func describeType(c domain.Column) string {
	t := parseType(c.Type).canonical
	if !c.Nullable {
		t += " NOT NULL"
	}
	return t
}

// matchRenames pairs removed and added columns of the same type whose names
// are similar enough. A column with more than one plausible counterpart is
// ambiguous and left as a remove/add.
func matchRenames(removed, added []domain.Column, threshold float64) map[string]domain.ColumnRenamed {
	type match struct {
		added      string
		similarity float64
	}
	byRemoved := make(map[string][]match)
	addedHits := make(map[string]int)
	for _, r := range removed {
		for _, a := range added {
			if !sameType(r.Type, a.Type) {
				continue
			}
			if sim := similarity(r.Name, a.Name); sim >= threshold {
				byRemoved[r.Name] = append(byRemoved[r.Name], match{added: a.Name, similarity: sim})
				addedHits[a.Name]++
			}
		}
	}

	out := make(map[string]domain.ColumnRenamed)
	for name, ms := range byRemoved {
		if len(ms) != 1 || addedHits[ms[0].added] != 1 {
			continue
		}
		out[name] = domain.ColumnRenamed{Old: name, New: ms[0].added, Similarity: ms[0].similarity}
	}
	return out
}

func indexColumns(s domain.Schema) map[string]domain.Column {
	m := make(map[string]domain.Column, len(s.Columns))
	for _, c := range s.Columns {
		m[c.Name] = c
	}
	return m
}
