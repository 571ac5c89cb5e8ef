package join

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"lakegov/internal/domain"
)

// tableKeys is what scoring needs to know about one side of a join.
type tableKeys struct {
	// columns maps key-like column names to their normalised type.
	columns  map[string]string
	endpoint string
}

// keyColumns collects the key-like columns of t: "id", "*_id" and the
// idempotency key of its contract, if any.
func (e *Engine) keyColumns(ctx context.Context, t *domain.Table) (tableKeys, error) {
	var keys tableKeys
	idem := map[string]bool{}
	if t.ContractID != nil {
		c, err := e.contracts.GetByID(ctx, *t.ContractID)
		var nf *domain.NotFoundError
		switch {
		case errors.As(err, &nf):
		case err != nil:
			return keys, err
		default:
			keys.endpoint = c.ProducerEndpoint
			for _, k := range c.Semantics.IdempotencyKey {
				idem[k] = true
			}
		}
	}
	keys.columns = make(map[string]string)
	for _, col := range t.Schema.Columns {
		if isKeyLike(col.Name) || idem[col.Name] {
			keys.columns[col.Name] = normalizeType(col.Type)
		}
	}
	return keys, nil
}

func isKeyLike(name string) bool {
	name = strings.ToLower(name)
	return name == "id" || strings.HasSuffix(name, "_id")
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.Join(strings.Fields(t), ""))
}

// confidence is the weighted sum of key overlap and producer origin, clamped
// to [0, 1].
func (e *Engine) confidence(a, b tableKeys) float64 {
	score := e.cfg.KeyWeight*keyOverlap(a.columns, b.columns) + e.cfg.ProducerWeight*producerOrigin(a.endpoint, b.endpoint)
	return min(max(score, 0), 1)
}

// keyOverlap is the Jaccard index of two key column sets, where a column
// matches only on equal name and type.
func keyOverlap(a, b map[string]string) float64 {
	union := len(a)
	shared := 0
	for name, typ := range b {
		if at, ok := a[name]; ok && at == typ {
			shared++
			continue
		}
		union++
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// producerOrigin is 1 for identical producer endpoints, 0.5 when they share a
// host and 0 otherwise.
func producerOrigin(a, b string) float64 {
	a, b = strings.TrimRight(a, "/"), strings.TrimRight(b, "/")
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil || ua.Host == "" {
		return 0
	}
	if strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host) {
		return 0.5
	}
	return 0
}

// inferCondition pairs key columns present on both sides with equal types, in
// left column order. A bare "id" is a surrogate key and never pairs with
// itself. Failing that it tries the foreign-key convention "<right>_id = id"
// in either direction.
func inferCondition(left, right *domain.Table, keysA, keysB map[string]string) (domain.JoinCondition, bool) {
	var cond domain.JoinCondition
	for _, col := range left.Schema.Columns {
		if strings.EqualFold(col.Name, "id") {
			continue
		}
		ta, okA := keysA[col.Name]
		tb, okB := keysB[col.Name]
		if okA && okB && ta == tb {
			cond.LeftColumns = append(cond.LeftColumns, col.Name)
			cond.RightColumns = append(cond.RightColumns, col.Name)
		}
	}
	if len(cond.LeftColumns) > 0 {
		return cond, true
	}

	if fk, ok := foreignKey(left, right); ok {
		return domain.JoinCondition{LeftColumns: []string{fk}, RightColumns: []string{"id"}}, true
	}
	if fk, ok := foreignKey(right, left); ok {
		return domain.JoinCondition{LeftColumns: []string{"id"}, RightColumns: []string{fk}}, true
	}
	return domain.JoinCondition{}, false
}

// foreignKey finds a column of from named after to ("customer_id" for
// "customers") whose type matches to's "id" column.
func foreignKey(from, to *domain.Table) (string, bool) {
	id, ok := to.Schema.Column("id")
	if !ok {
		return "", false
	}
	base := to.LogicalName
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	for _, name := range []string{base + "_id", strings.TrimSuffix(base, "s") + "_id"} {
		if col, ok := from.Schema.Column(name); ok && normalizeType(col.Type) == normalizeType(id.Type) {
			return name, true
		}
	}
	return "", false
}

// checkCondition verifies that an explicit condition names existing columns.
// Tables registered without a schema are not checked.
func checkCondition(cond domain.JoinCondition, left, right *domain.Table) error {
	if err := cond.Validate(); err != nil {
		return err
	}
	for i := range cond.LeftColumns {
		if err := hasColumn(left, cond.LeftColumns[i], fmt.Sprintf("condition.left_columns[%d]", i)); err != nil {
			return err
		}
		if err := hasColumn(right, cond.RightColumns[i], fmt.Sprintf("condition.right_columns[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func hasColumn(t *domain.Table, name, field string) error {
	if name == "" {
		return domain.ErrFieldValidation(field, "must not be empty")
	}
	if len(t.Schema.Columns) == 0 {
		return nil
	}
	if _, ok := t.Schema.Column(name); !ok {
		return domain.ErrFieldValidation(field, "column %q is not in %s", name, t.LogicalName)
	}
	return nil
}
