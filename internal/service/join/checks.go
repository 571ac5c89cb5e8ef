package join

import (
	"fmt"

	"lakegov/internal/domain"
)

// Check thresholds.
const (
	NullWarnPercent = 10.0
	FanOutWarn      = 100.0
	FanOutFail      = 1000.0
)

// observedRelation derives the relation a sample exhibits. The left side is
// unique when every non-null key is distinct; the right side is unique when
// no left key matches more than one right row.
func observedRelation(s domain.JoinSample) domain.CardinalityRelation {
	leftUnique := s.DistinctLeftKeys == s.LeftRows-s.NullKeyRows
	rightUnique := s.MaxFanOut <= 1
	switch {
	case leftUnique && rightUnique:
		return domain.RelationOneToOne
	case leftUnique:
		return domain.RelationOneToMany
	case rightUnique:
		return domain.RelationManyToOne
	default:
		return domain.RelationManyToMany
	}
}

// evaluate turns a sample into stats and the three checks, in order:
// cardinality, null percentage, fan-out.
func evaluate(s domain.JoinSample, declared domain.CardinalityRelation) (domain.ValidationStats, []domain.CheckResult) {
	stats := domain.ValidationStats{
		CardinalityRelation: observedRelation(s),
		SampleSize:          s.LeftRows,
	}
	if s.LeftRows == 0 {
		return stats, []domain.CheckResult{
			{Name: domain.CheckCardinality, Outcome: domain.CheckFail, Detail: "sample is empty; cardinality cannot be verified"},
			{Name: domain.CheckNullKeys, Outcome: domain.CheckWarn, Detail: "sample is empty"},
			{Name: domain.CheckFanOut, Outcome: domain.CheckWarn, Detail: "sample is empty"},
		}
	}
	stats.NullPercentage = float64(s.NullKeyRows) / float64(s.LeftRows) * 100
	stats.FanOutMultiplier = float64(s.JoinedRows) / float64(s.LeftRows)

	return stats, []domain.CheckResult{
		cardinalityCheck(declared, stats.CardinalityRelation),
		nullCheck(stats.NullPercentage),
		fanOutCheck(stats.FanOutMultiplier),
	}
}

func cardinalityCheck(declared, observed domain.CardinalityRelation) domain.CheckResult {
	r := domain.CheckResult{Name: domain.CheckCardinality, Outcome: domain.CheckPass,
		Detail: fmt.Sprintf("declared %s, observed %s", declared, observed)}
	switch declared {
	case domain.RelationOneToOne:
		if observed != domain.RelationOneToOne {
			r.Outcome = domain.CheckFail
		}
	default:
		if observed == domain.RelationManyToMany {
			r.Outcome = domain.CheckFail
		}
	}
	return r
}

func nullCheck(pct float64) domain.CheckResult {
	r := domain.CheckResult{Name: domain.CheckNullKeys, Outcome: domain.CheckPass,
		Detail: fmt.Sprintf("%.2f%% of sampled rows have a null join key", pct)}
	if pct > NullWarnPercent {
		r.Outcome = domain.CheckWarn
	}
	return r
}

func fanOutCheck(fanOut float64) domain.CheckResult {
	r := domain.CheckResult{Name: domain.CheckFanOut, Outcome: domain.CheckPass,
		Detail: fmt.Sprintf("fan-out multiplier %.2f", fanOut)}
	switch {
	case fanOut > FanOutFail:
		r.Outcome = domain.CheckFail
		r.Detail = fmt.Sprintf("explosive join: fan-out multiplier %.2f exceeds %.0f", fanOut, FanOutFail)
	case fanOut > FanOutWarn:
		r.Outcome = domain.CheckWarn
	}
	return r
}
