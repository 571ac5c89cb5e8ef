package drift

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lakegov/internal/domain"
)

type family int

const (
	familyOther family = iota
	familyInteger
	familyFloat
	familyDecimal
	familyString
	familyTemporal
)

// columnType is a parsed column type. width is bits for integers and floats,
// a temporal rank for dates and timestamps, and the declared length for
// strings (0 means unbounded).
type columnType struct {
	canonical string
	family    family
	width     int
	precision int
	scale     int
}

var (
	integerWidths = map[string]int{
		"TINYINT": 8, "INT1": 8,
		"SMALLINT": 16, "INT2": 16,
		"INTEGER": 32, "INT": 32, "INT4": 32,
		"BIGINT": 64, "INT8": 64, "LONG": 64,
		"HUGEINT": 128,
	}
	// integerDigits is the decimal digit count of each integer width.
	integerDigits = map[int]int{8: 3, 16: 5, 32: 10, 64: 19, 128: 39}

	floatWidths = map[string]int{
		"REAL": 32, "FLOAT": 32, "FLOAT4": 32,
		"DOUBLE": 64, "FLOAT8": 64, "DOUBLE PRECISION": 64,
	}
	stringNames   = map[string]bool{"VARCHAR": true, "TEXT": true, "STRING": true, "CHAR": true, "BPCHAR": true}
	temporalRanks = map[string]int{"DATE": 1, "TIMESTAMP": 2, "DATETIME": 2, "TIMESTAMPTZ": 3}

	typeArgs = regexp.MustCompile(`^([A-Z0-9_ ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)
)

// parseType normalises a SQL type name. Unrecognised types form their own
// family and only compare equal to themselves.
func parseType(raw string) columnType {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if s == "TIMESTAMP WITH TIME ZONE" {
		s = "TIMESTAMPTZ"
	}
	m := typeArgs.FindStringSubmatch(s)
	if m == nil {
		return columnType{canonical: s}
	}
	name := strings.TrimSpace(m[1])
	arg1, _ := strconv.Atoi(m[2])
	arg2, _ := strconv.Atoi(m[3])

	switch {
	case integerWidths[name] > 0:
		w := integerWidths[name]
		return columnType{canonical: intName(w), family: familyInteger, width: w}
	case floatWidths[name] > 0:
		w := floatWidths[name]
		canon := "DOUBLE"
		if w == 32 {
			canon = "REAL"
		}
		return columnType{canonical: canon, family: familyFloat, width: w}
	case name == "DECIMAL" || name == "NUMERIC":
		p, sc := 18, 3
		if m[2] != "" {
			p, sc = arg1, arg2
		}
		return columnType{canonical: fmt.Sprintf("DECIMAL(%d,%d)", p, sc), family: familyDecimal, precision: p, scale: sc}
	case stringNames[name]:
		if m[2] == "" {
			return columnType{canonical: "VARCHAR", family: familyString}
		}
		return columnType{canonical: fmt.Sprintf("VARCHAR(%d)", arg1), family: familyString, width: arg1}
	case temporalRanks[name] > 0:
		canon := name
		if name == "DATETIME" {
			canon = "TIMESTAMP"
		}
		return columnType{canonical: canon, family: familyTemporal, width: temporalRanks[name]}
	}
	return columnType{canonical: s}
}

func intName(width int) string {
	for _, n := range []string{"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT"} {
		if integerWidths[n] == width {
			return n
		}
	}
	return "INTEGER"
}

// sameType reports whether a and b normalise to the same type.
func sameType(a, b string) bool {
	return parseType(a).canonical == parseType(b).canonical
}

// classifyType returns the severity of changing a column from old to new and
// a short reason.
func classifyType(oldRaw, newRaw string) (domain.DriftSeverity, string) {
	o, n := parseType(oldRaw), parseType(newRaw)
	if o.canonical == n.canonical {
		return domain.DriftCompatible, ""
	}

	if o.family == n.family && o.family != familyOther {
		if widens(o, n) {
			return domain.DriftCompatible, "widened"
		}
		if o.family == familyTemporal && n.width >= 2 {
			return domain.DriftWarning, "time zone semantics changed"
		}
		return domain.DriftBreaking, "narrowed"
	}

	// Any value renders losslessly into an unbounded string.
	if n.family == familyString && n.width == 0 {
		return domain.DriftWarning, "converted to VARCHAR"
	}
	switch {
	case o.family == familyInteger && n.family == familyFloat:
		// REAL carries a 24-bit mantissa, DOUBLE a 53-bit one.
		if (n.width == 32 && o.width <= 16) || (n.width == 64 && o.width <= 32) {
			return domain.DriftWarning, "integer converted to floating point"
		}
	case o.family == familyInteger && n.family == familyDecimal:
		if n.precision-n.scale >= integerDigits[o.width] {
			return domain.DriftWarning, "integer converted to decimal"
		}
	case o.family == familyDecimal && n.family == familyFloat:
		if n.width == 64 && o.precision <= 15 {
			return domain.DriftWarning, "decimal converted to floating point"
		}
	}
	return domain.DriftBreaking, "incompatible type"
}

func widens(o, n columnType) bool {
	switch o.family {
	case familyInteger, familyFloat:
		return n.width > o.width
	case familyTemporal:
		return o.width == 1 && n.width == 2
	case familyDecimal:
		return n.precision >= o.precision && n.scale >= o.scale && n.precision-n.scale >= o.precision-o.scale
	case familyString:
		return n.width == 0 || (o.width > 0 && n.width >= o.width)
	}
	return false
}
