package engine

import (
	"fmt"
	"path"
	"strings"

	"lakegov/internal/domain"
)

// sampleSeed keeps reservoir samples stable across validations of one table.
const sampleSeed = 42

var fileFormats = map[string]bool{".parquet": true, ".csv": true, ".json": true, ".ndjson": true, ".jsonl": true}

// Relation returns the DuckDB relation expression a table version reads
// from. A location that is a file, a URI or a prefix ending in "/" is read
// with the table function matching its format; any other location, or an
// empty one, is a catalog name.
func Relation(t *domain.Table) (string, error) {
	loc := strings.TrimSpace(t.Location)
	if loc == "" {
		return QualifiedName(t.LogicalName)
	}
	ext := strings.ToLower(path.Ext(loc))
	if !strings.Contains(loc, "://") && !strings.HasPrefix(loc, "/") && !strings.HasSuffix(loc, "/") && !fileFormats[ext] {
		return QualifiedName(loc)
	}
	loc = strings.TrimPrefix(loc, "file://")
	if strings.HasSuffix(loc, "/") {
		loc += "**/*.parquet"
	}
	switch strings.ToLower(path.Ext(loc)) {
	case ".parquet":
		return fmt.Sprintf("read_parquet(%s)", QuoteLiteral(loc)), nil
	case ".csv":
		return fmt.Sprintf("read_csv_auto(%s)", QuoteLiteral(loc)), nil
	case ".json", ".ndjson", ".jsonl":
		return fmt.Sprintf("read_json_auto(%s)", QuoteLiteral(loc)), nil
	default:
		return "", fmt.Errorf("table %s: unsupported location format %q", t.ID, t.Location)
	}
}

// JoinSampleSQL builds the statistics query for a join. The left side is a
// reservoir sample of sampleSize rows; the right side is read in full so
// fan-out is exact for the sampled keys. The query returns one row:
// left_rows, distinct_left_keys, joined_rows, max_fan_out, null_key_rows.
func JoinSampleSQL(left, right string, cond domain.JoinCondition, sampleSize int) (string, error) {
	if err := cond.Validate(); err != nil {
		return "", err
	}
	if sampleSize <= 0 {
		return "", fmt.Errorf("sample size must be positive, got %d", sampleSize)
	}

	n := len(cond.LeftColumns)
	var (
		leftSel, rightSel, keys, notNull, anyNull, onL, onD []string
	)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%d", i)
		if err := ValidateIdentifier(cond.LeftColumns[i]); err != nil {
			return "", fmt.Errorf("left column: %w", err)
		}
		if err := ValidateIdentifier(cond.RightColumns[i]); err != nil {
			return "", fmt.Errorf("right column: %w", err)
		}
		leftSel = append(leftSel, fmt.Sprintf("%s AS %s", QuoteIdentifier(cond.LeftColumns[i]), k))
		rightSel = append(rightSel, fmt.Sprintf("%s AS %s", QuoteIdentifier(cond.RightColumns[i]), k))
		keys = append(keys, k)
		notNull = append(notNull, k+" IS NOT NULL")
		anyNull = append(anyNull, k+" IS NULL")
		onL = append(onL, fmt.Sprintf("l.%s = r.%s", k, k))
		onD = append(onD, fmt.Sprintf("d.%s = r.%s", k, k))
	}

	return fmt.Sprintf(`WITH l AS (
	SELECT %s FROM %s USING SAMPLE reservoir(%d ROWS) REPEATABLE (%d)
),
r AS (
	SELECT %s FROM %s
),
d AS (
	SELECT DISTINCT %s FROM l WHERE %s
),
m AS (
	SELECT COUNT(*) AS n FROM d JOIN r ON %s GROUP BY %s
)
SELECT
	(SELECT COUNT(*) FROM l),
	(SELECT COUNT(*) FROM d),
	(SELECT COUNT(*) FROM l JOIN r ON %s),
	(SELECT COALESCE(MAX(n), 0) FROM m),
	(SELECT COUNT(*) FROM l WHERE %s)`,
		strings.Join(leftSel, ", "), left, sampleSize, sampleSeed,
		strings.Join(rightSel, ", "), right,
		strings.Join(keys, ", "), strings.Join(notNull, " AND "),
		strings.Join(onD, " AND "), prefixed("d.", keys),
		strings.Join(onL, " AND "),
		strings.Join(anyNull, " OR "),
	), nil
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

// CreateS3Secret returns the DDL for a DuckDB S3 secret.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	opts := []string{
		"TYPE S3",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
		"REGION " + QuoteLiteral(region),
	}
	if endpoint != "" {
		opts = append(opts, "ENDPOINT "+QuoteLiteral(endpoint))
	}
	if urlStyle != "" {
		opts = append(opts, "URL_STYLE "+QuoteLiteral(urlStyle))
	}
	return createSecret(name, opts), nil
}

// CreateAzureSecret returns the DDL for a DuckDB Azure secret using an
// account key.
func CreateAzureSecret(name, accountName, accountKey string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	conn := fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		accountName, accountKey)
	return createSecret(name, []string{"TYPE AZURE", "CONNECTION_STRING " + QuoteLiteral(conn)}), nil
}

// CreateGCSSecret returns the DDL for a DuckDB GCS secret backed by a
// service-account key file.
func CreateGCSSecret(name, keyFilePath string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return createSecret(name, []string{"TYPE GCS", "KEY_FILE_PATH " + QuoteLiteral(keyFilePath)}), nil
}

func createSecret(name string, opts []string) string {
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)", QuoteIdentifier(name), strings.Join(opts, ",\n\t"))
}
