package contract

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"lakegov/internal/domain"
	"lakegov/internal/engine"
)

// draftValidate is the validator instance for contract drafts. Field errors
// are reported by JSON name.
var draftValidate *validator.Validate

func init() {
	draftValidate = validator.New(validator.WithRequiredStructEnabled())
	draftValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkStructure runs the tag-driven checks and converts the first failure
// into a ValidationError naming the JSON field path.
func checkStructure(draft *domain.ContractDraft) error {
	err := draftValidate.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrValidation("invalid contract draft: %v", err)
	}
	fe := verrs[0]
	return domain.ErrFieldValidation(fieldPath(fe.Namespace()), "%s", describe(fe))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprint(fe.Value()))
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s element(s)", fe.Param())
		}
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// normalize applies the semantic rules to a structurally valid draft and
// returns the fully populated contract. unsafe reports whether the draft
// relies on its unsafe_allow_processing_time acknowledgment.
func normalize(draft *domain.ContractDraft) (c *domain.Contract, unsafe bool, err error) {
	name := strings.TrimSpace(*draft.TargetTableName)
	if !tableNamePattern.MatchString(name) {
		return nil, false, domain.ErrFieldValidation("table_name", "%q is not a valid table name", name)
	}

	sem := draft.IngestionSemantic
	window, err := domain.ParseDedupeWindow(*sem.DedupeWindow)
	if err != nil {
		return nil, false, domain.ErrFieldValidation("ingestion_semantics.dedupe_window", "%v", err)
	}
	if window <= 0 {
		return nil, false, domain.ErrFieldValidation("ingestion_semantics.dedupe_window", "must be positive, got %s", *sem.DedupeWindow)
	}

	seen := make(map[string]bool, len(sem.IdempotencyKey))
	for _, k := range sem.IdempotencyKey {
		if seen[k] {
			return nil, false, domain.ErrFieldValidation("ingestion_semantics.idempotency_key", "duplicate column %q", k)
		}
		seen[k] = true
	}

	event := domain.TemporalColumn{Name: *sem.EventTimeColumn.Name, Source: domain.TimeSource(*sem.EventTimeColumn.Source)}
	processing := domain.TemporalColumn{Name: *sem.ProcessingTimeColumn.Name, Source: domain.TimeSource(*sem.ProcessingTimeColumn.Source)}

	if event.Name == processing.Name {
		if !sem.UnsafeAllowProcessingTime {
			return nil, false, domain.ErrFieldValidation("ingestion_semantics.processing_time_column",
				"must differ from event_time_column %q unless unsafe_allow_processing_time is set", event.Name)
		}
		unsafe = true
	}
	for _, tc := range []struct {
		field string
		col   domain.TemporalColumn
	}{
		{"ingestion_semantics.event_time_column.source", event},
		{"ingestion_semantics.processing_time_column.source", processing},
	} {
		field, col := tc.field, tc.col
		if col.Source != domain.TimeSourceWallClock {
			continue
		}
		if !sem.UnsafeAllowProcessingTime {
			return nil, false, domain.ErrFieldValidation(field,
				"wall_clock time source on %q makes replays non-reproducible; set unsafe_allow_processing_time to acknowledge", col.Name)
		}
		unsafe = true
	}

	c = &domain.Contract{
		ProducerEndpoint: strings.TrimSpace(*draft.ProducerEndpoint),
		TargetTableName:  name,
		Semantics: domain.IngestionSemantics{
			Mode:                      domain.IngestMode(*sem.Mode),
			IdempotencyKey:            append([]string(nil), sem.IdempotencyKey...),
			EventTimeColumn:           event,
			ProcessingTimeColumn:      processing,
			DedupeWindow:              window,
			ConflictResolution:        domain.ConflictResolution(*sem.ConflictResolution),
			UnsafeAllowProcessingTime: sem.UnsafeAllowProcessingTime,
		},
	}
	if draft.Schema != nil {
		c.Schema = *draft.Schema
		if err := checkSchema(c.Semantics, c.Schema); err != nil {
			return nil, false, err
		}
	}
	return c, unsafe, nil
}

// checkSchema verifies that the columns the semantics name exist in schema.
// Wall-clock columns are stamped at ingest and need not be present.
func checkSchema(sem domain.IngestionSemantics, schema domain.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	for i, col := range schema.Columns {
		if err := engine.ValidateColumnType(col.Type); err != nil {
			return domain.ErrFieldValidation(fmt.Sprintf("schema.columns[%d].type", i), "%v", err)
		}
	}
	for _, k := range sem.IdempotencyKey {
		if _, ok := schema.Column(k); !ok {
			return domain.ErrFieldValidation("ingestion_semantics.idempotency_key", "column %q is not in the schema", k)
		}
	}
	for _, tc := range []struct {
		field string
		col   domain.TemporalColumn
	}{
		{"ingestion_semantics.event_time_column.name", sem.EventTimeColumn},
		{"ingestion_semantics.processing_time_column.name", sem.ProcessingTimeColumn},
	} {
		field, col := tc.field, tc.col
		if col.Source == domain.TimeSourceWallClock {
			continue
		}
		if _, ok := schema.Column(col.Name); !ok {
			return domain.ErrFieldValidation(field, "column %q is not in the schema", col.Name)
		}
	}
	return nil
}
