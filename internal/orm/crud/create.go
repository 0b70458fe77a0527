package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
	"github.com/fixhub/fixhub/internal/orm/validation"
)

// Create inserts a record and returns it as the caller may read it. When
// auditing is enabled the audit write completes before Create returns; an
// audit failure never fails the insert.
//
// Under a restrictive policy the record is bound to the caller through the
// policy's scoping column.
func (s *Service) Create(ctx context.Context, entity string, data map[string]interface{}, opts *WriteOptions) (map[string]interface{}, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}

	if err := checkWritable(meta, data, opts.rlsContext()); err != nil {
		return nil, err
	}

	clean, err := s.prepareCreate(meta, data, opts.rlsContext())
	if err != nil {
		return nil, err
	}

	record, err := insertRecord(ctx, s.db, meta, clean)
	if err != nil {
		return nil, err
	}

	if s.auditEnabled(opts) {
		s.audit.Log(ctx, s.auditEntry(audit.ActionCreate, meta, record[meta.PrimaryKey], opts.Audit, nil, record))
	}

	return output.FilterOutput(record, meta, opts.role()), nil
}

// prepareCreate turns caller data into the column values to insert.
// Everything here runs before any statement executes.
func (s *Service) prepareCreate(meta *schema.EntityMetadata, data map[string]interface{}, rlsCtx *rls.Context) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, badRequest("no data provided for %s", meta.Key)
	}

	clean, err := validation.Sanitize(meta, data)
	if err != nil {
		return nil, invalid(err)
	}

	for _, f := range systemFields {
		delete(clean, f)
	}
	if !meta.SharedPrimaryKey {
		delete(clean, meta.PrimaryKey)
	}

	for name, field := range meta.Fields {
		if field.Default == nil {
			continue
		}
		if _, ok := clean[name]; !ok {
			clean[name] = field.Default
		}
	}

	if c := meta.Computed; c != nil {
		if v, ok := clean[c.Field].(string); !ok || strings.TrimSpace(v) == "" {
			clean[c.Field] = s.computeIdentifier(c.Prefix)
		}
	}

	if err := scopeCreate(meta, clean, rlsCtx); err != nil {
		return nil, err
	}

	if err := validation.ValidateRequired(meta, clean); err != nil {
		return nil, invalid(err)
	}
	if len(clean) == 0 {
		return nil, badRequest("no valid fields provided for %s", meta.Key)
	}

	return encodeRecord(meta, clean)
}

// computeIdentifier returns PREFIX-YYYYMMDD-XXXXXX
func (s *Service) computeIdentifier(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s-%s-%s", prefix, s.now().UTC().Format("20060102"), suffix)
}

// insertRecord executes INSERT ... RETURNING with every declared field
func insertRecord(ctx context.Context, q querier, meta *schema.EntityMetadata, values map[string]interface{}) (map[string]interface{}, error) {
	columns := sortedKeys(values)
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		meta.Table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(fieldNames(meta), ", "),
	)

	record, err := queryOne(ctx, q, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", meta.Key, ConvertDBError(err))
	}
	if record == nil {
		return nil, fmt.Errorf("failed to create %s: no row returned", meta.Key)
	}
	return decodeRecord(meta, record), nil
}

// invalid wraps a validation failure as a bad request, keeping the field
// details reachable through errors.As
func invalid(err error) error {
	var ve *validation.ValidationErrors
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %w", ErrBadRequest, ve)
	}
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}
