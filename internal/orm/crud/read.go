package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// FindOptions control list and count queries
type FindOptions struct {
	Page            int
	Limit           int
	Search          string
	SortBy          string
	SortOrder       string
	Filters         map[string]interface{}
	IncludeInactive bool
}

// ListResult is one page of records
type ListResult struct {
	Data           []map[string]interface{} `json:"data"`
	Pagination     query.Pagination         `json:"pagination"`
	AppliedFilters map[string]interface{}   `json:"appliedFilters"`
	RLSApplied     bool                     `json:"rlsApplied"`
}

// FindByID returns the record with the given primary key, or nil when it
// does not exist or the caller's policy excludes it. The two cases are
// indistinguishable to the caller.
func (s *Service) FindByID(ctx context.Context, entity string, id interface{}, rlsCtx *rls.Context) (map[string]interface{}, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, meta, meta.PrimaryKey, key, rlsCtx)
}

// FindByField returns the first record whose field equals value. Only the
// primary key and filterable fields may be used.
func (s *Service) FindByField(ctx context.Context, entity, field string, value interface{}, rlsCtx *rls.Context) (map[string]interface{}, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}
	if field != meta.PrimaryKey && !meta.IsFilterable(field) {
		return nil, badRequest("field %q cannot be used for lookup on %s", field, meta.Key)
	}
	return s.findOne(ctx, meta, field, value, rlsCtx)
}

func (s *Service) findOne(ctx context.Context, meta *schema.EntityMetadata, field string, value interface{}, rlsCtx *rls.Context) (map[string]interface{}, error) {
	record, err := fetchOne(ctx, s.db, meta, field, value, rlsCtx)
	if err != nil || record == nil {
		return nil, err
	}
	return output.FilterOutput(record, meta, roleOf(rlsCtx)), nil
}

// fetchOne reads one record with its joins, unfiltered
func fetchOne(ctx context.Context, q querier, meta *schema.EntityMetadata, field string, value interface{}, rlsCtx *rls.Context) (map[string]interface{}, error) {
	where, _ := rls.BuildRecordFilter(rlsCtx, meta, field, value, meta.Table)
	stmt := selectFrom(meta) + where.Where() + " LIMIT 1"

	record, err := queryOne(ctx, q, stmt, where.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", meta.Key, field, ConvertDBError(err))
	}
	return decodeRecord(meta, record), nil
}

// listQuery is the composed predicate and ordering of a list request
type listQuery struct {
	where   query.Fragment
	sort    query.Sort
	applied map[string]interface{}
	rls     bool
}

// buildListQuery composes search, filter, active-only and row-level security
// predicates in that order. The policy predicate is AND-composed last so it
// can only narrow what the other predicates select.
func buildListQuery(meta *schema.EntityMetadata, opts FindOptions, rlsCtx *rls.Context) listQuery {
	search := query.BuildSearch(opts.Search, meta.SearchableFields, meta.Table, 0)
	filter, applied := query.BuildFilter(opts.Filters, meta.FilterableFields, search.ParamOffset, meta.Table)

	active := query.Empty(filter.ParamOffset)
	if meta.HasActiveFlag() && !opts.IncludeInactive {
		if _, explicit := applied["is_active"]; !explicit {
			active = query.Literal(query.Column(meta.Table, "is_active")+" = TRUE", filter.ParamOffset)
		}
	}

	policy, rlsApplied := rls.BuildFilter(rlsCtx, meta, active.ParamOffset, meta.Table)

	return listQuery{
		where:   query.Combine(search, filter, active, policy),
		sort:    query.BuildSort(opts.SortBy, opts.SortOrder, meta.SortableFields, meta.DefaultSort, meta.Table),
		applied: applied,
		rls:     rlsApplied,
	}
}

// FindAll returns one page of records. The total is counted by a separate
// statement before the page is read, so the two may disagree under
// concurrent writes.
func (s *Service) FindAll(ctx context.Context, entity string, opts FindOptions, rlsCtx *rls.Context) (*ListResult, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}

	lq := buildListQuery(meta, opts, rlsCtx)
	page := query.NewPage(opts.Page, opts.Limit)

	total, err := s.count(ctx, meta, lq.where)
	if err != nil {
		return nil, err
	}

	limit, limitParams := page.Clause(lq.where.ParamOffset)
	stmt := selectFrom(meta) + lq.where.Where()
	if lq.sort.Clause != "" {
		stmt += " " + lq.sort.Clause
	}
	stmt += " " + limit

	params := append(append([]interface{}{}, lq.where.Params...), limitParams...)
	records, err := queryRows(ctx, s.db, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", meta.Key, ConvertDBError(err))
	}
	for _, r := range records {
		decodeRecord(meta, r)
	}

	s.logger.Debug("entity list",
		zap.String("entity", meta.Key),
		zap.Int("total", total),
		zap.Int("returned", len(records)),
		zap.Bool("rls", lq.rls),
	)

	return &ListResult{
		Data:           output.FilterOutputArray(records, meta, roleOf(rlsCtx)),
		Pagination:     page.Paginate(total),
		AppliedFilters: lq.applied,
		RLSApplied:     lq.rls,
	}, nil
}

// Count returns the number of records matching the search, filters and
// policy. Paging and sorting options are ignored.
func (s *Service) Count(ctx context.Context, entity string, opts FindOptions, rlsCtx *rls.Context) (int, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, meta, buildListQuery(meta, opts, rlsCtx).where)
}

func (s *Service) count(ctx context.Context, meta *schema.EntityMetadata, where query.Fragment) (int, error) {
	stmt := "SELECT COUNT(*) FROM " + meta.Table + where.Where()

	var total int
	if err := s.db.QueryRowContext(ctx, stmt, where.Params...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", meta.Key, ConvertDBError(err))
	}
	return total, nil
}
