package crud

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/entities"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

var (
	technician42 = &rls.Context{Policy: rls.AssignedOnly, UserID: 42, Role: "technician"}
	customer42   = &rls.Context{Policy: rls.OwnRecordOnly, UserID: 42, Role: "customer"}
)

// newDomainService returns a service over the production entity registry
func newDomainService(t *testing.T) (*Service, sqlmock.Sqlmock, *audit.Recorder) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := &audit.Recorder{}
	clock := func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return NewService(entities.MustRegistry(), db, WithAuditLogger(recorder), WithClock(clock)), mock, recorder
}

func domainMeta(t *testing.T, svc *Service, key string) *schema.EntityMetadata {
	t.Helper()
	meta, err := svc.Registry().Get(key)
	require.NoError(t, err)
	return meta
}

func columnList(meta *schema.EntityMetadata) string {
	return strings.Join(baseColumns(meta), ", ")
}

func TestCreate_CustomerWithEmailOnly(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "customer")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO customers (email, is_active) VALUES ($1, $2) RETURNING " + strings.Join(fieldNames(meta), ", "))).
		WithArgs("a@b.com", true).
		WillReturnRows(sqlmock.NewRows([]string{"email", "id", "is_active"}).AddRow("a@b.com", int64(1001), true))

	record, err := svc.Create(context.Background(), "customer", map[string]interface{}{"email": "a@b.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), record["id"])
	assert.Equal(t, true, record["is_active"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_BoundToCaller(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "work_order")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO work_orders (customer_id, is_active, priority, status, title, work_order_number) VALUES ($1, $2, $3, $4, $5, $6) RETURNING " + strings.Join(fieldNames(meta), ", "))).
		WithArgs(int64(42), true, "normal", "pending", "Leaking tap", prefixArg{prefix: "WO-20250314-", length: len("WO-20250314-ABCDEF")}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id"}).AddRow(int64(7), int64(42)))

	record, err := svc.Create(context.Background(), "work_order",
		map[string]interface{}{"title": "Leaking tap"},
		&WriteOptions{Role: "customer", RLS: customer42})
	require.NoError(t, err)
	assert.Equal(t, int64(42), record["customer_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ScopeViolationsAreForbidden(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	opts := &WriteOptions{Role: "customer", RLS: customer42}

	tests := []struct {
		name   string
		entity string
		data   map[string]interface{}
	}{
		{"someone else's order", "work_order", map[string]interface{}{"title": "x", "customer_id": 99}},
		{"assigning a technician", "work_order", map[string]interface{}{"title": "x", "assigned_technician_id": 3}},
		{"a user row", "user", map[string]interface{}{"email": "x@y.test", "role_id": 1}},
		{"an unmapped policy", "technician", map[string]interface{}{"id": 42, "license_number": "L-1"}},
		{"shared reference data", "role", map[string]interface{}{"name": "auditor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.entity, tt.data, opts)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_OutsidePolicyReturnsNil(t *testing.T) {
	svc, mock, recorder := newDomainService(t)
	meta := domainMeta(t, svc, "work_order")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + columnList(meta) + " FROM work_orders WHERE (work_orders.id = $1) AND (work_orders.assigned_technician_id = $2)")).
		WithArgs(int64(8), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	record, err := svc.Update(context.Background(), "work_order", 8,
		map[string]interface{}{"status": "completed"},
		&WriteOptions{Role: "technician", RLS: technician42, Audit: &audit.Context{UserID: 42}})
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_InsidePolicyKeepsPredicate(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "work_order")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + columnList(meta) + " FROM work_orders WHERE (work_orders.id = $1) AND (work_orders.assigned_technician_id = $2)")).
		WithArgs(int64(8), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(8), "in_progress"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE work_orders SET status = $1, updated_at = NOW() WHERE (id = $2) AND (assigned_technician_id = $3) RETURNING id")).
		WithArgs("completed", int64(8), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectQuery(regexp.QuoteMeta(selectFrom(meta) + " WHERE (work_orders.id = $1) LIMIT 1")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "internal_notes"}).AddRow(int64(8), "completed", "gate code 1234"))
	mock.ExpectCommit()

	record, err := svc.Update(context.Background(), "work_order", "8",
		map[string]interface{}{"status": "completed"},
		&WriteOptions{Role: "technician", RLS: technician42})
	require.NoError(t, err)
	assert.Equal(t, "completed", record["status"])
	assert.NotContains(t, record, "internal_notes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_RestrictedFieldsAreForbidden(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	tech := &WriteOptions{Role: "technician", RLS: technician42}

	tests := []struct {
		name   string
		entity string
		data   map[string]interface{}
	}{
		{"own role", "user", map[string]interface{}{"role_id": 5}},
		{"own hourly rate", "technician", map[string]interface{}{"hourly_rate": "250"}},
		{"reassigning the order", "work_order", map[string]interface{}{"assigned_technician_id": 7}},
		{"moving the order to another customer", "work_order", map[string]interface{}{"customer_id": 3}},
		{"role catalogue", "role", map[string]interface{}{"description": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.entity, 42, tt.data, tech)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_AdminMayChangeRole(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "user")
	admin := &rls.Context{Policy: rls.AllRecords, UserID: 1, Role: "admin"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET role_id = $1, updated_at = NOW() WHERE id = $2 RETURNING id")).
		WithArgs(int64(4), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta(selectFrom(meta) + " WHERE (users.id = $1) LIMIT 1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role_id", "password_hash"}).AddRow(int64(7), int64(4), "x"))
	mock.ExpectCommit()

	record, err := svc.Update(context.Background(), "user", 7, map[string]interface{}{"role_id": 4},
		&WriteOptions{Role: "admin", RLS: admin})
	require.NoError(t, err)
	assert.Equal(t, int64(4), record["role_id"])
	assert.NotContains(t, record, "password_hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_OutsidePolicyIsNotFound(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "contract")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + columnList(meta) + " FROM contracts WHERE (contracts.id = $1) AND (contracts.customer_id = $2)")).
		WithArgs(int64(5), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Delete(context.Background(), "contract", 5, &WriteOptions{RLS: customer42})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_InsidePolicyKeepsPredicate(t *testing.T) {
	svc, mock, _ := newDomainService(t)
	meta := domainMeta(t, svc, "contract")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + columnList(meta) + " FROM contracts WHERE (contracts.id = $1) AND (contracts.customer_id = $2)")).
		WithArgs(int64(5), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id"}).AddRow(int64(5), int64(42)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE resource_type = $1 AND resource_id = $2")).
		WithArgs("contract", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contracts WHERE (id = $1) AND (customer_id = $2)")).
		WithArgs(int64(5), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Delete(context.Background(), "contract", 5, &WriteOptions{RLS: customer42})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch_OperationsAreScoped(t *testing.T) {
	svc, mock, recorder := newDomainService(t)
	meta := domainMeta(t, svc, "work_order")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + columnList(meta) + " FROM work_orders WHERE (work_orders.id = $1) AND (work_orders.assigned_technician_id = $2)")).
		WithArgs(int64(8), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	result, err := svc.Batch(context.Background(), "work_order", []BatchOperation{
		{Kind: BatchUpdate, ID: 8, Data: map[string]interface{}{"status": "completed"}},
	}, BatchOptions{RLS: technician42, Role: "technician", Audit: &audit.Context{UserID: 42}})
	require.ErrorIs(t, err, ErrNotFound)
	require.NotNil(t, result)
	assert.False(t, result.Committed)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnlyEntityRejectsWrites(t *testing.T) {
	svc, mock, recorder := newDomainService(t)
	ctx := context.Background()
	entry := map[string]interface{}{"action": "delete", "resource_type": "invoice", "user_id": 99}

	_, err := svc.Create(ctx, "audit_log", entry, &WriteOptions{RLS: customer42})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, "audit_log", entry, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, "audit_log", 1, map[string]interface{}{"ip_address": "1.1.1.1"}, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Delete(ctx, "audit_log", 1, &WriteOptions{Role: "admin"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Batch(ctx, "audit_log", []BatchOperation{{Kind: BatchDelete, ID: 1}}, BatchOptions{})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopedKeyFilter(t *testing.T) {
	meta := entities.WorkOrder()

	where := scopedKeyFilter(meta, 8, 2, nil)
	assert.Equal(t, "id = $3", where.Clause)
	assert.Equal(t, []interface{}{int64(8)}, where.Params)

	where = scopedKeyFilter(meta, 8, 2, technician42)
	assert.Equal(t, "(id = $3) AND (assigned_technician_id = $4)", where.Clause)
	assert.Equal(t, []interface{}{int64(8), int64(42)}, where.Params)

	where = scopedKeyFilter(meta, 8, 0, &rls.Context{Policy: rls.DenyAll})
	assert.Equal(t, "(id = $1) AND (1 = 0)", where.Clause)
}
