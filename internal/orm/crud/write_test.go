package crud

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/validation"
)

// prefixArg matches a string argument by prefix and length
type prefixArg struct {
	prefix string
	length int
}

func (a prefixArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, a.prefix) && len(s) == a.length
}

func TestCreate_EmptyDataIsRejectedBeforeSQL(t *testing.T) {
	svc, mock, recorder := newTestService(t)

	_, err := svc.Create(context.Background(), "customer", map[string]interface{}{}, auditOpts())
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Create(context.Background(), "customer", nil, nil)
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ValidationErrors(t *testing.T) {
	svc, mock, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "customer", map[string]interface{}{"name": "Ann"}, nil)
	require.ErrorIs(t, err, ErrBadRequest)

	var ve *validation.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "email")

	_, err = svc.Create(context.Background(), "customer", map[string]interface{}{"email": "not-an-email"}, nil)
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_AppliesDefaultsAndAudits(t *testing.T) {
	svc, mock, recorder := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(customerInsert)).
		WithArgs("ann@example.com", true).
		WillReturnRows(newRows().AddRow(nil, "ann@example.com", int64(11), true, nil, nil, nil))

	record, err := svc.Create(context.Background(), "customer", map[string]interface{}{
		"email":      " Ann@Example.COM ",
		"id":         99,
		"created_at": "2020-01-01T00:00:00Z",
		"unknown":    "dropped",
	}, auditOpts())
	require.NoError(t, err)
	assert.Equal(t, int64(11), record["id"])
	assert.Equal(t, true, record["is_active"])

	require.Len(t, recorder.Entries, 1)
	entry := recorder.Entries[0]
	assert.Equal(t, audit.ActionCreate, entry.Action)
	assert.Equal(t, "customer", entry.ResourceType)
	assert.Equal(t, int64(11), entry.ResourceID)
	assert.Nil(t, entry.OldValues)
	assert.Equal(t, "ann@example.com", entry.NewValues["email"])
	assert.Contains(t, entry.ChangedFields, "email")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_StructuredFieldRoundTrip(t *testing.T) {
	svc, mock, _ := newTestService(t)

	prefs := map[string]interface{}{
		"contact": "sms",
		"count":   2.0,
		"windows": []interface{}{"am", "pm"},
	}
	stored := `{"contact":"sms","count":2,"windows":["am","pm"]}`

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO customers (email, is_active, preferences) VALUES ($1, $2, $3) RETURNING created_at, email, id, is_active, name, preferences, updated_at")).
		WithArgs("ann@example.com", true, stored).
		WillReturnRows(newRows().AddRow(nil, "ann@example.com", int64(12), true, nil, stored, nil))
	mock.ExpectQuery(regexp.QuoteMeta(customerSelect + " WHERE (customers.id = $1) LIMIT 1")).
		WithArgs(int64(12)).
		WillReturnRows(newRows().AddRow(nil, "ann@example.com", int64(12), true, nil, []byte(stored), nil))

	created, err := svc.Create(context.Background(), "customer", map[string]interface{}{
		"email":       "ann@example.com",
		"preferences": prefs,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, prefs, created["preferences"])

	found, err := svc.FindByID(context.Background(), "customer", 12, nil)
	require.NoError(t, err)
	assert.Equal(t, prefs, found["preferences"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ComputedIdentifier(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO work_orders (customer_id, title, work_order_number) VALUES ($1, $2, $3) RETURNING customer_id, id, internal_notes, title, work_order_number")).
		WithArgs(int64(5), "Leaking tap", prefixArg{prefix: "WO-20250314-", length: len("WO-20250314-ABCDEF")}).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "id", "internal_notes", "title", "work_order_number"}).
			AddRow(int64(5), int64(1), "call first", "Leaking tap", "WO-20250314-0A1B2C"))

	record, err := svc.Create(context.Background(), "work_order", map[string]interface{}{
		"title":       "Leaking tap",
		"customer_id": "5",
	}, &WriteOptions{Role: "customer"})
	require.NoError(t, err)
	assert.Equal(t, "WO-20250314-0A1B2C", record["work_order_number"])
	assert.NotContains(t, record, "internal_notes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_InsertFailure(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(customerInsert)).
		WithArgs("ann@example.com", true).
		WillReturnError(errors.New("boom"))

	_, err := svc.Create(context.Background(), "customer", map[string]interface{}{"email": "ann@example.com"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create customer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_ProtectedRoleIsForbidden(t *testing.T) {
	svc, mock, recorder := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(roleLoad)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"description", "id", "name", "priority"}).
			AddRow("Full access", int64(1), "admin", int64(1)))
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), "role", 1, map[string]interface{}{"name": "superadmin"}, auditOpts())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, IsForbidden(err))
	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_UnprotectedRoleRename(t *testing.T) {
	svc, mock, recorder := newTestService(t)
	roleCols := []string{"description", "id", "name", "priority"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(roleLoad)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("Reads reports", int64(7), "auditor", int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE roles SET name = $1 WHERE id = $2 RETURNING id")).
		WithArgs("reviewer", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT roles.description, roles.id, roles.name, roles.priority FROM roles WHERE (roles.id = $1) LIMIT 1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("Reads reports", int64(7), "reviewer", int64(9)))
	mock.ExpectCommit()

	record, err := svc.Update(context.Background(), "role", "7", map[string]interface{}{"name": "reviewer"}, auditOpts())
	require.NoError(t, err)
	assert.Equal(t, "reviewer", record["name"])

	require.Len(t, recorder.Entries, 1)
	entry := recorder.Entries[0]
	assert.Equal(t, audit.ActionUpdate, entry.Action)
	assert.Equal(t, "auditor", entry.OldValues["name"])
	assert.Equal(t, []string{"name"}, entry.ChangedFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_GuardedMissingRowIsNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(roleLoad)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"description", "id", "name", "priority"}))
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), "role", 99, map[string]interface{}{"name": "x"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NoMatchReturnsNil(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE customers SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING id")).
		WithArgs(false, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	record, err := svc.Update(context.Background(), "customer", 3, map[string]interface{}{
		"is_active": "false",
		"id":        9,
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NoValidFields(t *testing.T) {
	svc, mock, _ := newTestService(t)

	for _, data := range []map[string]interface{}{
		{},
		{"id": 5},
		{"updated_at": "2025-01-01T00:00:00Z"},
		{"bogus": 1},
	} {
		_, err := svc.Update(context.Background(), "customer", 3, data, nil)
		assert.ErrorIs(t, err, ErrBadRequest, "%v", data)
	}

	_, err := svc.Update(context.Background(), "work_order", 3, map[string]interface{}{"work_order_number": "WO-X"}, nil)
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_CascadesAndAudits(t *testing.T) {
	svc, mock, recorder := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(customerLoad)).
		WithArgs(int64(4)).
		WillReturnRows(newRows().AddRow(nil, "bo@example.com", int64(4), true, "Bo", nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM work_orders WHERE customer_id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE resource_type = $1 AND resource_id = $2")).
		WithArgs("customer", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM customers WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Delete(context.Background(), "customer", 4, auditOpts())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.ID)
	assert.Equal(t, int64(3), result.CascadeDeleted)
	assert.Equal(t, "bo@example.com", result.Record["email"])

	require.Len(t, recorder.Entries, 1)
	entry := recorder.Entries[0]
	assert.Equal(t, audit.ActionDelete, entry.Action)
	assert.Equal(t, "Bo", entry.OldValues["name"])
	assert.Nil(t, entry.NewValues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Missing(t *testing.T) {
	svc, mock, recorder := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(customerLoad)).
		WithArgs(int64(404)).
		WillReturnRows(newRows())
	mock.ExpectRollback()

	_, err := svc.Delete(context.Background(), "customer", 404, auditOpts())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, recorder.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_ProtectedRole(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(roleLoad)).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"description", "id", "name", "priority"}).
			AddRow(nil, int64(2), []byte("customer"), int64(5)))
	mock.ExpectRollback()

	_, err := svc.Delete(context.Background(), "role", 2, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_CascadeFailureRollsBack(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(customerLoad)).
		WithArgs(int64(4)).
		WillReturnRows(newRows().AddRow(nil, "bo@example.com", int64(4), true, "Bo", nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM work_orders WHERE customer_id = $1")).
		WithArgs(int64(4)).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := svc.Delete(context.Background(), "customer", 4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}
