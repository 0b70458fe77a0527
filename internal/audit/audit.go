// Package audit records who changed which entity and how. Recording never
// fails the caller: write errors are logged and dropped.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/orm/tracking"
)

// Action is the kind of mutation an entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Context identifies the actor and request behind a mutation
type Context struct {
	UserID    int64
	IPAddress string
	UserAgent string
	RequestID string
}

// Entry is one audit record
type Entry struct {
	Action        Action
	ResourceType  string
	ResourceID    interface{}
	UserID        int64
	IPAddress     string
	UserAgent     string
	OldValues     map[string]interface{}
	NewValues     map[string]interface{}
	ChangedFields []string
	CorrelationID string
	CreatedAt     time.Time
}

// NewEntry builds an entry for the mutation. Changed fields are derived from
// the snapshots; old is nil for creates and new is nil for deletes.
func NewEntry(action Action, resourceType string, resourceID interface{}, actx *Context, old, new map[string]interface{}) Entry {
	e := Entry{
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		OldValues:     old,
		NewValues:     new,
		ChangedFields: tracking.Diff(old, new).Fields(),
		CorrelationID: uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
	if actx != nil {
		e.UserID = actx.UserID
		e.IPAddress = actx.IPAddress
		e.UserAgent = actx.UserAgent
		if actx.RequestID != "" {
			e.CorrelationID = actx.RequestID
		}
	}
	return e
}

// Logger records audit entries. Implementations must not panic and have no
// error to return; a failed write is the implementation's concern.
type Logger interface {
	Log(ctx context.Context, entry Entry)
}

// NopLogger discards every entry
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, Entry) {}

// Execer is satisfied by *sql.DB
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertEntry = `INSERT INTO audit_logs (user_id, action, resource_type, resource_id, old_values, new_values, changed_fields, ip_address, user_agent, correlation_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// DBLogger writes entries to the audit_logs table
type DBLogger struct {
	db     Execer
	logger *zap.Logger
}

// NewDBLogger creates a DBLogger. Failed writes are reported to logger.
func NewDBLogger(db Execer, logger *zap.Logger) *DBLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBLogger{db: db, logger: logger}
}

// Log writes the entry and waits for the write to finish
func (l *DBLogger) Log(ctx context.Context, e Entry) {
	oldJSON, err := marshalSnapshot(e.OldValues)
	if err != nil {
		l.fail(e, err)
		return
	}
	newJSON, err := marshalSnapshot(e.NewValues)
	if err != nil {
		l.fail(e, err)
		return
	}
	changed, err := json.Marshal(e.ChangedFields)
	if err != nil {
		l.fail(e, err)
		return
	}

	var userID interface{}
	if e.UserID > 0 {
		userID = e.UserID
	}

	_, err = l.db.ExecContext(ctx, insertEntry,
		userID,
		string(e.Action),
		e.ResourceType,
		e.ResourceID,
		oldJSON,
		newJSON,
		string(changed),
		nullable(e.IPAddress),
		nullable(e.UserAgent),
		e.CorrelationID,
		e.CreatedAt,
	)
	if err != nil {
		l.fail(e, err)
	}
}

func (l *DBLogger) fail(e Entry, err error) {
	l.logger.Warn("audit write failed",
		zap.String("action", string(e.Action)),
		zap.String("entity", e.ResourceType),
		zap.Any("id", e.ResourceID),
		zap.Int64("user_id", e.UserID),
		zap.String("correlation_id", e.CorrelationID),
		zap.Error(err),
	)
}

func marshalSnapshot(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Recorder collects entries in memory, for tests and dry runs
type Recorder struct {
	Entries []Entry
}

// Log implements Logger
func (r *Recorder) Log(_ context.Context, e Entry) {
	r.Entries = append(r.Entries, e)
}
