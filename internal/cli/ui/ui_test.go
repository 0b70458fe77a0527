package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "Entity", "Table", "Policy")
	table.AddRow("work_order", "work_orders", "assigned_only")
	table.AddRow("role", "roles")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "Entity"+strings.Repeat(" ", 6)+"Table"+strings.Repeat(" ", 8)+"Policy", lines[0])
	assert.Contains(t, lines[1], "─")
	assert.Equal(t, "work_order  work_orders  assigned_only", lines[2])
	assert.Equal(t, "role"+strings.Repeat(" ", 8)+"roles"+strings.Repeat(" ", 8), lines[3])
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Table", "customers")
	kv.AddRow("Primary key", "id")
	kv.Render()

	assert.Equal(t, "Table:       customers\nPrimary key: id\n", buf.String())
}

func TestSuggest(t *testing.T) {
	known := []string{"work_order", "customer", "contract", "invoice", "inventory"}

	assert.Equal(t, []string{"customer"}, Suggest("custmer", known))
	assert.Equal(t, []string{"invoice"}, Suggest("Invoices", known))
	assert.Empty(t, Suggest("zzzzzzzzzzzz", known))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 0, levenshtein("", ""))
}

func TestUnknownEntityError(t *testing.T) {
	var buf bytes.Buffer
	UnknownEntityError(&buf, "workorder", []string{"work_order", "role"}, true)

	out := buf.String()
	assert.Contains(t, out, "UNKNOWN ENTITY: workorder")
	assert.Contains(t, out, "Did you mean: work_order?")
	assert.Contains(t, out, "fixhub entities")
}
