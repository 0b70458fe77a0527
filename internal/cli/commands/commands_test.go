package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"entities", "migrate", "routes", "serve", "version"})
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fixhub version:")
	assert.Contains(t, out, Version)
	assert.Contains(t, out, "Go version:")
}

func TestEntitiesCommand_List(t *testing.T) {
	out, _, err := run(t, "entities")
	require.NoError(t, err)

	for _, key := range []string{"role", "user", "customer", "technician", "work_order", "invoice", "contract", "inventory", "audit_log"} {
		assert.Contains(t, out, key)
	}
	assert.Contains(t, out, "assigned_only=assigned_technician_id")
}

func TestEntitiesCommand_Describe(t *testing.T) {
	out, _, err := run(t, "entities", "user")
	require.NoError(t, err)

	assert.Contains(t, out, "Table:")
	assert.Contains(t, out, "users")
	lines := strings.Split(out, "\n")
	var hashLine string
	for _, l := range lines {
		if strings.HasPrefix(l, "password_hash") {
			hashLine = l
		}
	}
	require.NotEmpty(t, hashLine)
	assert.Contains(t, hashLine, "nobody")
}

func TestEntitiesCommand_DescribeWriteAccess(t *testing.T) {
	out, _, err := run(t, "entities", "audit_log")
	require.NoError(t, err)
	assert.Contains(t, out, "Writable by:")
	assert.Contains(t, out, "nobody")

	out, _, err = run(t, "entities", "role")
	require.NoError(t, err)
	assert.Contains(t, out, "admin+")
}

func TestEntitiesCommand_Unknown(t *testing.T) {
	_, stderr, err := run(t, "entities", "workorder")
	require.Error(t, err)
	assert.Contains(t, stderr, "Did you mean: work_order?")
}

func TestRoutesCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n  api_prefix: /v2\n"), 0o644))

	out, _, err := run(t, "routes", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "/v2/{entity}/batch")
	assert.Contains(t, out, "entity.delete")
	assert.Contains(t, out, "/health")
}

func TestServeCommand_RequiresDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("FIXHUB_DATABASE_URL", "")

	_, _, err := run(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestMigrateCommand_RequiresDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("FIXHUB_DATABASE_URL", "")

	_, _, err := run(t, "migrate", "status", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}
