package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
	"github.com/stacklok/toolhive-catalog-server/internal/versions"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewBufferString("no\n"))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, info.Version)
}

func TestCommandsRequireConfig(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {"sync"}, {"migrate", "up"}, {"validate"}} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "config")
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: sqlite\n")

	_, err := execute(t, "migrate", "up", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, "sync:\n  interval: 30m\n  window:\n    start: \"22:00\"\n    end: \"06:00\"\n")

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid configuration")
	assert.Contains(t, out, "Sync interval: 30m0s")
	assert.Contains(t, out, "Sync window: 22:00-06:00")

	bad := writeConfig(t, "cache:\n  ttl: later\n")
	_, err = execute(t, "validate", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.ttl")
}

func TestSyncCommand_MissingToken(t *testing.T) {
	t.Setenv("THV_CATALOG_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	path := writeConfig(t, "sqlite:\n  path: "+filepath.Join(t.TempDir(), "catalog.db")+"\n")

	_, err := execute(t, "sync", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GitHub token")
}

func TestSyncCommand_RejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: sqlite\n")

	_, err := execute(t, "sync", "--config", path, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestPrintResult(t *testing.T) {
	result := &pkgsync.SyncResult{
		RunID:        "run-1",
		Success:      false,
		Message:      "Sync completed with errors",
		Fetched:      4,
		Inserted:     2,
		Errors:       1,
		Duration:     1500 * time.Millisecond,
		Timestamp:    time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
		ErrorDetails: []string{"acme/broken: constraint violation"},
	}

	var table bytes.Buffer
	require.NoError(t, printResult(&table, formatTable, result))
	out := table.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "2025-06-01T03:00:00Z")
	assert.Contains(t, out, "acme/broken: constraint violation")

	var raw bytes.Buffer
	require.NoError(t, printResult(&raw, formatJSON, result))
	var decoded pkgsync.SyncResult
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Inserted)
	assert.Equal(t, result.ErrorDetails, decoded.ErrorDetails)
}

func TestConfirmed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		yes   bool
		want  bool
	}{
		{name: "flag", yes: true, want: true},
		{name: "typed yes", input: "yes\n", want: true},
		{name: "typed y", input: " Y \n", want: true},
		{name: "typed no", input: "no\n", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newMigrateCmd()
			require.NoError(t, cmd.ParseFlags([]string{"--yes=" + strconv.FormatBool(tt.yes)}))
			cmd.SetIn(bytes.NewBufferString(tt.input))
			cmd.SetOut(&bytes.Buffer{})

			got, err := confirmed(cmd, "Continue?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
