package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeSQL(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCheckAnnotations(t *testing.T) {
	cases := map[string]struct {
		body    string
		wantErr string
	}{
		"ok":             {body: "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"},
		"missing up":     {body: "-- +goose Down\n", wantErr: "missing"},
		"missing down":   {body: "-- +goose Up\n", wantErr: "missing"},
		"down first":     {body: "-- +goose Down\n-- +goose Up\n", wantErr: "must precede"},
		"unclosed block": {body: "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n", wantErr: "never closed"},
		"stray end":      {body: "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n", wantErr: "without StatementBegin"},
		"nested block":   {body: "-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementBegin\n", wantErr: "inside block"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := checkAnnotations([]byte(tc.body))
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	writeSQL(t, dir, "init.sql", "-- +goose Up\n-- +goose Down\n")
	writeSQL(t, dir, "20260301120000_a.sql", "-- +goose Up\n")
	writeSQL(t, dir, "20260301120000_b.sql", "-- +goose Up\n-- +goose Down\n")
	writeSQL(t, dir, "README.md", "ignored")

	err := ValidateDir(dir)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 3)
}

func TestCreateSQLMigrationRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "  Add: Booking-Slots ", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260301120000_add_booking_slots.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), annotationUp))
	require.NoError(t, checkAnnotations(body))

	_, err = createSQLMigrationAt(dir, "add booking slots", at)
	require.ErrorContains(t, err, "already exists")

	_, err = createSQLMigrationAt(dir, "!!!", at)
	require.ErrorContains(t, err, "no usable characters")
}
