package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location of the migrations relative to the repo
// root. create and validate work against it.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Report is one line of migration output.
type Report struct {
	Version   int64
	Path      string
	Direction string
	State     string
	Duration  time.Duration
}

func (r Report) String() string {
	if r.State != "" {
		return fmt.Sprintf("%-14d %-10s %s", r.Version, r.State, r.Path)
	}
	return fmt.Sprintf("%-14d %-5s %s (%s)", r.Version, r.Direction, r.Path, r.Duration.Round(time.Millisecond))
}

// Source returns the embedded migrations for an empty dir and the directory
// contents otherwise.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	return os.DirFS(dir), nil
}

func newProvider(db *sql.DB, dialect, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dialect == "" {
		dialect = string(goose.DialectPostgres)
	}
	fsys, err := Source(dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	provider, err := goose.NewProvider(goose.Dialect(dialect), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down or status.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string) ([]Report, error) {
	provider, err := newProvider(db, dialect, dir)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		return fromResults(results), wrapCommand(command, err)
	case "down":
		result, err := provider.Down(ctx)
		if result == nil {
			return nil, wrapCommand(command, err)
		}
		return fromResults([]*goose.MigrationResult{result}), wrapCommand(command, err)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, wrapCommand(command, err)
		}
		reports := make([]Report, 0, len(statuses))
		for _, st := range statuses {
			reports = append(reports, Report{
				Version: st.Source.Version,
				Path:    st.Source.Path,
				State:   string(st.State),
			})
		}
		return reports, nil
	default:
		return nil, fmt.Errorf("unsupported command %q", command)
	}
}

// MigrateToVersion moves up or down until the database sits at targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) ([]Report, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	provider, err := newProvider(db, dialect, dir)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	return fromResults(results), wrapCommand(fmt.Sprintf("migrate to %d", target), err)
}

func fromResults(results []*goose.MigrationResult) []Report {
	reports := make([]Report, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		reports = append(reports, Report{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return reports
}

func wrapCommand(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
