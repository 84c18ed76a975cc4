// Package migrations applies the embedded schema to Postgres (or Neon) and
// records each applied version in reyada_schema_migrations.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "reyada_schema_migrations"

// Files are named <version>_<name>.<up|down>.sql.
var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// NewRunnerFS reads migrations from the sql/ directory of fsys.
func NewRunnerFS(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys}
}

type Migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m Migration) label() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

type Status struct {
	Version int64
	Name    string
	Applied bool
}

// Up applies pending migrations in version order. steps <= 0 applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return 0, err
	}
	done := make(map[int64]bool, len(applied))
	for _, version := range applied {
		done[version] = true
	}

	count := 0
	for _, m := range known {
		if done[m.Version] {
			continue
		}
		if steps > 0 && count == steps {
			break
		}
		record := `INSERT INTO ` + migrationTable + ` (version, name) VALUES ($1, $2)`
		if err := runStep(ctx, db, m, m.Up, record, m.Version, m.Name); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]Migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}

	count := 0
	for i := len(applied) - 1; i >= 0 && count < steps; i-- {
		m, ok := byVersion[applied[i]]
		if !ok {
			return count, fmt.Errorf("applied migration %d has no source file", applied[i])
		}
		record := `DELETE FROM ` + migrationTable + ` WHERE version = $1`
		if err := runStep(ctx, db, m, m.Down, record, m.Version); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Status lists every known migration and whether it has been applied.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(known))
	for _, m := range known {
		out = append(out, Status{
			Version: m.Version,
			Name:    m.Name,
			Applied: slices.Contains(applied, m.Version),
		})
	}
	return out, nil
}

// state loads the source migrations and the applied versions in ascending order.
func (r *Runner) state(ctx context.Context, db *sql.DB) ([]Migration, []int64, error) {
	known, err := Load(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, nil, fmt.Errorf("ensure %s: %w", migrationTable, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version`)
	if err != nil {
		return nil, nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var applied []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, version)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return known, applied, nil
}

// runStep executes script and the bookkeeping statement in one transaction.
func runStep(ctx context.Context, db *sql.DB, m Migration, script, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("migration %s: %w", m.label(), err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("migration %s: record: %w", m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.label(), err)
	}
	return nil
}

// Load reads sql/*.sql from fsys and pairs up and down scripts by version.
// Every version needs both halves and a single name.
func Load(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := map[int64]*Migration{}
	for _, file := range files {
		parts := fileNamePattern.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", file, err)
		}
		script, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has two names: %q and %q", version, m.Name, parts[2])
		}
		if parts[3] == "up" {
			m.Up = string(script)
		} else {
			m.Down = string(script)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		switch {
		case strings.TrimSpace(m.Up) == "":
			return nil, fmt.Errorf("migration %s missing up SQL", m.label())
		case strings.TrimSpace(m.Down) == "":
			return nil, fmt.Errorf("migration %s missing down SQL", m.label())
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}
