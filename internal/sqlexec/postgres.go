package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizes a database/sql pool. Zero fields keep the database/sql defaults.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	if p.MaxOpen > 0 {
		db.SetMaxOpenConns(p.MaxOpen)
	}
	if p.MaxIdle > 0 {
		db.SetMaxIdleConns(p.MaxIdle)
	}
	if p.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.MaxIdleTime)
	}
	if p.MaxLifetime > 0 {
		db.SetConnMaxLifetime(p.MaxLifetime)
	}
}

const pingTimeout = 5 * time.Second

// Open returns a pgx-backed pool for dsn, or an error when the server does not
// answer a ping within pingTimeout.
func Open(ctx context.Context, dsn string, pool Pool) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.apply(db)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", mapPgErr(err))
	}
	return db, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Postgres executes statements over a database/sql pool.
type Postgres struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, types: pgtype.NewMap()}
}

func (p *Postgres) Execute(ctx context.Context, text string, params []any) ([]Row, error) {
	return p.run(ctx, p.db, text, params)
}

func (p *Postgres) ExecuteBatch(ctx context.Context, statements []Statement) ([][]Row, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", mapPgErr(err))
	}
	defer func() { _ = tx.Rollback() }()

	results := make([][]Row, 0, len(statements))
	for i, stmt := range statements {
		rows, err := p.run(ctx, tx, stmt.Text, stmt.Params)
		if err != nil {
			return nil, fmt.Errorf("batch statement %d: %w", i, err)
		}
		results = append(results, rows)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", mapPgErr(err))
	}
	return results, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) run(ctx context.Context, q queryer, text string, params []any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, text, params...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			value, err := normalizeColumn(p.types, column.DatabaseTypeName(), values[i])
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", column.Name(), err)
			}
			row[column.Name()] = value
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Code: pgErr.Code, Message: pgErr.Message}
	}
	return err
}
