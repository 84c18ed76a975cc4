package query

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/observability"
	"github.com/reyadatime/reyadatime/internal/sqlexec"
)

type Options struct {
	Relations       *Relations
	Logger          *slog.Logger
	StrictOrFilters bool
}

type Client struct {
	exec      sqlexec.Executor
	relations *Relations
	logger    *slog.Logger
	compile   CompileOptions
}

func NewClient(exec sqlexec.Executor, opts Options) *Client {
	relations := opts.Relations
	if relations == nil {
		relations = DefaultRelations()
	}
	return &Client{
		exec:      exec,
		relations: relations,
		logger:    observability.WithComponent(opts.Logger, "query"),
		compile:   CompileOptions{StrictOrFilters: opts.StrictOrFilters},
	}
}

func (c *Client) Executor() sqlexec.Executor {
	return c.exec
}

func (c *Client) Relations() *Relations {
	return c.relations
}

// CompileOptions exposes the options every builder from this client compiles with.
func (c *Client) CompileOptions() CompileOptions {
	return c.compile
}

// From starts a new SELECT * statement against table.
func (c *Client) From(table string) *Builder {
	return &Builder{client: c, desc: NewDescriptor(table)}
}

// Builder accumulates a statement. It is single-use: Execute runs it once.
type Builder struct {
	client   *Client
	desc     Descriptor
	err      *errs.Error
	executed atomic.Bool
}

func (b *Builder) Descriptor() Descriptor {
	return b.desc
}

func (b *Builder) Select(columns string, opts ...SelectOptions) *Builder {
	if columns == "" {
		columns = "*"
	}
	b.desc.Columns = columns
	b.desc.Count = ""
	b.desc.Head = false
	if len(opts) > 0 {
		b.desc.Count = opts[0].Count
		b.desc.Head = opts[0].Head
	}
	return b
}

func (b *Builder) compare(column, operator string, value any) *Builder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterCompare, Column: column, Operator: operator, Value: value})
	return b
}

func (b *Builder) Eq(column string, value any) *Builder  { return b.compare(column, "=", value) }
func (b *Builder) Neq(column string, value any) *Builder { return b.compare(column, "<>", value) }
func (b *Builder) Gt(column string, value any) *Builder  { return b.compare(column, ">", value) }
func (b *Builder) Gte(column string, value any) *Builder { return b.compare(column, ">=", value) }
func (b *Builder) Lt(column string, value any) *Builder  { return b.compare(column, "<", value) }
func (b *Builder) Lte(column string, value any) *Builder { return b.compare(column, "<=", value) }

// ILike matches pattern case-insensitively; pattern keeps its own % wildcards.
func (b *Builder) ILike(column, pattern string) *Builder { return b.compare(column, "ILIKE", pattern) }

func (b *Builder) In(column string, values ...any) *Builder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIn, Column: column, Values: values})
	return b
}

// Contains is a JSON containment test (column @> value::jsonb).
func (b *Builder) Contains(column string, value any) *Builder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterContains, Column: column, Operator: "@>", Value: value})
	return b
}

// Or adds a parenthesized group from "col.op.value,col.op.value".
func (b *Builder) Or(expression string) *Builder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterOr, Operator: "OR", Conditions: strings.Split(expression, ",")})
	return b
}

func (b *Builder) Order(column string, opts ...OrderOptions) *Builder {
	ascending := true
	if len(opts) > 0 {
		ascending = opts[0].Ascending
	}
	b.desc.Sorts = append(b.desc.Sorts, Sort{Column: column, Ascending: ascending})
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.desc.Limit = n
	return b
}

func (b *Builder) Single() *Builder {
	b.desc.Single = true
	b.desc.Limit = 1
	return b
}

func (b *Builder) MaybeSingle() *Builder {
	b.desc.MaybeSingle = true
	b.desc.Limit = 1
	return b
}

func (b *Builder) Insert(data any) *Builder {
	b.desc.Operation = OpInsert
	rows, err := toRecords(data)
	if err != nil {
		b.err = errs.Wrap(errs.KindValidation, err)
		return b
	}
	b.desc.Rows = rows
	return b
}

// Upsert is an alias of Insert; no conflict clause is emitted.
func (b *Builder) Upsert(data any) *Builder {
	return b.Insert(data)
}

func (b *Builder) Update(data any) *Builder {
	b.desc.Operation = OpUpdate
	rows, err := toRecords(data)
	if err != nil {
		b.err = errs.Wrap(errs.KindValidation, err)
		return b
	}
	if len(rows) > 1 {
		b.err = errs.New(errs.KindValidation, "update accepts a single record")
		return b
	}
	b.desc.Values = nil
	if len(rows) == 1 {
		b.desc.Values = rows[0]
	}
	return b
}

func (b *Builder) Delete() *Builder {
	b.desc.Operation = OpDelete
	return b
}

func (b *Builder) Compile() (sqlexec.Statement, error) {
	if b.err != nil {
		return sqlexec.Statement{}, b.err
	}
	return Compile(b.desc, b.client.relations, b.client.compile)
}

// Execute compiles and runs the statement. It never panics; every failure is
// reported through Result.Error.
func (b *Builder) Execute(ctx context.Context) (result Result) {
	start := time.Now()
	operation := string(b.desc.Operation)
	defer func() {
		if recovered := recover(); recovered != nil {
			result = b.fail(ctx, errs.Newf(errs.KindTransport, "query panic: %v", recovered))
		}
		outcome := "ok"
		if result.Error != nil {
			outcome = string(result.Error.Kind)
		}
		observability.ObserveQuery(operation, outcome, time.Since(start))
	}()

	if !b.executed.CompareAndSwap(false, true) {
		return b.fail(ctx, errs.New(errs.KindValidation, "query builder already executed"))
	}
	stmt, err := b.Compile()
	if err != nil {
		return b.fail(ctx, errs.From(err))
	}

	b.client.logger.DebugContext(ctx, "executing statement",
		slog.String("table", b.desc.Table),
		slog.String("operation", operation),
		slog.Int("params", len(stmt.Params)),
	)
	rows, err := b.client.exec.Execute(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return b.fail(ctx, classify(err))
	}
	return b.shape(ctx, rows)
}

func (b *Builder) shape(ctx context.Context, rows []sqlexec.Row) Result {
	if b.desc.countOnly() {
		var raw any
		if len(rows) > 0 {
			raw = rows[0]["total_count"]
		}
		count, err := parseCount(raw)
		if err != nil {
			return b.fail(ctx, errs.Wrap(errs.KindTransport, err))
		}
		return Result{Count: &count}
	}

	var result Result
	switch {
	case b.desc.Single:
		if len(rows) == 0 {
			return b.fail(ctx, errs.New(errs.KindNotFound, errs.ErrNotFound.Message))
		}
		if len(rows) > 1 {
			return b.fail(ctx, errs.New(errs.KindAmbiguous, errs.ErrAmbiguous.Message))
		}
		result.Data = rows[0]
	case b.desc.MaybeSingle:
		if len(rows) > 0 {
			result.Data = rows[0]
		}
	default:
		if rows == nil {
			rows = []sqlexec.Row{}
		}
		result.Data = rows
	}
	if b.desc.Count != "" {
		count := int64(len(rows))
		result.Count = &count
	}
	return result
}

func (b *Builder) fail(ctx context.Context, err *errs.Error) Result {
	if err.Kind != errs.KindNotFound {
		b.client.logger.ErrorContext(ctx, "database error",
			slog.String("table", b.desc.Table),
			slog.String("operation", string(b.desc.Operation)),
			slog.String("kind", string(err.Kind)),
			slog.String("error", err.Error()),
		)
	}
	return failure(err)
}

func classify(err error) *errs.Error {
	if sqlexec.IsUniqueViolation(err) {
		return errs.Wrap(errs.KindConflict, err)
	}
	return errs.From(err)
}
