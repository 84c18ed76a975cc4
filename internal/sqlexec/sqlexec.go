// Package sqlexec runs parameterized SQL text and returns rows as column maps.
// Two transports are provided: a pooled database/sql connection over pgx and the
// Neon serverless HTTP endpoint.
package sqlexec

import (
	"context"
	"errors"
	"fmt"
)

// UniqueViolation is the SQLSTATE for duplicate keys.
const UniqueViolation = "23505"

type Row map[string]any

type Statement struct {
	Text   string
	Params []any
}

type Executor interface {
	Execute(ctx context.Context, text string, params []any) ([]Row, error)
}

// Batcher runs several statements in one transaction; either all apply or none do.
type Batcher interface {
	ExecuteBatch(ctx context.Context, statements []Statement) ([][]Row, error)
}

// Error is a database-reported failure carrying its SQLSTATE when known.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
}

func IsUniqueViolation(err error) bool {
	var target *Error
	return errors.As(err, &target) && target.Code == UniqueViolation
}
