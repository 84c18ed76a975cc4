// Package query is a fluent, single-use statement builder that compiles to
// parameterized PostgreSQL text and runs it through an sqlexec.Executor.
package query

type Operation string

const (
	OpSelect Operation = "select"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// CountExact requests a row count alongside (or, with Head, instead of) data.
const CountExact = "exact"

type Record map[string]any

type SelectOptions struct {
	Count string
	Head  bool
}

type OrderOptions struct {
	Ascending bool
}

var (
	Asc  = OrderOptions{Ascending: true}
	Desc = OrderOptions{Ascending: false}
)

type FilterKind int

const (
	FilterCompare FilterKind = iota
	FilterIn
	FilterContains
	FilterOr
)

type Filter struct {
	Kind     FilterKind
	Column   string
	Operator string
	Value    any
	Values   []any
	// Conditions holds the raw column.operator.value triples of an OR group.
	Conditions []string
}

type Sort struct {
	Column    string
	Ascending bool
}

// Descriptor is everything accumulated by a Builder before compilation.
type Descriptor struct {
	Table       string
	Operation   Operation
	Columns     string
	Count       string
	Head        bool
	Filters     []Filter
	Sorts       []Sort
	Limit       int
	Single      bool
	MaybeSingle bool
	// Rows is the INSERT payload; Values is the UPDATE payload.
	Rows   []Record
	Values Record
}

func NewDescriptor(table string) Descriptor {
	return Descriptor{Table: table, Operation: OpSelect, Columns: "*"}
}

func (d Descriptor) countOnly() bool {
	return d.Head && d.Count != ""
}
