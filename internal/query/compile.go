package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/sqlexec"
)

type CompileOptions struct {
	// StrictOrFilters compiles every comparison operator inside Or groups and
	// rejects unknown ones. When false only ilike branches compare; other
	// branches compile to 1=1.
	StrictOrFilters bool
}

var (
	nestedPattern     = regexp.MustCompile(`([\w!]+):?([\w!]+)?\s*\(([^)]+)\)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var strictOrOperators = map[string]string{
	"eq":    "=",
	"neq":   "<>",
	"gt":    ">",
	"gte":   ">=",
	"lt":    "<",
	"lte":   "<=",
	"like":  "LIKE",
	"ilike": "ILIKE",
}

type compiler struct {
	desc      Descriptor
	relations *Relations
	opts      CompileOptions
	params    []any
}

// Compile turns a descriptor into SQL text and its positional parameters.
// It performs no I/O.
func Compile(desc Descriptor, relations *Relations, opts CompileOptions) (sqlexec.Statement, error) {
	if err := validateQualified("table", desc.Table); err != nil {
		return sqlexec.Statement{}, err
	}
	c := &compiler{desc: desc, relations: relations, opts: opts}
	text, err := c.compile()
	if err != nil {
		return sqlexec.Statement{}, err
	}
	params := c.params
	if params == nil {
		params = []any{}
	}
	return sqlexec.Statement{Text: text, Params: params}, nil
}

func (c *compiler) placeholder(value any) string {
	c.params = append(c.params, value)
	return "$" + strconv.Itoa(len(c.params))
}

func (c *compiler) compile() (string, error) {
	projection, err := c.projection()
	if err != nil {
		return "", err
	}
	table := c.desc.Table

	var text string
	switch c.desc.Operation {
	case OpSelect, "":
		if c.desc.countOnly() {
			text = "SELECT COUNT(*) as total_count FROM " + table
		} else {
			text = "SELECT " + projection + " FROM " + table
		}
	case OpInsert:
		insert, err := c.insert()
		if err != nil {
			return "", err
		}
		text = insert
	case OpUpdate:
		update, err := c.update()
		if err != nil {
			return "", err
		}
		text = update
	case OpDelete:
		text = "DELETE FROM " + table
	default:
		return "", errs.Newf(errs.KindValidation, "unsupported operation %q", c.desc.Operation)
	}

	if c.desc.Operation != OpInsert && len(c.desc.Filters) > 0 {
		conditions := make([]string, 0, len(c.desc.Filters))
		for _, filter := range c.desc.Filters {
			condition, err := c.condition(filter)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, condition)
		}
		text += " WHERE " + strings.Join(conditions, " AND ")
	}

	isSelect := c.desc.Operation == OpSelect || c.desc.Operation == ""
	if isSelect && !c.desc.countOnly() {
		if len(c.desc.Sorts) > 0 {
			keys := make([]string, 0, len(c.desc.Sorts))
			for _, s := range c.desc.Sorts {
				if err := validateQualified("sort column", s.Column); err != nil {
					return "", err
				}
				direction := "ASC"
				if !s.Ascending {
					direction = "DESC"
				}
				keys = append(keys, s.Column+" "+direction)
			}
			text += " ORDER BY " + strings.Join(keys, ", ")
		}
		if c.desc.Limit > 0 {
			text += " LIMIT " + strconv.Itoa(c.desc.Limit)
		}
	}

	if !isSelect {
		text += " RETURNING " + projection
	}
	return text, nil
}

// projection rewrites nested relation tokens into correlated subqueries and
// returns the full select list.
func (c *compiler) projection() (string, error) {
	remaining := whitespacePattern.ReplaceAllString(c.desc.Columns, " ")
	var subqueries []string

	for {
		loc := nestedPattern.FindStringSubmatchIndex(remaining)
		if loc == nil {
			break
		}
		alias := remaining[loc[2]:loc[3]]
		target := alias
		if loc[4] >= 0 {
			target = remaining[loc[4]:loc[5]]
		}
		fields := strings.TrimSpace(remaining[loc[6]:loc[7]])
		remaining = remaining[:loc[0]] + remaining[loc[1]:]

		alias = stripJoinHint(alias)
		target = stripJoinHint(target)
		sub, ok, err := c.subquery(alias, target, fields)
		if err != nil {
			return "", err
		}
		if ok {
			subqueries = append(subqueries, sub)
		}
	}

	var base []string
	for _, fragment := range strings.Split(remaining, ",") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" || strings.ContainsAny(fragment, "()") {
			continue
		}
		if err := validateSelectField(fragment); err != nil {
			return "", err
		}
		base = append(base, fragment)
	}
	baseColumns := strings.Join(base, ", ")
	if baseColumns == "" || baseColumns == "*" {
		baseColumns = c.desc.Table + ".*"
	}
	return strings.Join(append([]string{baseColumns}, subqueries...), ", "), nil
}

func stripJoinHint(token string) string {
	if i := strings.Index(token, "!"); i >= 0 {
		token = token[:i]
	}
	return strings.TrimSpace(token)
}

func (c *compiler) subquery(alias, target, fields string) (string, bool, error) {
	rel, ok := c.relations.Lookup(target)
	if !ok {
		return "", false, nil
	}
	list := strings.Split(fields, ",")
	for i, field := range list {
		field = strings.TrimSpace(field)
		if err := validateSelectField(field); err != nil {
			return "", false, err
		}
		list[i] = field
	}
	fields = strings.Join(list, ", ")
	source := c.desc.Table
	switch rel.Cardinality {
	case ToMany:
		return fmt.Sprintf(`(SELECT json_agg(rel) FROM (SELECT %s FROM %s WHERE %s = %s.id) rel) as "%s"`,
			fields, rel.Table, rel.ReferenceColumn, source, alias), true, nil
	default:
		return fmt.Sprintf(`(SELECT row_to_json(rel) FROM (SELECT %s FROM %s WHERE id = %s.%s) rel) as "%s"`,
			fields, rel.Table, source, rel.SourceColumn(source), alias), true, nil
	}
}

func (c *compiler) insert() (string, error) {
	rows := c.desc.Rows
	if len(rows) == 0 {
		return "", errs.New(errs.KindValidation, "No data to insert")
	}
	keys, err := sortedKeys(rows[0])
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", errs.New(errs.KindValidation, "No data to insert")
	}

	columns := make([]string, len(keys))
	for i, key := range keys {
		columns[i] = `"` + key + `"`
	}
	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		placeholders := make([]string, len(keys))
		for i, key := range keys {
			value, err := bindValue(row[key])
			if err != nil {
				return "", errs.Wrap(errs.KindValidation, err)
			}
			placeholders[i] = c.placeholder(value)
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", c.desc.Table, strings.Join(columns, ", "), strings.Join(tuples, ", ")), nil
}

func (c *compiler) update() (string, error) {
	keys, err := sortedKeys(c.desc.Values)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", errs.New(errs.KindValidation, "No data to update")
	}
	assignments := make([]string, len(keys))
	for i, key := range keys {
		value, err := bindValue(c.desc.Values[key])
		if err != nil {
			return "", errs.Wrap(errs.KindValidation, err)
		}
		assignments[i] = `"` + key + `" = ` + c.placeholder(value)
	}
	return "UPDATE " + c.desc.Table + " SET " + strings.Join(assignments, ", "), nil
}

func sortedKeys(row Record) ([]string, error) {
	keys := make([]string, 0, len(row))
	for key := range row {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *compiler) condition(f Filter) (string, error) {
	switch f.Kind {
	case FilterOr:
		return c.orGroup(f.Conditions)
	case FilterIn:
		if err := validateQualified("column", f.Column); err != nil {
			return "", err
		}
		if len(f.Values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(f.Values))
		for i, v := range f.Values {
			placeholders[i] = c.placeholder(v)
		}
		return f.Column + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	}

	if err := validateQualified("column", f.Column); err != nil {
		return "", err
	}
	if prefix, column, ok := strings.Cut(f.Column, "."); ok && f.Kind == FilterCompare {
		// A prefix naming the source table is a plain qualified column.
		rel, found := c.relations.Lookup(prefix)
		if found && rel.Cardinality == ToOne && prefix != c.desc.Table && rel.Table != c.desc.Table {
			if fk := rel.SourceColumn(c.desc.Table); fk != "" && fk != "id" {
				return fmt.Sprintf("%s.%s IN (SELECT id FROM %s WHERE %s %s %s)",
					c.desc.Table, fk, rel.Table, column, f.Operator, c.placeholder(f.Value)), nil
			}
		}
	}

	if f.Kind == FilterContains {
		value := f.Value
		if _, isString := value.(string); !isString {
			encoded, err := marshalJSON(value)
			if err != nil {
				return "", errs.Wrap(errs.KindValidation, err)
			}
			value = encoded
		}
		return f.Column + " @> " + c.placeholder(value) + "::jsonb", nil
	}
	return f.Column + " " + f.Operator + " " + c.placeholder(f.Value), nil
}

func (c *compiler) orGroup(conditions []string) (string, error) {
	parts := make([]string, 0, len(conditions))
	for _, raw := range conditions {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		pieces := strings.SplitN(raw, ".", 3)
		if len(pieces) < 3 {
			if c.opts.StrictOrFilters || (len(pieces) == 2 && pieces[1] == "ilike") {
				return "", errs.Newf(errs.KindValidation, "malformed or condition %q", raw)
			}
			parts = append(parts, "1=1")
			continue
		}
		column, op, value := pieces[0], strings.ToLower(pieces[1]), pieces[2]

		if op == "ilike" {
			if err := validateQualified("column", column); err != nil {
				return "", err
			}
			parts = append(parts, column+" ILIKE '%' || "+c.placeholder(strings.ReplaceAll(value, "%", ""))+" || '%'")
			continue
		}
		if !c.opts.StrictOrFilters {
			parts = append(parts, "1=1")
			continue
		}
		sqlOp, ok := strictOrOperators[op]
		if !ok {
			return "", errs.Newf(errs.KindValidation, "unsupported or operator %q", op)
		}
		if err := validateQualified("column", column); err != nil {
			return "", err
		}
		parts = append(parts, column+" "+sqlOp+" "+c.placeholder(value))
	}
	if len(parts) == 0 {
		return "(1=1)", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}
