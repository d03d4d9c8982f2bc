package query

import (
	"fmt"
	"strings"
)

// ParamType defines how a search parameter is translated to SQL.
type ParamType int

const (
	ParamExact    ParamType = iota // exact equality on the column
	ParamString                    // case-insensitive prefix match, supports :exact, :contains modifiers
	ParamDate                      // date equality, supports gt/ge/lt/le prefixes
	ParamNumber                    // numeric comparison, supports gt/ge/lt/le prefixes
)

// ParamConfig maps a search parameter name to its database column.
type ParamConfig struct {
	Type   ParamType
	Column string
}

// Builder assembles a WHERE clause plus paged SELECT and COUNT statements
// from named search parameters. Positional placeholders are numbered
// continuously across all added clauses.
type Builder struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// New creates a Builder for the given table and column list.
func New(table, cols string) *Builder {
	return &Builder{table: table, cols: cols, idx: 1}
}

// Add appends a raw WHERE fragment (without a leading "AND").
func (b *Builder) Add(clause string, args ...interface{}) {
	b.where += " AND " + clause
	b.args = append(b.args, args...)
	b.idx += len(args)
}

// AddExact appends an equality clause on column.
func (b *Builder) AddExact(column, value string) {
	b.where += fmt.Sprintf(" AND %s = $%d", column, b.idx)
	b.args = append(b.args, value)
	b.idx++
}

// AddString appends a case-insensitive string clause. The value may carry a
// ":exact" or ":contains" suffix selecting the match mode; the default is a
// prefix match.
func (b *Builder) AddString(column, value string) {
	mode := "prefix"
	if i := strings.LastIndex(value, ":"); i > 0 {
		switch value[i+1:] {
		case "exact":
			mode, value = "exact", value[:i]
		case "contains":
			mode, value = "contains", value[:i]
		}
	}
	switch mode {
	case "exact":
		b.where += fmt.Sprintf(" AND LOWER(%s) = LOWER($%d)", column, b.idx)
		b.args = append(b.args, value)
	case "contains":
		b.where += fmt.Sprintf(" AND %s ILIKE $%d", column, b.idx)
		b.args = append(b.args, "%"+value+"%")
	default:
		b.where += fmt.Sprintf(" AND %s ILIKE $%d", column, b.idx)
		b.args = append(b.args, value+"%")
	}
	b.idx++
}

// AddDate appends a date clause. A two-letter prefix (gt, ge, lt, le, eq)
// selects the comparison operator; the remainder must be a YYYY-MM-DD value.
func (b *Builder) AddDate(column, value string) {
	op, v := comparison(value)
	b.where += fmt.Sprintf(" AND %s %s $%d::date", column, op, b.idx)
	b.args = append(b.args, v)
	b.idx++
}

// AddNumber appends a numeric clause with the same prefix handling as AddDate.
func (b *Builder) AddNumber(column, value string) {
	op, v := comparison(value)
	b.where += fmt.Sprintf(" AND %s %s $%d", column, op, b.idx)
	b.args = append(b.args, v)
	b.idx++
}

func comparison(value string) (string, string) {
	if len(value) > 2 {
		switch value[:2] {
		case "gt":
			return ">", value[2:]
		case "ge":
			return ">=", value[2:]
		case "lt":
			return "<", value[2:]
		case "le":
			return "<=", value[2:]
		case "eq":
			return "=", value[2:]
		}
	}
	return "=", value
}

// ApplyParams applies every parameter that has a config entry; unknown
// parameters are ignored so callers can pass the raw query map through.
func (b *Builder) ApplyParams(params map[string]string, configs map[string]ParamConfig) {
	for name, value := range params {
		config, ok := configs[name]
		if !ok || value == "" {
			continue
		}
		switch config.Type {
		case ParamString:
			b.AddString(config.Column, value)
		case ParamDate:
			b.AddDate(config.Column, value)
		case ParamNumber:
			b.AddNumber(config.Column, value)
		default:
			b.AddExact(config.Column, value)
		}
	}
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (b *Builder) OrderBy(orderBy string) { b.orderBy = orderBy }

// CountSQL returns the count statement.
func (b *Builder) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", b.table, b.where)
}

// CountArgs returns the arguments for CountSQL.
func (b *Builder) CountArgs() []interface{} { return b.args }

// DataSQL returns the paged data statement.
func (b *Builder) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", b.cols, b.table, b.where)
	if b.orderBy != "" {
		sql += " ORDER BY " + b.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", b.idx, b.idx+1)
}

// DataArgs returns the arguments for DataSQL (search args + limit + offset).
func (b *Builder) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(b.args)+2)
	copy(result, b.args)
	result[len(b.args)] = limit
	result[len(b.args)+1] = offset
	return result
}
