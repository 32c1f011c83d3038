package reportquery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crmhub/internal/models"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
	maxInValues  = 100
)

type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpIn       Op = "in"
	OpBetween  Op = "between"
	OpIsNull   Op = "is_null"
	OpNotNull  Op = "not_null"
)

var comparison = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Request is a report definition bound to a tenant and, for own scope, an owner.
type Request struct {
	TenantID  int64
	OwnerID   *int64
	Entity    string
	Columns   []string
	Filters   []models.ReportFilter
	SortBy    string
	SortOrder string
	Limit     int
}

func FromDefinition(def *models.ReportDefinition) Request {
	return Request{
		Entity:    def.Entity,
		Columns:   def.Columns,
		Filters:   def.Filters,
		SortBy:    def.SortBy,
		SortOrder: def.SortOrder,
		Limit:     def.Limit,
	}
}

// Query is ready to pass to database/sql.
type Query struct {
	SQL     string
	Args    []any
	Entity  *Entity
	Columns []Field
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrInvalidInput)
}

// Validate checks a definition without building SQL.
func Validate(def *models.ReportDefinition) error {
	_, err := Build(FromDefinition(def))
	return err
}

func Build(req Request) (*Query, error) {
	ent, ok := Lookup(req.Entity)
	if !ok {
		return nil, invalid("unknown report entity %q", req.Entity)
	}

	names := req.Columns
	if len(names) == 0 {
		names = ent.Default
	}
	cols := make([]Field, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		f, ok := ent.Fields[n]
		if !ok {
			return nil, invalid("unknown column %q for %s", n, ent.Name)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		cols = append(cols, f)
	}

	b := &builder{}
	where := []string{"tenant_id = " + b.arg(req.TenantID)}
	if req.OwnerID != nil {
		p := b.arg(*req.OwnerID)
		owners := make([]string, len(ent.OwnerColumns))
		for i, c := range ent.OwnerColumns {
			owners[i] = c + " = " + p
		}
		where = append(where, "("+strings.Join(owners, " OR ")+")")
	}
	for i, flt := range req.Filters {
		f, ok := ent.Fields[flt.Field]
		if !ok {
			return nil, invalid("filter %d: unknown field %q", i, flt.Field)
		}
		cond, err := b.condition(f, Op(flt.Op), flt.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s): %w", i, flt.Field, err)
		}
		where = append(where, cond)
	}

	sortBy := "id"
	if req.SortBy != "" {
		if _, ok := ent.Fields[req.SortBy]; !ok {
			return nil, invalid("unknown sort field %q", req.SortBy)
		}
		sortBy = req.SortBy
	}
	order := "ASC"
	switch strings.ToLower(req.SortOrder) {
	case "", "asc":
	case "desc":
		order = "DESC"
	default:
		return nil, invalid("sort order must be asc or desc")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	selected := make([]string, len(cols))
	for i, c := range cols {
		selected[i] = c.Name
	}
	orderBy := sortBy + " " + order
	if sortBy != "id" {
		orderBy += ", id " + order
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %s",
		strings.Join(selected, ", "), ent.Table, strings.Join(where, " AND "), orderBy, b.arg(limit))

	return &Query{SQL: sql, Args: b.args, Entity: ent, Columns: cols}, nil
}

type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) condition(f Field, op Op, raw json.RawMessage) (string, error) {
	switch op {
	case OpIsNull:
		return f.Name + " IS NULL", nil
	case OpNotNull:
		return f.Name + " IS NOT NULL", nil
	}
	if isEmpty(raw) {
		return "", invalid("%s needs a value", op)
	}

	if sym, ok := comparison[op]; ok {
		if f.Type == Bool && op != OpEq && op != OpNeq {
			return "", invalid("%s is not supported on bool fields", op)
		}
		v, err := coerce(f.Type, raw)
		if err != nil {
			return "", err
		}
		return f.Name + " " + sym + " " + b.arg(v), nil
	}

	switch op {
	case OpContains:
		if f.Type != Text {
			return "", invalid("contains is only supported on text fields")
		}
		v, err := coerce(Text, raw)
		if err != nil {
			return "", err
		}
		return f.Name + " ILIKE " + b.arg("%"+escapeLike(v.(string))+"%"), nil

	case OpIn:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", invalid("in expects an array")
		}
		if len(items) == 0 || len(items) > maxInValues {
			return "", invalid("in expects 1..%d values", maxInValues)
		}
		ps := make([]string, len(items))
		for i, it := range items {
			v, err := coerce(f.Type, it)
			if err != nil {
				return "", err
			}
			ps[i] = b.arg(v)
		}
		return f.Name + " IN (" + strings.Join(ps, ", ") + ")", nil

	case OpBetween:
		if f.Type != Number && f.Type != Date {
			return "", invalid("between is only supported on number and date fields")
		}
		var bounds []json.RawMessage
		if err := json.Unmarshal(raw, &bounds); err != nil || len(bounds) != 2 {
			return "", invalid("between expects [low, high]")
		}
		lo, err := coerce(f.Type, bounds[0])
		if err != nil {
			return "", err
		}
		hi, err := coerce(f.Type, bounds[1])
		if err != nil {
			return "", err
		}
		return f.Name + " BETWEEN " + b.arg(lo) + " AND " + b.arg(hi), nil
	}
	return "", invalid("unknown operator %q", op)
}

func isEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// coerce decodes a JSON value into the Go type bound for the field type.
func coerce(t FieldType, raw json.RawMessage) (any, error) {
	switch t {
	case Number:
		var d decimal.Decimal
		if err := d.UnmarshalJSON(bytes.TrimSpace(raw)); err != nil {
			return nil, invalid("expected a number, got %s", raw)
		}
		return d, nil
	case Date:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid("expected a date string, got %s", raw)
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return nil, invalid("unparseable date %q", s)
	case Bool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, invalid("expected true or false, got %s", raw)
		}
		return v, nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid("expected a string, got %s", raw)
		}
		return s, nil
	}
}

// Value normalises a scanned driver value for column i. NUMERIC arrives as
// []byte from lib/pq and is returned as a decimal.
func (q *Query) Value(i int, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if q.Columns[i].Type == Number {
		if d, err := decimal.NewFromString(string(b)); err == nil {
			return d
		}
	}
	return string(b)
}
