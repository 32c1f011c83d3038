package reportquery

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
)

func flt(field, op, value string) models.ReportFilter {
	f := models.ReportFilter{Field: field, Op: op}
	if value != "" {
		f.Value = json.RawMessage(value)
	}
	return f
}

func TestBuild_DefaultsAndTenant(t *testing.T) {
	q, err := Build(Request{TenantID: 7, Entity: "deals"})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, title, amount, currency, status, probability FROM deals WHERE tenant_id = $1 ORDER BY id ASC LIMIT $2",
		q.SQL)
	assert.Equal(t, []any{int64(7), DefaultLimit}, q.Args)
	assert.Len(t, q.Columns, 6)
}

func TestBuild_LimitIsCapped(t *testing.T) {
	q, err := Build(Request{TenantID: 1, Entity: "contacts", Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, q.Args[len(q.Args)-1])
}

func TestBuild_OwnScope(t *testing.T) {
	owner := int64(42)

	q, err := Build(Request{TenantID: 1, OwnerID: &owner, Entity: "contacts", Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE tenant_id = $1 AND (owner_id = $2)")

	q, err = Build(Request{TenantID: 1, OwnerID: &owner, Entity: "tasks", Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "(creator_id = $2 OR assignee_id = $2)")
	assert.Equal(t, []any{int64(1), int64(42), DefaultLimit}, q.Args)
}

func TestBuild_Filters(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		filter models.ReportFilter
		cond   string
		args   []any
	}{
		{"eq text", "contacts", flt("lifecycle_stage", "eq", `"mql"`), "lifecycle_stage = $2", []any{"mql"}},
		{"neq bool", "contacts", flt("unsubscribed", "neq", `true`), "unsubscribed <> $2", []any{true}},
		{"gte number", "deals", flt("amount", "gte", `1000.50`), "amount >= $2", []any{decimal.RequireFromString("1000.5")}},
		{"number as string", "deals", flt("probability", "lt", `"40"`), "probability < $2", []any{decimal.NewFromInt(40)}},
		{"contains escapes", "companies", flt("name", "contains", `"50%_off"`), "name ILIKE $2", []any{`%50\%\_off%`}},
		{"in", "deals", flt("status", "in", `["won","lost"]`), "status IN ($2, $3)", []any{"won", "lost"}},
		{"between dates", "deals", flt("created_at", "between", `["2024-01-01","2024-02-01T00:00:00Z"]`),
			"created_at BETWEEN $2 AND $3",
			[]any{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}},
		{"is null", "deals", flt("closed_at", "is_null", ""), "closed_at IS NULL", nil},
		{"not null", "quotes", flt("signed_at", "not_null", ""), "signed_at IS NOT NULL", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Build(Request{TenantID: 1, Entity: tt.entity, Columns: []string{"id"},
				Filters: []models.ReportFilter{tt.filter}})
			require.NoError(t, err)
			assert.Contains(t, q.SQL, "WHERE tenant_id = $1 AND "+tt.cond+" ORDER BY")

			got := q.Args[1 : len(q.Args)-1]
			require.Len(t, got, len(tt.args))
			for i := range tt.args {
				switch want := tt.args[i].(type) {
				case decimal.Decimal:
					assert.True(t, want.Equal(got[i].(decimal.Decimal)), "arg %d: %v", i, got[i])
				case time.Time:
					assert.True(t, want.Equal(got[i].(time.Time)), "arg %d: %v", i, got[i])
				default:
					assert.Equal(t, want, got[i])
				}
			}
		})
	}
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown entity", Request{Entity: "users"}},
		{"unknown column", Request{Entity: "deals", Columns: []string{"password_hash"}}},
		{"unknown filter field", Request{Entity: "deals", Filters: []models.ReportFilter{flt("1=1; --", "eq", `"x"`)}}},
		{"unknown op", Request{Entity: "deals", Filters: []models.ReportFilter{flt("title", "like", `"x"`)}}},
		{"missing value", Request{Entity: "deals", Filters: []models.ReportFilter{flt("title", "eq", "")}}},
		{"null value", Request{Entity: "deals", Filters: []models.ReportFilter{flt("title", "eq", "null")}}},
		{"bad number", Request{Entity: "deals", Filters: []models.ReportFilter{flt("amount", "gt", `"lots"`)}}},
		{"bad date", Request{Entity: "deals", Filters: []models.ReportFilter{flt("created_at", "gt", `"yesterday"`)}}},
		{"contains on number", Request{Entity: "deals", Filters: []models.ReportFilter{flt("amount", "contains", `"1"`)}}},
		{"gt on bool", Request{Entity: "contacts", Filters: []models.ReportFilter{flt("unsubscribed", "gt", `true`)}}},
		{"between one bound", Request{Entity: "deals", Filters: []models.ReportFilter{flt("amount", "between", `[1]`)}}},
		{"between text", Request{Entity: "deals", Filters: []models.ReportFilter{flt("title", "between", `["a","b"]`)}}},
		{"empty in", Request{Entity: "deals", Filters: []models.ReportFilter{flt("status", "in", `[]`)}}},
		{"in not array", Request{Entity: "deals", Filters: []models.ReportFilter{flt("status", "in", `"won"`)}}},
		{"bad sort field", Request{Entity: "deals", SortBy: "amount; DROP TABLE deals"}},
		{"bad sort order", Request{Entity: "deals", SortOrder: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestBuild_Sort(t *testing.T) {
	q, err := Build(Request{TenantID: 1, Entity: "deals", Columns: []string{"id", "id", "amount"},
		SortBy: "amount", SortOrder: "DESC"})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "SELECT id, amount FROM deals")
	assert.Contains(t, q.SQL, "ORDER BY amount DESC, id DESC")
}

func TestQueryValue(t *testing.T) {
	q, err := Build(Request{TenantID: 1, Entity: "deals", Columns: []string{"amount", "title"}})
	require.NoError(t, err)

	d, ok := q.Value(0, []byte("12.50")).(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "12.5", d.String())
	assert.Equal(t, "Big deal", q.Value(1, []byte("Big deal")))
	assert.Equal(t, int64(3), q.Value(0, int64(3)))
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	assert.Equal(t, "number", c["deals"]["amount"])
	assert.Equal(t, "bool", c["contacts"]["unsubscribed"])
	assert.Equal(t, []string{"companies", "contacts", "deals", "quotes", "tasks"}, EntityNames())
}
