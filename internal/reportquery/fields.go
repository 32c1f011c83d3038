// Package reportquery turns report definitions into parameterised SQL over a
// fixed whitelist of entities and fields.
package reportquery

import (
	"sort"

	"crmhub/internal/authz"
)

type FieldType int

const (
	Text FieldType = iota
	Number
	Date
	Bool
)

func (t FieldType) String() string {
	switch t {
	case Number:
		return "number"
	case Date:
		return "date"
	case Bool:
		return "bool"
	default:
		return "text"
	}
}

type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"-"`
}

// Entity describes one reportable table.
type Entity struct {
	Name   string
	Table  string
	Authz  authz.Entity
	Fields map[string]Field
	// Default columns when a report selects none.
	Default []string
	// owner columns checked for own scope; any of them matching passes
	OwnerColumns []string
}

func fields(defs ...Field) map[string]Field {
	m := make(map[string]Field, len(defs))
	for _, f := range defs {
		m[f.Name] = f
	}
	return m
}

var entities = map[string]*Entity{
	"contacts": {
		Name:  "contacts",
		Table: "contacts",
		Authz: authz.EntityContact,
		Fields: fields(
			Field{"id", Number},
			Field{"owner_id", Number},
			Field{"company_id", Number},
			Field{"first_name", Text},
			Field{"last_name", Text},
			Field{"email", Text},
			Field{"phone", Text},
			Field{"title", Text},
			Field{"lifecycle_stage", Text},
			Field{"score", Number},
			Field{"unsubscribed", Bool},
			Field{"created_at", Date},
			Field{"updated_at", Date},
		),
		Default:      []string{"id", "first_name", "last_name", "email", "lifecycle_stage", "score"},
		OwnerColumns: []string{"owner_id"},
	},
	"companies": {
		Name:  "companies",
		Table: "companies",
		Authz: authz.EntityCompany,
		Fields: fields(
			Field{"id", Number},
			Field{"owner_id", Number},
			Field{"name", Text},
			Field{"domain", Text},
			Field{"industry", Text},
			Field{"phone", Text},
			Field{"address", Text},
			Field{"created_at", Date},
			Field{"updated_at", Date},
		),
		Default:      []string{"id", "name", "domain", "industry"},
		OwnerColumns: []string{"owner_id"},
	},
	"deals": {
		Name:  "deals",
		Table: "deals",
		Authz: authz.EntityDeal,
		Fields: fields(
			Field{"id", Number},
			Field{"title", Text},
			Field{"pipeline_id", Number},
			Field{"stage_id", Number},
			Field{"owner_id", Number},
			Field{"contact_id", Number},
			Field{"company_id", Number},
			Field{"amount", Number},
			Field{"currency", Text},
			Field{"probability", Number},
			Field{"status", Text},
			Field{"expected_close_date", Date},
			Field{"closed_at", Date},
			Field{"created_at", Date},
			Field{"updated_at", Date},
		),
		Default:      []string{"id", "title", "amount", "currency", "status", "probability"},
		OwnerColumns: []string{"owner_id"},
	},
	"tasks": {
		Name:  "tasks",
		Table: "tasks",
		Authz: authz.EntityTask,
		Fields: fields(
			Field{"id", Number},
			Field{"title", Text},
			Field{"status", Text},
			Field{"priority", Text},
			Field{"creator_id", Number},
			Field{"assignee_id", Number},
			Field{"entity_type", Text},
			Field{"entity_id", Number},
			Field{"due_date", Date},
			Field{"reminder_at", Date},
			Field{"created_at", Date},
		),
		Default:      []string{"id", "title", "status", "priority", "assignee_id", "due_date"},
		OwnerColumns: []string{"creator_id", "assignee_id"},
	},
	"quotes": {
		Name:  "quotes",
		Table: "quotes",
		Authz: authz.EntityQuote,
		Fields: fields(
			Field{"id", Number},
			Field{"number", Text},
			Field{"title", Text},
			Field{"status", Text},
			Field{"deal_id", Number},
			Field{"owner_id", Number},
			Field{"currency", Text},
			Field{"subtotal", Number},
			Field{"total", Number},
			Field{"valid_until", Date},
			Field{"sent_at", Date},
			Field{"signed_at", Date},
			Field{"created_at", Date},
		),
		Default:      []string{"id", "number", "title", "status", "total", "currency"},
		OwnerColumns: []string{"owner_id"},
	},
}

// Lookup returns the whitelisted entity by report name.
func Lookup(name string) (*Entity, bool) {
	e, ok := entities[name]
	return e, ok
}

// Catalog lists reportable entities with their field names and types.
func Catalog() map[string]map[string]string {
	out := make(map[string]map[string]string, len(entities))
	for name, e := range entities {
		fs := make(map[string]string, len(e.Fields))
		for _, f := range e.Fields {
			fs[f.Name] = f.Type.String()
		}
		out[name] = fs
	}
	return out
}

// EntityNames returns the reportable entity names sorted.
func EntityNames() []string {
	names := make([]string, 0, len(entities))
	for n := range entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
