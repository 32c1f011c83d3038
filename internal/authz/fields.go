package authz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"crmhub/internal/models"
)

// FieldAccess controls a single attribute of an entity.
type FieldAccess string

const (
	FieldEdit   FieldAccess = "edit"
	FieldView   FieldAccess = "view"
	FieldMask   FieldAccess = "mask"
	FieldHidden FieldAccess = "hidden"
)

var fieldStrictness = map[FieldAccess]int{
	FieldEdit:   0,
	FieldView:   1,
	FieldMask:   2,
	FieldHidden: 3,
}

func (f FieldAccess) stricter(than FieldAccess) bool {
	return fieldStrictness[f] > fieldStrictness[than]
}

type FieldRule struct {
	Entity Entity      `json:"entity"`
	Field  string      `json:"field"`
	Access FieldAccess `json:"access"`
}

func (fr FieldRule) validate() error {
	if !fr.Entity.Valid() {
		return fmt.Errorf("%w: unknown entity %q in field rule", models.ErrInvalidInput, fr.Entity)
	}
	if fr.Field == "" {
		return fmt.Errorf("%w: field rule without field", models.ErrInvalidInput)
	}
	if _, ok := fieldStrictness[fr.Access]; !ok {
		return fmt.Errorf("%w: unknown field access %q", models.ErrInvalidInput, fr.Access)
	}
	return nil
}

const maskKeep = 4

// MaskString keeps the last four characters of s.
func MaskString(s string) string {
	r := []rune(s)
	if len(r) <= maskKeep {
		return "****"
	}
	return "****" + string(r[len(r)-maskKeep:])
}

// FieldAccess returns the rule for entity.field; a rule on the exact entity
// wins over one on "*". Without a rule the field is editable.
func (p *Policy) FieldAccess(e Entity, field string) FieldAccess {
	if p == nil {
		return FieldEdit
	}
	if m, ok := p.fields[e]; ok {
		if a, ok := m[field]; ok {
			return a
		}
	}
	if m, ok := p.fields[AnyEntity]; ok {
		if a, ok := m[field]; ok {
			return a
		}
	}
	return FieldEdit
}

func (p *Policy) hasFieldRules(e Entity) bool {
	return p != nil && (len(p.fields[e]) > 0 || len(p.fields[AnyEntity]) > 0)
}

// CheckWritable rejects an update touching a field the actor may not edit.
func (p *Policy) CheckWritable(e Entity, fields []string) error {
	for _, f := range fields {
		if acc := p.FieldAccess(e, f); acc != FieldEdit {
			return fmt.Errorf("%w: field %q is %s for this role", models.ErrForbidden, f, acc)
		}
	}
	return nil
}

// RedactRow applies field rules to one row in place.
func (p *Policy) RedactRow(e Entity, row map[string]any) map[string]any {
	if !p.hasFieldRules(e) {
		return row
	}
	for k, v := range row {
		switch p.FieldAccess(e, k) {
		case FieldHidden:
			delete(row, k)
		case FieldMask:
			if s, ok := v.(string); ok {
				row[k] = MaskString(s)
			} else if v != nil {
				row[k] = "****"
			}
		}
	}
	return row
}

// Redact applies field rules to a record or a slice of records. Values
// are returned untouched when the role has no rules for the entity.
func (p *Policy) Redact(e Entity, v any) (any, error) {
	if !p.hasFieldRules(e) {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("redact marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("redact decode: %w", err)
		}
		for _, row := range rows {
			p.RedactRow(e, row)
		}
		return rows, nil
	}

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("redact decode: %w", err)
	}
	return p.RedactRow(e, row), nil
}

// ChangedFields lists the JSON keys present in a request body.
func ChangedFields(body map[string]json.RawMessage) []string {
	out := make([]string, 0, len(body))
	for k := range body {
		out = append(out, strings.TrimSpace(k))
	}
	return out
}
