// Package authz resolves what an actor may do with CRM records.
//
// A role is a flat list of grants (entity, action, scope) plus field rules.
// Resolution picks the most specific explicit grant:
//
//	entity:action > entity:* > *:action > *:*
//
// and falls back to ScopeNone. Grants sharing the same specificity are
// merged to the widest scope.
package authz

import (
	"fmt"
	"time"

	"crmhub/internal/models"
)

type Entity string

const (
	EntityContact       Entity = "contact"
	EntityCompany       Entity = "company"
	EntityDeal          Entity = "deal"
	EntityPipeline      Entity = "pipeline"
	EntityTask          Entity = "task"
	EntityQuote         Entity = "quote"
	EntityMeeting       Entity = "meeting"
	EntityCampaign      Entity = "campaign"
	EntityEmailTemplate Entity = "email_template"
	EntityReport        Entity = "report"
	EntityNotification  Entity = "notification"
	EntityScoringModel  Entity = "scoring_model"
	EntityUser          Entity = "user"
	EntityRole          Entity = "role"

	AnyEntity Entity = "*"
)

var knownEntities = map[Entity]bool{
	EntityContact: true, EntityCompany: true, EntityDeal: true, EntityPipeline: true,
	EntityTask: true, EntityQuote: true, EntityMeeting: true, EntityCampaign: true,
	EntityEmailTemplate: true, EntityReport: true, EntityNotification: true,
	EntityScoringModel: true, EntityUser: true, EntityRole: true,
}

func (e Entity) Valid() bool { return e == AnyEntity || knownEntities[e] }

type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"

	AnyAction Action = "*"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, AnyAction:
		return true
	}
	return false
}

// Scope is how far a grant reaches. Order matters: wider scopes compare greater.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAll:
		return "all"
	default:
		return "none"
	}
}

func ParseScope(v string) (Scope, error) {
	switch v {
	case "none", "":
		return ScopeNone, nil
	case "own":
		return ScopeOwn, nil
	case "all":
		return ScopeAll, nil
	}
	return ScopeNone, fmt.Errorf("%w: unknown scope %q", models.ErrInvalidInput, v)
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Grant struct {
	Entity Entity `json:"entity"`
	Action Action `json:"action"`
	Scope  Scope  `json:"scope"`
}

// Role is either built-in (fixed id, no tenant) or defined by a tenant.
type Role struct {
	ID          int64       `json:"id"`
	TenantID    int64       `json:"tenant_id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	System      bool        `json:"system"`
	Grants      []Grant     `json:"grants"`
	FieldRules  []FieldRule `json:"field_rules"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (r *Role) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: role name is required", models.ErrInvalidInput)
	}
	for _, g := range r.Grants {
		if !g.Entity.Valid() {
			return fmt.Errorf("%w: unknown entity %q", models.ErrInvalidInput, g.Entity)
		}
		if !g.Action.Valid() {
			return fmt.Errorf("%w: unknown action %q", models.ErrInvalidInput, g.Action)
		}
		if g.Scope < ScopeNone || g.Scope > ScopeAll {
			return fmt.Errorf("%w: invalid scope for %s:%s", models.ErrInvalidInput, g.Entity, g.Action)
		}
	}
	for _, fr := range r.FieldRules {
		if err := fr.validate(); err != nil {
			return err
		}
	}
	return nil
}

type grantKey struct {
	entity Entity
	action Action
}

// Policy is the compiled, read-only form of a Role.
type Policy struct {
	RoleID int64
	grants map[grantKey]Scope
	fields map[Entity]map[string]FieldAccess
}

func Compile(r Role) *Policy {
	p := &Policy{
		RoleID: r.ID,
		grants: make(map[grantKey]Scope, len(r.Grants)),
		fields: make(map[Entity]map[string]FieldAccess),
	}
	for _, g := range r.Grants {
		k := grantKey{g.Entity, g.Action}
		if cur, ok := p.grants[k]; !ok || g.Scope > cur {
			p.grants[k] = g.Scope
		}
	}
	for _, fr := range r.FieldRules {
		m := p.fields[fr.Entity]
		if m == nil {
			m = make(map[string]FieldAccess)
			p.fields[fr.Entity] = m
		}
		if cur, ok := m[fr.Field]; !ok || fr.Access.stricter(cur) {
			m[fr.Field] = fr.Access
		}
	}
	return p
}

// Scope resolves the grant for entity/action.
func (p *Policy) Scope(e Entity, a Action) Scope {
	if p == nil {
		return ScopeNone
	}
	for _, k := range [...]grantKey{{e, a}, {e, AnyAction}, {AnyEntity, a}, {AnyEntity, AnyAction}} {
		if s, ok := p.grants[k]; ok {
			return s
		}
	}
	return ScopeNone
}

func (p *Policy) Allows(e Entity, a Action) bool {
	return p.Scope(e, a) > ScopeNone
}

// AllowsRecord checks a single record owned by ownerID.
func (p *Policy) AllowsRecord(e Entity, a Action, actorID, ownerID int64) bool {
	switch p.Scope(e, a) {
	case ScopeAll:
		return true
	case ScopeOwn:
		return actorID != 0 && actorID == ownerID
	default:
		return false
	}
}

// OwnerFilter returns the owner id a query must be restricted to, or nil
// when the actor may see every record. Callers check Allows first.
func (p *Policy) OwnerFilter(e Entity, a Action, actorID int64) *int64 {
	if p.Scope(e, a) == ScopeAll {
		return nil
	}
	id := actorID
	return &id
}
