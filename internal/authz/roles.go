package authz

// Built-in role ids. Tenant-defined roles are numbered from 1000.
const (
	RoleSales      int64 = 10
	RoleOperations int64 = 20
	RoleAudit      int64 = 30
	RoleManagement int64 = 40
	RoleAdmin      int64 = 50
)

// crmEntities are the records salespeople work with day to day.
var crmEntities = []Entity{
	EntityContact, EntityCompany, EntityDeal, EntityTask, EntityQuote, EntityMeeting,
}

func crudGrants(entities []Entity, scope Scope) []Grant {
	out := make([]Grant, 0, len(entities))
	for _, e := range entities {
		out = append(out, Grant{Entity: e, Action: AnyAction, Scope: scope})
	}
	return out
}

func builtinRoles() []Role {
	sales := Role{
		ID: RoleSales, Name: "Sales", System: true,
		Description: "Works own contacts, companies, deals, tasks, quotes and meetings",
		Grants: append(crudGrants(crmEntities, ScopeOwn),
			Grant{EntityPipeline, ActionView, ScopeAll},
			Grant{EntityEmailTemplate, ActionView, ScopeAll},
			Grant{EntityScoringModel, ActionView, ScopeAll},
			Grant{EntityReport, AnyAction, ScopeOwn},
			Grant{EntityNotification, AnyAction, ScopeOwn},
			Grant{EntityUser, ActionView, ScopeAll},
		),
		FieldRules: []FieldRule{
			{EntityContact, "score", FieldView},
			{EntityDeal, "probability", FieldView},
		},
	}

	ops := Role{
		ID: RoleOperations, Name: "Operations", System: true,
		Description: "Full access to CRM and marketing records",
		Grants: append(crudGrants(crmEntities, ScopeAll),
			Grant{EntityPipeline, AnyAction, ScopeAll},
			Grant{EntityCampaign, AnyAction, ScopeAll},
			Grant{EntityEmailTemplate, AnyAction, ScopeAll},
			Grant{EntityScoringModel, AnyAction, ScopeAll},
			Grant{EntityReport, AnyAction, ScopeAll},
			Grant{EntityNotification, AnyAction, ScopeOwn},
			Grant{EntityUser, ActionView, ScopeAll},
		),
	}

	audit := Role{
		ID: RoleAudit, Name: "Audit", System: true,
		Description: "Read-only access with masked personal data",
		Grants: []Grant{
			{AnyEntity, ActionView, ScopeAll},
			{EntityNotification, AnyAction, ScopeOwn},
			{EntityReport, ActionCreate, ScopeOwn},
		},
		FieldRules: []FieldRule{
			{EntityContact, "email", FieldMask},
			{EntityContact, "phone", FieldMask},
			{EntityCompany, "phone", FieldMask},
			{EntityUser, "telegram_chat_id", FieldHidden},
		},
	}

	mgmt := Role{
		ID: RoleManagement, Name: "Management", System: true,
		Description: "Everything except deleting users and roles",
		Grants: []Grant{
			{AnyEntity, AnyAction, ScopeAll},
			{EntityUser, ActionDelete, ScopeNone},
			{EntityRole, ActionDelete, ScopeNone},
		},
	}

	admin := Role{
		ID: RoleAdmin, Name: "Admin", System: true,
		Description: "Unrestricted",
		Grants:      []Grant{{AnyEntity, AnyAction, ScopeAll}},
	}

	return []Role{sales, ops, audit, mgmt, admin}
}

var (
	builtinByID   = map[int64]Role{}
	builtinPolicy = map[int64]*Policy{}
)

func init() {
	for _, r := range builtinRoles() {
		builtinByID[r.ID] = r
		builtinPolicy[r.ID] = Compile(r)
	}
}

// BuiltinRole returns a copy of a built-in role.
func BuiltinRole(id int64) (Role, bool) {
	r, ok := builtinByID[id]
	return r, ok
}

func IsBuiltin(id int64) bool {
	_, ok := builtinByID[id]
	return ok
}

// BuiltinRoles lists built-in roles ordered by id.
func BuiltinRoles() []Role {
	return builtinRoles()
}
