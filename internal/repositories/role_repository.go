package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"crmhub/internal/authz"
	"crmhub/internal/tenant"
)

// RoleRepository stores tenant-defined roles. Grants and field rules are
// JSONB columns.
type RoleRepository interface {
	Create(ctx context.Context, role *authz.Role) error
	Update(ctx context.Context, role *authz.Role) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*authz.Role, error)
	List(ctx context.Context) ([]*authz.Role, error)
	authz.RoleLoader
}

type roleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) RoleRepository {
	return &roleRepository{db: db}
}

const roleColumns = `id, tenant_id, name, description, grants, field_rules, created_at, updated_at`

func scanRole(row scanner) (*authz.Role, error) {
	var (
		r                  authz.Role
		grants, fieldRules []byte
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &grants, &fieldRules, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(grants, &r.Grants); err != nil {
		return nil, fmt.Errorf("decode grants: %w", err)
	}
	if len(fieldRules) > 0 {
		if err := json.Unmarshal(fieldRules, &r.FieldRules); err != nil {
			return nil, fmt.Errorf("decode field rules: %w", err)
		}
	}
	return &r, nil
}

func encodeRole(role *authz.Role) (grants, fieldRules []byte, err error) {
	if role.Grants == nil {
		role.Grants = []authz.Grant{}
	}
	if role.FieldRules == nil {
		role.FieldRules = []authz.FieldRule{}
	}
	if grants, err = json.Marshal(role.Grants); err != nil {
		return nil, nil, fmt.Errorf("encode grants: %w", err)
	}
	if fieldRules, err = json.Marshal(role.FieldRules); err != nil {
		return nil, nil, fmt.Errorf("encode field rules: %w", err)
	}
	return grants, fieldRules, nil
}

func (r *roleRepository) Create(ctx context.Context, role *authz.Role) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	grants, fieldRules, err := encodeRole(role)
	if err != nil {
		return err
	}
	role.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO roles (tenant_id, name, description, grants, field_rules)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		tid, role.Name, role.Description, grants, fieldRules,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (r *roleRepository) Update(ctx context.Context, role *authz.Role) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	grants, fieldRules, err := encodeRole(role)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE roles SET name = $1, description = $2, grants = $3, field_rules = $4, updated_at = NOW()
		WHERE tenant_id = $5 AND id = $6
		RETURNING updated_at`,
		role.Name, role.Description, grants, fieldRules, tid, role.ID,
	).Scan(&role.UpdatedAt)
	if err != nil {
		return notFound(err, "update role")
	}
	return nil
}

func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return expectOne(res, "delete role")
}

func (r *roleRepository) GetByID(ctx context.Context, id int64) (*authz.Role, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return r.GetRole(ctx, tid, id)
}

func (r *roleRepository) GetRole(ctx context.Context, tenantID, roleID int64) (*authz.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 AND id = $2`, tenantID, roleID))
	if err != nil {
		return nil, notFound(err, "get role")
	}
	return role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY id`, tid)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
