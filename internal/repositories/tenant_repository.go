package repositories

import (
	"context"
	"database/sql"

	"crmhub/internal/models"
)

type TenantRepository interface {
	// Bootstrap creates a tenant, its first user and default pipeline atomically.
	Bootstrap(ctx context.Context, t *models.Tenant, owner *models.User, pipeline *models.Pipeline) error
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Bootstrap(ctx context.Context, t *models.Tenant, owner *models.User, pipeline *models.Pipeline) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id, created_at`,
			t.Name, t.Slug,
		).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return conflictOr(err, "create tenant")
		}

		owner.TenantID = t.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO users (tenant_id, email, full_name, password_hash, role_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			owner.TenantID, owner.Email, owner.FullName, owner.PasswordHash, owner.RoleID,
		).Scan(&owner.ID, &owner.CreatedAt)
		if err != nil {
			return conflictOr(err, "create owner")
		}

		if pipeline == nil {
			return nil
		}
		pipeline.TenantID = t.ID
		return insertPipeline(ctx, tx, pipeline)
	})
}

func (r *tenantRepository) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get tenant")
	}
	return &t, nil
}
