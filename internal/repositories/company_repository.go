package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type CompanyRepository interface {
	Create(ctx context.Context, c *models.Company) error
	Update(ctx context.Context, c *models.Company) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Company, error)
	GetByDomain(ctx context.Context, domain string) (*models.Company, error)
	List(ctx context.Context, f models.CompanyFilter) ([]*models.Company, error)
}

type companyRepository struct {
	db *sql.DB
}

func NewCompanyRepository(db *sql.DB) CompanyRepository {
	return &companyRepository{db: db}
}

const companyColumns = `id, tenant_id, owner_id, name, domain, industry, phone, address, created_at, updated_at`

func scanCompany(row scanner) (*models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.TenantID, &c.OwnerID, &c.Name, &c.Domain, &c.Industry, &c.Phone, &c.Address,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *companyRepository) Create(ctx context.Context, c *models.Company) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	c.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO companies (tenant_id, owner_id, name, domain, industry, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		tid, c.OwnerID, c.Name, c.Domain, c.Industry, c.Phone, c.Address,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	return nil
}

func (r *companyRepository) Update(ctx context.Context, c *models.Company) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE companies
		SET owner_id = $1, name = $2, domain = $3, industry = $4, phone = $5, address = $6, updated_at = NOW()
		WHERE tenant_id = $7 AND id = $8
		RETURNING updated_at`,
		c.OwnerID, c.Name, c.Domain, c.Industry, c.Phone, c.Address, tid, c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return notFound(err, "update company")
	}
	return nil
}

func (r *companyRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	return expectOne(res, "delete company")
}

func (r *companyRepository) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get company")
	}
	return c, nil
}

func (r *companyRepository) GetByDomain(ctx context.Context, domain string) (*models.Company, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE tenant_id = $1 AND lower(domain) = lower($2)`,
		tid, strings.TrimSpace(domain)))
	if err != nil {
		return nil, notFound(err, "get company by domain")
	}
	return c, nil
}

func (r *companyRepository) List(ctx context.Context, f models.CompanyFilter) ([]*models.Company, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + companyColumns + ` FROM companies WHERE tenant_id = ` + a.add(tid)
	if f.OwnerID != nil {
		query += ` AND owner_id = ` + a.add(*f.OwnerID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := a.add("%" + q + "%")
		query += fmt.Sprintf(` AND (name ILIKE %s OR domain ILIKE %s)`, p, p)
	}
	query += ` ORDER BY name, id LIMIT ` + a.add(pageLimit(f.Limit)) + ` OFFSET ` + a.add(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, a.args...)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
