package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"crmhub/internal/models"
	"crmhub/internal/reportquery"
	"crmhub/internal/tenant"
)

type ReportRepository interface {
	Create(ctx context.Context, def *models.ReportDefinition) error
	Update(ctx context.Context, def *models.ReportDefinition) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.ReportDefinition, error)
	List(ctx context.Context, ownerID *int64) ([]*models.ReportDefinition, error)
	// Run executes a built report query and returns rows keyed by column.
	Run(ctx context.Context, q *reportquery.Query) ([]map[string]any, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

const reportColumns = `id, tenant_id, owner_id, name, entity, columns, filters, sort_by, sort_order, row_limit,
	created_at, updated_at`

func scanReport(row scanner) (*models.ReportDefinition, error) {
	var (
		d       models.ReportDefinition
		filters []byte
	)
	err := row.Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.Name, &d.Entity, pq.Array(&d.Columns), &filters,
		&d.SortBy, &d.SortOrder, &d.Limit, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filters, &d.Filters); err != nil {
		return nil, fmt.Errorf("decode report filters: %w", err)
	}
	return &d, nil
}

func (r *reportRepository) Create(ctx context.Context, def *models.ReportDefinition) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	filters, err := json.Marshal(nonNil(def.Filters))
	if err != nil {
		return fmt.Errorf("encode report filters: %w", err)
	}
	def.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO report_definitions (tenant_id, owner_id, name, entity, columns, filters, sort_by, sort_order, row_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		tid, def.OwnerID, def.Name, def.Entity, pq.Array(nonNil(def.Columns)), filters, def.SortBy,
		def.SortOrder, def.Limit,
	).Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *reportRepository) Update(ctx context.Context, def *models.ReportDefinition) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	filters, err := json.Marshal(nonNil(def.Filters))
	if err != nil {
		return fmt.Errorf("encode report filters: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE report_definitions
		SET name = $1, entity = $2, columns = $3, filters = $4, sort_by = $5, sort_order = $6, row_limit = $7,
			updated_at = NOW()
		WHERE tenant_id = $8 AND id = $9
		RETURNING updated_at`,
		def.Name, def.Entity, pq.Array(nonNil(def.Columns)), filters, def.SortBy, def.SortOrder, def.Limit,
		tid, def.ID,
	).Scan(&def.UpdatedAt)
	if err != nil {
		return notFound(err, "update report")
	}
	return nil
}

func (r *reportRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM report_definitions WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return expectOne(res, "delete report")
}

func (r *reportRepository) GetByID(ctx context.Context, id int64) (*models.ReportDefinition, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	d, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM report_definitions WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get report")
	}
	return d, nil
}

func (r *reportRepository) List(ctx context.Context, ownerID *int64) ([]*models.ReportDefinition, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + reportColumns + ` FROM report_definitions WHERE tenant_id = ` + a.add(tid)
	if ownerID != nil {
		query += ` AND owner_id = ` + a.add(*ownerID)
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query, a.args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*models.ReportDefinition
	for rows.Next() {
		d, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *reportRepository) Run(ctx context.Context, q *reportquery.Query) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("run report: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	vals := make([]any, len(q.Columns))
	ptrs := make([]any, len(q.Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		row := make(map[string]any, len(q.Columns))
		for i, c := range q.Columns {
			row[c.Name] = q.Value(i, vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
