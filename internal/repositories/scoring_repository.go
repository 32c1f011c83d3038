package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type ScoringRepository interface {
	Create(ctx context.Context, m *models.ScoringModel) error
	Update(ctx context.Context, m *models.ScoringModel) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.ScoringModel, error)
	List(ctx context.Context) ([]*models.ScoringModel, error)
	// GetActive returns ErrNotFound when the tenant has no active model.
	GetActive(ctx context.Context) (*models.ScoringModel, error)
	// Activate makes id the single active model of the tenant.
	Activate(ctx context.Context, id int64) error
}

type scoringRepository struct {
	db *sql.DB
}

func NewScoringRepository(db *sql.DB) ScoringRepository {
	return &scoringRepository{db: db}
}

const scoringColumns = `id, tenant_id, name, active, rules, thresholds, created_at, updated_at`

func scanScoringModel(row scanner) (*models.ScoringModel, error) {
	var (
		m                 models.ScoringModel
		rules, thresholds []byte
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Active, &rules, &thresholds, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rules, &m.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := json.Unmarshal(thresholds, &m.Thresholds); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	return &m, nil
}

func encodeScoring(m *models.ScoringModel) ([]byte, []byte, error) {
	rules, err := json.Marshal(nonNil(m.Rules))
	if err != nil {
		return nil, nil, fmt.Errorf("encode rules: %w", err)
	}
	thresholds, err := json.Marshal(nonNil(m.Thresholds))
	if err != nil {
		return nil, nil, fmt.Errorf("encode thresholds: %w", err)
	}
	return rules, thresholds, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *scoringRepository) Create(ctx context.Context, m *models.ScoringModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	rules, thresholds, err := encodeScoring(m)
	if err != nil {
		return err
	}
	m.TenantID = tid
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if m.Active {
			if _, err := tx.ExecContext(ctx,
				`UPDATE scoring_models SET active = FALSE WHERE tenant_id = $1 AND active`, tid); err != nil {
				return fmt.Errorf("deactivate scoring models: %w", err)
			}
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO scoring_models (tenant_id, name, active, rules, thresholds)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			tid, m.Name, m.Active, rules, thresholds,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create scoring model: %w", err)
		}
		return nil
	})
}

// Update leaves the active flag alone; use Activate.
func (r *scoringRepository) Update(ctx context.Context, m *models.ScoringModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	rules, thresholds, err := encodeScoring(m)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE scoring_models SET name = $1, rules = $2, thresholds = $3, updated_at = NOW()
		WHERE tenant_id = $4 AND id = $5
		RETURNING active, updated_at`,
		m.Name, rules, thresholds, tid, m.ID,
	).Scan(&m.Active, &m.UpdatedAt)
	if err != nil {
		return notFound(err, "update scoring model")
	}
	return nil
}

func (r *scoringRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM scoring_models WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete scoring model: %w", err)
	}
	return expectOne(res, "delete scoring model")
}

func (r *scoringRepository) GetByID(ctx context.Context, id int64) (*models.ScoringModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	m, err := scanScoringModel(r.db.QueryRowContext(ctx,
		`SELECT `+scoringColumns+` FROM scoring_models WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get scoring model")
	}
	return m, nil
}

func (r *scoringRepository) GetActive(ctx context.Context) (*models.ScoringModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	m, err := scanScoringModel(r.db.QueryRowContext(ctx,
		`SELECT `+scoringColumns+` FROM scoring_models WHERE tenant_id = $1 AND active`, tid))
	if err != nil {
		return nil, notFound(err, "get active scoring model")
	}
	return m, nil
}

func (r *scoringRepository) List(ctx context.Context) ([]*models.ScoringModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scoringColumns+` FROM scoring_models WHERE tenant_id = $1 ORDER BY id`, tid)
	if err != nil {
		return nil, fmt.Errorf("list scoring models: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoringModel
	for rows.Next() {
		m, err := scanScoringModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scoring model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *scoringRepository) Activate(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scoring_models SET active = FALSE WHERE tenant_id = $1 AND active AND id <> $2`, tid, id); err != nil {
			return fmt.Errorf("deactivate scoring models: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE scoring_models SET active = TRUE, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`, tid, id)
		if err != nil {
			return fmt.Errorf("activate scoring model: %w", err)
		}
		return expectOne(res, "activate scoring model")
	})
}
