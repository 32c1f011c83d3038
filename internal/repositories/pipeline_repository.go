package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type PipelineRepository interface {
	Create(ctx context.Context, p *models.Pipeline) error
	// Update changes the pipeline name and stage attributes; stage set and order stay.
	Update(ctx context.Context, p *models.Pipeline) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Pipeline, error)
	GetDefault(ctx context.Context) (*models.Pipeline, error)
	GetByStageID(ctx context.Context, stageID int64) (*models.Pipeline, error)
	List(ctx context.Context) ([]*models.Pipeline, error)
}

type pipelineRepository struct {
	db *sql.DB
}

func NewPipelineRepository(db *sql.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

// insertPipeline writes the pipeline row and its stages. Stage positions are
// taken from slice order.
func insertPipeline(ctx context.Context, tx *sql.Tx, p *models.Pipeline) error {
	if p.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pipelines SET is_default = FALSE WHERE tenant_id = $1 AND is_default`, p.TenantID); err != nil {
			return fmt.Errorf("clear default pipeline: %w", err)
		}
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO pipelines (tenant_id, name, is_default)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		p.TenantID, p.Name, p.IsDefault,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	for i := range p.Stages {
		st := &p.Stages[i]
		st.PipelineID = p.ID
		st.Position = i
		err := tx.QueryRowContext(ctx, `
			INSERT INTO pipeline_stages (pipeline_id, name, position, probability, kind)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			st.PipelineID, st.Name, st.Position, st.Probability, st.Kind,
		).Scan(&st.ID)
		if err != nil {
			return fmt.Errorf("create stage %q: %w", st.Name, err)
		}
	}
	return nil
}

func (r *pipelineRepository) Create(ctx context.Context, p *models.Pipeline) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	p.TenantID = tid
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertPipeline(ctx, tx, p)
	})
}

func (r *pipelineRepository) Update(ctx context.Context, p *models.Pipeline) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if p.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE pipelines SET is_default = FALSE WHERE tenant_id = $1 AND id <> $2`, tid, p.ID); err != nil {
				return fmt.Errorf("clear default pipeline: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE pipelines SET name = $1, is_default = $2 WHERE tenant_id = $3 AND id = $4`,
			p.Name, p.IsDefault, tid, p.ID)
		if err != nil {
			return fmt.Errorf("update pipeline: %w", err)
		}
		if err := expectOne(res, "update pipeline"); err != nil {
			return err
		}
		for _, st := range p.Stages {
			res, err := tx.ExecContext(ctx, `
				UPDATE pipeline_stages SET name = $1, probability = $2, kind = $3
				WHERE pipeline_id = $4 AND id = $5`,
				st.Name, st.Probability, st.Kind, p.ID, st.ID)
			if err != nil {
				return fmt.Errorf("update stage: %w", err)
			}
			if err := expectOne(res, "update stage"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *pipelineRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	var deals int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE tenant_id = $1 AND pipeline_id = $2`, tid, id).Scan(&deals)
	if err != nil {
		return fmt.Errorf("count pipeline deals: %w", err)
	}
	if deals > 0 {
		return fmt.Errorf("pipeline has %d deals: %w", deals, models.ErrConflict)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipelines WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	return expectOne(res, "delete pipeline")
}

func (r *pipelineRepository) GetByID(ctx context.Context, id int64) (*models.Pipeline, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, `SELECT id, tenant_id, name, is_default, created_at FROM pipelines
		WHERE tenant_id = $1 AND id = $2`, tid, id)
}

func (r *pipelineRepository) GetDefault(ctx context.Context) (*models.Pipeline, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, `SELECT id, tenant_id, name, is_default, created_at FROM pipelines
		WHERE tenant_id = $1 ORDER BY is_default DESC, id LIMIT 1`, tid)
}

func (r *pipelineRepository) GetByStageID(ctx context.Context, stageID int64) (*models.Pipeline, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, `SELECT p.id, p.tenant_id, p.name, p.is_default, p.created_at
		FROM pipelines p JOIN pipeline_stages s ON s.pipeline_id = p.id
		WHERE p.tenant_id = $1 AND s.id = $2`, tid, stageID)
}

func (r *pipelineRepository) getOne(ctx context.Context, query string, args ...any) (*models.Pipeline, error) {
	var p models.Pipeline
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get pipeline")
	}
	stages, err := r.stages(ctx, []int64{p.ID})
	if err != nil {
		return nil, err
	}
	p.Stages = stages[p.ID]
	return &p, nil
}

func (r *pipelineRepository) List(ctx context.Context) ([]*models.Pipeline, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, is_default, created_at
		FROM pipelines WHERE tenant_id = $1 ORDER BY is_default DESC, id`, tid)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var (
		out []*models.Pipeline
		ids []int64
	)
	for rows.Next() {
		var p models.Pipeline
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		out = append(out, &p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	stages, err := r.stages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		p.Stages = stages[p.ID]
	}
	return out, nil
}

func (r *pipelineRepository) stages(ctx context.Context, pipelineIDs []int64) (map[int64][]models.Stage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pipeline_id, name, position, probability, kind
		FROM pipeline_stages
		WHERE pipeline_id = ANY($1)
		ORDER BY pipeline_id, position`, int64Array(pipelineIDs))
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.Stage)
	for rows.Next() {
		var st models.Stage
		if err := rows.Scan(&st.ID, &st.PipelineID, &st.Name, &st.Position, &st.Probability, &st.Kind); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out[st.PipelineID] = append(out[st.PipelineID], st)
	}
	return out, rows.Err()
}
