package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type DealRepository interface {
	Create(ctx context.Context, deal *models.Deal) error
	Update(ctx context.Context, deal *models.Deal) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Deal, error)
	FilterDeals(ctx context.Context, f models.DealFilter) ([]*models.Deal, error)
	// ListByPipeline returns deals ordered by stage position, then board position.
	ListByPipeline(ctx context.Context, pipelineID int64, ownerID *int64) ([]*models.Deal, error)
	// StageOrder returns the ids of a stage's deals by board position.
	StageOrder(ctx context.Context, stageID int64) ([]int64, error)
	ApplyMove(ctx context.Context, mv *models.DealMove) error
	Summary(ctx context.Context, ownerID *int64) (*models.PipelineSummary, error)
}

type dealRepository struct {
	db *sql.DB
}

func NewDealRepository(db *sql.DB) DealRepository {
	return &dealRepository{db: db}
}

const dealColumns = `id, tenant_id, pipeline_id, stage_id, position, title, contact_id, company_id, owner_id,
	amount, currency, probability, status, expected_close_date, closed_at, created_at, updated_at`

var allowedDealSort = map[string]bool{
	"created_at":          true,
	"updated_at":          true,
	"amount":              true,
	"status":              true,
	"currency":            true,
	"probability":         true,
	"expected_close_date": true,
	"title":               true,
}

func scanDeal(row scanner) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.TenantID, &d.PipelineID, &d.StageID, &d.Position, &d.Title, &d.ContactID,
		&d.CompanyID, &d.OwnerID, &d.Amount, &d.Currency, &d.Probability, &d.Status, &d.ExpectedCloseDate,
		&d.ClosedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create appends the deal to the bottom of its stage.
func (r *dealRepository) Create(ctx context.Context, deal *models.Deal) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	deal.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO deals (tenant_id, pipeline_id, stage_id, position, title, contact_id, company_id, owner_id,
			amount, currency, probability, status, expected_close_date, closed_at)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM deals WHERE tenant_id = $1 AND stage_id = $3),
			$4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, position, created_at, updated_at`,
		tid, deal.PipelineID, deal.StageID, deal.Title, deal.ContactID, deal.CompanyID, deal.OwnerID,
		deal.Amount, deal.Currency, deal.Probability, deal.Status, deal.ExpectedCloseDate, deal.ClosedAt,
	).Scan(&deal.ID, &deal.Position, &deal.CreatedAt, &deal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create deal: %w", err)
	}
	return nil
}

// Update writes the editable attributes. Stage, position and status only
// change through ApplyMove.
func (r *dealRepository) Update(ctx context.Context, deal *models.Deal) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE deals
		SET title = $1, contact_id = $2, company_id = $3, owner_id = $4, amount = $5, currency = $6,
			probability = $7, expected_close_date = $8, updated_at = NOW()
		WHERE tenant_id = $9 AND id = $10
		RETURNING updated_at`,
		deal.Title, deal.ContactID, deal.CompanyID, deal.OwnerID, deal.Amount, deal.Currency,
		deal.Probability, deal.ExpectedCloseDate, tid, deal.ID,
	).Scan(&deal.UpdatedAt)
	if err != nil {
		return notFound(err, "update deal")
	}
	return nil
}

func (r *dealRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM deals WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	return expectOne(res, "delete deal")
}

func (r *dealRepository) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	d, err := scanDeal(r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get deal")
	}
	return d, nil
}

func (r *dealRepository) FilterDeals(ctx context.Context, f models.DealFilter) ([]*models.Deal, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	sortBy := f.SortBy
	if !allowedDealSort[sortBy] {
		sortBy = "created_at"
	}
	order := f.Order
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	var a argList
	query := `SELECT ` + dealColumns + ` FROM deals WHERE tenant_id = ` + a.add(tid)
	if f.PipelineID != nil {
		query += ` AND pipeline_id = ` + a.add(*f.PipelineID)
	}
	if f.StageID != nil {
		query += ` AND stage_id = ` + a.add(*f.StageID)
	}
	if f.OwnerID != nil {
		query += ` AND owner_id = ` + a.add(*f.OwnerID)
	}
	if f.ContactID != nil {
		query += ` AND contact_id = ` + a.add(*f.ContactID)
	}
	if f.Status != nil {
		query += ` AND status = ` + a.add(*f.Status)
	}
	if f.Currency != "" {
		query += ` AND currency = ` + a.add(f.Currency)
	}
	if f.AmountMin != nil {
		query += ` AND amount >= ` + a.add(*f.AmountMin)
	}
	if f.AmountMax != nil {
		query += ` AND amount <= ` + a.add(*f.AmountMax)
	}
	if f.From != nil {
		query += ` AND created_at >= ` + a.add(*f.From)
	}
	if f.To != nil {
		query += ` AND created_at <= ` + a.add(*f.To)
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT %s OFFSET %s`,
		sortBy, order, order, a.add(pageLimit(f.Limit)), a.add(f.Offset))

	return r.query(ctx, query, a.args...)
}

func (r *dealRepository) ListByPipeline(ctx context.Context, pipelineID int64, ownerID *int64) ([]*models.Deal, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE tenant_id = ` + a.add(tid) + ` AND pipeline_id = ` + a.add(pipelineID)
	if ownerID != nil {
		query += ` AND owner_id = ` + a.add(*ownerID)
	}
	query += ` ORDER BY stage_id, position, id`
	return r.query(ctx, query, a.args...)
}

func (r *dealRepository) query(ctx context.Context, query string, args ...any) ([]*models.Deal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var out []*models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *dealRepository) StageOrder(ctx context.Context, stageID int64) ([]int64, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM deals WHERE tenant_id = $1 AND stage_id = $2 ORDER BY position, id`, tid, stageID)
	if err != nil {
		return nil, fmt.Errorf("stage order: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stage order: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockStages locks every deal row of the given stages in id order and
// returns the members per stage. One statement with a fixed order keeps
// concurrent moves between the same stages from deadlocking.
func lockStages(ctx context.Context, tx *sql.Tx, tenantID int64, stageIDs []int64) (map[int64][]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, stage_id FROM deals WHERE tenant_id = $1 AND stage_id = ANY($2) ORDER BY id FOR UPDATE`,
		tenantID, int64Array(stageIDs))
	if err != nil {
		return nil, fmt.Errorf("lock stages: %w", err)
	}
	defer rows.Close()

	members := make(map[int64][]int64, len(stageIDs))
	for rows.Next() {
		var id, stageID int64
		if err := rows.Scan(&id, &stageID); err != nil {
			return nil, fmt.Errorf("scan stage member: %w", err)
		}
		members[stageID] = append(members[stageID], id)
	}
	return members, rows.Err()
}

// sameMembers reports whether got holds exactly the ids of want, ignoring order.
func sameMembers(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	a := append([]int64(nil), got...)
	b := append([]int64(nil), want...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyMove persists a computed move. The affected stages are locked and
// their current membership must match the move, otherwise another move won
// the race and ErrConflict is returned. Deadlock and serialization failures
// are reported as ErrConflict as well.
func (r *dealRepository) ApplyMove(ctx context.Context, mv *models.DealMove) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return retryableTx(withTx(ctx, r.db, func(tx *sql.Tx) error {
		var fromStage int64
		err := tx.QueryRowContext(ctx,
			`SELECT stage_id FROM deals WHERE tenant_id = $1 AND id = $2`, tid, mv.DealID,
		).Scan(&fromStage)
		if err != nil {
			return notFound(err, "find deal")
		}

		stages := []int64{mv.ToStageID}
		if fromStage != mv.ToStageID {
			stages = append(stages, fromStage)
		}
		members, err := lockStages(ctx, tx, tid, stages)
		if err != nil {
			return err
		}
		if !containsID(members[fromStage], mv.DealID) {
			return fmt.Errorf("deal left stage %d: %w", fromStage, models.ErrConflict)
		}

		target := members[mv.ToStageID]
		if fromStage != mv.ToStageID {
			target = append(target, mv.DealID)
			if !sameMembers(removeID(members[fromStage], mv.DealID), mv.SourceOrder) {
				return fmt.Errorf("source stage changed: %w", models.ErrConflict)
			}
		}
		if !sameMembers(target, mv.TargetOrder) {
			return fmt.Errorf("target stage changed: %w", models.ErrConflict)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE deals SET stage_id = $1, probability = $2, status = $3, closed_at = $4, updated_at = NOW()
			WHERE tenant_id = $5 AND id = $6`,
			mv.ToStageID, mv.Probability, mv.Status, mv.ClosedAt, tid, mv.DealID)
		if err != nil {
			return fmt.Errorf("move deal: %w", err)
		}
		if err := writePositions(ctx, tx, tid, mv.TargetOrder); err != nil {
			return err
		}
		if fromStage != mv.ToStageID {
			return writePositions(ctx, tx, tid, mv.SourceOrder)
		}
		return nil
	}))
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// writePositions renumbers deals densely in slice order with a single UPDATE.
func writePositions(ctx context.Context, tx *sql.Tx, tenantID int64, order []int64) error {
	if len(order) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE deals d SET position = o.ord - 1
		FROM unnest($1::bigint[]) WITH ORDINALITY AS o(id, ord)
		WHERE d.tenant_id = $2 AND d.id = o.id`,
		int64Array(order), tenantID)
	if err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

func (r *dealRepository) Summary(ctx context.Context, ownerID *int64) (*models.PipelineSummary, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'open'), 0),
			COALESCE(SUM(amount * probability / 100) FILTER (WHERE status = 'open'), 0),
			COUNT(*) FILTER (WHERE status = 'won'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'won'), 0),
			COUNT(*) FILTER (WHERE status = 'lost')
		FROM deals WHERE tenant_id = ` + a.add(tid)
	if ownerID != nil {
		query += ` AND owner_id = ` + a.add(*ownerID)
	}

	s := &models.PipelineSummary{}
	err = r.db.QueryRowContext(ctx, query, a.args...).Scan(
		&s.OpenDeals, &s.OpenValue, &s.WeightedValue, &s.WonDeals, &s.WonValue, &s.LostDeals)
	if err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	s.WeightedValue = s.WeightedValue.Round(2)
	return s, nil
}
