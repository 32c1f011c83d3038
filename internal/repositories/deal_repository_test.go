package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func tenantCtx(id int64) context.Context {
	return tenant.WithID(context.Background(), id)
}

func memberRows(pairs ...[2]int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "stage_id"})
	for _, p := range pairs {
		rows.AddRow(p[0], p[1])
	}
	return rows
}

func stageRow(stageID int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"stage_id"}).AddRow(stageID)
}

const lockStagesSQL = `SELECT id, stage_id FROM deals WHERE tenant_id = \$1 AND stage_id = ANY\(\$2\) ORDER BY id FOR UPDATE`

func TestDealRepository_ApplyMove(t *testing.T) {
	t.Run("moves across stages and renumbers both", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)
		closed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(int64(3), int64(7)).
			WillReturnRows(stageRow(1))
		mock.ExpectQuery(lockStagesSQL).
			WithArgs(int64(3), sqlmock.AnyArg()).
			WillReturnRows(memberRows([2]int64{5, 1}, [2]int64{7, 1}, [2]int64{10, 2}, [2]int64{11, 2}))
		mock.ExpectExec(`UPDATE deals SET stage_id = \$1`).
			WithArgs(int64(2), 100, models.DealWon, &closed, int64(3), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE deals d SET position`).
			WithArgs(sqlmock.AnyArg(), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`UPDATE deals d SET position`).
			WithArgs(sqlmock.AnyArg(), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{
			DealID:      7,
			ToStageID:   2,
			Probability: 100,
			Status:      models.DealWon,
			ClosedAt:    &closed,
			TargetOrder: []int64{10, 7, 11},
			SourceOrder: []int64{5},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reorder within a stage writes one stage", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals`).WillReturnRows(stageRow(2))
		mock.ExpectQuery(lockStagesSQL).
			WithArgs(int64(3), sqlmock.AnyArg()).
			WillReturnRows(memberRows([2]int64{7, 2}, [2]int64{10, 2}, [2]int64{11, 2}))
		mock.ExpectExec(`UPDATE deals SET stage_id`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE deals d SET position`).WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{
			DealID: 7, ToStageID: 2, Probability: 40, Status: models.DealOpen,
			TargetOrder: []int64{7, 10, 11},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale target membership is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals`).WillReturnRows(stageRow(1))
		mock.ExpectQuery(lockStagesSQL).
			WillReturnRows(memberRows([2]int64{7, 1}, [2]int64{10, 2}, [2]int64{11, 2}, [2]int64{12, 2}))
		mock.ExpectRollback()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{
			DealID: 7, ToStageID: 2, TargetOrder: []int64{10, 7, 11}, SourceOrder: []int64{},
		})
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deal moved away before the lock is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals`).WillReturnRows(stageRow(1))
		mock.ExpectQuery(lockStagesSQL).
			WillReturnRows(memberRows([2]int64{5, 1}, [2]int64{10, 2}))
		mock.ExpectRollback()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{
			DealID: 7, ToStageID: 2, TargetOrder: []int64{10, 7}, SourceOrder: []int64{5},
		})
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deadlock is reported as a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals`).WillReturnRows(stageRow(1))
		mock.ExpectQuery(lockStagesSQL).
			WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{
			DealID: 7, ToStageID: 2, TargetOrder: []int64{7}, SourceOrder: []int64{},
		})
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing deal", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDealRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT stage_id FROM deals`).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.ApplyMove(tenantCtx(3), &models.DealMove{DealID: 99, ToStageID: 2})
		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires tenant", func(t *testing.T) {
		db, _ := newMockDB(t)
		err := NewDealRepository(db).ApplyMove(context.Background(), &models.DealMove{DealID: 1})
		assert.True(t, errors.Is(err, models.ErrTenantRequired))
	})
}

func TestRetryableTx(t *testing.T) {
	assert.ErrorIs(t, retryableTx(fmt.Errorf("lock stages: %w", &pq.Error{Code: "40001"})), models.ErrConflict)
	assert.NotErrorIs(t, retryableTx(&pq.Error{Code: "23505"}), models.ErrConflict)
	assert.NoError(t, retryableTx(nil))
}

func TestDealRepository_FilterDeals(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDealRepository(db)

	owner := int64(4)
	status := models.DealOpen
	min := decimal.NewFromInt(100)

	cols := []string{"id", "tenant_id", "pipeline_id", "stage_id", "position", "title", "contact_id",
		"company_id", "owner_id", "amount", "currency", "probability", "status", "expected_close_date",
		"closed_at", "created_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`FROM deals WHERE tenant_id = \$1 AND owner_id = \$2 AND status = \$3 AND amount >= \$4 ORDER BY created_at desc, id desc LIMIT \$5 OFFSET \$6`).
		WithArgs(int64(3), owner, status, sqlmock.AnyArg(), 100, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(3), int64(1), int64(2), 0, "Renewal", nil, nil, owner, "1500.00", "USD", 40,
				"open", nil, nil, now, now))

	deals, err := repo.FilterDeals(tenantCtx(3), models.DealFilter{
		OwnerID:   &owner,
		Status:    &status,
		AmountMin: &min,
		SortBy:    "password; --",
	})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "Renewal", deals[0].Title)
	assert.True(t, decimal.RequireFromString("1500").Equal(deals[0].Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSameMembers(t *testing.T) {
	assert.True(t, sameMembers([]int64{3, 1, 2}, []int64{1, 2, 3}))
	assert.True(t, sameMembers(nil, []int64{}))
	assert.False(t, sameMembers([]int64{1, 2}, []int64{1, 3}))
	assert.False(t, sameMembers([]int64{1}, []int64{1, 1}))
}
