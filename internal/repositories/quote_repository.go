package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type QuoteRepository interface {
	Create(ctx context.Context, q *models.Quote) error
	// Update rewrites header fields and replaces all line items.
	Update(ctx context.Context, q *models.Quote) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Quote, error)
	List(ctx context.Context, f models.QuoteFilter) ([]*models.Quote, error)
	// TransitionStatus moves from -> to only if the row is still in from.
	TransitionStatus(ctx context.Context, id int64, from, to models.QuoteStatus, at time.Time) error
	SetEnvelope(ctx context.Context, id int64, provider, envelopeID string, sentAt time.Time) error
	// GetByEnvelope resolves a provider envelope to its quote across tenants.
	GetByEnvelope(ctx context.Context, provider, envelopeID string) (*models.Quote, error)
}

type quoteRepository struct {
	db *sql.DB
}

func NewQuoteRepository(db *sql.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

const quoteColumns = `id, tenant_id, deal_id, owner_id, number, title, status, currency, discount_percent,
	tax_percent, subtotal, discount_total, tax_total, total, valid_until, signature_provider, envelope_id,
	sent_at, signed_at, created_at, updated_at`

func scanQuote(row scanner) (*models.Quote, error) {
	var q models.Quote
	err := row.Scan(&q.ID, &q.TenantID, &q.DealID, &q.OwnerID, &q.Number, &q.Title, &q.Status, &q.Currency,
		&q.DiscountPercent, &q.TaxPercent, &q.Subtotal, &q.DiscountTotal, &q.TaxTotal, &q.Total, &q.ValidUntil,
		&q.SignatureProvider, &q.EnvelopeID, &q.SentAt, &q.SignedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quoteRepository) Create(ctx context.Context, q *models.Quote) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	q.TenantID = tid
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO quotes (tenant_id, deal_id, owner_id, number, title, status, currency, discount_percent,
				tax_percent, subtotal, discount_total, tax_total, total, valid_until)
			VALUES ($1, $2, $3, '', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`,
			tid, q.DealID, q.OwnerID, q.Title, q.Status, q.Currency, q.DiscountPercent, q.TaxPercent,
			q.Subtotal, q.DiscountTotal, q.TaxTotal, q.Total, q.ValidUntil,
		).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		q.Number = fmt.Sprintf("Q-%06d", q.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE quotes SET number = $1 WHERE id = $2`, q.Number, q.ID); err != nil {
			return fmt.Errorf("number quote: %w", err)
		}
		return insertQuoteItems(ctx, tx, q)
	})
}

func insertQuoteItems(ctx context.Context, tx *sql.Tx, q *models.Quote) error {
	for i := range q.Items {
		it := &q.Items[i]
		it.QuoteID = q.ID
		it.Position = i
		err := tx.QueryRowContext(ctx, `
			INSERT INTO quote_items (quote_id, position, name, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			it.QuoteID, it.Position, it.Name, it.Quantity, it.UnitPrice, it.LineTotal,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("create quote item: %w", err)
		}
	}
	return nil
}

func (r *quoteRepository) Update(ctx context.Context, q *models.Quote) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE quotes
			SET title = $1, currency = $2, discount_percent = $3, tax_percent = $4, subtotal = $5,
				discount_total = $6, tax_total = $7, total = $8, valid_until = $9, updated_at = NOW()
			WHERE tenant_id = $10 AND id = $11
			RETURNING updated_at`,
			q.Title, q.Currency, q.DiscountPercent, q.TaxPercent, q.Subtotal, q.DiscountTotal, q.TaxTotal,
			q.Total, q.ValidUntil, tid, q.ID,
		).Scan(&q.UpdatedAt)
		if err != nil {
			return notFound(err, "update quote")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
			return fmt.Errorf("clear quote items: %w", err)
		}
		return insertQuoteItems(ctx, tx, q)
	})
}

func (r *quoteRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM quotes WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	return expectOne(res, "delete quote")
}

func (r *quoteRepository) GetByID(ctx context.Context, id int64) (*models.Quote, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	q, err := scanQuote(r.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get quote")
	}
	if q.Items, err = r.items(ctx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *quoteRepository) GetByEnvelope(ctx context.Context, provider, envelopeID string) (*models.Quote, error) {
	q, err := scanQuote(r.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE signature_provider = $1 AND envelope_id = $2`,
		provider, envelopeID))
	if err != nil {
		return nil, notFound(err, "get quote by envelope")
	}
	if q.Items, err = r.items(ctx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *quoteRepository) items(ctx context.Context, quoteID int64) ([]models.QuoteItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, quote_id, position, name, quantity, unit_price, line_total
		FROM quote_items WHERE quote_id = $1 ORDER BY position`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("list quote items: %w", err)
	}
	defer rows.Close()

	items := []models.QuoteItem{}
	for rows.Next() {
		var it models.QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Position, &it.Name, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("scan quote item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns quote headers only.
func (r *quoteRepository) List(ctx context.Context, f models.QuoteFilter) ([]*models.Quote, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE tenant_id = ` + a.add(tid)
	if f.DealID != nil {
		query += ` AND deal_id = ` + a.add(*f.DealID)
	}
	if f.OwnerID != nil {
		query += ` AND owner_id = ` + a.add(*f.OwnerID)
	}
	if f.Status != nil {
		query += ` AND status = ` + a.add(*f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + a.add(pageLimit(f.Limit)) + ` OFFSET ` + a.add(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, a.args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var out []*models.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *quoteRepository) TransitionStatus(ctx context.Context, id int64, from, to models.QuoteStatus, at time.Time) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = $1,
			signed_at = CASE WHEN $1 = 'signed' THEN $2 ELSE signed_at END,
			updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4 AND status = $5`,
		to, at, tid, id, from)
	if err != nil {
		return fmt.Errorf("quote status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("quote status: %w", err)
	} else if n == 0 {
		return fmt.Errorf("quote %d is no longer %s: %w", id, from, models.ErrConflict)
	}
	return nil
}

func (r *quoteRepository) SetEnvelope(ctx context.Context, id int64, provider, envelopeID string, sentAt time.Time) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET signature_provider = $1, envelope_id = $2, sent_at = $3, status = 'sent', updated_at = NOW()
		WHERE tenant_id = $4 AND id = $5 AND status = 'draft'`,
		provider, envelopeID, sentAt, tid, id)
	if err != nil {
		return fmt.Errorf("set quote envelope: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("set quote envelope: %w", err)
	} else if n == 0 {
		return fmt.Errorf("quote %d is not a draft: %w", id, models.ErrConflict)
	}
	return nil
}
