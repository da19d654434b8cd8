package transaction

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id string) (*Transaction, error)
	GetByInvoice(ctx context.Context, invoiceNumber string) (*Transaction, error)

	// MarkSucceeded merges a verify result into a pending transaction.
	// The update is conditional on status = PENDING and ref_id being unset,
	// so a duplicate callback can never overwrite ref_id. A repeat of the
	// same result is an idempotent no-op; anything else returns
	// ErrAlreadyFinalized.
	MarkSucceeded(ctx context.Context, id string, res VerifyResult) error

	// MarkFailed transitions a pending transaction to FAILED. Re-marking an
	// already failed transaction is a no-op.
	MarkFailed(ctx context.Context, id string) error

	// MarkRefunded transitions a succeeded transaction to REFUNDED.
	MarkRefunded(ctx context.Context, id string) error

	// LogEvent records a gateway event (verify/refund outcome) with the
	// provider's code and message.
	LogEvent(ctx context.Context, txID string, code int, message string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, tx *Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id,
		invoice_number,
		amount,
		status,
		callback_url,
		cell_number,
		merchant_id,
		terminal_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		tx.ID, tx.InvoiceNumber, tx.Amount, tx.Status,
		tx.CallbackURL, tx.CellNumber, tx.MerchantID, tx.TerminalID,
	)
	return err
}

const selectColumns = `
	SELECT id, invoice_number, amount, status,
	       COALESCE(ref_id, ''), COALESCE(tracking_code, ''), COALESCE(card_number, ''),
	       callback_url, cell_number, merchant_id, terminal_id,
	       created_at, updated_at
	FROM transactions`

func (r *repository) scanOne(row *sql.Row) (*Transaction, error) {
	var tx Transaction
	err := row.Scan(
		&tx.ID, &tx.InvoiceNumber, &tx.Amount, &tx.Status,
		&tx.RefID, &tx.TrackingCode, &tx.CardNumber,
		&tx.CallbackURL, &tx.CellNumber, &tx.MerchantID, &tx.TerminalID,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

func (r *repository) GetByInvoice(ctx context.Context, invoiceNumber string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE invoice_number = $1`, invoiceNumber))
}

func (r *repository) MarkSucceeded(ctx context.Context, id string, res VerifyResult) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, ref_id = $3, tracking_code = $4, card_number = $5, updated_at = now()
		WHERE id = $1 AND status = $6 AND ref_id IS NULL
	`, id, StatusSucceeded, res.RefID, res.TrackingCode, res.CardNumber, StatusPending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Lost the conditional write. A duplicate delivery of the same result
	// is treated as success; anything else is a conflict.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusSucceeded && current.RefID == res.RefID {
		return nil
	}
	return ErrAlreadyFinalized
}

func (r *repository) MarkFailed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, StatusFailed, StatusPending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusFailed {
		return nil
	}
	return ErrAlreadyFinalized
}

func (r *repository) MarkRefunded(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, StatusRefunded, StatusSucceeded)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *repository) LogEvent(ctx context.Context, txID string, code int, message string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_logs (transaction_id, result_code, message)
		VALUES ($1, $2, $3)
	`, txID, code, message)
	return err
}
