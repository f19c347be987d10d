// Package store persists invoices in Postgres. Saves are guarded by a
// per-invoice revision so concurrent webhook deliveries for the same
// address cannot overwrite each other's updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"BTCPayGateway/internal/invoice"
)

var (
	ErrNotFound = errors.New("invoice not found")
	// ErrConflict means the invoice changed between load and save.
	// Callers reload and reapply.
	ErrConflict = errors.New("invoice was modified concurrently")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	rec := inv.Record()
	transactions, stateTransitions, err := marshalLedger(rec)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO invoices (
			invoice_id, address, due_amount, message, payment_state,
			transactions, state_transitions, revision, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9)
	`,
		rec.ID,
		rec.Address,
		rec.DueAmount,
		rec.Message,
		rec.PaymentState,
		transactions,
		stateTransitions,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	inv.Revision = 0
	return nil
}

func (s *Store) LoadInvoice(ctx context.Context, address string) (*invoice.Invoice, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT invoice_id, address, due_amount, message, payment_state,
			transactions, state_transitions, revision, created_at, updated_at
		FROM invoices WHERE address=$1
	`, address)

	var rec invoice.Record
	var transactions, stateTransitions []byte
	err := row.Scan(
		&rec.ID,
		&rec.Address,
		&rec.DueAmount,
		&rec.Message,
		&rec.PaymentState,
		&transactions,
		&stateTransitions,
		&rec.Revision,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(transactions, &rec.Transactions); err != nil {
		return nil, fmt.Errorf("decode transactions for %q: %w", address, err)
	}
	if err := json.Unmarshal(stateTransitions, &rec.StateTransitions); err != nil {
		return nil, fmt.Errorf("decode state transitions for %q: %w", address, err)
	}
	return invoice.FromRecord(rec), nil
}

// SaveInvoice writes the invoice back, but only if nobody else saved it
// since it was loaded. On success the in-memory revision advances with
// the stored one.
func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	rec := inv.Record()
	transactions, stateTransitions, err := marshalLedger(rec)
	if err != nil {
		return err
	}

	res, err := s.Pool.Exec(ctx, `
		UPDATE invoices
		SET payment_state=$2, transactions=$3, state_transitions=$4,
			updated_at=$5, revision=revision+1
		WHERE address=$1 AND revision=$6
	`,
		rec.Address,
		rec.PaymentState,
		transactions,
		stateTransitions,
		rec.UpdatedAt,
		rec.Revision,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %q revision %d", ErrConflict, rec.Address, rec.Revision)
	}
	inv.Revision = rec.Revision + 1
	return nil
}

// NextAddressIndex pulls the next derivation index for the local
// address source. A database sequence survives restarts, so an index is
// never handed out twice.
func (s *Store) NextAddressIndex(ctx context.Context) (int64, error) {
	var idx int64
	err := s.Pool.QueryRow(ctx, "SELECT nextval('address_derivation_index_seq')").Scan(&idx)
	return idx, err
}

func marshalLedger(rec invoice.Record) (transactions, stateTransitions []byte, err error) {
	if rec.Transactions == nil {
		rec.Transactions = []invoice.Transaction{}
	}
	if rec.StateTransitions == nil {
		rec.StateTransitions = []invoice.StateTransition{}
	}
	transactions, err = json.Marshal(rec.Transactions)
	if err != nil {
		return nil, nil, err
	}
	stateTransitions, err = json.Marshal(rec.StateTransitions)
	if err != nil {
		return nil, nil, err
	}
	return transactions, stateTransitions, nil
}
