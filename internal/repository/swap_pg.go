package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"union-live/internal/domain"
)

// Swap is the pgx-backed swap store. The credit ledger is authoritative
// here: balances only move inside RecordSwap and RecordDonation
// transactions, so two racing swaps cannot spend the same credit.
type Swap struct {
	db *pgxpool.Pool
}

func NewSwap(db *pgxpool.Pool) *Swap { return &Swap{db: db} }

func (r *Swap) LoadSwap(ctx context.Context) ([]domain.SwapPair, bool, error) {
	var open bool
	if err := r.db.QueryRow(ctx, `SELECT open FROM swap_state WHERE id = 1`).Scan(&open); err != nil {
		return nil, false, fmt.Errorf("load swap state: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, first_name, second_name, swap_count FROM swap_pairs ORDER BY id
	`)
	if err != nil {
		return nil, false, fmt.Errorf("load swap pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.SwapPair
	for rows.Next() {
		var p domain.SwapPair
		if err := rows.Scan(&p.ID, &p.First, &p.Second, &p.Count); err != nil {
			return nil, false, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, open, rows.Err()
}

func (r *Swap) Credit(ctx context.Context, member string) (int64, []domain.CreditEntry, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM swap_credits WHERE member = $1`, member).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load credit for %q: %w", member, err)
	}
	history, err := r.history(ctx, r.db, member)
	if err != nil {
		return 0, nil, err
	}
	return balance, history, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Swap) history(ctx context.Context, q queryer, member string) ([]domain.CreditEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT at, type, amount FROM swap_credit_history WHERE member = $1 ORDER BY at, id
	`, member)
	if err != nil {
		return nil, fmt.Errorf("load history for %q: %w", member, err)
	}
	defer rows.Close()

	var history []domain.CreditEntry
	for rows.Next() {
		var e domain.CreditEntry
		var kind string
		if err := rows.Scan(&e.At, &kind, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Type = domain.CreditEntryType(kind)
		history = append(history, e)
	}
	return history, rows.Err()
}

// RecordSwap debits the member and writes both updated pairs in one
// transaction. The conditional UPDATE is the authoritative credit check.
func (r *Swap) RecordSwap(ctx context.Context, first, second domain.SwapPair, member string, cost int64) (int64, []domain.CreditEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("begin record swap: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE swap_credits SET balance = balance - $2
		WHERE member = $1 AND balance >= $2
		RETURNING balance
	`, member, cost).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil, domain.ErrInsufficientCredit
	}
	if err != nil {
		return 0, nil, fmt.Errorf("debit %q: %w", member, err)
	}

	for _, p := range []domain.SwapPair{first, second} {
		tag, err := tx.Exec(ctx, `
			UPDATE swap_pairs SET first_name = $2, second_name = $3, swap_count = $4 WHERE id = $1
		`, p.ID, p.First, p.Second, p.Count)
		if err != nil {
			return 0, nil, fmt.Errorf("update pair %d: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, nil, fmt.Errorf("update pair %d: no such pair", p.ID)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO swap_credit_history (member, at, type, amount) VALUES ($1, $2, $3, $4)
	`, member, time.Now().UTC(), string(domain.CreditSwap), -cost)
	if err != nil {
		return 0, nil, fmt.Errorf("append swap history: %w", err)
	}

	history, err := r.history(ctx, tx, member)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit record swap: %w", err)
	}
	return balance, history, nil
}

// RecordDonation credits the member once per payment intent. A replayed
// confirmation returns credited=false with the unchanged balance.
func (r *Swap) RecordDonation(ctx context.Context, member, intentID string, amountMinor int64) (int64, []domain.CreditEntry, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, nil, false, fmt.Errorf("begin record donation: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO swap_donations (intent_id, member, amount, at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (intent_id) DO NOTHING
	`, intentID, member, amountMinor, time.Now().UTC())
	if err != nil {
		return 0, nil, false, fmt.Errorf("record donation intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT balance FROM swap_credits WHERE member = $1`, member).Scan(&balance); err != nil && err != pgx.ErrNoRows {
			return 0, nil, false, fmt.Errorf("load balance for %q: %w", member, err)
		}
		return balance, nil, false, nil
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		INSERT INTO swap_credits (member, balance) VALUES ($1, $2)
		ON CONFLICT (member) DO UPDATE SET balance = swap_credits.balance + $2
		RETURNING balance
	`, member, amountMinor).Scan(&balance)
	if err != nil {
		return 0, nil, false, fmt.Errorf("credit %q: %w", member, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO swap_credit_history (member, at, type, amount) VALUES ($1, $2, $3, $4)
	`, member, time.Now().UTC(), string(domain.CreditDonation), amountMinor)
	if err != nil {
		return 0, nil, false, fmt.Errorf("append donation history: %w", err)
	}

	history, err := r.history(ctx, tx, member)
	if err != nil {
		return 0, nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, false, fmt.Errorf("commit record donation: %w", err)
	}
	return balance, history, true, nil
}

func (r *Swap) SetSwapOpen(ctx context.Context, open bool) error {
	_, err := r.db.Exec(ctx, `UPDATE swap_state SET open = $1 WHERE id = 1`, open)
	if err != nil {
		return fmt.Errorf("set swap open: %w", err)
	}
	return nil
}
