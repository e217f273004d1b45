package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"union-live/internal/domain"
)

// Orders is the pgx-backed bar store. Completed orders stay in the table
// with completed=true; only active ones are loaded into the hub snapshot.
type Orders struct {
	db *pgxpool.Pool
}

func NewOrders(db *pgxpool.Pool) *Orders { return &Orders{db: db} }

func (r *Orders) LoadBar(ctx context.Context) ([]domain.Order, bool, error) {
	var open bool
	if err := r.db.QueryRow(ctx, `SELECT open FROM bar_state WHERE id = 1`).Scan(&open); err != nil {
		return nil, false, fmt.Errorf("load bar state: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, ordered_by, email, ordered_at, table_number, total_price::text, paid
		FROM bar_orders
		WHERE completed = false
		ORDER BY ordered_at, id
	`)
	if err != nil {
		return nil, false, fmt.Errorf("load active orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var total string
		if err := rows.Scan(&o.ID, &o.OrderedBy, &o.Email, &o.OrderedAt, &o.TableNumber, &total, &o.Paid); err != nil {
			return nil, false, fmt.Errorf("scan order: %w", err)
		}
		if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, false, fmt.Errorf("parse total for order %d: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		if orders[i].Contents, err = r.loadContents(ctx, orders[i].ID); err != nil {
			return nil, false, err
		}
	}
	return orders, open, nil
}

func (r *Orders) loadContents(ctx context.Context, orderID int) ([]domain.OrderContent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, size, mixer, quantity, price::text, completed
		FROM bar_contents
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load contents for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var contents []domain.OrderContent
	for rows.Next() {
		var c domain.OrderContent
		var price string
		if err := rows.Scan(&c.ID, &c.Name, &c.Size, &c.Mixer, &c.Quantity, &price, &c.Completed); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		if c.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price for content %d: %w", c.ID, err)
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// InsertOrder writes the order and its contents in one transaction and
// fills in the server-assigned ids.
func (r *Orders) InsertOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin insert order: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO bar_orders (ordered_by, email, ordered_at, table_number, total_price, paid, completed)
		VALUES ($1, $2, $3, $4, $5, false, false)
		RETURNING id
	`, o.OrderedBy, o.Email, o.OrderedAt, o.TableNumber, o.TotalPrice.String()).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Contents {
		c := &o.Contents[i]
		err = tx.QueryRow(ctx, `
			INSERT INTO bar_contents (order_id, name, size, mixer, quantity, price, completed)
			VALUES ($1, $2, $3, $4, $5, $6, false)
			RETURNING id
		`, o.ID, c.Name, c.Size, c.Mixer, c.Quantity, c.Price.String()).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert content %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert order: %w", err)
	}
	return nil
}

func (r *Orders) MarkContentComplete(ctx context.Context, orderID, contentID int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bar_contents SET completed = true WHERE order_id = $1 AND id = $2
	`, orderID, contentID)
	if err != nil {
		return fmt.Errorf("mark content %d complete: %w", contentID, err)
	}
	return nil
}

func (r *Orders) MarkOrderPaid(ctx context.Context, orderID int) error {
	_, err := r.db.Exec(ctx, `UPDATE bar_orders SET paid = true WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("mark order %d paid: %w", orderID, err)
	}
	return nil
}

func (r *Orders) MarkOrderCompleted(ctx context.Context, orderID int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bar_orders SET paid = true, completed = true WHERE id = $1
	`, orderID)
	if err != nil {
		return fmt.Errorf("mark order %d completed: %w", orderID, err)
	}
	return nil
}

func (r *Orders) SetBarOpen(ctx context.Context, open bool) error {
	_, err := r.db.Exec(ctx, `UPDATE bar_state SET open = $1 WHERE id = 1`, open)
	if err != nil {
		return fmt.Errorf("set bar open: %w", err)
	}
	return nil
}
