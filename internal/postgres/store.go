package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

func (s *Store) Repos() orders.Repos { return bind(s.DB) }

// SupportsTransactions is always true for Postgres.
func (s *Store) SupportsTransactions(context.Context) (bool, error) { return true, nil }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, r orders.Repos) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, bind(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertProduct writes a catalog row. Used for seeding.
func (s *Store) UpsertProduct(ctx context.Context, p orders.Snapshot) error {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, sku, price, price_currency, price_unit, quantity, active, image, attributes)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, sku = EXCLUDED.sku, price = EXCLUDED.price,
			price_currency = EXCLUDED.price_currency, price_unit = EXCLUDED.price_unit,
			quantity = EXCLUDED.quantity, active = EXCLUDED.active, image = EXCLUDED.image,
			attributes = EXCLUDED.attributes, updated_at = now()`,
		p.ID, p.Name, p.SKU, p.Price.String(), orDefault(p.Currency, orders.DefaultCurrency),
		orDefault(p.Unit, "piece"), p.Quantity, p.Active, p.Image, attrs)
	return err
}

// Quantity reads current stock, mostly for tests and the reconciler logs.
func (s *Store) Quantity(ctx context.Context, productID string) (int, error) {
	var q int
	err := s.DB.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, productID).Scan(&q)
	return q, err
}

type repo struct{ q querier }

func bind(q querier) orders.Repos {
	r := &repo{q: q}
	return orders.Repos{Catalog: r, Stock: r, Orders: r}
}

func (r *repo) Snapshots(ctx context.Context, ids []string, activeOnly bool) (map[string]orders.Snapshot, error) {
	sql := `SELECT id, name, sku, price::text, price_currency, price_unit, quantity, active, image, attributes
	        FROM products WHERE id = ANY($1)`
	if activeOnly {
		sql += ` AND active`
	}
	rows, err := r.q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]orders.Snapshot, len(ids))
	for rows.Next() {
		var (
			p     orders.Snapshot
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &price, &p.Currency, &p.Unit,
			&p.Quantity, &p.Active, &p.Image, &p.Attributes); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s price: %w", p.ID, err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// TryDecrement relies on the row lock taken by UPDATE: a concurrent
// decrement waits and re-checks the predicate against the new quantity.
func (r *repo) TryDecrement(ctx context.Context, productID string, qty int) error {
	ct, err := r.q.Exec(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var (
		name  string
		avail int
	)
	err = r.q.QueryRow(ctx, `SELECT name, quantity FROM products WHERE id=$1`, productID).Scan(&name, &avail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return orders.Insufficient(productID, name, qty, avail)
}

func (r *repo) Increment(ctx context.Context, productID string, qty int) error {
	ct, err := r.q.Exec(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("increment %s: product missing", productID)
	}
	return nil
}

func (r *repo) Create(ctx context.Context, o *orders.Order) error {
	var key *string
	if o.IdempotencyKey != "" {
		key = &o.IdempotencyKey
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders(id, user_id, items, currency, subtotal, shipping, tax, discount, grand_total,
		                   status, payment, shipping_address, billing_address, idempotency_key, notes,
		                   created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5::text::numeric, $6::text::numeric, $7::text::numeric,
		        $8::text::numeric, $9::text::numeric, $10, $11::jsonb, $12::jsonb, $13::jsonb, $14, $15, $16, $17)`,
		o.ID, o.UserID, o.Items, o.Currency, o.Subtotal.String(), o.Shipping.String(), o.Tax.String(),
		o.Discount.String(), o.GrandTotal.String(), string(o.Status), o.Payment, o.ShippingAddress,
		o.BillingAddress, key, o.Notes, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return orders.ErrDuplicateKey
	}
	return err
}

func (r *repo) Patch(ctx context.Context, id string, p orders.Patch) (*orders.Order, error) {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, selectOrder+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	p.Apply(o, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, payment=$3::jsonb, updated_at=$4 WHERE id=$1`,
		id, string(o.Status), o.Payment, o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repo) FindByID(ctx context.Context, id string) (*orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, selectOrder+` WHERE user_id=$1 AND idempotency_key=$2`, userID, key))
}

func (r *repo) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	rows, err := r.q.Query(ctx, selectOrder+` WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *repo) FindAll(ctx context.Context, f orders.Filter, p orders.Page) ([]orders.Order, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, p.Limit, p.Offset())
	rows, err := r.q.Query(ctx, selectOrder+cond+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectOrders(rows)
	return out, total, err
}

const selectOrder = `
	SELECT id, user_id, items, currency, subtotal::text, shipping::text, tax::text, discount::text,
	       grand_total::text, status, payment, shipping_address, billing_address,
	       COALESCE(idempotency_key, ''), notes, created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var (
		o                                 orders.Order
		subtotal, shipping, tax, disc, gt string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Items, &o.Currency, &subtotal, &shipping, &tax, &disc, &gt,
		&o.Status, &o.Payment, &o.ShippingAddress, &o.BillingAddress, &o.IdempotencyKey, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, m := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.Subtotal, subtotal}, {&o.Shipping, shipping}, {&o.Tax, tax}, {&o.Discount, disc}, {&o.GrandTotal, gt}} {
		if *m.dst, err = decimal.NewFromString(m.src); err != nil {
			return nil, fmt.Errorf("order %s totals: %w", o.ID, err)
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]orders.Order, error) {
	defer rows.Close()
	out := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
