// Package memory is an in-process backend. It can pretend to support
// transactions or not, which makes both checkout strategies testable.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
)

type Store struct {
	mu            sync.Mutex
	st            *state
	transactional bool
}

func New(transactional bool) *Store {
	return &Store{st: newState(), transactional: transactional}
}

// Put seeds or replaces a catalog product.
func (s *Store) Put(p orders.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// Quantity reads the current stock of a product, -1 if unknown.
func (s *Store) Quantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[productID]
	if !ok {
		return -1
	}
	return p.Quantity
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) Repos() orders.Repos {
	return orders.Repos{Catalog: s, Stock: s, Orders: s}
}

func (s *Store) SupportsTransactions(context.Context) (bool, error) {
	return s.transactional, nil
}

// WithTransaction runs fn against a private copy of the state and swaps it
// in on success. Transactions are serialized with every other operation.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, r orders.Repos) error) error {
	if !s.transactional {
		return fmt.Errorf("memory store: transactions disabled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, orders.Repos{Catalog: work, Stock: work, Orders: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Snapshots(ctx context.Context, ids []string, activeOnly bool) (map[string]orders.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Snapshots(ctx, ids, activeOnly)
}

func (s *Store) TryDecrement(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.TryDecrement(ctx, productID, qty)
}

func (s *Store) Increment(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Increment(ctx, productID, qty)
}

func (s *Store) Create(ctx context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Create(ctx, o)
}

func (s *Store) Patch(ctx context.Context, id string, p orders.Patch) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Patch(ctx, id, p)
}

func (s *Store) FindByID(ctx context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindByID(ctx, id)
}

func (s *Store) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindByUser(ctx, userID)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindByIdempotencyKey(ctx, userID, key)
}

func (s *Store) FindAll(ctx context.Context, f orders.Filter, p orders.Page) ([]orders.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindAll(ctx, f, p)
}

// state is the unlocked data set. Callers hold Store.mu.
type state struct {
	products map[string]orders.Snapshot
	orders   map[string]orders.Order
	byKey    map[string]string
}

func newState() *state {
	return &state{
		products: map[string]orders.Snapshot{},
		orders:   map[string]orders.Order{},
		byKey:    map[string]string{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.byKey {
		c.byKey[k] = v
	}
	return c
}

func idemKey(userID, key string) string { return userID + "\x00" + key }

func (st *state) Snapshots(_ context.Context, ids []string, activeOnly bool) (map[string]orders.Snapshot, error) {
	out := make(map[string]orders.Snapshot, len(ids))
	for _, id := range ids {
		p, ok := st.products[id]
		if !ok || (activeOnly && !p.Active) {
			continue
		}
		out[id] = p
	}
	return out, nil
}

func (st *state) TryDecrement(_ context.Context, productID string, qty int) error {
	p, ok := st.products[productID]
	if !ok || p.Quantity < qty {
		avail := 0
		if ok {
			avail = p.Quantity
		}
		return orders.Insufficient(productID, p.Name, qty, avail)
	}
	p.Quantity -= qty
	st.products[productID] = p
	return nil
}

func (st *state) Increment(_ context.Context, productID string, qty int) error {
	p, ok := st.products[productID]
	if !ok {
		return fmt.Errorf("increment %s: product missing", productID)
	}
	p.Quantity += qty
	st.products[productID] = p
	return nil
}

func (st *state) Create(_ context.Context, o *orders.Order) error {
	if o.IdempotencyKey != "" {
		if _, taken := st.byKey[idemKey(o.UserID, o.IdempotencyKey)]; taken {
			return orders.ErrDuplicateKey
		}
		st.byKey[idemKey(o.UserID, o.IdempotencyKey)] = o.ID
	}
	st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (st *state) Patch(_ context.Context, id string, p orders.Patch) (*orders.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	o = copyOrder(o)
	p.Apply(&o, time.Now().UTC())
	st.orders[id] = o
	out := copyOrder(o)
	return &out, nil
}

func (st *state) FindByID(_ context.Context, id string) (*orders.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (st *state) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	out, _, err := st.FindAll(ctx, orders.Filter{UserID: userID}, orders.Page{Page: 1, Limit: len(st.orders) + 1})
	return out, err
}

func (st *state) FindByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	id, ok := st.byKey[idemKey(userID, key)]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return st.FindByID(ctx, id)
}

func (st *state) FindAll(_ context.Context, f orders.Filter, p orders.Page) ([]orders.Order, int64, error) {
	var matched []orders.Order
	for _, o := range st.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	start := (p.Page - 1) * p.Limit
	if start < 0 {
		start = 0
	}
	if start >= len(matched) {
		return []orders.Order{}, total, nil
	}
	end := start + p.Limit
	if p.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.Item(nil), o.Items...)
	if o.Payment.Meta != nil {
		meta := make(map[string]any, len(o.Payment.Meta))
		for k, v := range o.Payment.Meta {
			meta[k] = v
		}
		o.Payment.Meta = meta
	}
	if o.Payment.PaidAt != nil {
		t := *o.Payment.PaidAt
		o.Payment.PaidAt = &t
	}
	return o
}
