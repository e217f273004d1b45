package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"union-live/internal/common/logger"
	"union-live/internal/domain"
	"union-live/internal/live"
)

// BarStore persists committed bar transitions so the snapshot survives a
// hub restart.
type BarStore interface {
	LoadBar(ctx context.Context) ([]domain.Order, bool, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	MarkContentComplete(ctx context.Context, orderID, contentID int) error
	MarkOrderPaid(ctx context.Context, orderID int) error
	MarkOrderCompleted(ctx context.Context, orderID int) error
	SetBarOpen(ctx context.Context, open bool) error
}

// Publisher fans committed events out to back-of-house consumers. Nil
// disables fan-out.
type Publisher interface {
	Publish(ctx context.Context, event string, body []byte) error
}

var (
	ErrBarClosed    = errors.New("the bar is not taking orders")
	ErrInvalidOrder = errors.New("invalid order")
)

type CreateOrderContent struct {
	Name     string          `json:"name"`
	Size     string          `json:"size"`
	Mixer    *string         `json:"mixer,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type CreateOrderRequest struct {
	OrderedBy   string               `json:"orderedBy"`
	Email       string               `json:"email"`
	TableNumber int                  `json:"tableNumber"`
	Contents    []CreateOrderContent `json:"contents"`
}

// BarTopic owns the authoritative order board. All mutation goes through
// its mutex, which is the per-topic write serialization the clients'
// convergence model depends on.
type BarTopic struct {
	lg    *logger.Logger
	store BarStore
	pub   Publisher

	mu    sync.Mutex
	state live.BarState
	subs  map[*session]struct{}
}

func NewBarTopic(lg *logger.Logger, store BarStore, pub Publisher) *BarTopic {
	return &BarTopic{
		lg:    lg,
		store: store,
		pub:   pub,
		state: live.NewBarState(),
		subs:  map[*session]struct{}{},
	}
}

// Start loads the persisted backlog into the authoritative state.
func (t *BarTopic) Start(ctx context.Context) error {
	orders, open, err := t.store.LoadBar(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.state = live.ReduceBar(live.NewBarState(), domain.BarInitialData{Orders: orders, Open: open})
	t.mu.Unlock()
	t.lg.Info("bar_loaded", map[string]any{"active_orders": len(orders), "open": open})
	return nil
}

// Subscribe registers a session and answers with the snapshot event, the
// one event a subscriber sees exactly once, before any incremental one.
func (t *BarTopic) Subscribe(sess *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[sess] = struct{}{}
	env, err := domain.NewEnvelope(domain.EvtBarInitialData, t.snapshotLocked())
	if err != nil {
		t.lg.Error("snapshot_encode", err, nil)
		return
	}
	sess.enqueue(env)
}

func (t *BarTopic) Unsubscribe(sess *session) {
	t.mu.Lock()
	delete(t.subs, sess)
	t.mu.Unlock()
}

func (t *BarTopic) snapshotLocked() domain.BarInitialData {
	orders := make([]domain.Order, 0, len(t.state.Active))
	for _, o := range t.state.Active {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return domain.BarInitialData{Orders: orders, Open: t.state.Open}
}

// CreateOrder validates and commits a checkout, broadcasting barNewOrder
// to every admin board. The total is computed here, server-side; clients
// never price their own orders.
func (t *BarTopic) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	if req.OrderedBy == "" {
		return domain.Order{}, fmt.Errorf("%w: orderedBy is required", ErrInvalidOrder)
	}
	if len(req.Contents) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	total := decimal.Zero
	contents := make([]domain.OrderContent, len(req.Contents))
	for i, c := range req.Contents {
		if c.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive for %q", ErrInvalidOrder, c.Name)
		}
		if c.Price.IsNegative() {
			return domain.Order{}, fmt.Errorf("%w: negative price for %q", ErrInvalidOrder, c.Name)
		}
		contents[i] = domain.OrderContent{
			Name:     c.Name,
			Size:     c.Size,
			Mixer:    c.Mixer,
			Quantity: c.Quantity,
			Price:    c.Price,
		}
		total = total.Add(c.Price.Mul(decimal.NewFromInt(int64(c.Quantity))))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Open {
		return domain.Order{}, ErrBarClosed
	}
	order := domain.Order{
		OrderedBy:   req.OrderedBy,
		Email:       req.Email,
		OrderedAt:   time.Now().UTC(),
		TableNumber: req.TableNumber,
		TotalPrice:  total,
		Contents:    contents,
	}
	if err := t.store.InsertOrder(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	t.applyLocked(ctx, domain.EvtBarNewOrder, domain.BarNewOrder{Order: order})
	return order, nil
}

// Handle commits one admin command. A command referencing an order no
// longer active is dropped without error or broadcast: another admin got
// there first and everyone already saw that.
func (t *BarTopic) Handle(ctx context.Context, cmd any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch c := cmd.(type) {
	case domain.MarkContentComplete:
		if _, ok := t.state.Active[c.OrderID]; !ok {
			return nil
		}
		if err := t.store.MarkContentComplete(ctx, c.OrderID, c.ContentID); err != nil {
			return err
		}
		t.applyLocked(ctx, domain.EvtBarContentCompleted, domain.BarContentCompleted{OrderID: c.OrderID, ContentID: c.ContentID})

	case domain.MarkOrderPaid:
		if _, ok := t.state.Active[c.OrderID]; !ok {
			return nil
		}
		if err := t.store.MarkOrderPaid(ctx, c.OrderID); err != nil {
			return err
		}
		t.applyLocked(ctx, domain.EvtBarOrderPaid, domain.BarOrderPaid{OrderID: c.OrderID})

	case domain.MarkOrderCompleted:
		if _, ok := t.state.Active[c.OrderID]; !ok {
			return nil
		}
		if err := t.store.MarkOrderCompleted(ctx, c.OrderID); err != nil {
			return err
		}
		t.applyLocked(ctx, domain.EvtBarOrderCompleted, domain.BarOrderCompleted{OrderID: c.OrderID})

	case domain.SetBarOpen:
		if err := t.store.SetBarOpen(ctx, c.Open); err != nil {
			return err
		}
		t.applyLocked(ctx, domain.EvtBarOpenChanged, domain.BarOpenChanged{Open: c.Open})
	}
	return nil
}

// applyLocked advances the authoritative state and echoes the event to
// every subscriber plus the fan-out exchange. Caller holds the mutex.
func (t *BarTopic) applyLocked(ctx context.Context, event string, payload any) {
	t.state = live.ReduceBar(t.state, payload)
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		t.lg.Error("event_encode", err, map[string]any{"event": event})
		return
	}
	for sess := range t.subs {
		sess.enqueue(env)
	}
	if t.pub != nil {
		if err := t.pub.Publish(ctx, event, env.Payload); err != nil {
			t.lg.Error("fanout_failed", err, map[string]any{"event": event})
		}
	}
}
