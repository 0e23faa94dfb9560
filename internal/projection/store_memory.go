package projection

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type locationKey struct {
	deliveryID string
	version    int64
}

// cascadeStamp records the event time and source aggregate of the cascade
// that last wrote an order column.
type cascadeStamp struct {
	at     time.Time
	source string
}

// admits reports whether a cascade at (at, source) may overwrite the column.
func (c cascadeStamp) admits(at time.Time, source string) bool {
	if !at.Equal(c.at) {
		return at.After(c.at)
	}
	return source >= c.source
}

type orderStamps struct {
	status  cascadeStamp
	payment cascadeStamp
}

// InMemoryStore keeps read models in maps.
type InMemoryStore struct {
	mu         sync.RWMutex
	deliveries map[string]DeliveryRow
	locations  map[locationKey]LocationRow
	payments   map[string]PaymentRow
	orders     map[string]OrderRow
	stamps     map[string]orderStamps
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		deliveries: make(map[string]DeliveryRow),
		locations:  make(map[locationKey]LocationRow),
		payments:   make(map[string]PaymentRow),
		orders:     make(map[string]OrderRow),
		stamps:     make(map[string]orderStamps),
	}
}

// InTx runs fn directly; each write is individually atomic.
func (s *InMemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *InMemoryStore) UpsertDelivery(_ context.Context, row DeliveryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[row.ID] = row
	return nil
}

func (s *InMemoryStore) UpsertLocation(_ context.Context, row LocationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[locationKey{row.DeliveryID, row.Version}] = row
	return nil
}

func (s *InMemoryStore) UpsertPayment(_ context.Context, row PaymentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[row.ID] = row.clone()
	return nil
}

func (s *InMemoryStore) SetOrderStatus(_ context.Context, orderID, status, source string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamps := s.stamps[orderID]
	if !stamps.status.admits(at, source) {
		return nil
	}
	order := s.order(orderID)
	order.Status = status
	stamps.status = cascadeStamp{at: at, source: source}
	s.stamps[orderID] = stamps
	s.touch(order, at)
	return nil
}

func (s *InMemoryStore) SetOrderPaymentStatus(_ context.Context, orderID, status, source string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamps := s.stamps[orderID]
	if !stamps.payment.admits(at, source) {
		return nil
	}
	order := s.order(orderID)
	order.PaymentStatus = status
	stamps.payment = cascadeStamp{at: at, source: source}
	s.stamps[orderID] = stamps
	s.touch(order, at)
	return nil
}

// order returns the stored row or a fresh one with default statuses.
func (s *InMemoryStore) order(orderID string) OrderRow {
	if order, ok := s.orders[orderID]; ok {
		return order
	}
	return OrderRow{ID: orderID, Status: OrderStatusPending, PaymentStatus: OrderPaymentPending}
}

func (s *InMemoryStore) touch(order OrderRow, at time.Time) {
	if at.After(order.UpdatedAt) {
		order.UpdatedAt = at
	}
	s.orders[order.ID] = order
}

func (s *InMemoryStore) Delivery(_ context.Context, deliveryID string) (DeliveryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.deliveries[deliveryID]
	if !ok {
		return DeliveryRow{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemoryStore) Locations(_ context.Context, deliveryID string) ([]LocationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []LocationRow
	for k, row := range s.locations {
		if k.deliveryID == deliveryID {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b LocationRow) int { return cmp.Compare(a.Version, b.Version) })
	return rows, nil
}

func (s *InMemoryStore) Payment(_ context.Context, paymentID string) (PaymentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.payments[paymentID]
	if !ok {
		return PaymentRow{}, ErrNotFound
	}
	return row.clone(), nil
}

func (s *InMemoryStore) Order(_ context.Context, orderID string) (OrderRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.orders[orderID]
	if !ok {
		return OrderRow{}, ErrNotFound
	}
	return row, nil
}

// Counts reports the number of stored rows per table.
func (s *InMemoryStore) Counts() (deliveries, locations, payments, orders int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deliveries), len(s.locations), len(s.payments), len(s.orders)
}
