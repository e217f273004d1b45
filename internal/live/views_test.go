package live

import (
	"testing"
	"time"

	"union-live/internal/domain"
)

func TestOrderQueueOldestFirst(t *testing.T) {
	t0 := time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
	s := NewBarState()
	// inserted newest first to prove sorting is not insertion order
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(3, t0.Add(2*time.Minute), 30)})
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(1, t0, 10)})
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(2, t0.Add(time.Minute), 20)})

	rows := OrderQueue(s, false)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Order.OrderedAt.Before(rows[i-1].Order.OrderedAt) {
			t.Fatalf("queue not sorted oldest-first at index %d", i)
		}
	}
	if rows[0].Order.ID != 1 || rows[2].Order.ID != 3 {
		t.Errorf("unexpected ordering: %d, %d, %d", rows[0].Order.ID, rows[1].Order.ID, rows[2].Order.ID)
	}
}

func TestOrderQueueCompletedToggle(t *testing.T) {
	t0 := time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
	s := NewBarState()
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(1, t0, 10)})
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(2, t0.Add(time.Minute), 20)})
	s = ReduceBar(s, domain.BarOrderCompleted{OrderID: 1})

	active := OrderQueue(s, false)
	if len(active) != 1 || active[0].Order.ID != 2 {
		t.Fatalf("active-only queue wrong: %+v", active)
	}

	all := OrderQueue(s, true)
	if len(all) != 2 {
		t.Fatalf("expected 2 rows with completed included, got %d", len(all))
	}
	// completed order is older, so it still sorts first
	if all[0].Order.ID != 1 || !all[0].Done {
		t.Errorf("completed order not tagged and sorted by timestamp: %+v", all[0])
	}
	if all[1].Done {
		t.Error("active order wrongly tagged as done")
	}
}

func TestOrderQueueTieBreaksByID(t *testing.T) {
	t0 := time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
	s := NewBarState()
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(5, t0, 50)})
	s = ReduceBar(s, domain.BarNewOrder{Order: testOrder(4, t0, 40)})

	rows := OrderQueue(s, false)
	if rows[0].Order.ID != 4 || rows[1].Order.ID != 5 {
		t.Errorf("equal timestamps should order by id: %d, %d", rows[0].Order.ID, rows[1].Order.ID)
	}
}

func TestPairPriceList(t *testing.T) {
	pairs := []domain.SwapPair{
		{ID: 1, First: "Alice", Second: "Bob", Count: 0},
		{ID: 2, First: "Cam", Second: "Dee", Count: 3},
	}
	rows := PairPriceList(pairs)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Price.String() != "0.5" {
		t.Errorf("pair 1 price = %s, want 0.5", rows[0].Price)
	}
	if rows[1].Price.String() != "4" {
		t.Errorf("pair 2 price = %s, want 4", rows[1].Price)
	}
}
