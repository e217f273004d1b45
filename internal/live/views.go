package live

import (
	"sort"

	"github.com/shopspring/decimal"

	"union-live/internal/domain"
)

// OrderRow tags an order with the collection it came from so the view can
// style completed rows differently.
type OrderRow struct {
	Order domain.Order
	Done  bool
}

// OrderQueue merges active orders (and completed ones when requested)
// into one list sorted oldest-first by creation time, ties broken by id.
// It is recomputed from scratch on every transition; timestamps are fixed
// at creation so there is nothing to maintain incrementally.
func OrderQueue(s BarState, includeCompleted bool) []OrderRow {
	rows := make([]OrderRow, 0, len(s.Active)+len(s.Completed))
	for _, o := range s.Active {
		rows = append(rows, OrderRow{Order: o})
	}
	if includeCompleted {
		for _, o := range s.Completed {
			rows = append(rows, OrderRow{Order: o, Done: true})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Order.OrderedAt.Equal(rows[j].Order.OrderedAt) {
			return rows[i].Order.OrderedAt.Before(rows[j].Order.OrderedAt)
		}
		return rows[i].Order.ID < rows[j].Order.ID
	})
	return rows
}

// PairPriceRow is one line of the swap selection list.
type PairPriceRow struct {
	Pair  domain.SwapPair
	Price decimal.Decimal
}

// PairPriceList projects current prices onto the position list, in the
// order the server sent them.
func PairPriceList(pairs []domain.SwapPair) []PairPriceRow {
	rows := make([]PairPriceRow, len(pairs))
	for i, p := range pairs {
		rows[i] = PairPriceRow{Pair: p, Price: PairPrice(p.Count)}
	}
	return rows
}
