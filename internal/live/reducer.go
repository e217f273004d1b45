package live

import (
	"union-live/internal/domain"
)

// BarState is a client's replica of the admin order board. An order id is
// in exactly one of Active or Completed at any time; completion moves it.
type BarState struct {
	Active    map[int]domain.Order
	Completed map[int]domain.Order
	Open      bool
}

func NewBarState() BarState {
	return BarState{
		Active:    map[int]domain.Order{},
		Completed: map[int]domain.Order{},
	}
}

// ReduceBar applies one inbound event and returns the next state. It is
// pure: the input state and the event are never mutated, so both the hub
// (authoritative copy) and every client replica run the same function.
//
// Stale events referencing orders no longer active are silently ignored;
// multiple admins racing on the same item is resolved by the hub
// serializing writes, not by the clients.
func ReduceBar(s BarState, evt any) BarState {
	switch e := evt.(type) {
	case domain.BarInitialData:
		next := NewBarState()
		next.Open = e.Open
		for _, o := range e.Orders {
			next.Active[o.ID] = o.Clone()
		}
		return next

	case domain.BarNewOrder:
		next := s.clone()
		// duplicate id overwrites, making redelivery harmless
		next.Active[e.Order.ID] = e.Order.Clone()
		return next

	case domain.BarContentCompleted:
		o, ok := s.Active[e.OrderID]
		if !ok {
			return s
		}
		next := s.clone()
		co := o.Clone()
		for i := range co.Contents {
			if co.Contents[i].ID == e.ContentID {
				co.Contents[i].Completed = true
			}
		}
		next.Active[e.OrderID] = co
		return next

	case domain.BarOrderPaid:
		o, ok := s.Active[e.OrderID]
		if !ok {
			return s
		}
		next := s.clone()
		co := o.Clone()
		co.Paid = true
		next.Active[e.OrderID] = co
		return next

	case domain.BarOrderCompleted:
		o, ok := s.Active[e.OrderID]
		if !ok {
			return s
		}
		next := s.clone()
		co := o.Clone()
		co.Paid = true
		delete(next.Active, e.OrderID)
		next.Completed[e.OrderID] = co
		return next

	case domain.BarOpenChanged:
		// last-write-wins: no sequence number exists to guard against
		// reordered delivery, see DESIGN.md
		next := s.clone()
		next.Open = e.Open
		return next
	}
	return s
}

func (s BarState) clone() BarState {
	next := BarState{
		Active:    make(map[int]domain.Order, len(s.Active)),
		Completed: make(map[int]domain.Order, len(s.Completed)),
		Open:      s.Open,
	}
	for id, o := range s.Active {
		next.Active[id] = o
	}
	for id, o := range s.Completed {
		next.Completed[id] = o
	}
	return next
}
