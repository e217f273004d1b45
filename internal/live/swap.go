package live

import (
	"union-live/internal/domain"
)

// Selection is the client's in-flight pick of two pairs to exchange.
// Zero pair id means nothing selected. Flip chooses which occupant of
// the pair moves: false the first, true the second.
type Selection struct {
	FirstID    int
	SecondID   int
	FlipFirst  bool
	FlipSecond bool
}

// SwapState is a client's replica of the swap session. Pairs are replaced
// wholesale on every update; credit and history only ever change on
// server confirmation, never optimistically.
type SwapState struct {
	Pairs     []domain.SwapPair
	Open      bool
	UserCount int
	Credit    int64
	History   []domain.CreditEntry
	LastError string
	Selection Selection
}

// ReduceSwap applies one inbound swap-session event. Pure, like ReduceBar.
func ReduceSwap(s SwapState, evt any) SwapState {
	switch e := evt.(type) {
	case domain.SwapInitialPositions:
		return SwapState{
			Pairs:     clonePairs(e.Positions),
			Open:      e.Open,
			UserCount: e.UserCount,
			Credit:    e.Credit,
			History:   cloneHistory(e.History),
		}

	case domain.SwappingUpdate:
		next := s
		next.Pairs = clonePairs(e.Positions)
		return next

	case domain.SwappingError:
		next := s
		next.LastError = e.Message
		return next

	case domain.SwappingSuccess:
		next := s
		next.Credit = e.Credit
		next.History = cloneHistory(e.History)
		next.Selection = Selection{}
		next.LastError = ""
		return next

	case domain.SwappingOpenClose:
		next := s
		next.Open = e.Open
		return next

	case domain.UpdateUserCount:
		next := s
		next.UserCount = e.UserCount
		return next
	}
	return s
}

// Select records a local pick of a pair; it is the one piece of state the
// server does not own. Error text from a previous rejection clears on the
// next user action.
func (s SwapState) Select(pairID int, flip bool) SwapState {
	next := s
	next.LastError = ""
	switch {
	case s.Selection.FirstID == 0:
		next.Selection.FirstID = pairID
		next.Selection.FlipFirst = flip
	case s.Selection.SecondID == 0 && pairID != s.Selection.FirstID:
		next.Selection.SecondID = pairID
		next.Selection.FlipSecond = flip
	default:
		next.Selection = Selection{FirstID: pairID, FlipFirst: flip}
	}
	return next
}

// PairByID finds a pair in a position list.
func PairByID(pairs []domain.SwapPair, id int) (domain.SwapPair, bool) {
	for _, p := range pairs {
		if p.ID == id {
			return p, true
		}
	}
	return domain.SwapPair{}, false
}

func clonePairs(in []domain.SwapPair) []domain.SwapPair {
	out := make([]domain.SwapPair, len(in))
	copy(out, in)
	return out
}

func cloneHistory(in []domain.CreditEntry) []domain.CreditEntry {
	out := make([]domain.CreditEntry, len(in))
	copy(out, in)
	return out
}
