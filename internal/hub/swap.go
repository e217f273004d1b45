package hub

import (
	"context"
	"errors"
	"sync"

	"union-live/internal/common/logger"
	"union-live/internal/domain"
	"union-live/internal/live"
)

// SwapStore persists the seating pairs and the credit ledger. RecordSwap
// and RecordDonation are the only balance mutations in the system; both
// return the member's post-transaction balance and history so the hub
// never computes a balance itself.
type SwapStore interface {
	LoadSwap(ctx context.Context) ([]domain.SwapPair, bool, error)
	Credit(ctx context.Context, member string) (int64, []domain.CreditEntry, error)
	RecordSwap(ctx context.Context, first, second domain.SwapPair, member string, cost int64) (int64, []domain.CreditEntry, error)
	RecordDonation(ctx context.Context, member, intentID string, amountMinor int64) (int64, []domain.CreditEntry, bool, error)
	SetSwapOpen(ctx context.Context, open bool) error
}

// SwapTopic owns the authoritative swap session. Rejections go to the
// requester only; committed swaps go to everyone as a full position
// snapshot, which keeps partial-update bugs structurally impossible.
type SwapTopic struct {
	lg    *logger.Logger
	store SwapStore

	mu    sync.Mutex
	pairs []domain.SwapPair
	open  bool
	subs  map[*session]struct{}
}

func NewSwapTopic(lg *logger.Logger, store SwapStore) *SwapTopic {
	return &SwapTopic{lg: lg, store: store, subs: map[*session]struct{}{}}
}

func (t *SwapTopic) Start(ctx context.Context) error {
	pairs, open, err := t.store.LoadSwap(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.pairs, t.open = pairs, open
	t.mu.Unlock()
	t.lg.Info("swap_loaded", map[string]any{"pairs": len(pairs), "open": open})
	return nil
}

func (t *SwapTopic) Subscribe(ctx context.Context, sess *session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	credit, history, err := t.store.Credit(ctx, sess.member)
	if err != nil {
		t.lg.Error("credit_lookup", err, map[string]any{"member": sess.member})
	}
	t.subs[sess] = struct{}{}
	snapshot := domain.SwapInitialPositions{
		Positions: t.positionsLocked(),
		Open:      t.open,
		UserCount: len(t.subs),
		Credit:    credit,
		History:   history,
	}
	if env, err := domain.NewEnvelope(domain.EvtSwapInitialPositions, snapshot); err == nil {
		sess.enqueue(env)
	}
	t.broadcastLocked(domain.EvtUpdateUserCount, domain.UpdateUserCount{UserCount: len(t.subs)})
}

func (t *SwapTopic) Leave(sess *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[sess]; !ok {
		return
	}
	delete(t.subs, sess)
	t.broadcastLocked(domain.EvtUpdateUserCount, domain.UpdateUserCount{UserCount: len(t.subs)})
}

// HandleSwap validates and commits one swap request. The ledger debit
// happens inside the store, atomically with the pair update, so two
// racing requesters cannot both spend the same credit.
func (t *SwapTopic) HandleSwap(ctx context.Context, sess *session, cmd domain.PerformSwap) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		t.rejectLocked(sess, "swapping is closed")
		return
	}
	if cmd.FirstPairID == cmd.SecondPairID {
		t.rejectLocked(sess, "choose two different pairs")
		return
	}
	a, okA := live.PairByID(t.pairs, cmd.FirstPairID)
	b, okB := live.PairByID(t.pairs, cmd.SecondPairID)
	if !okA || !okB {
		t.rejectLocked(sess, "selected pair no longer exists")
		return
	}

	cost := live.SwapCostMinor(a, b)
	newA, newB := exchange(a, b, cmd.FlipFirst, cmd.FlipSecond)
	newA.Count++
	newB.Count++

	credit, history, err := t.store.RecordSwap(ctx, newA, newB, sess.member, cost)
	if errors.Is(err, domain.ErrInsufficientCredit) {
		t.rejectLocked(sess, "insufficient swap credit")
		return
	}
	if err != nil {
		t.lg.Error("swap_record", err, map[string]any{"member": sess.member})
		t.rejectLocked(sess, "swap could not be recorded")
		return
	}

	t.replaceLocked(newA)
	t.replaceLocked(newB)
	t.broadcastLocked(domain.EvtSwappingUpdate, domain.SwappingUpdate{Positions: t.positionsLocked()})
	if env, err := domain.NewEnvelope(domain.EvtSwappingSuccess, domain.SwappingSuccess{Credit: credit, History: history}); err == nil {
		sess.enqueue(env)
	}
	t.lg.Info("swap_committed", map[string]any{
		"member": sess.member, "first": newA.ID, "second": newB.ID, "cost": cost,
	})
}

// SetOpen toggles the session and tells everyone. Last-write-wins, same
// as the bar flag.
func (t *SwapTopic) SetOpen(ctx context.Context, open bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SetSwapOpen(ctx, open); err != nil {
		return err
	}
	t.open = open
	t.broadcastLocked(domain.EvtSwappingOpenClose, domain.SwappingOpenClose{Open: open})
	return nil
}

// DonationConfirmed credits a member once the payment provider confirms
// the intent. Replayed confirmations for the same intent are no-ops.
func (t *SwapTopic) DonationConfirmed(ctx context.Context, member, intentID string, amountMinor int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	credit, history, credited, err := t.store.RecordDonation(ctx, member, intentID, amountMinor)
	if err != nil {
		return err
	}
	if !credited {
		t.lg.Info("donation_replayed", map[string]any{"member": member, "intent": intentID})
		return nil
	}
	env, err := domain.NewEnvelope(domain.EvtSwappingSuccess, domain.SwappingSuccess{Credit: credit, History: history})
	if err != nil {
		return err
	}
	for sess := range t.subs {
		if sess.member == member {
			sess.enqueue(env)
		}
	}
	t.lg.Info("donation_credited", map[string]any{"member": member, "amount": amountMinor})
	return nil
}

func (t *SwapTopic) rejectLocked(sess *session, msg string) {
	if env, err := domain.NewEnvelope(domain.EvtSwappingError, domain.SwappingError{Message: msg}); err == nil {
		sess.enqueue(env)
	}
}

func (t *SwapTopic) broadcastLocked(event string, payload any) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		t.lg.Error("event_encode", err, map[string]any{"event": event})
		return
	}
	for sess := range t.subs {
		sess.enqueue(env)
	}
}

func (t *SwapTopic) positionsLocked() []domain.SwapPair {
	out := make([]domain.SwapPair, len(t.pairs))
	copy(out, t.pairs)
	return out
}

func (t *SwapTopic) replaceLocked(p domain.SwapPair) {
	for i := range t.pairs {
		if t.pairs[i].ID == p.ID {
			t.pairs[i] = p
			return
		}
	}
}

// exchange moves the flip-selected occupant of each pair into the other.
func exchange(a, b domain.SwapPair, flipA, flipB bool) (domain.SwapPair, domain.SwapPair) {
	occA := a.First
	if flipA {
		occA = a.Second
	}
	occB := b.First
	if flipB {
		occB = b.Second
	}
	if flipA {
		a.Second = occB
	} else {
		a.First = occB
	}
	if flipB {
		b.Second = occA
	} else {
		b.First = occA
	}
	return a, b
}
