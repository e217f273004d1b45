package live

import (
	"context"
	"errors"
	"fmt"

	"union-live/internal/domain"
	"union-live/internal/rest"
)

var (
	ErrNoSelection   = errors.New("two pairs must be selected")
	ErrSamePair      = errors.New("the selected pairs must be different")
	ErrUnknownPair   = errors.New("selected pair is no longer listed")
	ErrDonationRange = errors.New("donation must be between 2 and 100")
)

type sender interface {
	Send(event string, payload any) error
}

type paymentCreator interface {
	CreateIntent(ctx context.Context, member string, amountMinor int64) (rest.PaymentIntent, error)
}

// Dispatcher turns local user actions into outbound events. It never
// mutates replica state: every caller waits for the hub's broadcast echo,
// which is how all clients converge on the same view. Nothing is retried
// automatically; a rejected command needs an explicit re-invoke.
type Dispatcher struct {
	conn     sender
	payments paymentCreator
	member   string
}

func NewDispatcher(conn sender, payments paymentCreator, member string) *Dispatcher {
	return &Dispatcher{conn: conn, payments: payments, member: member}
}

func (d *Dispatcher) MarkContentComplete(orderID, contentID int) error {
	return d.conn.Send(domain.CmdMarkContentComplete, domain.MarkContentComplete{OrderID: orderID, ContentID: contentID})
}

func (d *Dispatcher) MarkOrderPaid(orderID int) error {
	return d.conn.Send(domain.CmdMarkOrderPaid, domain.MarkOrderPaid{OrderID: orderID})
}

func (d *Dispatcher) MarkOrderCompleted(orderID int) error {
	return d.conn.Send(domain.CmdMarkOrderCompleted, domain.MarkOrderCompleted{OrderID: orderID})
}

func (d *Dispatcher) SetBarOpen(open bool) error {
	return d.conn.Send(domain.CmdSetBarOpen, domain.SetBarOpen{Open: open})
}

// PerformSwap requests the exchange described by the state's selection.
// The credit check here is optimistic, for immediate feedback only; the
// hub holds the authoritative ledger and may still reject with a
// swappingError broadcast to this client.
func (d *Dispatcher) PerformSwap(s SwapState) error {
	sel := s.Selection
	if sel.FirstID == 0 || sel.SecondID == 0 {
		return ErrNoSelection
	}
	if sel.FirstID == sel.SecondID {
		return ErrSamePair
	}
	a, okA := PairByID(s.Pairs, sel.FirstID)
	b, okB := PairByID(s.Pairs, sel.SecondID)
	if !okA || !okB {
		return ErrUnknownPair
	}
	if SwapCostMinor(a, b) > s.Credit {
		return domain.ErrInsufficientCredit
	}
	return d.conn.Send(domain.CmdPerformSwap, domain.PerformSwap{
		FirstPairID:  sel.FirstID,
		SecondPairID: sel.SecondID,
		FlipFirst:    sel.FlipFirst,
		FlipSecond:   sel.FlipSecond,
	})
}

// MakeDonation creates a payment intent for amount whole currency units.
// Confirmation is the payment provider's business; credit only appears
// once the hub observes the confirmation.
func (d *Dispatcher) MakeDonation(ctx context.Context, amount int64) (rest.PaymentIntent, error) {
	if amount < 2 || amount > 100 {
		return rest.PaymentIntent{}, fmt.Errorf("%w: got %d", ErrDonationRange, amount)
	}
	if d.payments == nil {
		return rest.PaymentIntent{}, errors.New("no payment collaborator configured")
	}
	return d.payments.CreateIntent(ctx, d.member, amount*100)
}
