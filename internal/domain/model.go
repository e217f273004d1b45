package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientCredit is shared by the authoritative ledger and the
// client's optimistic pre-check.
var ErrInsufficientCredit = errors.New("insufficient swap credit")

// Order is a bar order as admins see it. The hub assigns IDs; clients
// only ever observe orders through snapshot and broadcast events.
type Order struct {
	ID          int             `json:"id"`
	OrderedBy   string          `json:"orderedBy"`
	Email       string          `json:"email"`
	OrderedAt   time.Time       `json:"orderedAt"`
	TableNumber int             `json:"tableNumber"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Paid        bool            `json:"paid"`
	Contents    []OrderContent  `json:"contents"`
}

// OrderContent is a single line item. Completed is monotonic: once set
// it never reverts.
type OrderContent struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Mixer     *string         `json:"mixer,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Completed bool            `json:"completed"`
}

// Clone returns a deep copy so reducers can modify contents without
// aliasing the caller's order.
func (o Order) Clone() Order {
	out := o
	out.Contents = make([]OrderContent, len(o.Contents))
	copy(out.Contents, o.Contents)
	for i, c := range out.Contents {
		if c.Mixer != nil {
			m := *c.Mixer
			out.Contents[i].Mixer = &m
		}
	}
	return out
}

// SwapPair is two co-seated attendees; Count is how many times this pair
// has been swapped in the current session and drives the escalating price.
type SwapPair struct {
	ID     int    `json:"id"`
	First  string `json:"first"`
	Second string `json:"second"`
	Count  int    `json:"count"`
}

type CreditEntryType string

const (
	CreditDonation CreditEntryType = "donation"
	CreditSwap     CreditEntryType = "swap"
)

// CreditEntry is one row of a member's swap-credit history. Amount is in
// minor currency units, positive for donations and negative for swaps.
type CreditEntry struct {
	At     time.Time       `json:"at"`
	Type   CreditEntryType `json:"type"`
	Amount int64           `json:"amount"`
}
