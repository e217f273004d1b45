package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Subscription commands (client -> hub).
const (
	CmdSubscribeBar  = "subscribeToBarOrders"
	CmdSubscribeSwap = "subscribeToSwap"
)

// Admin commands (client -> hub).
const (
	CmdMarkContentComplete = "markBarContentComplete"
	CmdMarkOrderPaid       = "markBarOrderPaid"
	CmdMarkOrderCompleted  = "markBarOrderCompleted"
	CmdSetBarOpen          = "setBarOpen"
	CmdPerformSwap         = "performSwap"
)

// Broadcast events (hub -> client), bar topic.
const (
	EvtBarInitialData      = "barInitialData"
	EvtBarNewOrder         = "barNewOrder"
	EvtBarContentCompleted = "barContentCompleted"
	EvtBarOrderPaid        = "barOrderPaid"
	EvtBarOrderCompleted   = "barOrderCompleted"
	EvtBarOpenChanged      = "barOpenChanged"
)

// Broadcast events (hub -> client), swap topic.
const (
	EvtSwapInitialPositions = "swapInitialPositions"
	EvtSwappingUpdate       = "swappingUpdate"
	EvtSwappingError        = "swappingError"
	EvtSwappingSuccess      = "swappingSuccess"
	EvtSwappingOpenClose    = "swappingOpenClose"
	EvtUpdateUserCount      = "updateUserCount"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("bad event payload")
)

// Envelope is the wire frame for every channel message: a tagged name and
// a raw payload decoded only after the name is recognised, so malformed
// or unexpected frames fail at the boundary instead of inside a handler.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: raw}, nil
}

type SubscribeBar struct{}

type SubscribeSwap struct{}

type MarkContentComplete struct {
	OrderID   int `json:"orderId"`
	ContentID int `json:"contentId"`
}

type MarkOrderPaid struct {
	OrderID int `json:"orderId"`
}

type MarkOrderCompleted struct {
	OrderID int `json:"orderId"`
}

type SetBarOpen struct {
	Open bool `json:"open"`
}

type PerformSwap struct {
	FirstPairID  int  `json:"firstPairId"`
	SecondPairID int  `json:"secondPairId"`
	FlipFirst    bool `json:"flipFirst"`
	FlipSecond   bool `json:"flipSecond"`
}

type BarInitialData struct {
	Orders []Order `json:"orders"`
	Open   bool    `json:"open"`
}

type BarNewOrder struct {
	Order Order `json:"order"`
}

type BarContentCompleted struct {
	OrderID   int `json:"orderId"`
	ContentID int `json:"contentId"`
}

type BarOrderPaid struct {
	OrderID int `json:"orderId"`
}

type BarOrderCompleted struct {
	OrderID int `json:"orderId"`
}

type BarOpenChanged struct {
	Open bool `json:"open"`
}

type SwapInitialPositions struct {
	Positions []SwapPair    `json:"positions"`
	Open      bool          `json:"open"`
	UserCount int           `json:"userCount"`
	Credit    int64         `json:"credit"`
	History   []CreditEntry `json:"history"`
}

type SwappingUpdate struct {
	Positions []SwapPair `json:"positions"`
}

type SwappingError struct {
	Message string `json:"message"`
}

type SwappingSuccess struct {
	Credit  int64         `json:"credit"`
	History []CreditEntry `json:"history"`
}

type SwappingOpenClose struct {
	Open bool `json:"open"`
}

type UpdateUserCount struct {
	UserCount int `json:"userCount"`
}

// Decode maps an envelope to its typed payload. All channel input, on
// both hub and client, passes through here.
func (e Envelope) Decode() (any, error) {
	var target any
	switch e.Event {
	case CmdSubscribeBar:
		target = &SubscribeBar{}
	case CmdSubscribeSwap:
		target = &SubscribeSwap{}
	case CmdMarkContentComplete:
		target = &MarkContentComplete{}
	case CmdMarkOrderPaid:
		target = &MarkOrderPaid{}
	case CmdMarkOrderCompleted:
		target = &MarkOrderCompleted{}
	case CmdSetBarOpen:
		target = &SetBarOpen{}
	case CmdPerformSwap:
		target = &PerformSwap{}
	case EvtBarInitialData:
		target = &BarInitialData{}
	case EvtBarNewOrder:
		target = &BarNewOrder{}
	case EvtBarContentCompleted:
		target = &BarContentCompleted{}
	case EvtBarOrderPaid:
		target = &BarOrderPaid{}
	case EvtBarOrderCompleted:
		target = &BarOrderCompleted{}
	case EvtBarOpenChanged:
		target = &BarOpenChanged{}
	case EvtSwapInitialPositions:
		target = &SwapInitialPositions{}
	case EvtSwappingUpdate:
		target = &SwappingUpdate{}
	case EvtSwappingError:
		target = &SwappingError{}
	case EvtSwappingSuccess:
		target = &SwappingSuccess{}
	case EvtSwappingOpenClose:
		target = &SwappingOpenClose{}
	case EvtUpdateUserCount:
		target = &UpdateUserCount{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, e.Event, err)
		}
	}
	return deref(target), nil
}

func deref(v any) any {
	switch t := v.(type) {
	case *SubscribeBar:
		return *t
	case *SubscribeSwap:
		return *t
	case *MarkContentComplete:
		return *t
	case *MarkOrderPaid:
		return *t
	case *MarkOrderCompleted:
		return *t
	case *SetBarOpen:
		return *t
	case *PerformSwap:
		return *t
	case *BarInitialData:
		return *t
	case *BarNewOrder:
		return *t
	case *BarContentCompleted:
		return *t
	case *BarOrderPaid:
		return *t
	case *BarOrderCompleted:
		return *t
	case *BarOpenChanged:
		return *t
	case *SwapInitialPositions:
		return *t
	case *SwappingUpdate:
		return *t
	case *SwappingError:
		return *t
	case *SwappingSuccess:
		return *t
	case *SwappingOpenClose:
		return *t
	case *UpdateUserCount:
		return *t
	}
	return v
}
