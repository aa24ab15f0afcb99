package chat

import (
	"fmt"
	"strconv"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/models"
)

// ActionKind is a vendor's response to a pending bid.
type ActionKind string

const (
	ActionAccept  ActionKind = "accept"
	ActionDecline ActionKind = "decline"
	ActionCounter ActionKind = "counter"
)

// BidAction is a parsed bid response. CounterAmount is set only for
// ActionCounter.
type BidAction struct {
	Kind          ActionKind
	CounterAmount models.Amount
}

// Transition returns the status a bid in state from moves to under a.
// Only pending bids accept a response; every other state is terminal.
func Transition(from models.BidStatus, a BidAction) (models.BidStatus, error) {
	if from != models.BidPending {
		return from, apperr.Validation(fmt.Sprintf("Bid is already %s.", from), map[string]string{"status": string(from)})
	}
	switch a.Kind {
	case ActionAccept:
		return models.BidAccepted, nil
	case ActionDecline:
		return models.BidDeclined, nil
	case ActionCounter:
		if a.CounterAmount <= 0 {
			return from, apperr.Field("counter_amount", "Counter amount must be greater than zero.")
		}
		return models.BidCountered, nil
	}
	return from, apperr.Validation("Invalid bid action.", nil)
}

// ParseBidAction reads a response body. It accepts either an explicit
// {"action": "accept"|"decline"|"counter"} or the shorthand keys accept,
// decline and counter_amount, checked in that order.
func ParseBidAction(body map[string]any) (BidAction, error) {
	if raw, ok := body["action"]; ok {
		name, _ := raw.(string)
		switch ActionKind(name) {
		case ActionAccept, ActionDecline:
			return BidAction{Kind: ActionKind(name)}, nil
		case ActionCounter:
			amt, err := counterAmount(body["counter_amount"])
			if err != nil {
				return BidAction{}, err
			}
			return BidAction{Kind: ActionCounter, CounterAmount: amt}, nil
		}
		return BidAction{}, apperr.Field("action", "Action must be accept, decline or counter.")
	}
	if present(body, "accept") {
		return BidAction{Kind: ActionAccept}, nil
	}
	if present(body, "decline") {
		return BidAction{Kind: ActionDecline}, nil
	}
	if raw, ok := body["counter_amount"]; ok {
		amt, err := counterAmount(raw)
		if err != nil {
			return BidAction{}, err
		}
		return BidAction{Kind: ActionCounter, CounterAmount: amt}, nil
	}
	return BidAction{}, apperr.Validation("Invalid bid action.", nil)
}

// present reports whether key is set to anything other than false or null.
func present(body map[string]any, key string) bool {
	v, ok := body[key]
	if !ok || v == nil {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

func counterAmount(raw any) (models.Amount, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return 0, apperr.Field("counter_amount", "Counter amount is required.")
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	default:
		return 0, apperr.Field("counter_amount", "A valid number is required.")
	}
	amt, err := models.ParseAmount(s)
	if err != nil {
		return 0, apperr.Field("counter_amount", "A valid number is required.")
	}
	if amt <= 0 {
		return 0, apperr.Field("counter_amount", "Counter amount must be greater than zero.")
	}
	return amt, nil
}
