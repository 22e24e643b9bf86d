package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventTransactionChanged is the routing type of TransactionEvent.
const EventTransactionChanged = "transaction.changed"

// Actions carried by a TransactionEvent.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

var ErrMalformedEvent = errors.New("malformed event")

// TransactionEvent announces that an owner's transactions changed. It carries
// no amounts; consumers reload the ledger of each affected fiscal year.
type TransactionEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Action        string    `json:"action"`
	OwnerID       string    `json:"owner_id"`
	TransactionID string    `json:"transaction_id"`
	FiscalYears   []int     `json:"fiscal_years"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event with a fresh id. Duplicate fiscal
// years are collapsed.
func NewTransactionEvent(action, ownerID, transactionID string, fiscalYears ...int) *TransactionEvent {
	years := make([]int, 0, len(fiscalYears))
	seen := make(map[int]bool, len(fiscalYears))
	for _, y := range fiscalYears {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	return &TransactionEvent{
		EventID:       uuid.NewString(),
		Type:          EventTransactionChanged,
		Action:        action,
		OwnerID:       ownerID,
		TransactionID: transactionID,
		FiscalYears:   years,
		Timestamp:     time.Now().UTC(),
	}
}

func (e *TransactionEvent) Validate() error {
	if e.Type != EventTransactionChanged {
		return fmt.Errorf("%w: unexpected type %q", ErrMalformedEvent, e.Type)
	}
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return fmt.Errorf("%w: unexpected action %q", ErrMalformedEvent, e.Action)
	}
	if e.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", ErrMalformedEvent)
	}
	if len(e.FiscalYears) == 0 {
		return fmt.Errorf("%w: no fiscal year", ErrMalformedEvent)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
