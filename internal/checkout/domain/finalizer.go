package domain

import (
	"context"
	"errors"
	"time"
)

type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// PaymentEvent is a settled payment reported by the processor.
type PaymentEvent struct {
	EventID    string
	SessionID  string
	Outcome    PaymentOutcome
	OccurredAt time.Time
}

// OrderFinalizer moves the order behind a checkout session from pending to
// confirmed or rejected. Implementations must apply each EventID at most once
// and return ErrEventAlreadyApplied for replays.
type OrderFinalizer interface {
	Finalize(ctx context.Context, event PaymentEvent) error
}

var ErrEventAlreadyApplied = errors.New("event_already_applied")
