package payment

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// Result of a charge attempt. Declined is a business outcome, not an error;
// errors are reserved for transport-level failures (including timeout via
// the context).
type Result struct {
	Success       bool
	TransactionID string
	Reason        string
}

// Gateway is the external payment collaborator. It must be invoked at most
// once per checkout attempt, and callers bound it with a context deadline;
// a deadline hit is handled exactly like a decline.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amountCents int64, method string) (Result, error)
}

// Simulated stands in for a real provider. The outcome source is injected
// so tests stay deterministic; rand.Rand is not safe for concurrent use,
// so draws are serialized under the mutex.
type Simulated struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(successRate float64, rng *rand.Rand) *Simulated {
	return &Simulated{successRate: successRate, rng: rng}
}

func (s *Simulated) Charge(ctx context.Context, orderID string, amountCents int64, method string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if amountCents <= 0 {
		return Result{}, errors.New("charge amount must be positive")
	}

	s.mu.Lock()
	outcome := s.rng.Float64()
	s.mu.Unlock()

	if outcome >= s.successRate {
		return Result{Success: false, Reason: "payment declined"}, nil
	}

	return Result{
		Success:       true,
		TransactionID: "txn_" + uuid.NewString(),
	}, nil
}
