package ratelimit

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/logging"
)

// DefaultMaxWait bounds how long a call waits for credits.
const DefaultMaxWait = 5 * time.Second

// ErrMaxWaitExceeded is wrapped into the rate limit error returned when
// credits did not free up in time.
var ErrMaxWaitExceeded = errors.New("max wait time exceeded waiting for credit budget")

// BudgetGate admits provider calls against the shared credit budget
type BudgetGate struct {
	tracker *CreditBudgetTracker
	costs   *CreditCostRegistry
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBudgetGate creates a gate. maxWait <= 0 uses DefaultMaxWait.
func NewBudgetGate(tracker *CreditBudgetTracker, costs *CreditCostRegistry, maxWait time.Duration) (*BudgetGate, error) {
	if tracker == nil {
		return nil, errors.New("budget tracker is required")
	}
	if costs == nil {
		costs = NewCreditCostRegistry(nil)
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &BudgetGate{
		tracker: tracker,
		costs:   costs,
		maxWait: maxWait,
		sleep:   sleepCtx,
	}, nil
}

// Admit blocks until the operation's credits are consumed. Unbilled
// operations pass immediately. A Redis failure admits the call.
func (g *BudgetGate) Admit(ctx context.Context, operation string) error {
	cost, billed := g.costs.GetCost(operation)
	if !billed {
		return nil
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"operation": operation,
		"priority":  cost.Priority.String(),
		"credits":   cost.Credits,
	})

	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, wait, err := g.tracker.TryConsume(ctx, cost.Credits, cost.Priority)
		if err != nil {
			logger.WithError(err).Warn("Credit budget unavailable, admitting call")
			return nil
		}
		if allowed {
			if err := g.tracker.RecordOperationUsage(ctx, operation, cost.Credits); err != nil {
				logger.WithError(err).Debug("Failed to record operation credit usage")
			}
			return nil
		}

		if waited+wait > g.maxWait {
			logger.WithField("waited_ms", waited.Milliseconds()).Warn("Credit budget exhausted")
			rlErr := apperrors.NewProviderRateLimitError(operation)
			rlErr.Cause = ErrMaxWaitExceeded
			return rlErr
		}

		logger.WithField("wait_ms", wait.Milliseconds()).Debug("Waiting for credit budget")
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Usage returns the current window's consumption
func (g *BudgetGate) Usage(ctx context.Context) (*CreditUsageStats, error) {
	return g.tracker.GetUsage(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
