// Package ratelimit coordinates provider credit consumption across processes
// using Redis. Helius bills every call in credits and enforces a per-second
// credit allowance per API key; the server and the refresh command share it.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 50              // Total credits/s
	DefaultReservedBudget = 30              // Reserved for wallet history and balances
	DefaultWindowSize     = time.Second     // Fixed window aligned to the window size
	DefaultKeyTTL         = 2 * time.Second // Window + buffer
)

// Redis key prefixes for credit tracking.
const (
	KeyPrefixTotal     = "credits:total:"
	KeyPrefixReserved  = "credits:reserved:"
	KeyPrefixShared    = "credits:shared:"
	KeyPrefixOperation = "credits:op:"
)

// Priority levels for budget allocation.
type Priority int

const (
	// PriorityHigh is for wallet history and balance reads (reserved pool).
	PriorityHigh Priority = iota
	// PriorityLow is for enrichment lookups such as asset metadata (shared pool).
	PriorityLow
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// consumeScript checks both the total and the pool counter and increments
// them together, so concurrent callers never overshoot the budget
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local credits = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + credits > totalBudget then
		return {0, totalUsed, poolUsed}
	end
	if poolUsed + credits > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, credits)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, credits)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + credits, poolUsed + credits}
`)

// CreditBudgetTracker implements a fixed-window credit limiter with separate
// pools for priority (reserved) and best-effort (shared) calls.
type CreditBudgetTracker struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// CreditBudgetTrackerConfig holds configuration for the budget tracker.
type CreditBudgetTrackerConfig struct {
	// Redis is required; the budget is shared through it.
	Redis redis.Cmdable

	// TotalBudget is the total credits per window. Default: 50.
	TotalBudget int

	// ReservedBudget is reserved for PriorityHigh calls. Default: 30.
	ReservedBudget int

	// WindowSize is the window duration. Default: 1s.
	WindowSize time.Duration

	// KeyTTL should be at least WindowSize. Default: 2s.
	KeyTTL time.Duration
}

// CreditUsageStats contains current consumption metrics.
type CreditUsageStats struct {
	TotalUsed      int       `json:"totalUsed"`
	ReservedUsed   int       `json:"reservedUsed"`
	SharedUsed     int       `json:"sharedUsed"`
	TotalBudget    int       `json:"totalBudget"`
	ReservedBudget int       `json:"reservedBudget"`
	SharedBudget   int       `json:"sharedBudget"`
	WindowStart    time.Time `json:"windowStart"`
}

// Validate checks if the configuration is valid.
func (c *CreditBudgetTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total, reserved := c.budgets()
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}
	return nil
}

func (c *CreditBudgetTrackerConfig) budgets() (total, reserved int) {
	total = c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved = c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	return total, reserved
}

// NewCreditBudgetTracker creates a new tracker with the given configuration.
func NewCreditBudgetTracker(cfg *CreditBudgetTrackerConfig) (*CreditBudgetTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total, reserved := cfg.budgets()

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}

	return &CreditBudgetTracker{
		redis:          cfg.Redis,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         keyTTL,
		now:            time.Now,
	}, nil
}

// SetClock overrides the time source
func (t *CreditBudgetTracker) SetClock(now func() time.Time) {
	t.now = now
}

// windowTimestamp returns the start of the current window in epoch millis
func (t *CreditBudgetTracker) windowTimestamp() int64 {
	return t.now().Truncate(t.windowSize).UnixMilli()
}

func keys(windowTS int64) (totalKey, reservedKey, sharedKey string) {
	ts := strconv.FormatInt(windowTS, 10)
	return KeyPrefixTotal + ts, KeyPrefixReserved + ts, KeyPrefixShared + ts
}

// TryConsume attempts to consume credits from the pool of the given
// priority. When denied it suggests how long to wait. A Redis failure is
// returned as an error with allowed=false.
func (t *CreditBudgetTracker) TryConsume(ctx context.Context, credits int, priority Priority) (bool, time.Duration, error) {
	if credits <= 0 {
		return true, 0, nil
	}

	windowTS := t.windowTimestamp()
	totalKey, reservedKey, sharedKey := keys(windowTS)

	poolKey, poolBudget := sharedKey, t.sharedBudget
	if priority == PriorityHigh {
		poolKey, poolBudget = reservedKey, t.reservedBudget
	}

	ttlSeconds := int(t.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, t.redis, []string{totalKey, poolKey},
		credits, t.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, t.waitTime(windowTS), fmt.Errorf("consume credits: %w", err)
	}

	if result[0] != 1 {
		return false, t.waitTime(windowTS), nil
	}
	return true, 0, nil
}

// waitTime returns the time until the next window starts.
func (t *CreditBudgetTracker) waitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(t.windowSize)
	wait := windowEnd.Sub(t.now())
	if wait < 0 {
		wait = 0
	}
	// Land inside the new window
	return wait + time.Millisecond
}

// GetUsage returns current credit usage statistics.
func (t *CreditBudgetTracker) GetUsage(ctx context.Context) (*CreditUsageStats, error) {
	windowTS := t.windowTimestamp()
	totalKey, reservedKey, sharedKey := keys(windowTS)

	pipe := t.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)

	// Missing keys surface as redis.Nil and count as zero
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read credit usage: %w", err)
	}

	return &CreditUsageStats{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    t.totalBudget,
		ReservedBudget: t.reservedBudget,
		SharedBudget:   t.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS),
	}, nil
}

func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}

// RecordOperationUsage records credits spent on one provider operation.
// It is for monitoring only and does not affect admission.
func (t *CreditBudgetTracker) RecordOperationUsage(ctx context.Context, operation string, credits int) error {
	if credits <= 0 || operation == "" {
		return nil
	}

	key := fmt.Sprintf("%s%s:%d", KeyPrefixOperation, operation, t.windowTimestamp())

	pipe := t.redis.Pipeline()
	pipe.IncrBy(ctx, key, int64(credits))
	pipe.Expire(ctx, key, t.keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AvailableBudget returns the credits still available to a priority level.
func (t *CreditBudgetTracker) AvailableBudget(ctx context.Context, priority Priority) (int, error) {
	stats, err := t.GetUsage(ctx)
	if err != nil {
		return 0, err
	}

	available := t.sharedBudget - stats.SharedUsed
	if priority == PriorityHigh {
		available = t.reservedBudget - stats.ReservedUsed
	}
	if remaining := t.totalBudget - stats.TotalUsed; remaining < available {
		available = remaining
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

// GetWindowSize returns the configured window size.
func (t *CreditBudgetTracker) GetWindowSize() time.Duration {
	return t.windowSize
}
