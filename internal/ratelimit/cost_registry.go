package ratelimit

import (
	"sort"
	"sync"
)

// Credit costs of the provider operations billed against the Helius plan.
const (
	CostEnhancedTransactions = 100 // /v0/addresses/{address}/transactions
	CostDASGetAsset          = 10
	CostRPCStandard          = 1 // getTokenAccountsByOwner and friends
)

// Operation names, matching the gateway's provider names.
const (
	OperationHeliusTransactions = "helius"
	OperationHeliusDAS          = "helius-das"
	OperationSolanaRPC          = "solana-rpc"
)

// OperationCost is the credit price and pool of one operation
type OperationCost struct {
	Credits  int
	Priority Priority
}

// CreditCostRegistry maps operations to their credit costs. Operations it
// does not know are free and are never gated.
// It is safe for concurrent use.
type CreditCostRegistry struct {
	mu    sync.RWMutex
	costs map[string]OperationCost
}

// NewCreditCostRegistry creates a registry with the default Helius costs.
// Overrides replace the credit cost of known or new operations.
func NewCreditCostRegistry(overrides map[string]int) *CreditCostRegistry {
	costs := map[string]OperationCost{
		OperationHeliusTransactions: {Credits: CostEnhancedTransactions, Priority: PriorityHigh},
		OperationSolanaRPC:          {Credits: CostRPCStandard, Priority: PriorityHigh},
		OperationHeliusDAS:          {Credits: CostDASGetAsset, Priority: PriorityLow},
	}

	for op, credits := range overrides {
		if credits <= 0 {
			continue
		}
		c, ok := costs[op]
		if !ok {
			c.Priority = PriorityLow
		}
		c.Credits = credits
		costs[op] = c
	}

	return &CreditCostRegistry{costs: costs}
}

// GetCost returns the cost of an operation and whether it is billed.
func (r *CreditCostRegistry) GetCost(operation string) (OperationCost, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.costs[operation]
	return c, ok
}

// SetCost updates the cost of an operation at runtime. Non-positive credits
// are ignored.
func (r *CreditCostRegistry) SetCost(operation string, cost OperationCost) {
	if cost.Credits <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs[operation] = cost
}

// KnownOperations returns the billed operation names, sorted.
func (r *CreditCostRegistry) KnownOperations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]string, 0, len(r.costs))
	for op := range r.costs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
