package billing

import (
	"bytes"
	"sort"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BulkAllocation is the share of a bulk payment assigned to one bill
type BulkAllocation struct {
	BillID      uuid.UUID
	BillNumber  string
	Due         decimal.Decimal // owed before this payment
	Amount      decimal.Decimal // min(due, remaining payment)
	SettlesBill bool
}

// BulkAllocationPlan is the greedy oldest-first split of one customer payment
type BulkAllocationPlan struct {
	Allocations    []BulkAllocation
	TotalAllocated decimal.Decimal
	Unallocated    decimal.Decimal // excess over everything owed, left undistributed
}

// SortOldestCreated orders bills by creation time, then id
func SortOldestCreated(bills []Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		if !bills[i].CreatedAt.Equal(bills[j].CreatedAt) {
			return bills[i].CreatedAt.Before(bills[j].CreatedAt)
		}
		return bytes.Compare(bills[i].ID[:], bills[j].ID[:]) < 0
	})
}

// PlanBulkAllocation spreads amount over the open bills, oldest first. Each bill
// receives min(due, remaining) until the payment is used up. Paying more than
// the total owed is not an error; the excess is reported as Unallocated.
func PlanBulkAllocation(amount decimal.Decimal, bills []Bill) (*BulkAllocationPlan, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}

	open := make([]Bill, 0, len(bills))
	for _, b := range bills {
		if b.IsOpen() {
			open = append(open, b)
		}
	}
	if len(open) == 0 {
		return nil, shared.ErrNoPendingBalance
	}
	SortOldestCreated(open)

	plan := &BulkAllocationPlan{
		Allocations:    make([]BulkAllocation, 0, len(open)),
		TotalAllocated: decimal.Zero,
	}
	remaining := amount
	for _, b := range open {
		if !remaining.IsPositive() {
			break
		}
		due := b.Due()
		pay := decimal.Min(due, remaining)
		plan.Allocations = append(plan.Allocations, BulkAllocation{
			BillID:      b.ID,
			BillNumber:  b.BillNumber,
			Due:         due,
			Amount:      pay,
			SettlesBill: pay.Equal(due),
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(pay)
		remaining = remaining.Sub(pay)
	}
	plan.Unallocated = remaining
	return plan, nil
}
