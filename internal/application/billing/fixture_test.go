package billing

import (
	"context"
	"testing"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	bills        *memoryBillRepo
	installments *memoryInstallmentRepo
	sequence     *counterSequence
	stock        *fakeStock
	cache        *memoryCache
	urea         inventory.Product
	dap          inventory.Product

	bill        *BillService
	installment *InstallmentService
	bulk        *BulkPaymentService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	urea, err := inventory.NewProduct("Urea 45kg", "URE-45", decimal.NewFromInt(250))
	require.NoError(t, err)
	dap, err := inventory.NewProduct("DAP 50kg", "DAP-50", decimal.NewFromInt(1350))
	require.NoError(t, err)

	f := &ledgerFixture{
		bills:        newMemoryBillRepo(),
		installments: newMemoryInstallmentRepo(),
		sequence:     &counterSequence{},
		stock:        newFakeStock(),
		cache:        newMemoryCache(),
		urea:         *urea,
		dap:          *dap,
	}
	f.stock.available[urea.ID] = 100
	f.stock.available[dap.ID] = 100

	products := &fakeProducts{products: map[uuid.UUID]inventory.Product{urea.ID: *urea, dap.ID: *dap}}
	scope := NewNoOpTransactionScope(f.bills, f.installments)
	opts := []ServiceOption{WithCache(f.cache)}

	f.bill = NewBillService(f.bills, f.installments, products, f.stock, f.sequence, scope, opts...)
	f.installment = NewInstallmentService(f.bills, f.installments, scope, opts...)
	f.bulk = NewBulkPaymentService(f.bills, f.installments, f.sequence, scope, opts...)
	return f
}

// createBill records a one-line bill of urea priced so that its total is total
func (f *ledgerFixture) createBill(t *testing.T, customerID uuid.UUID, total, paid int64) *BillResponse {
	t.Helper()
	price := decimal.NewFromInt(total)
	resp, err := f.bill.CreateBill(context.Background(), CreateBillRequest{
		CustomerID:   customerID,
		CustomerName: "Ramesh Patil",
		Items:        []BillItemRequest{{ProductID: f.urea.ID, Quantity: 1, UnitPrice: &price}},
		PaidAmount:   decimal.NewFromInt(paid),
		PaymentMode:  "CASH",
	})
	require.NoError(t, err)
	return resp
}

// setCreatedAt pins a bill's creation time so oldest-first ordering is deterministic
func (f *ledgerFixture) setCreatedAt(id uuid.UUID, at time.Time) {
	f.bills.mu.Lock()
	defer f.bills.mu.Unlock()
	f.bills.bills[id].CreatedAt = at
}

func (f *ledgerFixture) requireInvariant(t *testing.T, id uuid.UUID) *billing.Bill {
	t.Helper()
	b := f.bills.get(id)
	require.NoError(t, b.CheckInvariant())
	require.Equal(t, billing.DeriveStatus(b.PaidAmount, b.TotalAmount), b.Status)
	return b
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
