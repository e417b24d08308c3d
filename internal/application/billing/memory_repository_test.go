package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

type memoryBillRepo struct {
	mu        sync.Mutex
	bills     map[uuid.UUID]*billing.Bill
	updateErr func(b *billing.Bill) error
	createErr error
	// afterFindOpen runs once the open bills were read, before any is locked
	afterFindOpen func()
}

func newMemoryBillRepo() *memoryBillRepo {
	return &memoryBillRepo{bills: make(map[uuid.UUID]*billing.Bill)}
}

func cloneBill(b *billing.Bill) *billing.Bill {
	c := *b
	c.Items = append([]billing.BillItem(nil), b.Items...)
	return &c
}

func (r *memoryBillRepo) get(id uuid.UUID) *billing.Bill {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneBill(r.bills[id])
}

func (r *memoryBillRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bills)
}

func (r *memoryBillRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok {
		return nil, shared.NewNotFoundError("bill", id.String())
	}
	return cloneBill(b), nil
}

func (r *memoryBillRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryBillRepo) FindByNumberAndCustomer(_ context.Context, number string, customerID uuid.UUID) (*billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		if b.BillNumber == number && b.CustomerID == customerID && !b.Lifecycle.IsDeleted() {
			return cloneBill(b), nil
		}
	}
	return nil, shared.NewNotFoundError("bill", number)
}

func (r *memoryBillRepo) byCustomer(customerID uuid.UUID, keep func(*billing.Bill) bool) []billing.Bill {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.Bill, 0)
	for _, b := range r.bills {
		if b.CustomerID == customerID && keep(b) {
			out = append(out, *cloneBill(b))
		}
	}
	billing.SortOldestCreated(out)
	return out
}

func (r *memoryBillRepo) FindOpenByCustomer(_ context.Context, customerID uuid.UUID) ([]billing.Bill, error) {
	open := r.byCustomer(customerID, func(b *billing.Bill) bool { return b.IsOpen() })
	if r.afterFindOpen != nil {
		r.afterFindOpen()
	}
	return open, nil
}

func (r *memoryBillRepo) FindByCustomer(_ context.Context, customerID uuid.UUID) ([]billing.Bill, error) {
	return r.byCustomer(customerID, func(b *billing.Bill) bool { return !b.Lifecycle.IsDeleted() }), nil
}

func (r *memoryBillRepo) matching(f billing.BillFilter) []billing.Bill {
	out := make([]billing.Bill, 0)
	search := strings.ToLower(f.Search)
	for _, b := range r.bills {
		switch {
		case b.Lifecycle.IsDeleted():
			continue
		case f.CustomerID != nil && b.CustomerID != *f.CustomerID:
			continue
		case f.Status != "" && b.Status != f.Status:
			continue
		case f.PaymentMode != "" && b.PaymentMode != f.PaymentMode:
			continue
		case f.Year != 0 && b.Year != f.Year:
			continue
		case search != "" && !strings.Contains(strings.ToLower(b.BillNumber), search) &&
			!strings.Contains(strings.ToLower(b.CustomerName), search):
			continue
		}
		out = append(out, *cloneBill(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memoryBillRepo) FindAll(_ context.Context, f billing.BillFilter) ([]billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(f)
	start := min(f.Offset(), len(all))
	end := min(start+f.PageSize, len(all))
	return all[start:end], nil
}

func (r *memoryBillRepo) Count(_ context.Context, f billing.BillFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(f))), nil
}

func (r *memoryBillRepo) Create(_ context.Context, b *billing.Bill) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bills[b.ID] = cloneBill(b)
	return nil
}

func (r *memoryBillRepo) Update(_ context.Context, b *billing.Bill) error {
	if r.updateErr != nil {
		if err := r.updateErr(b); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bills[b.ID]; !ok {
		return shared.NewNotFoundError("bill", b.ID.String())
	}
	r.bills[b.ID] = cloneBill(b)
	return nil
}

type memoryInstallmentRepo struct {
	mu           sync.Mutex
	installments map[uuid.UUID]*billing.Installment
}

func newMemoryInstallmentRepo() *memoryInstallmentRepo {
	return &memoryInstallmentRepo{installments: make(map[uuid.UUID]*billing.Installment)}
}

func (r *memoryInstallmentRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.installments[id]
	if !ok {
		return nil, shared.NewNotFoundError("installment", id.String())
	}
	c := *i
	return &c, nil
}

func (r *memoryInstallmentRepo) FindLiveByBill(_ context.Context, billID uuid.UUID) ([]billing.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.Installment, 0)
	for _, i := range r.installments {
		if i.BillID == billID && !i.Lifecycle.IsDeleted() {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].PaymentDate.Before(out[b].PaymentDate) })
	return out, nil
}

func (r *memoryInstallmentRepo) FindByBillNumber(_ context.Context, number string) ([]billing.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.Installment, 0)
	for _, i := range r.installments {
		if i.BillNumber == number && !i.Lifecycle.IsDeleted() {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (r *memoryInstallmentRepo) Create(_ context.Context, i *billing.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *i
	r.installments[i.ID] = &c
	return nil
}

func (r *memoryInstallmentRepo) Update(_ context.Context, i *billing.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *i
	r.installments[i.ID] = &c
	return nil
}

// counterSequence hands out 2026-0001, 2026-0002, ...
type counterSequence struct {
	mu   sync.Mutex
	next int64
	err  error
}

func (s *counterSequence) NextBillNumber(context.Context) (string, int, error) {
	if s.err != nil {
		return "", 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return billing.FormatBillNumber(2026, s.next), 2026, nil
}

func (s *counterSequence) issued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// fakeStock allocates from a per-product counter and records restores
type fakeStock struct {
	mu        sync.Mutex
	available map[uuid.UUID]int64
	restored  []uuid.UUID
}

func newFakeStock() *fakeStock {
	return &fakeStock{available: make(map[uuid.UUID]int64)}
}

func (f *fakeStock) level(productID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[productID]
}

func (f *fakeStock) AllocateForSale(_ context.Context, productID uuid.UUID, quantity int64) (*inventory.OldestFirstResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.available[productID] < quantity {
		return nil, shared.NewDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("insufficient stock for product %s", productID))
	}
	f.available[productID] -= quantity
	result := inventory.NewOldestFirstResult(productID, quantity)
	result.Add(&inventory.Batch{BaseEntity: shared.BaseEntity{ID: uuid.New()}, BatchNumber: "LOT"}, quantity)
	return result, nil
}

func (f *fakeStock) RestoreToBatches(_ context.Context, alloc *inventory.OldestFirstResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[alloc.ProductID] += alloc.Fulfilled
	f.restored = append(f.restored, alloc.ProductID)
	return nil
}

type fakeProducts struct {
	products map[uuid.UUID]inventory.Product
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []uuid.UUID) ([]inventory.Product, error) {
	out := make([]inventory.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// memoryCache is a map-backed shared.Cache recording invalidations
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
	gets        int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

var errStorage = errors.New("storage unavailable")
