//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	billingapp "github.com/agrosupply/backend/internal/application/billing"
	inventoryapp "github.com/agrosupply/backend/internal/application/inventory"
	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/cache"
	"github.com/agrosupply/backend/internal/infrastructure/config"
	"github.com/agrosupply/backend/internal/infrastructure/persistence"
	"github.com/agrosupply/backend/internal/interfaces/http/handler"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/agrosupply/backend/internal/interfaces/http/router"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

type ledger struct {
	db           *TestDB
	products     *persistence.GormProductRepository
	batches      *inventoryapp.BatchService
	bills        *billingapp.BillService
	installments *billingapp.InstallmentService
	bulk         *billingapp.BulkPaymentService
}

func newLedger(t *testing.T, c shared.Cache) *ledger {
	t.Helper()
	tdb := NewTestDB(t)

	productRepo := persistence.NewGormProductRepository(tdb.DB)
	billRepo := persistence.NewGormBillRepository(tdb.DB)
	installmentRepo := persistence.NewGormInstallmentRepository(tdb.DB)
	sequence := billing.NewYearlySequence(persistence.NewGormSequenceRepository(tdb.DB))
	scope := persistence.NewGormBillingTransactionScope(tdb.DB)

	var inventoryOpts []inventoryapp.BatchServiceOption
	var billingOpts []billingapp.ServiceOption
	if c != nil {
		inventoryOpts = append(inventoryOpts, inventoryapp.WithCache(c))
		billingOpts = append(billingOpts, billingapp.WithCache(c))
	}
	batches := inventoryapp.NewBatchService(persistence.NewGormBatchRepository(tdb.DB), productRepo,
		persistence.NewGormInventoryTransactionScope(tdb.DB), inventoryOpts...)

	return &ledger{
		db:           tdb,
		products:     productRepo,
		batches:      batches,
		bills:        billingapp.NewBillService(billRepo, installmentRepo, productRepo, batches, sequence, scope, billingOpts...),
		installments: billingapp.NewInstallmentService(billRepo, installmentRepo, scope, billingOpts...),
		bulk:         billingapp.NewBulkPaymentService(billRepo, installmentRepo, sequence, scope, billingOpts...),
	}
}

func (l *ledger) product(t *testing.T, name string, price int64, lots ...int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	p, err := inventory.NewProduct(name, "", decimal.NewFromInt(price))
	require.NoError(t, err)
	require.NoError(t, l.products.Save(ctx, p))

	received := time.Now().Add(-time.Duration(len(lots)) * 24 * time.Hour)
	for i, stock := range lots {
		at := received.Add(time.Duration(i) * 24 * time.Hour)
		_, err := l.batches.CreateBatch(ctx, inventoryapp.CreateBatchRequest{
			ProductID:   p.ID,
			BatchNumber: name + "-" + strconv.Itoa(i+1),
			Stock:       stock,
			ReceivedAt:  &at,
		})
		require.NoError(t, err)
	}
	return p.ID
}

func domainCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func TestOldestFirst_ConcurrentSalesNeverOversell(t *testing.T) {
	l := newLedger(t, nil)
	productID := l.product(t, "DAP 50kg", 1350, 6, 4)
	ctx := context.Background()

	const sellers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sold    int
		refused int
		other   []error
	)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.batches.SellFromOldestBatches(ctx, inventoryapp.SellFromOldestRequest{
				ProductID: productID,
				Quantity:  1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case domainCode(err) == shared.CodeInsufficientStock:
				refused++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 10, sold)
	assert.Equal(t, sellers-10, refused)

	lots, total, err := l.batches.ListBatches(ctx, inventoryapp.BatchListFilter{ProductID: &productID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	for _, lot := range lots {
		assert.Zero(t, lot.RemainingStock, lot.BatchNumber)
		assert.Equal(t, lot.Stock, lot.SoldQuantity, lot.BatchNumber)
	}

	p, err := l.products.FindByID(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, p.RemainingStock)
}

func TestCreateBill_ConcurrentNumbersAreUnique(t *testing.T) {
	l := newLedger(t, nil)
	productID := l.product(t, "Urea 45kg", 266, 50)
	ctx := context.Background()

	const tills = 8
	numbers := make(chan string, tills)
	errs := make(chan error, tills)
	var wg sync.WaitGroup
	for i := 0; i < tills; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bill, err := l.bills.CreateBill(ctx, billingapp.CreateBillRequest{
				CustomerID:  uuid.New(),
				Items:       []billingapp.BillItemRequest{{ProductID: productID, Quantity: 2}},
				PaidAmount:  decimal.Zero,
				PaymentMode: "CASH",
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- bill.BillNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("create bill: %v", err)
	}
	year := strconv.Itoa(time.Now().Year())
	seen := make(map[string]bool)
	for n := range numbers {
		assert.True(t, strings.HasPrefix(n, year+"-"), n)
		assert.False(t, seen[n], "duplicate bill number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, tills)
	for i := 1; i <= tills; i++ {
		assert.True(t, seen[billing.FormatBillNumber(time.Now().Year(), int64(i))])
	}

	p, err := l.products.FindByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(50-2*tills), p.RemainingStock)
}

func TestCreateBill_ShortageLeavesNoTrace(t *testing.T) {
	l := newLedger(t, nil)
	ctx := context.Background()
	seed := l.product(t, "Seed Drill Bolt", 40, 3)
	spray := l.product(t, "Knapsack Sprayer", 1800, 1)

	_, err := l.bills.CreateBill(ctx, billingapp.CreateBillRequest{
		CustomerID: uuid.New(),
		Items: []billingapp.BillItemRequest{
			{ProductID: seed, Quantity: 2},
			{ProductID: spray, Quantity: 2},
		},
		PaidAmount:  decimal.Zero,
		PaymentMode: "CASH",
	})
	require.Error(t, err)
	assert.Equal(t, shared.CodeInsufficientStock, domainCode(err))

	p, err := l.products.FindByID(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.RemainingStock, "stock taken for the first line was restored")

	_, total, err := l.bills.ListBills(ctx, billingapp.BillListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInstallments_ConcurrentPaymentsCannotOverpay(t *testing.T) {
	l := newLedger(t, nil)
	productID := l.product(t, "Mancozeb 1kg", 100, 10)
	ctx := context.Background()
	customer := uuid.New()

	bill, err := l.bills.CreateBill(ctx, billingapp.CreateBillRequest{
		CustomerID:  customer,
		Items:       []billingapp.BillItemRequest{{ProductID: productID, Quantity: 5}},
		PaidAmount:  decimal.Zero,
		PaymentMode: "CASH",
	})
	require.NoError(t, err)

	const payers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.installments.AddInstallment(ctx, billingapp.AddInstallmentRequest{
				BillNumber:  bill.BillNumber,
				CustomerID:  customer,
				Amount:      decimal.NewFromInt(100),
				PaymentMode: "UPI",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			assert.Equal(t, shared.CodeExceedsBalance, domainCode(err), err)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, rejected)

	final, err := l.bills.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, final.PendingAmount.IsZero(), final.PendingAmount.String())
	assert.Equal(t, "PAID", final.Status)
}

func TestHTTP_BulkPaymentOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	stores, err := cache.NewFactory(config.RedisConfig{
		Enabled: true, Host: mr.Host(), Port: port, KeyPrefix: "agro:",
	}, cache.WithInMemoryFallback(false)).Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	l := newLedger(t, stores.Cache)
	productID := l.product(t, "Potash 50kg", 900, 10)
	customer := uuid.New()
	ctx := context.Background()
	for _, paid := range []int64{300, 0} {
		_, err := l.bills.CreateBill(ctx, billingapp.CreateBillRequest{
			CustomerID:  customer,
			Items:       []billingapp.BillItemRequest{{ProductID: productID, Quantity: 1}},
			PaidAmount:  decimal.NewFromInt(paid),
			PaymentMode: "CASH",
		})
		require.NoError(t, err)
	}

	engine, err := router.New(router.Config{
		ServiceName:    "agrosupply-ledger",
		CORS:           middleware.DefaultCORSConfig(),
		MaxBodySize:    1 << 20,
		RequestTimeout: 10 * time.Second,
		IdempotencyTTL: time.Hour,
	}, router.Dependencies{Idempotency: stores.Idempotency}, router.Handlers{
		Bills:        handler.NewBillHandler(l.bills),
		Installments: handler.NewInstallmentHandler(l.installments, l.bulk),
		Batches:      handler.NewBatchHandler(l.batches),
		Health:       handler.NewHealthHandler(l.db, stores.Backend),
	})
	require.NoError(t, err)

	serve := func(method, path, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(middleware.IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	w := serve(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"cache":"redis"`)

	w = serve(http.MethodGet, "/api/v1/payments/history/"+customer.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"pending_amount":"1500"`)

	body := `{"customer_id":"` + customer.String() + `","amount":"1000","payment_mode":"CASH"}`
	w = serve(http.MethodPost, "/api/v1/installment/all/pay", body, "counter-2-1101")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(http.MethodPost, "/api/v1/installment/all/pay", body, "counter-2-1101")
	assert.Equal(t, http.StatusConflict, w.Code, "replayed key is refused")

	w = serve(http.MethodGet, "/api/v1/payments/history/"+customer.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending_amount":"500"`, "history cache was invalidated by the payment")
}
