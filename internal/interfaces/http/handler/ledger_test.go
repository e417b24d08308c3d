package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	billingapp "github.com/agrosupply/backend/internal/application/billing"
	inventoryapp "github.com/agrosupply/backend/internal/application/inventory"
	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/infrastructure/persistence"
	"github.com/agrosupply/backend/internal/infrastructure/persistence/models"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ledgerAPI runs the real services over an in-memory sqlite database
type ledgerAPI struct {
	engine   *gin.Engine
	products *persistence.GormProductRepository
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"request_id"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
	Meta *dto.Meta `json:"meta"`
}

func newLedgerAPI(t *testing.T) *ledgerAPI {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())

	db, err := persistence.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.DB.AutoMigrate(models.All()...))

	productRepo := persistence.NewGormProductRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	billRepo := persistence.NewGormBillRepository(db.DB)
	installmentRepo := persistence.NewGormInstallmentRepository(db.DB)
	sequence := billing.NewYearlySequence(persistence.NewGormSequenceRepository(db.DB))
	billingScope := persistence.NewGormBillingTransactionScope(db.DB)

	batches := inventoryapp.NewBatchService(batchRepo, productRepo, persistence.NewGormInventoryTransactionScope(db.DB))
	bills := billingapp.NewBillService(billRepo, installmentRepo, productRepo, batches, sequence, billingScope)
	installments := billingapp.NewInstallmentService(billRepo, installmentRepo, billingScope)
	bulk := billingapp.NewBulkPaymentService(billRepo, installmentRepo, sequence, billingScope)

	batchH := NewBatchHandler(batches)
	billH := NewBillHandler(bills)
	installmentH := NewInstallmentHandler(installments, bulk)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.GET("/health", NewHealthHandler(db, "memory").Check)
	api := engine.Group("/api/v1")

	api.POST("/batch/create", batchH.Create)
	api.GET("/batch/list", batchH.List)
	api.POST("/batch/sell", batchH.Sell)
	api.POST("/batch/sell-from-oldest", batchH.SellFromOldest)
	api.GET("/batch/:id", batchH.Get)
	api.POST("/batch/:id/expire", batchH.Expire)
	api.POST("/batch/:id/block", batchH.Block)
	api.POST("/batch/:id/unblock", batchH.Unblock)
	api.DELETE("/batch/delete/:id", batchH.Delete)

	api.POST("/payment/create", billH.Create)
	api.GET("/payment/list", billH.List)
	api.GET("/payment/:id", billH.Get)
	api.PUT("/payment/update/:id", billH.Update)
	api.DELETE("/payment/delete/:id", billH.Delete)
	api.POST("/payment/:id/block", billH.Block)
	api.POST("/payment/:id/unblock", billH.Unblock)
	api.GET("/payments/history/:customerId", billH.History)

	api.POST("/installment/create", installmentH.Create)
	api.POST("/installment/all/pay", installmentH.PayAll)
	api.PUT("/installment/update/:id", installmentH.Update)
	api.DELETE("/installment/delete/:id", installmentH.Delete)
	api.GET("/installment/bill/:billId", installmentH.ListByBill)
	api.POST("/installment/:id/block", installmentH.Block)
	api.POST("/installment/:id/unblock", installmentH.Unblock)

	return &ledgerAPI{engine: engine, products: productRepo}
}

// product stores an active product priced at price
func (a *ledgerAPI) product(t *testing.T, name string, price int64) uuid.UUID {
	t.Helper()
	p, err := inventory.NewProduct(name, "", decimal.NewFromInt(price))
	require.NoError(t, err)
	require.NoError(t, a.products.Save(context.Background(), p))
	return p.ID
}

func (a *ledgerAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

// decode unmarshals raw into a fresh T
func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (a *ledgerAPI) createBatch(t *testing.T, productID uuid.UUID, number string, stock int64, receivedAt string) inventoryapp.BatchResponse {
	t.Helper()
	body := gin.H{"product_id": productID, "batch_number": number, "stock": stock}
	if receivedAt != "" {
		body["received_at"] = receivedAt
	}
	w, env := a.do(t, http.MethodPost, "/api/v1/batch/create", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[inventoryapp.BatchResponse](t, env.Data)
}

func (a *ledgerAPI) createBill(t *testing.T, customerID, productID uuid.UUID, quantity int64, paid string) billingapp.BillResponse {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/payment/create", gin.H{
		"customer_id":   customerID,
		"customer_name": "Sunita Jadhav",
		"items":         []gin.H{{"product_id": productID, "quantity": quantity}},
		"paid_amount":   paid,
		"payment_mode":  "CASH",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[billingapp.BillResponse](t, env.Data)
}
