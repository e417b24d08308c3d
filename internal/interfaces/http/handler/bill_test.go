package handler

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	billingapp "github.com/agrosupply/backend/internal/application/billing"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillHandler_Create(t *testing.T) {
	api := newLedgerAPI(t)
	urea := api.product(t, "Urea 45kg", 250)
	api.createBatch(t, urea, "U-01", 10, "")
	customer := uuid.New()

	bill := api.createBill(t, customer, urea, 2, "100")
	assert.Equal(t, strconv.Itoa(time.Now().Year())+"-0001", bill.BillNumber)
	assert.True(t, decimal.NewFromInt(500).Equal(bill.TotalAmount))
	assert.True(t, decimal.NewFromInt(100).Equal(bill.PaidAmount))
	assert.True(t, decimal.NewFromInt(400).Equal(bill.PendingAmount))
	assert.Equal(t, "PARTIAL", bill.Status)

	second := api.createBill(t, customer, urea, 1, "0")
	assert.Equal(t, strconv.Itoa(time.Now().Year())+"-0002", second.BillNumber)
	assert.Equal(t, "UNPAID", second.Status)

	t.Run("more than the stock on hand", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/payment/create", gin.H{
			"customer_id":  customer,
			"items":        []gin.H{{"product_id": urea, "quantity": 8}},
			"payment_mode": "CASH",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.CodeInsufficientStock, env.Error.Code)
	})

	t.Run("paid above total", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/payment/create", gin.H{
			"customer_id":  customer,
			"items":        []gin.H{{"product_id": urea, "quantity": 1}},
			"paid_amount":  "300",
			"payment_mode": "UPI",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.CodeExceedsBalance, env.Error.Code)
	})

	t.Run("unknown payment mode", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/payment/create", gin.H{
			"customer_id":  customer,
			"items":        []gin.H{{"product_id": urea, "quantity": 1}},
			"payment_mode": "BARTER",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.CodeValidation, env.Error.Code)
	})

	t.Run("no items", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/payment/create", gin.H{
			"customer_id":  customer,
			"items":        []gin.H{},
			"payment_mode": "CASH",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		details := decode[[]dto.ValidationDetail](t, env.Error.Details)
		require.Len(t, details, 1)
		assert.Equal(t, "items", details[0].Field)
	})
}

func TestBillHandler_ListGetUpdate(t *testing.T) {
	api := newLedgerAPI(t)
	urea := api.product(t, "Urea 45kg", 250)
	api.createBatch(t, urea, "U-01", 20, "")
	ramesh, sunita := uuid.New(), uuid.New()
	first := api.createBill(t, ramesh, urea, 1, "250")
	api.createBill(t, ramesh, urea, 1, "0")
	api.createBill(t, sunita, urea, 1, "0")

	w, env := api.do(t, http.MethodGet, "/api/v1/payment/list?customerId="+ramesh.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(2), env.Meta.Total)
	assert.Equal(t, 1, env.Meta.Page)

	_, env = api.do(t, http.MethodGet, "/api/v1/payment/list?status=PAID", nil)
	bills := decode[[]billingapp.BillResponse](t, env.Data)
	require.Len(t, bills, 1)
	assert.Equal(t, first.ID, bills[0].ID)

	w, _ = api.do(t, http.MethodGet, "/api/v1/payment/list?status=SETTLED", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodPut, "/api/v1/payment/update/"+first.ID.String(), gin.H{"remark": "collected at counter"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "collected at counter", decode[billingapp.BillResponse](t, env.Data).Remark)

	w, env = api.do(t, http.MethodGet, "/api/v1/payment/"+first.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[billingapp.BillResponse](t, env.Data)
	assert.Equal(t, "collected at counter", got.Remark)
	assert.Len(t, got.Installments, 1, "the initial payment is recorded as an installment")

	w, env = api.do(t, http.MethodGet, "/api/v1/payment/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.CodeNotFound, env.Error.Code)
}

func TestBillHandler_BlockAndDelete(t *testing.T) {
	api := newLedgerAPI(t)
	urea := api.product(t, "Urea 45kg", 250)
	api.createBatch(t, urea, "U-01", 10, "")
	customer := uuid.New()
	bill := api.createBill(t, customer, urea, 1, "0")

	w, _ := api.do(t, http.MethodPost, "/api/v1/payment/"+bill.ID.String()+"/block", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := api.do(t, http.MethodPost, "/api/v1/installment/create", gin.H{
		"bill_number":  bill.BillNumber,
		"customer_id":  customer,
		"amount":       "50",
		"payment_mode": "CASH",
	})
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, dto.CodeBlocked, env.Error.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/payment/"+bill.ID.String()+"/unblock", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(t, http.MethodDelete, "/api/v1/payment/delete/"+bill.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+bill.ID.String()+`","deleted":true}`, string(env.Data))

	w, _ = api.do(t, http.MethodGet, "/api/v1/payment/"+bill.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBillHandler_History(t *testing.T) {
	api := newLedgerAPI(t)
	urea := api.product(t, "Urea 45kg", 250)
	api.createBatch(t, urea, "U-01", 10, "")
	customer := uuid.New()
	api.createBill(t, customer, urea, 2, "500")
	api.createBill(t, customer, urea, 1, "100")

	w, env := api.do(t, http.MethodGet, "/api/v1/payments/history/"+customer.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	history := decode[billingapp.CustomerHistoryResponse](t, env.Data)
	assert.Equal(t, 2, history.BillCount)
	assert.True(t, decimal.NewFromInt(750).Equal(history.TotalAmount))
	assert.True(t, decimal.NewFromInt(600).Equal(history.PaidAmount))
	assert.True(t, decimal.NewFromInt(150).Equal(history.PendingAmount))

	w, _ = api.do(t, http.MethodGet, "/api/v1/payments/history/someone", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
