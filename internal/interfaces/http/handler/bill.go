package handler

import (
	billingapp "github.com/agrosupply/backend/internal/application/billing"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// BillHandler serves bills (recorded sales) and customer purchase history
type BillHandler struct {
	BaseHandler
	bills *billingapp.BillService
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(bills *billingapp.BillService) *BillHandler {
	return &BillHandler{bills: bills}
}

// Create godoc
// @ID           createBill
// @Summary      Record a sale
// @Description  Creates a numbered bill, takes stock oldest batch first and records any initial payment
// @Tags         payment
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client key for safe retries"
// @Param        request body billingapp.CreateBillRequest true "Bill"
// @Success      201 {object} dto.Response{data=billingapp.BillResponse}
// @Failure      400 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /payment/create [post]
func (h *BillHandler) Create(c *gin.Context) {
	var req billingapp.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	bill, err := h.bills.CreateBill(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, bill)
}

// List godoc
// @ID           listBills
// @Summary      List bills
// @Tags         payment
// @Produce      json
// @Param        page query int false "Page" default(1)
// @Param        limit query int false "Page size" default(20)
// @Param        searchQuery query string false "Bill number or customer name"
// @Param        customerId query string false "Customer ID"
// @Param        status query string false "UNPAID, PARTIAL or PAID"
// @Param        paymentMode query string false "Payment mode"
// @Param        year query int false "Billing year"
// @Success      200 {object} dto.Response{data=[]billingapp.BillResponse}
// @Router       /payment/list [get]
func (h *BillHandler) List(c *gin.Context) {
	var filter billingapp.BillListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	customerID, ok := h.queryUUID(c, "customerId")
	if !ok {
		return
	}
	filter.CustomerID = customerID

	bills, total, err := h.bills.ListBills(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page := shared.Filter{Page: filter.Page, PageSize: filter.Limit}.Normalize()
	h.SuccessWithMeta(c, bills, total, page.Page, page.PageSize)
}

// Get godoc
// @ID           getBill
// @Summary      Get a bill with its installments
// @Tags         payment
// @Produce      json
// @Param        id path string true "Bill ID"
// @Success      200 {object} dto.Response{data=billingapp.BillResponse}
// @Failure      404 {object} dto.Response
// @Router       /payment/{id} [get]
func (h *BillHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	bill, err := h.bills.GetBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Update godoc
// @ID           updateBill
// @Summary      Update bill details
// @Description  Changes payment mode, customer name or remark. Amounts follow the installments.
// @Tags         payment
// @Accept       json
// @Produce      json
// @Param        id path string true "Bill ID"
// @Param        request body billingapp.UpdateBillRequest true "Changes"
// @Success      200 {object} dto.Response{data=billingapp.BillResponse}
// @Router       /payment/update/{id} [put]
func (h *BillHandler) Update(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req billingapp.UpdateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	bill, err := h.bills.UpdateBill(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Delete godoc
// @ID           deleteBill
// @Summary      Delete a bill
// @Tags         payment
// @Param        id path string true "Bill ID"
// @Success      200 {object} dto.Response
// @Router       /payment/delete/{id} [delete]
func (h *BillHandler) Delete(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.bills.DeleteBill(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"id": id, "deleted": true})
}

// Block godoc
// @ID           blockBill
// @Summary      Freeze a bill against payments
// @Tags         payment
// @Param        id path string true "Bill ID"
// @Success      200 {object} dto.Response{data=billingapp.BillResponse}
// @Router       /payment/{id}/block [post]
func (h *BillHandler) Block(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	bill, err := h.bills.BlockBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Unblock godoc
// @ID           unblockBill
// @Summary      Reactivate a blocked bill
// @Tags         payment
// @Param        id path string true "Bill ID"
// @Success      200 {object} dto.Response{data=billingapp.BillResponse}
// @Router       /payment/{id}/unblock [post]
func (h *BillHandler) Unblock(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	bill, err := h.bills.UnblockBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// History godoc
// @ID           customerHistory
// @Summary      Customer purchase history
// @Description  Every non-deleted bill of the customer with lifetime totals
// @Tags         payment
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Success      200 {object} dto.Response{data=billingapp.CustomerHistoryResponse}
// @Router       /payments/history/{customerId} [get]
func (h *BillHandler) History(c *gin.Context) {
	customerID, ok := h.pathUUID(c, "customerId")
	if !ok {
		return
	}
	history, err := h.bills.CustomerHistory(c.Request.Context(), customerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, history)
}
