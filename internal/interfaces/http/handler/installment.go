package handler

import (
	billingapp "github.com/agrosupply/backend/internal/application/billing"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// InstallmentHandler serves payments recorded against bills
type InstallmentHandler struct {
	BaseHandler
	installments *billingapp.InstallmentService
	bulk         *billingapp.BulkPaymentService
}

// NewInstallmentHandler creates a new InstallmentHandler
func NewInstallmentHandler(installments *billingapp.InstallmentService, bulk *billingapp.BulkPaymentService) *InstallmentHandler {
	return &InstallmentHandler{installments: installments, bulk: bulk}
}

// Create godoc
// @ID           createInstallment
// @Summary      Record a payment against a bill
// @Tags         installment
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client key for safe retries"
// @Param        request body billingapp.AddInstallmentRequest true "Payment"
// @Success      201 {object} dto.Response{data=billingapp.InstallmentResult}
// @Failure      422 {object} dto.Response "EXCEEDS_BALANCE"
// @Failure      423 {object} dto.Response "BLOCKED"
// @Router       /installment/create [post]
func (h *InstallmentHandler) Create(c *gin.Context) {
	var req billingapp.AddInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.installments.AddInstallment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// PayAll godoc
// @ID           payAllPending
// @Summary      Spread one payment over every open bill of a customer
// @Description  Oldest bill first. Bills settled before a failure stay settled; the error
// @Description  details then carry the partial result and the unallocated amount.
// @Tags         installment
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client key for safe retries"
// @Param        request body billingapp.BulkPaymentRequest true "Payment"
// @Success      201 {object} dto.Response{data=billingapp.BulkPaymentResponse}
// @Failure      422 {object} dto.Response "NO_PENDING_BALANCE"
// @Router       /installment/all/pay [post]
func (h *InstallmentHandler) PayAll(c *gin.Context) {
	var req billingapp.BulkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.bulk.PayAcrossOpenBills(c.Request.Context(), req)
	if err != nil && result != nil {
		h.partialBulkPayment(c, result, err)
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// partialBulkPayment answers a bulk payment that stopped part way. The
// status follows the error that stopped it; the details say what was applied.
func (h *InstallmentHandler) partialBulkPayment(c *gin.Context, result *billingapp.BulkPaymentResponse, err error) {
	if len(result.Allocations) > 0 {
		c.Set(middleware.PartiallyAppliedKey, true)
	}
	code, message := dto.CodeInternal, "bulk payment stopped before completion"
	if domainErr := asDomainError(err); domainErr != nil {
		code, message = domainErr.Code, domainErr.Message
	} else {
		h.logInternal(c, err)
	}
	h.Error(c, code, message, gin.H{"result": result})
}

// Update godoc
// @ID           updateInstallment
// @Summary      Revise a recorded payment
// @Tags         installment
// @Accept       json
// @Produce      json
// @Param        id path string true "Installment ID"
// @Param        request body billingapp.UpdateInstallmentRequest true "Revision"
// @Success      200 {object} dto.Response{data=billingapp.InstallmentResult}
// @Router       /installment/update/{id} [put]
func (h *InstallmentHandler) Update(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req billingapp.UpdateInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.installments.UpdateInstallment(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete godoc
// @ID           deleteInstallment
// @Summary      Delete a payment and re-derive the bill balance
// @Tags         installment
// @Param        id path string true "Installment ID"
// @Success      200 {object} dto.Response{data=billingapp.BillResponse}
// @Router       /installment/delete/{id} [delete]
func (h *InstallmentHandler) Delete(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	bill, err := h.installments.DeleteInstallment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// ListByBill godoc
// @ID           listInstallmentsOfBill
// @Summary      Payments recorded against a bill
// @Tags         installment
// @Param        billId path string true "Bill ID"
// @Success      200 {object} dto.Response{data=[]billingapp.InstallmentResponse}
// @Router       /installment/bill/{billId} [get]
func (h *InstallmentHandler) ListByBill(c *gin.Context) {
	billID, ok := h.pathUUID(c, "billId")
	if !ok {
		return
	}
	installments, err := h.installments.ListByBill(c.Request.Context(), billID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, installments)
}

// Block godoc
// @ID           blockInstallment
// @Summary      Freeze a payment
// @Tags         installment
// @Param        id path string true "Installment ID"
// @Success      200 {object} dto.Response{data=billingapp.InstallmentResponse}
// @Router       /installment/{id}/block [post]
func (h *InstallmentHandler) Block(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	installment, err := h.installments.BlockInstallment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, installment)
}

// Unblock godoc
// @ID           unblockInstallment
// @Summary      Reactivate a blocked payment
// @Tags         installment
// @Param        id path string true "Installment ID"
// @Success      200 {object} dto.Response{data=billingapp.InstallmentResponse}
// @Router       /installment/{id}/unblock [post]
func (h *InstallmentHandler) Unblock(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	installment, err := h.installments.UnblockInstallment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, installment)
}
