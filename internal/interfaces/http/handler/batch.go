package handler

import (
	"context"

	inventoryapp "github.com/agrosupply/backend/internal/application/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BatchHandler serves stock lots: intake, direct and oldest-first sales, expiry
type BatchHandler struct {
	BaseHandler
	batches *inventoryapp.BatchService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batches *inventoryapp.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// Create godoc
// @ID           createBatch
// @Summary      Receive a batch
// @Tags         batch
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.CreateBatchRequest true "Batch"
// @Success      201 {object} dto.Response{data=inventoryapp.BatchResponse}
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /batch/create [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req inventoryapp.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	batch, err := h.batches.CreateBatch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, batch)
}

// List godoc
// @ID           listBatches
// @Summary      List batches
// @Tags         batch
// @Produce      json
// @Param        productId query string false "Product ID"
// @Param        includeExpired query bool false "Include expired batches"
// @Param        page query int false "Page" default(1)
// @Param        limit query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]inventoryapp.BatchResponse}
// @Router       /batch/list [get]
func (h *BatchHandler) List(c *gin.Context) {
	var filter inventoryapp.BatchListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	productID, ok := h.queryUUID(c, "productId")
	if !ok {
		return
	}
	filter.ProductID = productID

	batches, total, err := h.batches.ListBatches(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page := shared.Filter{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	h.SuccessWithMeta(c, batches, total, page.Page, page.PageSize)
}

// Get godoc
// @ID           getBatch
// @Summary      Get a batch
// @Tags         batch
// @Produce      json
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=inventoryapp.BatchResponse}
// @Failure      404 {object} dto.Response
// @Router       /batch/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Sell godoc
// @ID           sellFromBatch
// @Summary      Sell from a named batch
// @Tags         batch
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.SellFromBatchRequest true "Sale"
// @Success      200 {object} dto.Response{data=inventoryapp.SellFromBatchResponse}
// @Failure      422 {object} dto.Response
// @Failure      423 {object} dto.Response
// @Router       /batch/sell [post]
func (h *BatchHandler) Sell(c *gin.Context) {
	var req inventoryapp.SellFromBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.batches.SellFromBatch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// SellFromOldest godoc
// @ID           sellFromOldestBatches
// @Summary      Sell oldest batch first
// @Description  A shortfall is reported as 409 PARTIAL_FULFILLMENT with the allocation in error.details
// @Tags         batch
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.SellFromOldestRequest true "Sale"
// @Success      200 {object} dto.Response{data=inventoryapp.OldestFirstResponse}
// @Failure      409 {object} dto.Response
// @Router       /batch/sell-from-oldest [post]
func (h *BatchHandler) SellFromOldest(c *gin.Context) {
	var req inventoryapp.SellFromOldestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.batches.SellFromOldestBatches(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Expire godoc
// @ID           expireBatch
// @Summary      Mark a batch expired
// @Tags         batch
// @Produce      json
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=inventoryapp.BatchResponse}
// @Router       /batch/{id}/expire [post]
func (h *BatchHandler) Expire(c *gin.Context) {
	h.lifecycle(c, h.batches.MarkExpired)
}

// Block godoc
// @ID           blockBatch
// @Summary      Block a batch from sale
// @Tags         batch
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=inventoryapp.BatchResponse}
// @Router       /batch/{id}/block [post]
func (h *BatchHandler) Block(c *gin.Context) {
	h.lifecycle(c, h.batches.BlockBatch)
}

// Unblock godoc
// @ID           unblockBatch
// @Summary      Return a blocked batch to sale
// @Tags         batch
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=inventoryapp.BatchResponse}
// @Router       /batch/{id}/unblock [post]
func (h *BatchHandler) Unblock(c *gin.Context) {
	h.lifecycle(c, h.batches.UnblockBatch)
}

// Delete godoc
// @ID           deleteBatch
// @Summary      Delete a batch
// @Tags         batch
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response
// @Router       /batch/delete/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.batches.DeleteBatch(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"id": id, "deleted": true})
}

func (h *BatchHandler) lifecycle(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) (*inventoryapp.BatchResponse, error)) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	batch, err := apply(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}
