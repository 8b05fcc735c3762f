package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/buildtall-systems/vendfleet/internal/db"
	"github.com/buildtall-systems/vendfleet/internal/orchestrator"
)

type handlers struct {
	orc *orchestrator.Orchestrator
}

type chooseProductRequest struct {
	MachineID int64 `json:"machine_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
	Count     int   `json:"count" binding:"required,min=1"`
	Coins     int   `json:"coins" binding:"required,min=1"`
}

func (h *handlers) startWork(c *gin.Context) {
	machine, err := h.orc.StartWork(c.Request.Context())
	if errors.Is(err, db.ErrNoIdleMachine) {
		c.JSON(http.StatusConflict, gin.H{"error": "No idle vending machine available."})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Machine selected and moved to choose_product state.",
		"machine": machine,
	})
}

func (h *handlers) chooseProduct(c *gin.Context) {
	var req chooseProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	machine, product, err := h.orc.ChooseProduct(c.Request.Context(), req.MachineID, req.ProductID, req.Count, req.Coins)

	var stockErr *db.InsufficientStockError
	switch {
	case errors.Is(err, orchestrator.ErrPaymentMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Coins must equal the number of products (1 coin per item)."})
		return
	case errors.Is(err, db.ErrMachineNotChoosing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Machine is not in choose_product state."})
		return
	case errors.As(err, &stockErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Insufficient stock. Available count: %d", stockErr.Available)})
		return
	case errors.Is(err, db.ErrMachineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found."})
		return
	case errors.Is(err, db.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found."})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product selected. Machine is now processing.",
		"machine": machine,
		"product": product,
	})
}

func (h *handlers) resetMachine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found."})
		return
	}

	machine, err := h.orc.Reset(c.Request.Context(), id)
	switch {
	case errors.Is(err, db.ErrMachineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found."})
		return
	case errors.Is(err, db.ErrMachineAlreadyIdle):
		c.JSON(http.StatusConflict, gin.H{"error": "Machine is already idle."})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Machine has been reset to idle state.",
		"machine": machine,
	})
}

func internalError(c *gin.Context, err error) {
	zap.S().Errorw("internal server error", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
}
