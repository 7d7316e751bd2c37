package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/domain/models"
	"github.com/mamadbah2/balsam/internal/service/reporting"
)

// InventoryService is the drug list the station edits.
type InventoryService interface {
	Load(ctx context.Context) error
	Drugs() []models.Drug
	Get(id string) (models.Drug, bool)
	Create(ctx context.Context, in models.DrugInput) (models.Drug, error)
	Update(ctx context.Context, id string, in models.DrugInput) (models.Drug, error)
	Delete(ctx context.Context, id string, confirmed bool) error
}

// Reporter summarizes the inventory.
type Reporter interface {
	Summarize(drugs []models.Drug, now time.Time) reporting.Summary
}

// InventoryHandler exposes the drug list over HTTP.
type InventoryHandler struct {
	svc      InventoryService
	reporter Reporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewInventoryHandler constructs the HTTP handler adapter.
func NewInventoryHandler(svc InventoryService, reporter Reporter, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{svc: svc, reporter: reporter, logger: logger, now: time.Now}
}

// List returns the current drug list.
func (h *InventoryHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"drugs": h.svc.Drugs()})
}

// Get returns one drug.
func (h *InventoryHandler) Get(c *gin.Context) {
	drug, ok := h.svc.Get(c.Param("id"))
	if !ok {
		respondError(c, h.logger, "drug lookup failed", models.ErrDrugNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drug": drug})
}

// Refresh reloads the list from the backend.
func (h *InventoryHandler) Refresh(c *gin.Context) {
	if err := h.svc.Load(c.Request.Context()); err != nil {
		respondError(c, h.logger, "failed refreshing drugs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drugs": h.svc.Drugs()})
}

// Create adds a drug from the submitted form values.
func (h *InventoryHandler) Create(c *gin.Context) {
	var in models.DrugInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid drug payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	drug, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "failed creating drug", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"drug": drug})
}

// Update edits a drug. Fields missing from the body keep their current value.
func (h *InventoryHandler) Update(c *gin.Context) {
	id := c.Param("id")
	current, ok := h.svc.Get(id)
	if !ok {
		respondError(c, h.logger, "failed updating drug", models.ErrDrugNotFound)
		return
	}

	in := models.InputFromDrug(current)
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid drug payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	drug, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, "failed updating drug", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drug": drug})
}

// Delete removes a drug. The confirm query parameter must be true.
func (h *InventoryHandler) Delete(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), confirmed); err != nil {
		respondError(c, h.logger, "failed deleting drug", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Report returns a stock summary of the current list.
func (h *InventoryHandler) Report(c *gin.Context) {
	c.JSON(http.StatusOK, h.reporter.Summarize(h.svc.Drugs(), h.now()))
}
