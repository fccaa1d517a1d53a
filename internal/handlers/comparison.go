package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/requestdata"
	"github.com/formlens/formlens-backend/internal/services"
	"github.com/formlens/formlens-backend/internal/types"
)

type ComparisonHandler struct {
	log               *logger.Logger
	comparisonService services.ComparisonService
}

func NewComparisonHandler(log *logger.Logger, comparisonService services.ComparisonService) *ComparisonHandler {
	return &ComparisonHandler{
		log:               log.With("handler", "ComparisonHandler"),
		comparisonService: comparisonService,
	}
}

type analyzeRequest struct {
	SourceVersionID uuid.UUID `json:"source_version_id" binding:"required"`
	TargetVersionID uuid.UUID `json:"target_version_id" binding:"required"`
}

// Analyze computes a comparison without persisting it. The returned payload
// is exactly what Ingest accepts back.
func (h *ComparisonHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.comparisonService.Analyze(c.Request.Context(), req.SourceVersionID, req.TargetVersionID)
	if err != nil {
		h.log.Error("Analyze failed", "error", err,
			"source_version_id", req.SourceVersionID,
			"target_version_id", req.TargetVersionID,
		)
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

type ingestRequest struct {
	types.ComparisonResult
	Force bool `json:"force"`
}

// Ingest persists an analyzed comparison. Unless force is set, a prior
// comparison of the same pair (in either direction) is answered with 409
// and the existing id; the check is advisory, so two racing ingests can
// still both land, which is accepted.
func (h *ComparisonHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()

	if !req.Force {
		dup, err := h.comparisonService.CheckDuplicate(ctx, req.SourceVersionID, req.TargetVersionID)
		if err != nil {
			h.log.Error("Ingest duplicate check failed", "error", err)
			RespondAPIError(c, err)
			return
		}
		if dup.Exists {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"message": "comparison already exists for this version pair",
					"code":    "comparison_exists",
				},
				"existing_comparison_id": dup.ComparisonID,
			})
			return
		}
	}

	var createdBy *uuid.UUID
	if rd := requestdata.GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
		userID := rd.UserID
		createdBy = &userID
	}

	id, err := h.comparisonService.Save(ctx, &req.ComparisonResult, createdBy)
	if err != nil {
		h.log.Error("Ingest failed", "error", err,
			"source_version_id", req.SourceVersionID,
			"target_version_id", req.TargetVersionID,
		)
		RespondAPIError(c, err)
		return
	}
	RespondCreated(c, gin.H{"id": id})
}

func (h *ComparisonHandler) Get(c *gin.Context) {
	comparisonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.comparisonService.Get(c.Request.Context(), comparisonID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

type listQuery struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
	Search    string `form:"search"`
}

func (h *ComparisonHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.comparisonService.List(c.Request.Context(), services.ComparisonListQuery{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Search:    q.Search,
	})
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"items":       result.Items,
		"total":       result.Total,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_pages": result.TotalPages,
	})
}

func (h *ComparisonHandler) Check(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Query("source_version_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	targetID, err := uuid.Parse(c.Query("target_version_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dup, err := h.comparisonService.CheckDuplicate(c.Request.Context(), sourceID, targetID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, dup)
}

func (h *ComparisonHandler) Delete(c *gin.Context) {
	comparisonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.comparisonService.Delete(c.Request.Context(), comparisonID); err != nil {
		RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
