package analyses

import (
	"net/http"
	"strconv"

	"uph_backend/internal/sync/domain"
	syncrepo "uph_backend/internal/sync/repository"
	"uph_backend/platform/apperr"
	"uph_backend/platform/httpkit"
	"uph_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// ListRequest carries the listing query parameters.
type ListRequest struct {
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	Model      string `form:"model"`
	Source     string `form:"source" validate:"omitempty,oneof=cs sz"`
	LinePrefix string `form:"line_prefix"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	Size       int    `form:"size" validate:"omitempty,min=1,max=100"`
	SortBy     string `form:"sort_by"`
	SortDir    string `form:"sort_dir" validate:"omitempty,oneof=asc desc"`
}

// BucketSourceDetail is one source's contribution to a bucket drill-down.
type BucketSourceDetail struct {
	Items   []domain.QuantitySample `json:"items"`
	Summary *domain.BucketDiff      `json:"summary"`
}

// BucketDetail is the live per-source view of one bucket of one run.
type BucketDetail struct {
	Slot    string                        `json:"slot"`
	Sources map[string]BucketSourceDetail `json:"sources"`
}

// Handler serves the analyses read endpoints.
type Handler struct {
	repo    *Repository
	sources []syncrepo.SourceReader
	val     *validator.Validator
}

func NewHandler(repo *Repository, sources []syncrepo.SourceReader, val *validator.Validator) *Handler {
	return &Handler{repo: repo, sources: sources, val: val}
}

// ListAnalyses returns a filtered, paged view of the reconciled records.
func (h *Handler) ListAnalyses(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid list parameters", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid list parameters", err.Error())
		return
	}

	params := ListParams{
		Model:      req.Model,
		Source:     req.Source,
		LinePrefix: req.LinePrefix,
		Page:       req.Page,
		Size:       req.Size,
		SortBy:     req.SortBy,
		SortDesc:   req.SortDir != "asc",
	}
	if req.DateFrom != "" {
		from, err := domain.ParseFrom(req.DateFrom)
		if httpkit.HandleError(c, err) {
			return
		}
		params.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := domain.ParseTo(req.DateTo)
		if httpkit.HandleError(c, err) {
			return
		}
		params.DateTo = &to
	}

	result, err := h.repo.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetAnalysisDetail returns the reconciled records for one run together with
// its responsibility annotation.
func (h *Handler) GetAnalysisDetail(c *gin.Context) {
	serial, err := strconv.ParseInt(c.Param("serial"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid serial number", nil)
		return
	}

	records, err := h.repo.GetBySerial(c.Request.Context(), serial)
	if httpkit.HandleError(c, err) {
		return
	}
	item, err := h.repo.GetItem(c.Request.Context(), serial)
	if httpkit.HandleError(c, err) {
		return
	}
	if len(records) == 0 && item == nil {
		httpkit.HandleError(c, apperr.New(apperr.KindNotFound, "no records for serial number"))
		return
	}

	httpkit.OK(c, gin.H{"analyses": records, "item": item})
}

// GetBucketDetail re-reads the raw slot-pair rows of one bucket from every
// source, so the UI can show where a stored diff came from.
func (h *Handler) GetBucketDetail(c *gin.Context) {
	serial, err := strconv.ParseInt(c.Param("serial"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid serial number", nil)
		return
	}

	bucket, ok := domain.ParseBucket(c.Query("slot"))
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "unknown bucket slot", c.Query("slot"))
		return
	}
	lo, hi, _ := domain.SlotPair(bucket)

	detail := BucketDetail{Slot: string(bucket), Sources: make(map[string]BucketSourceDetail, len(h.sources))}
	for _, src := range h.sources {
		samples, err := src.ListBucketSamples(c.Request.Context(), serial, [2]int{lo, hi})
		if httpkit.HandleError(c, err) {
			return
		}
		entry := BucketSourceDetail{Items: samples}
		if len(samples) > 0 {
			summary := domain.Summarize(bucket, samples)
			entry.Summary = &summary
		}
		if entry.Items == nil {
			entry.Items = []domain.QuantitySample{}
		}
		detail.Sources[src.Tag()] = entry
	}

	httpkit.OK(c, detail)
}
