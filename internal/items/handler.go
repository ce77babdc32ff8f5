package items

import (
	"net/http"
	"strconv"

	"uph_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler serves the annotation endpoints.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// GetItem returns a run's annotation, or null when none was entered yet.
func (h *Handler) GetItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid item id", nil)
		return
	}

	item, err := h.repo.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, item)
}

// PatchItem applies a partial annotation update. The caller's account name
// comes in as ?userName=; the display part is stored alongside each field
// it touched.
func (h *Handler) PatchItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid item id", nil)
		return
	}

	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid item patch", err.Error())
		return
	}

	displayName := ExtractDisplayName(c.Query("userName"))

	item, err := h.repo.UpdatePartial(c.Request.Context(), id, patch, displayName)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, item)
}
