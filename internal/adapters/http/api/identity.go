package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	DisplayName string `json:"display_name"`
	Cohort      string `json:"cohort"`
}

type renameRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// IdentityHandler serves /identity.
type IdentityHandler struct {
	deps IdentityDependencies
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(deps IdentityDependencies) *IdentityHandler {
	return &IdentityHandler{deps: deps}
}

// HandleRegister handles POST /identity. The body is optional.
func (h *IdentityHandler) HandleRegister(c *gin.Context) {
	var req registerRequest
	if err := bindOptionalJSON(c, "api.register", &req); err != nil {
		writeError(c, err)
		return
	}
	id, err := h.deps.Register(c.Request.Context(), userID(c), req.DisplayName, req.Cohort)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

// HandleGet handles GET /identity.
func (h *IdentityHandler) HandleGet(c *gin.Context) {
	id, err := h.deps.Identity(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

// HandleRename handles PUT /identity/name.
func (h *IdentityHandler) HandleRename(c *gin.Context) {
	var req renameRequest
	if err := bindJSON(c, "api.rename", &req); err != nil {
		writeError(c, err)
		return
	}
	id, err := h.deps.Rename(c.Request.Context(), userID(c), req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}
