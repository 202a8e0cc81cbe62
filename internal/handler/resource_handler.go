package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/resource-hub/internal/middleware"
	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/permission"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ResourceHandler struct {
	resourceService *service.ResourceService
}

func NewResourceHandler(resourceService *service.ResourceService) *ResourceHandler {
	return &ResourceHandler{
		resourceService: resourceService,
	}
}

// ResourceResponse is the wire form of a resource. The owner is shown by email.
type ResourceResponse struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResourceResponse(r *models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		URL:         r.URL,
		Description: r.Description,
		CreatedBy:   r.CreatedBy.String(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// List returns every resource, newest first
// GET /api/resources/?search=<substring>
func (h *ResourceHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	resources, err := h.resourceService.List(c.Request.Context(), caller, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ResourceResponse, 0, len(resources))
	for i := range resources {
		out = append(out, toResourceResponse(&resources[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Create adds a resource owned by the caller
// POST /api/resources/
func (h *ResourceHandler) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	if err := h.resourceService.Authorize(caller, permission.ActionCreate); err != nil {
		respondError(c, err)
		return
	}

	in, ok := bindResourceInput(c)
	if !ok {
		return
	}

	resource, err := h.resourceService.Create(c.Request.Context(), caller, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResourceResponse(resource))
}

// Get returns a single resource
// GET /api/resources/:id/
func (h *ResourceHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	resource, err := h.resourceService.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResourceResponse(resource))
}

// Update replaces every editable field
// PUT /api/resources/:id/
func (h *ResourceHandler) Update(c *gin.Context) {
	h.update(c, false)
}

// Patch changes only the fields present in the body
// PATCH /api/resources/:id/
func (h *ResourceHandler) Patch(c *gin.Context) {
	h.update(c, true)
}

func (h *ResourceHandler) update(c *gin.Context, partial bool) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}
	if err := h.resourceService.Authorize(caller, permission.ActionUpdate); err != nil {
		respondError(c, err)
		return
	}

	in, ok := bindResourceInput(c)
	if !ok {
		return
	}

	resource, err := h.resourceService.Update(c.Request.Context(), caller, id, in, partial)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResourceResponse(resource))
}

// Delete permanently removes a resource
// DELETE /api/resources/:id/
func (h *ResourceHandler) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	if err := h.resourceService.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// callerFrom builds the service caller from the authenticated user
func callerFrom(c *gin.Context) (service.Caller, bool) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication credentials were not provided",
		})
		return service.Caller{}, false
	}
	return service.Caller{UserID: user.ID, Role: user.Role}, true
}

// resourceID parses the :id path parameter. Anything that is not a positive
// integer cannot name a resource and is reported as not found.
func resourceID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return 0, false
	}
	return id, true
}

// bindResourceInput decodes the JSON body. An empty body is an empty object.
func bindResourceInput(c *gin.Context) (service.ResourceInput, bool) {
	var in service.ResourceInput

	err := c.ShouldBindJSON(&in)
	if err == nil || errors.Is(err, io.EOF) {
		return in, true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		c.JSON(http.StatusBadRequest, gin.H{typeErr.Field: "Not a valid string."})
		return in, false
	}

	logger.Log.Warn("Resource request parsing failed",
		zap.String("ip", c.ClientIP()),
		zap.Error(err),
	)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
	return in, false
}

// respondError maps service errors to status codes
func respondError(c *gin.Context, err error) {
	var ve *service.ValidationError

	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
	case errors.Is(err, service.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ve.Fields)
	default:
		logger.Log.Error("Unhandled request error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
