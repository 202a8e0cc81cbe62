package handler

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/Baaaki/resource-hub/internal/audit"
	"github.com/Baaaki/resource-hub/internal/middleware"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 100
	msgRoleRequired   = "This field is required."
)

type AdminHandler struct {
	authService *service.AuthService
	journal     *audit.Journal
	rateLimiter *middleware.RateLimiter
}

// NewAdminHandler builds the admin endpoints. journal and rateLimiter may be
// nil, in which case the audit and ban endpoints are unavailable.
func NewAdminHandler(authService *service.AuthService, journal *audit.Journal, rateLimiter *middleware.RateLimiter) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		journal:     journal,
		rateLimiter: rateLimiter,
	}
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// GetAllUsers returns all users
// GET /api/admin/users
func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	users, err := h.authService.GetAllUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}

	c.JSON(http.StatusOK, gin.H{
		"users": out,
	})
}

// ChangeRole assigns admin, staff or user to an account
// PUT /api/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	admin, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"role": msgRoleRequired})
		return
	}

	user, err := h.authService.ChangeRole(c.Request.Context(), admin.ID, c.Param("id"), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"role": "\"" + req.Role + "\" is not a valid choice."})
		case errors.Is(err, service.ErrSelfModification):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			respondError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

// DeleteUser removes a user and every resource they created
// DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	admin, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	removed, err := h.authService.DeleteUser(c.Request.Context(), admin.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSelfModification) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "User deleted successfully",
		"resources_removed": removed,
	})
}

// GetAuditLog returns the most recent resource changes, newest first
// GET /api/admin/audit?limit=N
func (h *AdminHandler) GetAuditLog(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit journal not configured"})
		return
	}

	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"limit": "A valid integer is required."})
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
	})
}

// ListBans returns the banned IP addresses
// GET /api/admin/bans
func (h *AdminHandler) ListBans(c *gin.Context) {
	ips, err := h.rateLimiter.BannedIPs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if ips == nil {
		ips = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ips": ips})
}

// BanIP adds an address to the ban list
// PUT /api/admin/bans/:ip
func (h *AdminHandler) BanIP(c *gin.Context) {
	ip, ok := parseIP(c)
	if !ok {
		return
	}

	if err := h.rateLimiter.BanIP(c.Request.Context(), ip); err != nil {
		respondError(c, err)
		return
	}

	logger.Log.Info("IP banned",
		zap.String("ip", ip),
		zap.Any("admin_id", c.MustGet(middleware.ContextUserIDKey)),
	)
	c.Status(http.StatusNoContent)
}

// UnbanIP removes an address from the ban list
// DELETE /api/admin/bans/:ip
func (h *AdminHandler) UnbanIP(c *gin.Context) {
	ip, ok := parseIP(c)
	if !ok {
		return
	}

	if err := h.rateLimiter.UnbanIP(c.Request.Context(), ip); err != nil {
		respondError(c, err)
		return
	}

	logger.Log.Info("IP unbanned",
		zap.String("ip", ip),
		zap.Any("admin_id", c.MustGet(middleware.ContextUserIDKey)),
	)
	c.Status(http.StatusNoContent)
}

func parseIP(c *gin.Context) (string, bool) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ip": "Enter a valid IPv4 or IPv6 address."})
		return "", false
	}
	return ip.String(), true
}
