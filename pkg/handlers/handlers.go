package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldworks/event-scheduler-go/pkg/approval"
	"github.com/fieldworks/event-scheduler-go/pkg/auth"
	"github.com/fieldworks/event-scheduler-go/pkg/config"
	"github.com/fieldworks/event-scheduler-go/pkg/engine"
	"github.com/fieldworks/event-scheduler-go/pkg/models"
	"github.com/fieldworks/event-scheduler-go/pkg/rotation"
	"github.com/fieldworks/event-scheduler-go/pkg/store"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB        *gorm.DB
	Store     *store.Store
	Engine    *engine.Engine
	Approval  *approval.Service
	Rotations *rotation.Manager
	Cfg       *config.Config
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Strip "Bearer " if present
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for scheduler routes using HMAC
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		userID, err := auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		// Fetch or create the key record to track last use
		var apiKey models.APIKey
		h.DB.Where(models.APIKey{Key: key}).FirstOrCreate(&apiKey, models.APIKey{
			Key:  key,
			Name: userID,
		})
		now := time.Now()
		apiKey.LastUsed = &now
		h.DB.Save(&apiKey)

		c.Set("apiKey", &apiKey)
		c.Set("userID", userID)
		c.Next()
	}
}

// StartRun triggers a manual scheduling run
func (h *Handler) StartRun(c *gin.Context) {
	run, err := h.Engine.Run(c.Request.Context(), models.RunManual)
	if err != nil {
		if errors.Is(err, store.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "A run is already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns returns recent runs, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns one run with its proposals
func (h *Handler) GetRun(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := h.Store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// StaleRuns lists runs stuck in status running past the configured cutoff
func (h *Handler) StaleRuns(c *gin.Context) {
	runs, err := h.Store.StaleRuns(c.Request.Context(), h.Cfg.StaleRunAfter, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// DismissRun marks a stuck running run as crashed
func (h *Handler) DismissRun(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := h.Store.DismissRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ApproveRun approves a completed run and submits its proposals
func (h *Handler) ApproveRun(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := h.Approval.ApproveRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		if errors.Is(err, approval.ErrNotApprovable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// EditProposal reassigns a proposal before approval
func (h *Handler) EditProposal(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}

	var req struct {
		EmployeeID uint      `json:"employee_id" binding:"required"`
		StartsAt   time.Time `json:"starts_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prop, err := h.Approval.EditProposal(c.Request.Context(), id, req.EmployeeID, req.StartsAt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Proposal not found"})
			return
		}
		if errors.Is(err, approval.ErrNotEditable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prop)
}

// RetrySubmission re-attempts a single failed submission
func (h *Handler) RetrySubmission(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}
	prop, err := h.Approval.RetrySubmission(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Proposal not found"})
			return
		}
		if errors.Is(err, approval.ErrNotRetryable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		// Submission failed again; the proposal records the error.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "proposal": prop})
		return
	}
	c.JSON(http.StatusOK, prop)
}

// CoreAction applies an external change to a committed core assignment
func (h *Handler) CoreAction(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignment id"})
		return
	}

	var req struct {
		Action      string    `json:"action" binding:"required"`
		StartsAt    time.Time `json:"starts_at"`
		ExternalRef string    `json:"external_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.Engine.ApplyCoreAction(c.Request.Context(), id, engine.CoreAction(req.Action), req.StartsAt, req.ExternalRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Assignment not found"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Action applied"})
}

// UpsertRotation sets the standing employee for a weekday rotation
func (h *Handler) UpsertRotation(c *gin.Context) {
	var req struct {
		Weekday    int                 `json:"weekday"`
		Type       models.RotationType `json:"type" binding:"required"`
		EmployeeID uint                `json:"employee_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Rotations.UpsertAssignment(c.Request.Context(), req.Weekday, req.Type, req.EmployeeID); err != nil {
		if errors.Is(err, rotation.ErrInvalidWeekday) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rotation updated"})
}

// AddRotationException records a one-off override for an exact date
func (h *Handler) AddRotationException(c *gin.Context) {
	var req struct {
		Date       time.Time           `json:"date" binding:"required"`
		Type       models.RotationType `json:"type" binding:"required"`
		EmployeeID uint                `json:"employee_id" binding:"required"`
		Reason     string              `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Rotations.AddException(c.Request.Context(), req.Date, req.Type, req.EmployeeID, req.Reason); err != nil {
		if errors.Is(err, rotation.ErrDuplicateException) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Exception recorded"})
}

// Login authenticates an admin and returns a JWT
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.AdminUser
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey creates a new API key using the HMAC strategy
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	// Generate key using HMAC
	key := auth.GenerateHMACKey(req.Name)

	// Create preview (e.g., sk_...****)
	preview := ""
	if len(key) > 8 {
		preview = key[:3] + "..." + key[len(key)-4:]
	} else {
		preview = "****"
	}

	apiKey := models.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: preview,
	}

	if err := h.DB.Create(&apiKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create key record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name": req.Name,
		"key":  key,
	})
}

// ListKeys returns all API keys
func (h *Handler) ListKeys(c *gin.Context) {
	var keys []models.APIKey
	h.DB.Find(&keys)
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	id := c.Param("id")
	if err := h.DB.Delete(&models.APIKey{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

func paramID(c *gin.Context, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
