package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/gin-gonic/gin"
)

type sessionRequestPayload struct {
	UserName string `json:"user_name"`
}

type clientInfoPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *httpHandler) handleDevice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"device_id": h.identity.DeviceID(c.Request.Context())})
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	session, ok := h.identity.CurrentSession(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"logged_in": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_in": true, "session": session})
}

func (h *httpHandler) handleCreateSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid session payload")
		return
	}
	session, err := h.identity.CreateSession(c.Request.Context(), request.UserName, "")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *httpHandler) handleClearSession(c *gin.Context) {
	if err := h.identity.ClearSession(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetEmailSettings(c *gin.Context) {
	settings, err := h.settings.Load(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *httpHandler) handleSaveEmailSettings(c *gin.Context) {
	var request emails.Settings
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid settings payload")
		return
	}
	saved, err := h.settings.Save(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *httpHandler) handleValidateClientInfo(c *gin.Context) {
	var request clientInfoPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid client info payload")
		return
	}
	problems := selection.ValidateClientInfo(request.Name, request.Email, request.Phone)
	c.JSON(http.StatusOK, gin.H{"valid": len(problems) == 0, "errors": problems})
}
