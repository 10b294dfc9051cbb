package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const welcomeText = "Welcome to the Insurance Chatbot API! 🤖"

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// GET /
func (h *HealthHandler) Welcome(c *gin.Context) {
	c.String(http.StatusOK, welcomeText)
}

// GET /healthz
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
