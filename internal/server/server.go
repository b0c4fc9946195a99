// Package server exposes the HTTP surface: health and the Eventbrite webhook
// ingest endpoint. Webhook bodies are not trusted; the handler only records
// which object changed and lets the worker fetch the current state.
package server

import (
	"net/http"

	"github.com/donorsync/donorsync/internal/clock"
	appconfig "github.com/donorsync/donorsync/internal/config"
	"github.com/donorsync/donorsync/internal/organization"
	"github.com/donorsync/donorsync/internal/queue"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   appconfig.Config
	Registry *organization.Registry
	Broker   queue.Broker
	Clock    clock.Clock
}

type Server struct {
	log      *zap.Logger
	registry *organization.Registry
	broker   queue.Broker
	clock    clock.Clock
}

func New(p Params) *Server {
	return &Server{
		log:      p.Log.Named("server"),
		registry: p.Registry,
		broker:   p.Broker,
		clock:    p.Clock,
	}
}

func NewEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/webhooks/eventbrite/:org", s.handleEventbriteWebhook)

	return r
}

// webhookRequest is the notification shape Eventbrite delivers: the changed
// object's API URL plus the action that changed it.
type webhookRequest struct {
	APIURL string `json:"api_url" binding:"required"`
	Config struct {
		Action string `json:"action" binding:"required"`
	} `json:"config" binding:"required"`
}

func (s *Server) handleEventbriteWebhook(c *gin.Context) {
	orgSlug := c.Param("org")
	org := s.registry.Get(orgSlug)
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown organization"})
		return
	}
	if key := c.GetHeader("X-API-Key"); key == "" || key != org.ConnectorAPIKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := queue.NewTask(s.clock.Now(), org.Slug, queue.KindWebhook, queue.WebhookPayload{
		Action: req.Config.Action,
		APIURL: req.APIURL,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	if err := s.broker.Enqueue(c.Request.Context(), task); err != nil {
		s.log.Error("webhook enqueue failed", zap.Error(err), zap.String("org", org.Slug))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	s.log.Info("webhook accepted",
		zap.String("org", org.Slug),
		zap.String("action", req.Config.Action),
		zap.String("task_id", task.ID),
	)
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}
