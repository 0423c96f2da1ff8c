// Package proxy serves the stateless chat function: it forwards one prompt to
// the model gateway, or to the image strategy, and returns the reply.
package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gemchat/internal/config"
	"gemchat/internal/models"
	"gemchat/internal/service/ai"
)

// Path is where the function is mounted.
const Path = models.ChatFunctionPath

const corsAllowHeaders = "authorization, x-client-info, apikey, content-type"

// Gateway is the part of ai.Gateway the handler uses.
type Gateway interface {
	Ready() error
	Chat(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	gateway Gateway
	images  ai.ImageStrategy
	limits  *limiterPool
	log     *zap.Logger
}

func New(gateway Gateway, images ai.ImageStrategy, cfg config.ProxyConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gateway: gateway,
		images:  images,
		limits:  newLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log:     logger,
	}
}

// Register mounts the function and its preflight route.
func (h *Handler) Register(r gin.IRoutes) {
	r.OPTIONS(Path, CORS(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST(Path, CORS(), h.rateLimit(), h.handle)
}

// CORS sets the permissive headers the browser client expects.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Next()
	}
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limits.Allow(c.ClientIP()) {
			requestsTotal.WithLabelValues("unknown", "rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (h *Handler) handle(c *gin.Context) {
	start := time.Now()
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "unknown", err)
		return
	}
	mode := "text"
	if req.GenerateImage {
		mode = "image"
	}
	defer func() {
		requestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if err := h.gateway.Ready(); err != nil {
		h.fail(c, mode, err)
		return
	}

	if req.GenerateImage {
		img, err := h.images.Generate(c.Request.Context(), req.Message)
		if err != nil {
			h.fail(c, mode, err)
			return
		}
		requestsTotal.WithLabelValues(mode, "ok").Inc()
		c.JSON(http.StatusOK, models.ChatResponse{Response: img.Text, ImageURL: img.URL})
		return
	}

	text, err := h.gateway.Chat(c.Request.Context(), req.Message)
	if err != nil {
		h.fail(c, mode, err)
		return
	}
	requestsTotal.WithLabelValues(mode, "ok").Inc()
	c.JSON(http.StatusOK, models.ChatResponse{Response: text})
}

func (h *Handler) fail(c *gin.Context, mode string, err error) {
	requestsTotal.WithLabelValues(mode, "error").Inc()
	h.log.Error("chat function failed", zap.String("mode", mode), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
