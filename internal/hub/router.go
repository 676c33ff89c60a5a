package hub

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingTokenValidator = errors.New("channel token validator dependency required")
	errMissingDispatcher     = errors.New("dispatcher dependency required")
)

// Dependencies collects what the HTTP surface needs.
type Dependencies struct {
	Tokens       ChannelTokenValidator
	Dispatcher   *Dispatcher
	AuthDeadline time.Duration
	Logger       *zap.Logger
}

// NewHTTPHandler builds the hub's router: the websocket channel endpoint plus
// health and metrics.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := newChannelHandler(deps.Tokens, deps.Dispatcher, deps.AuthDeadline, logger)

	router.GET("/ws", handler.handleChannel)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(MetricsHandler()))

	return router, nil
}
