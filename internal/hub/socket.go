package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/wire"
)

// DefaultAuthDeadline bounds how long a freshly upgraded socket may take to
// present its auth frame.
const DefaultAuthDeadline = 10 * time.Second

// ChannelTokenValidator checks a handshake credential and returns the user it
// belongs to.
type ChannelTokenValidator interface {
	ValidateChannelToken(token string) (string, error)
}

type channelHandler struct {
	tokens       ChannelTokenValidator
	dispatcher   *Dispatcher
	authDeadline time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func newChannelHandler(tokens ChannelTokenValidator, dispatcher *Dispatcher, authDeadline time.Duration, logger *zap.Logger) *channelHandler {
	if authDeadline <= 0 {
		authDeadline = DefaultAuthDeadline
	}
	return &channelHandler{
		tokens:       tokens,
		dispatcher:   dispatcher,
		authDeadline: authDeadline,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// handleChannel upgrades the request, demands the auth frame within the
// deadline, then streams the user's job events until either side closes.
func (h *channelHandler) handleChannel(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userID, err := h.authenticate(conn)
	if err != nil {
		AuthRejects.Inc()
		h.logger.Warn("channel auth failed", zap.Error(err))
		closeFrame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth required")
		_ = conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
		return
	}

	ChannelsOpened.Inc()
	LiveChannelGauge.Inc()
	defer LiveChannelGauge.Dec()
	h.logger.Info("channel open", zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stream, cleanup := h.dispatcher.Subscribe(ctx, userID)
	defer cleanup()

	// Clients send nothing after the auth frame; reads only observe the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-stream:
			data, err := event.Encode()
			if err != nil {
				h.logger.Error("event encode failed", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("channel write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
			EventsDelivered.Inc()
		}
	}
}

func (h *channelHandler) authenticate(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.authDeadline)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("auth frame not received: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	frame, err := wire.DecodeAuthFrame(data)
	if err != nil {
		return "", err
	}
	return h.tokens.ValidateChannelToken(frame.Token)
}
