package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxMessageSize      = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by middleware
	},
}

// Config holds connection settings.
type Config struct {
	Buffer       int
	WriteWait    time.Duration
	PingInterval time.Duration
}

// Handler manages WebSocket connections
type Handler struct {
	broadcaster *events.Broadcaster
	cfg         Config
	logger      *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(broadcaster *events.Broadcaster, cfg Config, logger *zap.Logger) *Handler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{broadcaster: broadcaster, cfg: cfg, logger: logger}
}

type message struct {
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// HandleConnection upgrades the request and streams events until either
// side goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var filter events.Filter
	if envID := c.Query("environment"); envID != "" {
		filter = events.ForEnvironment(envID)
	}
	sub := h.broadcaster.Subscribe(h.cfg.Buffer, filter)
	defer sub.Close()

	log := h.logger.With(zap.String("subscription", sub.ID()))
	log.Debug("websocket observer connected", zap.String("remote", c.ClientIP()))

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	if err := h.write(conn, message{
		Type:         "system",
		Message:      "connected",
		Subscription: sub.ID(),
		Timestamp:    time.Now().Unix(),
	}); err != nil {
		return
	}

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				log.Debug("websocket observer evicted")
				h.closeWith(conn, websocket.ClosePolicyViolation, "observer too slow")
				return
			}
			if err := h.write(conn, e); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(h.cfg.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
		case <-closed:
			log.Debug("websocket observer disconnected")
			return
		}
	}
}

// readPump drains client frames so control messages are processed, and
// signals when the connection is gone.
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	pongWait := h.cfg.PingInterval + h.cfg.WriteWait
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Handler) write(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteWait))
}
