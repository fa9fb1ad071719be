package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// SubscriberGauge tracks open stream connections.
type SubscriberGauge interface {
	Inc()
	Dec()
}

type noopGauge struct{}

func (noopGauge) Inc() {}
func (noopGauge) Dec() {}

// StreamHandler pushes live planner events over a websocket.
type StreamHandler struct {
	svc      planning.SimulationService
	gauge    SubscriberGauge
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewStreamHandler creates a StreamHandler. checkOrigin may be nil to accept
// any origin.
func NewStreamHandler(svc planning.SimulationService, gauge SubscriberGauge, checkOrigin func(*http.Request) bool, logger logging.Logger) *StreamHandler {
	if gauge == nil {
		gauge = noopGauge{}
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &StreamHandler{
		svc:   svc,
		gauge: gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.Named("stream"),
	}
}

// Stream upgrades the connection and forwards events until the client goes
// away. ?run_id= restricts the stream to one run.
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()
	h.gauge.Inc()
	defer h.gauge.Dec()

	runID := c.Query("run_id")
	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			if runID != "" && ev.RunID != runID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("stream write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *StreamHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
