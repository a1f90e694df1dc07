package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/domain"
)

// LiveHandler streams newly created submissions to admin dashboards.
type LiveHandler struct {
	feed     *app.Feed
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewLiveHandler(feed *app.Feed, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		feed:   feed,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

const liveWriteTimeout = 10 * time.Second

// ServeWS upgrades the request and forwards feed updates until either side goes away.
func (h *LiveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	// The reader only exists to notice the client closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case summary, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(outboundMessage[domain.SubmissionSummary]{Type: "submission", Payload: summary}); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}
}
