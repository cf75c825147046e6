package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/yoockh/echonote/internal/services"
	"github.com/yoockh/echonote/internal/utils"
)

// progressSubscriber opens a subscription on a status channel. Payloads
// arrive on the returned channel until unsubscribe is called.
type progressSubscriber interface {
	Subscribe(ctx context.Context, channel string) (msgs <-chan string, unsubscribe func())
}

type redisSubscriber struct {
	rdb *redis.Client
}

func (s redisSubscriber) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		for m := range pubsub.Channel() {
			select {
			case out <- m.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }
}

type ProgressWSHandler struct {
	recordings services.RecordingService
	subs       progressSubscriber
	upgrader   websocket.Upgrader
}

func NewProgressWSHandler(recordings services.RecordingService, rdb *redis.Client) *ProgressWSHandler {
	return &ProgressWSHandler{
		recordings: recordings,
		subs:       redisSubscriber{rdb: rdb},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// ProgressWS streams per-stage pipeline events for one recording. Workers
// publish JSON to the recording's Redis status channel; the socket forwards
// payloads as-is.
func (h *ProgressWSHandler) ProgressWS(c *gin.Context) {
	const op = "ProgressWSHandler.ProgressWS"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	recordingID := c.Param("id")
	if recordingID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing recording id", nil))
		return
	}

	// authorize ownership before upgrading
	if _, err := h.recordings.GetOwned(c.Request.Context(), userID, recordingID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	msgs, unsubscribe := h.subs.Subscribe(ctx, services.ProgressChannel(recordingID))
	defer unsubscribe()

	// reader drains client frames so pings and close frames are handled;
	// cancelling on exit guarantees the forward loop unblocks on disconnect
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			if werr := wc.writeText([]byte(payload)); werr != nil {
				return
			}
		}
	}
}
