package socket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"l3v3l_server/logger"
	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/services"

	socketio "github.com/googollee/go-socket.io"
	"go.uber.org/zap"
)

const (
	QueueRoom        = "queue"
	EventQueueUpdate = "queue:update"
	EventQueueStats  = "queue:stats"
)

var errAdminOnly = errors.New("queue feed is for operators only")

// broadcaster is the part of *socketio.Server the hub pushes through.
type broadcaster interface {
	BroadcastToRoom(namespace, room, event string, args ...interface{}) bool
}

// StatsFunc reports queue counters; an empty username covers all users.
type StatsFunc func(ctx context.Context, username string) (models.QueueStats, error)

// Hub pushes queue changes and periodic stats to operators in the "queue" room.
type Hub struct {
	server   *socketio.Server
	rooms    broadcaster
	stats    StatsFunc
	interval time.Duration
}

// NewHub initializes the Socket.IO server. Clients pass their bearer token as
// ?token= and then emit "join" with the room name.
func NewHub(auth *middleware.Authenticator, stats StatsFunc, interval time.Duration) *Hub {
	server := socketio.NewServer(nil)
	h := &Hub{server: server, rooms: server, stats: stats, interval: interval}

	server.OnConnect("/", func(c socketio.Conn) error {
		u := c.URL()
		claims, err := auth.Verify(u.Query().Get("token"))
		if err != nil {
			logger.Warn("❌ socket rejected", zap.String("id", c.ID()), zap.Error(err))
			return err
		}
		c.SetContext(middleware.Principal{Username: claims.Subject, Role: claims.Role})
		logger.Info("✅ Socket connected", zap.String("id", c.ID()), zap.String("username", claims.Subject))
		return nil
	})

	server.OnEvent("/", "join", func(c socketio.Conn, room string) {
		if err := authorizeJoin(c.Context(), room); err != nil {
			logger.Warn("❌ join refused", zap.String("id", c.ID()), zap.String("room", room), zap.Error(err))
			c.Emit("error", err.Error())
			return
		}
		c.Join(room)
		logger.Info("👥 Socket joined room", zap.String("id", c.ID()), zap.String("room", room))
	})

	server.OnError("/", func(c socketio.Conn, err error) {
		logger.Warn("⚠️ socket error", zap.Error(err))
	})

	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		logger.Info("❌ Socket disconnected", zap.String("id", c.ID()), zap.String("reason", reason))
	})

	return h
}

func authorizeJoin(connCtx interface{}, room string) error {
	p, ok := connCtx.(middleware.Principal)
	if !ok {
		return errors.New("not authenticated")
	}
	if room != QueueRoom {
		return errors.New("unknown room " + room)
	}
	if !p.IsAdmin() {
		return errAdminOnly
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.server.ServeHTTP(w, r)
}

// PublishQueueEvent forwards a queue mutation to the room.
func (h *Hub) PublishQueueEvent(ev services.QueueEvent) {
	h.rooms.BroadcastToRoom("/", QueueRoom, EventQueueUpdate, ev)
}

func (h *Hub) broadcastStats(ctx context.Context) {
	stats, err := h.stats(ctx, "")
	if err != nil {
		logger.Warn("⚠️ failed to compute queue stats", zap.Error(err))
		return
	}
	h.rooms.BroadcastToRoom("/", QueueRoom, EventQueueStats, stats)
}

// Run serves socket connections and pushes stats every interval until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.server != nil {
		go func() {
			if err := h.server.Serve(); err != nil {
				logger.Error("❌ socket server stopped", zap.Error(err))
			}
		}()
		defer h.server.Close()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcastStats(ctx)
		}
	}
}
