package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"riftvale/server/internal/auth"
	"riftvale/server/internal/proto"
)

// Heartbeat: the client must pong within pongWait of each ping.
const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Gateway is the simulation-facing side of a connection: the engine
// implements it and the handler stays free of game logic.
type Gateway interface {
	Connect(ctx context.Context, sess *Session, userID, actorID string) error
	Disconnect(ctx context.Context, sess *Session)
	Dispatch(ctx context.Context, sess *Session, cmd proto.Command)
}

// Handler upgrades sockets, authenticates them, and pumps commands into the
// gateway.
type Handler struct {
	registry *Registry
	gateway  Gateway
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler wires the websocket endpoint.
func NewHandler(registry *Registry, gateway Gateway, verifier *auth.Verifier, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		gateway:  gateway,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the token, upgrades the socket, runs the join
// sequence, and then pumps inbound commands until the socket drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	actorID := r.URL.Query().Get("actor")
	if token == "" || actorID == "" {
		http.Error(w, "missing token or actor", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.VerifyToken(token, auth.TokenAccess)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := r.Context()
	sess := h.registry.Register(conn)
	if err := h.gateway.Connect(ctx, sess, claims.UserID, actorID); err != nil {
		h.log.Warn("join failed",
			zap.String("user", claims.UserID), zap.String("actor", actorID), zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join rejected")
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		h.registry.Unregister(sess)
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if sess.Ping() != nil {
					return
				}
			}
		}
	}()

	// The read loop outlives the request context; commands run against the
	// background context so a disconnect mid-action does not cancel cleanup.
	runCtx := context.Background()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.gateway.Disconnect(runCtx, sess)
			return
		}
		var cmd proto.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			h.log.Debug("discarding malformed command",
				zap.String("session", sess.ID), zap.Error(err))
			continue
		}
		h.gateway.Dispatch(runCtx, sess, cmd)
	}
}
