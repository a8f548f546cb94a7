package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/broker"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Broker interface {
	Join(ctx context.Context, c broker.Conn, channelID string) error
	Leave(c broker.Conn, channelID string)
	Disconnect(c broker.Conn)
	Submit(ctx context.Context, userID, channelID, content string) (*domain.Message, error)
}

type Authenticator interface {
	ResolveSession(r *http.Request) (auth.Session, error)
}

type UserSyncer interface {
	Sync(ctx context.Context, u domain.User) error
}

type Config struct {
	SendQueueSize  int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 16
	}
	return c
}

type Server struct {
	upgrader websocket.Upgrader
	broker   Broker
	auth     Authenticator
	users    UserSyncer
	cfg      Config
}

func NewServer(b Broker, a Authenticator, users UserSyncer, cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		broker: b,
		auth:   a,
		users:  users,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// WS endpoint: GET /ws?access_token=...&channelId=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.auth.ResolveSession(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "user", sess.UserID, "err", err)
		return
	}

	ctx := r.Context()
	c := newWsConn(conn, sess.UserID, s.cfg)
	metrics.ActiveConnections.WithLabelValues("ws").Inc()
	defer metrics.ActiveConnections.WithLabelValues("ws").Dec()

	if s.users != nil {
		if err := s.users.Sync(ctx, sess.User()); err != nil {
			slog.Warn("ws user sync failed", "user", sess.UserID, "err", err)
		}
	}

	go c.writeLoop()

	if channelID := strings.TrimSpace(r.URL.Query().Get("channelId")); channelID != "" {
		s.join(ctx, c, channelID)
	}
	s.readLoop(ctx, c)

	s.broker.Disconnect(c)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.id, "user", c.userID, "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "conn", c.id, "user", c.userID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))

		ev, err := protocol.Decode(data)
		if err != nil {
			s.reply(c, *protocol.NewError(err))
			continue
		}

		switch e := ev.(type) {
		case protocol.Join:
			s.join(ctx, c, e.ChannelID)
		case protocol.Leave:
			s.broker.Leave(c, e.ChannelID)
			s.reply(c, protocol.Left{ChannelID: e.ChannelID})
		case protocol.Send:
			s.send(ctx, c, e)
		default:
			s.reply(c, protocol.Error{Code: protocol.CodeBadRequest, Message: "unexpected event " + string(ev.Type())})
		}
	}
}

func (s *Server) join(ctx context.Context, c *wsConn, channelID string) {
	if err := s.broker.Join(ctx, c, channelID); err != nil {
		wire := protocol.NewError(err)
		wire.ChannelID = channelID
		s.reply(c, *wire)
	}
}

func (s *Server) send(ctx context.Context, c *wsConn, e protocol.Send) {
	msg, err := s.broker.Submit(ctx, c.userID, e.ChannelID, e.Content)
	if err != nil {
		wire := protocol.NewError(err)
		wire.ChannelID = e.ChannelID
		wire.RequestID = e.RequestID
		s.reply(c, protocol.SendResult{RequestID: e.RequestID, Error: wire})
		return
	}
	out := protocol.FromDomain(msg)
	s.reply(c, protocol.SendResult{RequestID: e.RequestID, OK: true, Message: &out})
}

// reply queues a direct response; a connection that cannot take it is dropped.
func (s *Server) reply(c *wsConn, ev protocol.Event) {
	if err := c.Deliver(ev); err != nil {
		slog.Debug("ws reply dropped", "conn", c.id, "user", c.userID, "type", ev.Type(), "err", err)
		_ = c.Close()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}
