package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/app"
	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController is the socket-facing surface of the coordination
// core: one websocket per connection, JSON envelopes with a "type" field.
type SignalWSController struct {
	Coord      *app.Coordinator
	Identity   core.IdentityResolver
	limiter    *JoinRateLimiter
	readLimit  int64
	pingPeriod time.Duration
}

func NewSignalWSController(coord *app.Coordinator, identity core.IdentityResolver, readLimit int64, pingPeriod time.Duration, joinLimit int, joinWindow time.Duration) *SignalWSController {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	if joinLimit <= 0 {
		joinLimit = 5
	}
	if joinWindow <= 0 {
		joinWindow = time.Minute
	}
	return &SignalWSController{
		Coord:      coord,
		Identity:   identity,
		limiter:    NewJoinRateLimiter(joinLimit, joinWindow),
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
	}
}

// clientSession is per-socket state. Only the read pump mutates it, so no
// locking is needed; identification happens on presence.hello.
type clientSession struct {
	connID domain.ConnectionID
	token  string
	userID domain.UserID
	name   string
	avatar string
}

func (s *clientSession) identified() bool { return s.userID != "" }

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection's pumps.
// The transport layer owns the connection lifecycle; registries only
// index it.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	connID := domain.ConnectionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	sess := &clientSession{connID: connID, token: token}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess, conn)
	}()
}
