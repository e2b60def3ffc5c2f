package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *clientSession, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(s.connID)).Msg("readPump closing")
		ctl.Coord.Disconnect(context.Background(), s.connID)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(s.connID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(s.connID)).Msg("readPump read error")
				return
			}
			ctl.handleCommand(ctx, s, c, data)
		}
	}
}

func (ctl *SignalWSController) handleCommand(ctx context.Context, s *clientSession, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	if env.Type == "ping" {
		ctl.handlePing(c)
		return
	}
	if env.Type == "presence.hello" {
		ctl.handleHello(ctx, s, c, data)
		return
	}
	if !s.identified() {
		ctl.sendError(c, "not_identified")
		return
	}

	switch env.Type {
	case "room.join":
		ctl.handleRoomJoin(ctx, s, c, data)
	case "room.leave":
		ctl.handleRoomLeave(ctx, s, c, data)
	case "call.requestJoin":
		ctl.handleRequestJoin(ctx, s, c, data)
	case "call.decide":
		ctl.handleDecide(ctx, s, c, data)
	case "reschedule.propose":
		ctl.handlePropose(ctx, s, c, data)
	case "reschedule.counter":
		ctl.handleCounter(ctx, s, c, data)
	case "reschedule.accept":
		ctl.handleAccept(ctx, s, c, data)
	case "reschedule.reject":
		ctl.handleReject(ctx, s, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
		ctl.sendError(c, "unknown_command")
	}
}

func unmarshalPayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}

// sendError answers the offending socket only. Every protocol violation
// gets an explicit reason; silent drops are reserved for best-effort
// broadcasts.
func (ctl *SignalWSController) sendError(c *WsSignalConn, reason string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": reason,
	})
}
