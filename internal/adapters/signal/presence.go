package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/domain"
)

func (ctl *SignalWSController) handleHello(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type helloPayload struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		Avatar string `json:"avatar,omitempty"`
	}
	var p helloPayload
	if err := unmarshalPayload(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad hello payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if s.identified() {
		ctl.sendError(conn, "already_identified")
		return
	}

	userID, err := ctl.Identity.Resolve(ctx, s.token)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(s.connID)).Msg("identity resolve failed")
		ctl.sendError(conn, "unknown_identity")
		return
	}
	user, err := domain.NewUser(userID, p.Name)
	if err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}

	s.userID = user.ID
	s.name = user.DisplayName
	s.avatar = p.Avatar
	log.Info().Str("module", "signal").Str("conn", string(s.connID)).Str("user", string(s.userID)).Msg("hello")

	ctl.Coord.Connect(s.userID, s.connID, conn)
	ctl.sendJSON(conn, struct {
		Type string        `json:"type"`
		User domain.UserID `json:"user"`
		Name string        `json:"name"`
	}{Type: "presence.welcome", User: s.userID, Name: s.name})
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}
