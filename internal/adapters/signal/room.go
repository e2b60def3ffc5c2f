package signal

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/app"
	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

type roomPayload struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Kind string `json:"kind"`
}

func parseKind(raw string) (domain.RoomKind, bool) {
	switch domain.RoomKind(raw) {
	case domain.RoomChat:
		return domain.RoomChat, true
	case domain.RoomVideo:
		return domain.RoomVideo, true
	}
	return "", false
}

func (ctl *SignalWSController) handleRoomJoin(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	var p roomPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Room == "" {
		log.Error().Str("module", "signal").Msg("bad room.join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	kind, ok := parseKind(p.Kind)
	if !ok {
		ctl.sendError(conn, "bad_room_kind")
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(s.connID)).Str("room", p.Room).Str("kind", p.Kind).Msg("room join")
	view, err := ctl.Coord.JoinRoom(ctx, domain.RoomID(p.Room), kind, domain.Participant{
		UserID:       s.userID,
		ConnectionID: s.connID,
		DisplayName:  s.name,
		AvatarRef:    s.avatar,
	})
	if err != nil {
		if errors.Is(err, core.ErrAdmissionRequired) {
			ctl.sendError(conn, core.ErrAdmissionRequired.Error())
			return
		}
		ctl.sendError(conn, err.Error())
		return
	}
	// Joiner is a member by now, so the broadcast already reached it;
	// echo the view anyway as the direct command response.
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
		app.RoomView
	}{Type: "room.memberUpdate", RoomView: view})
}

func (ctl *SignalWSController) handleRoomLeave(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	var p roomPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Room == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	kind, ok := parseKind(p.Kind)
	if !ok {
		ctl.sendError(conn, "bad_room_kind")
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(s.connID)).Str("room", p.Room).Msg("room leave")
	ctl.Coord.LeaveRoom(ctx, domain.RoomID(p.Room), kind, s.connID)
	ctl.sendJSON(conn, map[string]any{
		"type": "room.left",
		"room": p.Room,
	})
}
