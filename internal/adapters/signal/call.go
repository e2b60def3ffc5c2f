package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/domain"
)

func (ctl *SignalWSController) handleRequestJoin(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type requestPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p requestPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Room == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.limiter.Allow(s.userID) {
		log.Warn().Str("module", "signal").Str("user", string(s.userID)).Msg("join request throttled")
		ctl.sendError(conn, "too_many_requests")
		return
	}

	req, err := ctl.Coord.Admission.RequestJoin(ctx, domain.RoomID(p.Room), domain.Participant{
		UserID:       s.userID,
		ConnectionID: s.connID,
		DisplayName:  s.name,
		AvatarRef:    s.avatar,
	})
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	ctl.sendJSON(conn, struct {
		Type    string        `json:"type"`
		Request string        `json:"request"`
		Room    domain.RoomID `json:"room"`
	}{Type: "call.requested", Request: req.ID, Room: req.RoomID})
}

func (ctl *SignalWSController) handleDecide(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type decidePayload struct {
		Type    string `json:"type"`
		Request string `json:"request"`
		Approve bool   `json:"approve"`
		Reason  string `json:"reason,omitempty"`
	}
	var p decidePayload
	if err := unmarshalPayload(data, &p); err != nil || p.Request == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("user", string(s.userID)).Str("request", p.Request).Bool("approve", p.Approve).Msg("decide")
	req, err := ctl.Coord.Admission.Decide(ctx, p.Request, s.userID, p.Approve, p.Reason)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	ctl.sendJSON(conn, struct {
		Type    string                   `json:"type"`
		Request string                   `json:"request"`
		Status  domain.JoinRequestStatus `json:"status"`
	}{Type: "call.decided", Request: req.ID, Status: req.Status})
}
