package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/domain"
)

type rescheduleResponse struct {
	Type        string                   `json:"type"`
	Request     domain.RescheduleRequest `json:"request"`
	ApplyFailed bool                     `json:"apply_failed,omitempty"`
}

func (ctl *SignalWSController) handlePropose(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type proposePayload struct {
		Type     string          `json:"type"`
		Session  string          `json:"session"`
		Proposal domain.Proposal `json:"proposal"`
	}
	var p proposePayload
	if err := unmarshalPayload(data, &p); err != nil || p.Session == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("user", string(s.userID)).Str("session", p.Session).Msg("reschedule propose")
	req, err := ctl.Coord.Reschedule.Propose(ctx, p.Session, s.userID, p.Proposal)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	ctl.sendJSON(conn, rescheduleResponse{Type: "reschedule.updated", Request: req})
}

func (ctl *SignalWSController) handleCounter(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type counterPayload struct {
		Type     string          `json:"type"`
		Request  string          `json:"request"`
		Proposal domain.Proposal `json:"proposal"`
	}
	var p counterPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Request == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("user", string(s.userID)).Str("request", p.Request).Msg("reschedule counter")
	req, err := ctl.Coord.Reschedule.Counter(ctx, p.Request, s.userID, p.Proposal)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	ctl.sendJSON(conn, rescheduleResponse{Type: "reschedule.updated", Request: req})
}

func (ctl *SignalWSController) handleAccept(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type actionPayload struct {
		Type    string `json:"type"`
		Request string `json:"request"`
	}
	var p actionPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Request == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("user", string(s.userID)).Str("request", p.Request).Msg("reschedule accept")
	// Both parties, this socket included, get reschedule.updated through
	// the dispatcher; no direct echo needed.
	if _, err := ctl.Coord.Reschedule.Accept(ctx, p.Request, s.userID); err != nil {
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handleReject(
	ctx context.Context,
	s *clientSession,
	conn *WsSignalConn,
	data []byte,
) {
	type actionPayload struct {
		Type    string `json:"type"`
		Request string `json:"request"`
	}
	var p actionPayload
	if err := unmarshalPayload(data, &p); err != nil || p.Request == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("user", string(s.userID)).Str("request", p.Request).Msg("reschedule reject")
	if _, err := ctl.Coord.Reschedule.Reject(ctx, p.Request, s.userID); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
