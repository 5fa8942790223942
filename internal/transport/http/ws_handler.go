package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/session"
)

// WSHandler upgrades HTTP requests to websockets and dispatches session
// commands. Every connection is bound to one session by its access token.
type WSHandler struct {
	service  *app.Service
	hub      *Hub
	verifier auth.TokenVerifier
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.Service, hub *Hub, verifier auth.TokenVerifier, clock clockwork.Clock, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		hub:      hub,
		verifier: verifier,
		clock:    clock,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int   `json:"questionIndex"`
	Selection     []int `json:"selection"`
	ClientTimeMs  int64 `json:"clientTimeMs"`
}

type answerResult struct {
	QuestionIndex int   `json:"questionIndex"`
	Correct       bool  `json:"correct"`
	Points        int   `json:"points"`
	TimeTakenMs   int64 `json:"timeTakenMs"`
}

type settingsPayload struct {
	HideLeaderboard bool `json:"hideLeaderboard"`
	JoiningOpen     bool `json:"joiningOpen"`
	ShowPIN         bool `json:"showPin"`
}

type moderationPayload struct {
	ParticipantID string `json:"participantId"`
	Reason        string `json:"reason"`
}

type clockSyncRequest struct {
	ClientSentMs int64 `json:"clientSentMs"`
}

type clockSyncResponse struct {
	ClientSentMs int64 `json:"clientSentMs"`
	ServerTimeMs int64 `json:"serverTimeMs"`
}

// clockSyncReport closes a probe round: the client echoes the server
// timestamp together with its own send and receive readings.
type clockSyncReport struct {
	ClientSentMs     int64 `json:"clientSentMs"`
	ServerTimeMs     int64 `json:"serverTimeMs"`
	ClientReceivedMs int64 `json:"clientReceivedMs"`
}

type clockSyncState struct {
	OffsetMs int64 `json:"offsetMs"`
	RTTMs    int64 `json:"rttMs"`
	Synced   bool  `json:"synced"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS authenticates the token, binds the socket to its session and
// runs the read loop until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sess, err := h.service.Session(claims.SessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := h.hub.Register(sess.ID(), claims.SubjectID, conn)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		for frame := range c.send {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}()

	if claims.Role == auth.RolePlayer {
		sess.SetConnected(claims.SubjectID, true)
	}
	// idempotent snapshot so a reconnecting client can resync immediately
	c.enqueue(outFrame{Type: "session_state", Payload: sess.Snapshot(claims.SubjectID)})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(c, sess, claims, inbound)
	}

	h.hub.Unregister(sess.ID(), c)
	<-writerDone
	// a replacement connection may already have taken over this identity
	if claims.Role == auth.RolePlayer && !h.hub.Attached(sess.ID(), claims.SubjectID) {
		sess.SetConnected(claims.SubjectID, false)
	}
}

func (h *WSHandler) dispatch(c *client, sess *session.Session, claims auth.Claims, msg inboundMessage) {
	switch msg.Type {
	case "ping":
		c.enqueue(outFrame{Type: "pong", Payload: clockSyncResponse{ServerTimeMs: h.clock.Now().UnixMilli()}})

	case "clock_sync_request":
		var req clockSyncRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			h.sendError(c, domain.ErrInvalidCommand)
			return
		}
		c.enqueue(outFrame{Type: "clock_sync_response", Payload: clockSyncResponse{
			ClientSentMs: req.ClientSentMs,
			ServerTimeMs: h.clock.Now().UnixMilli(),
		}})

	case "clock_sync_report":
		var report clockSyncReport
		if err := json.Unmarshal(msg.Payload, &report); err != nil {
			h.sendError(c, domain.ErrInvalidCommand)
			return
		}
		c.sync.Observe(
			time.UnixMilli(report.ClientSentMs),
			time.UnixMilli(report.ClientReceivedMs),
			time.UnixMilli(report.ServerTimeMs),
		)
		c.enqueue(outFrame{Type: "clock_sync_state", Payload: clockSyncState{
			OffsetMs: c.sync.Offset().Milliseconds(),
			RTTMs:    c.sync.RTT().Milliseconds(),
			Synced:   c.sync.Synced(),
		}})

	case "get_state":
		c.enqueue(outFrame{Type: "session_state", Payload: sess.Snapshot(claims.SubjectID)})

	case "submit_answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(c, domain.ErrInvalidCommand)
			return
		}
		rec, err := sess.SubmitAnswer(claims.SubjectID, payload.QuestionIndex, payload.Selection, payload.ClientTimeMs)
		if err != nil {
			h.sendError(c, err)
			return
		}
		c.enqueue(outFrame{Type: "answer_result", Payload: answerResult{
			QuestionIndex: rec.QuestionIndex,
			Correct:       rec.Correct,
			Points:        rec.Points,
			TimeTakenMs:   rec.Elapsed.Milliseconds(),
		}})

	case "start_session":
		h.hostCommand(c, claims, func() error { return sess.Start(claims.SubjectID) })
	case "next":
		h.hostCommand(c, claims, func() error { return sess.Next(claims.SubjectID) })
	case "end_question":
		h.hostCommand(c, claims, func() error { return sess.EndQuestion(claims.SubjectID) })
	case "end_session":
		h.hostCommand(c, claims, func() error { return sess.End(claims.SubjectID) })
	case "replay":
		h.hostCommand(c, claims, func() error { return sess.Replay(claims.SubjectID) })

	case "update_settings":
		var payload settingsPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(c, domain.ErrInvalidCommand)
			return
		}
		h.hostCommand(c, claims, func() error {
			return sess.UpdateSettings(claims.SubjectID, session.Settings{
				HideLeaderboard: payload.HideLeaderboard,
				JoiningOpen:     payload.JoiningOpen,
				ShowPIN:         payload.ShowPIN,
			})
		})

	case "kick_player":
		h.moderate(c, claims, msg.Payload, sess.Kick)
	case "ban_from_session":
		h.moderate(c, claims, msg.Payload, sess.BanFromSession)
	case "ban_permanently":
		h.moderate(c, claims, msg.Payload, sess.BanPermanently)

	default:
		h.sendError(c, domain.ErrInvalidCommand)
	}
}

func (h *WSHandler) hostCommand(c *client, claims auth.Claims, fn func() error) {
	if claims.Role != auth.RoleHost {
		h.sendError(c, domain.ErrNotAuthorized)
		return
	}
	if err := fn(); err != nil {
		h.sendError(c, err)
	}
}

func (h *WSHandler) moderate(c *client, claims auth.Claims, raw json.RawMessage, fn func(actorID, participantID, reason string) error) {
	var payload moderationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ParticipantID == "" {
		h.sendError(c, domain.ErrInvalidCommand)
		return
	}
	h.hostCommand(c, claims, func() error {
		return fn(claims.SubjectID, payload.ParticipantID, payload.Reason)
	})
}

func (h *WSHandler) sendError(c *client, err error) {
	msg := err.Error()
	if errors.Is(err, domain.ErrInvalidCommand) {
		msg = "unsupported or malformed command"
	}
	c.enqueue(outFrame{Type: "error", Payload: errorPayload{
		Code:    domain.ReasonCode(err),
		Message: msg,
	}})
}
