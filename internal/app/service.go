package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livequiz-service/internal/auth"
	"livequiz-service/internal/content"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/session"
)

// SummaryStore persists final session results for later retrieval.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary domain.SessionSummary) error
	GetSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error)
}

// TokenIssuer mints access tokens for hosts and players.
type TokenIssuer interface {
	Issue(subjectID, sessionID string, role auth.Role) (string, error)
}

// Service contains the live quiz use cases. Session state lives in the
// registry; the service adds content resolution, authentication and
// summary persistence around it.
type Service struct {
	registry  *session.Registry
	content   content.Source
	summaries SummaryStore
	tokens    TokenIssuer
	log       zerolog.Logger
}

func NewService(registry *session.Registry, src content.Source, summaries SummaryStore, tokens TokenIssuer, log zerolog.Logger) *Service {
	return &Service{
		registry:  registry,
		content:   src,
		summaries: summaries,
		tokens:    tokens,
		log:       log,
	}
}

// CreatedSession is the host's view of a freshly created session.
type CreatedSession struct {
	SessionID string `json:"sessionId"`
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
	Questions int    `json:"questions"`
}

// CreateSession resolves the requested question set and registers a new
// session owned by hostID.
func (s *Service) CreateSession(ctx context.Context, hostID string, sel content.Selection, settings session.Settings) (CreatedSession, error) {
	if hostID == "" {
		hostID = uuid.NewString()
	}

	questions, err := content.ResolveQuestionSet(ctx, s.content, sel)
	if err != nil {
		return CreatedSession{}, err
	}

	sess, err := s.registry.Create(hostID, questions, settings)
	if err != nil {
		return CreatedSession{}, err
	}

	token, err := s.tokens.Issue(hostID, sess.ID(), auth.RoleHost)
	if err != nil {
		return CreatedSession{}, err
	}

	s.log.Info().
		Str("session_id", sess.ID()).
		Str("room_code", sess.Code()).
		Int("questions", len(questions)).
		Msg("session created")

	return CreatedSession{
		SessionID: sess.ID(),
		RoomCode:  sess.Code(),
		HostToken: token,
		Questions: len(questions),
	}, nil
}

// JoinedSession is returned to a player who entered a room code.
type JoinedSession struct {
	SessionID     string             `json:"sessionId"`
	ParticipantID string             `json:"participantId"`
	Token         string             `json:"token"`
	State         session.StateEvent `json:"state"`
}

// Join resolves a room code, enforces host-wide bans and registers the
// player. A participantID from a previous visit resumes that identity.
func (s *Service) Join(_ context.Context, roomCode, participantID, displayName string) (JoinedSession, error) {
	sess, err := s.registry.GetByCode(strings.TrimSpace(roomCode))
	if err != nil {
		return JoinedSession{}, err
	}
	if participantID == "" {
		participantID = uuid.NewString()
	}
	if s.registry.IsBannedByHost(sess.HostID(), participantID) {
		return JoinedSession{}, domain.ErrBanned
	}

	state, err := sess.Join(participantID, displayName)
	if err != nil {
		return JoinedSession{}, err
	}

	token, err := s.tokens.Issue(participantID, sess.ID(), auth.RolePlayer)
	if err != nil {
		return JoinedSession{}, err
	}

	return JoinedSession{
		SessionID:     sess.ID(),
		ParticipantID: participantID,
		Token:         token,
		State:         state,
	}, nil
}

// Session looks up a live session by id.
func (s *Service) Session(sessionID string) (*session.Session, error) {
	return s.registry.Get(sessionID)
}

// Snapshot serves the polling fallback for clients without a socket.
func (s *Service) Snapshot(sessionID, participantID string) (session.StateEvent, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return session.StateEvent{}, err
	}
	return sess.Snapshot(participantID), nil
}

// Summary returns the persisted results of an ended session.
func (s *Service) Summary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	return s.summaries.GetSummary(ctx, sessionID)
}

// PersistSummary is wired into the registry's end-of-session hook.
func (s *Service) PersistSummary(summary domain.SessionSummary) {
	if err := s.summaries.SaveSummary(context.Background(), summary); err != nil {
		s.log.Error().Err(err).Str("session_id", summary.SessionID).Msg("persisting session summary failed")
	}
}
