package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/auth"
	"livequiz-service/internal/content"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"livequiz-service/internal/session"
)

type nopSink struct{}

func (nopSink) Broadcast(string, session.Event)          {}
func (nopSink) SendTo(string, string, session.Event)     {}
func (nopSink) Disconnect(string, string, session.Event) {}

func newTestService(t *testing.T) *Service {
	t.Helper()

	log := zerolog.Nop()
	summaries := memory.NewSummaryStore()

	var svc *Service
	registry := session.NewRegistry(session.RegistryConfig{
		Sink:         nopSink{},
		Clock:        clockwork.NewFakeClock(),
		Timing:       session.DefaultTiming(),
		DrainTimeout: time.Minute,
		Logger:       log,
		OnSummary:    func(summary domain.SessionSummary) { svc.PersistSummary(summary) },
	})

	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Choices: []domain.Choice{
						{ID: "c1", Text: "3"},
						{ID: "c2", Text: "4", Correct: true},
					},
					TimeLimitSec: 20,
					BasePoints:   1000,
				},
				{
					ID:   "q2",
					Text: "Pick the even number.",
					Choices: []domain.Choice{
						{ID: "c1", Text: "7"},
						{ID: "c2", Text: "8", Correct: true},
					},
					TimeLimitSec: 20,
					BasePoints:   1000,
				},
			},
		},
	}), time.Minute)

	tokens := auth.NewJWT("service-test-secret", time.Hour)
	svc = NewService(registry, quizzes, summaries, tokens, log)
	return svc
}

func TestCreateSessionIssuesHostToken(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateSession(context.Background(), "host-1", content.Selection{QuizIDs: []string{"quiz-1"}}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Questions != 2 || len(created.RoomCode) != 6 {
		t.Fatalf("unexpected create result: %+v", created)
	}

	claims, err := svc.tokens.(*auth.JWT).Verify(created.HostToken)
	if err != nil {
		t.Fatalf("verify host token: %v", err)
	}
	if claims.Role != auth.RoleHost || claims.SubjectID != "host-1" || claims.SessionID != created.SessionID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCreateSessionUnknownQuiz(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateSession(context.Background(), "host-1", content.Selection{QuizIDs: []string{"nope"}}, session.DefaultSettings())
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestJoinByRoomCode(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateSession(context.Background(), "host-1", content.Selection{QuizIDs: []string{"quiz-1"}}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	joined, err := svc.Join(context.Background(), created.RoomCode, "", "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ParticipantID == "" || joined.Token == "" {
		t.Fatalf("expected generated identity and token: %+v", joined)
	}
	if joined.State.Status != domain.StatusLobby || len(joined.State.Participants) != 1 {
		t.Fatalf("unexpected lobby state: %+v", joined.State)
	}

	// a surrounding-whitespace code still resolves
	if _, err := svc.Join(context.Background(), " "+created.RoomCode+" ", joined.ParticipantID, "Alice"); err != nil {
		t.Fatalf("rejoin with padded code: %v", err)
	}

	if _, err := svc.Join(context.Background(), "999999x", "", "Bob"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected unknown code rejection, got %v", err)
	}
}

func TestJoinEnforcesHostWideBan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "host-1", content.Selection{QuizIDs: []string{"quiz-1"}}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joined, err := svc.Join(ctx, first.RoomCode, "", "Troll")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	sess, err := svc.Session(first.SessionID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := sess.BanPermanently("host-1", joined.ParticipantID, "abuse"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	// the ban follows the host into a brand new session
	second, err := svc.CreateSession(ctx, "host-1", content.Selection{QuizIDs: []string{"quiz-1"}}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := svc.Join(ctx, second.RoomCode, joined.ParticipantID, "Troll"); !errors.Is(err, domain.ErrBanned) {
		t.Fatalf("expected host-wide ban, got %v", err)
	}

	// other hosts are unaffected
	other, err := svc.CreateSession(ctx, "host-2", content.Selection{QuizIDs: []string{"quiz-1"}}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if _, err := svc.Join(ctx, other.RoomCode, joined.ParticipantID, "Troll"); err != nil {
		t.Fatalf("ban must not leak across hosts: %v", err)
	}
}

func TestSnapshotFallback(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "host-1", content.Selection{QuizIDs: []string{"quiz-1"}, Mode: content.ModeRange, Start: 0, End: 0}, session.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Questions != 1 {
		t.Fatalf("range selection should narrow the set, got %d", created.Questions)
	}

	snap, err := svc.Snapshot(created.SessionID, "")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != domain.StatusLobby || snap.TotalQuestions != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := svc.Snapshot("missing", ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPersistSummaryRoundtrip(t *testing.T) {
	svc := newTestService(t)

	svc.PersistSummary(domain.SessionSummary{SessionID: "s1", RoomCode: "123456"})

	summary, err := svc.Summary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.RoomCode != "123456" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
