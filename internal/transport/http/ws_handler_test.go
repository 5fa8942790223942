package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"livequiz-service/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()

	log := zerolog.Nop()
	clock := clockwork.NewRealClock()
	hub := NewHub(log)

	summaries := memory.NewSummaryStore()
	var svc *app.Service
	registry := session.NewRegistry(session.RegistryConfig{
		Sink:  hub,
		Clock: clock,
		Timing: session.Timing{
			Countdown:    50 * time.Millisecond,
			DisplayDelay: 0,
			Freeze:       time.Second,
			AnswerGrace:  500 * time.Millisecond,
			Alpha:        0.3,
		},
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
			},
		},
	}), time.Minute)

	tokens := auth.NewJWT("test-secret", time.Hour)
	svc = app.NewService(registry, quizzes, summaries, tokens, log)

	wsHandler := NewWSHandler(svc, hub, tokens, clock, log)
	apiHandler := NewAPIHandler(svc, log)

	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains frames until one of the wanted type arrives. Broadcasts
// interleave with targeted frames, so tests skip what they are not
// asserting on.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
}

func TestWebSocketSessionFlow(t *testing.T) {
	server, _ := newTestServer(t)

	var created app.CreatedSession
	resp := postJSON(t, server.URL+"/sessions", map[string]any{
		"hostId":  "host-1",
		"quizzes": []string{"quiz-1"},
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	if created.RoomCode == "" || created.HostToken == "" {
		t.Fatalf("incomplete create response: %+v", created)
	}

	var joined app.JoinedSession
	postJSON(t, server.URL+"/sessions/join", map[string]any{
		"roomCode":    created.RoomCode,
		"displayName": "Alice",
	}, &joined)
	if joined.Token == "" || joined.ParticipantID == "" {
		t.Fatalf("incomplete join response: %+v", joined)
	}

	hostConn := dialWS(t, server, created.HostToken)
	playerConn := dialWS(t, server, joined.Token)

	// both sockets get the idempotent snapshot on bind
	state := readUntil(t, playerConn, "session_state")
	if state["status"] != string(domain.StatusLobby) {
		t.Fatalf("expected lobby snapshot, got %v", state["status"])
	}
	readUntil(t, hostConn, "session_state")

	if err := hostConn.WriteJSON(map[string]any{"type": "start_session"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, playerConn, "countdown")
	qs := readUntil(t, playerConn, "question_start")
	if qs["index"].(float64) != 0 {
		t.Fatalf("expected first question, got %v", qs)
	}

	if err := playerConn.WriteJSON(map[string]any{
		"type":    "submit_answer",
		"payload": map[string]any{"questionIndex": 0, "selection": []int{1}},
	}); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	result := readUntil(t, playerConn, "answer_result")
	if result["correct"] != true || result["points"].(float64) != 1000 {
		t.Fatalf("expected full freeze-period points, got %v", result)
	}

	// the only connected player answered, so the question closed
	readUntil(t, hostConn, "question_end")

	if err := hostConn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write next: %v", err)
	}
	readUntil(t, playerConn, "top3")

	if err := hostConn.WriteJSON(map[string]any{"type": "end_session"}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	readUntil(t, playerConn, "session_end")
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial failure for bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketPlayerCannotDriveSession(t *testing.T) {
	server, _ := newTestServer(t)

	var created app.CreatedSession
	postJSON(t, server.URL+"/sessions", map[string]any{
		"hostId":  "host-1",
		"quizzes": []string{"quiz-1"},
	}, &created)

	var joined app.JoinedSession
	postJSON(t, server.URL+"/sessions/join", map[string]any{
		"roomCode":    created.RoomCode,
		"displayName": "Mallory",
	}, &joined)

	conn := dialWS(t, server, joined.Token)
	readUntil(t, conn, "session_state")

	if err := conn.WriteJSON(map[string]any{"type": "start_session"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errPayload := readUntil(t, conn, "error")
	if errPayload["code"] != "not_authorized" {
		t.Fatalf("expected not_authorized, got %v", errPayload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errPayload = readUntil(t, conn, "error")
	if errPayload["code"] != "invalid_command" {
		t.Fatalf("expected invalid_command, got %v", errPayload)
	}
}

func TestWebSocketKickDeliversNoticeThenCloses(t *testing.T) {
	server, _ := newTestServer(t)

	var created app.CreatedSession
	postJSON(t, server.URL+"/sessions", map[string]any{
		"hostId":  "host-1",
		"quizzes": []string{"quiz-1"},
	}, &created)

	var joined app.JoinedSession
	postJSON(t, server.URL+"/sessions/join", map[string]any{
		"roomCode":    created.RoomCode,
		"displayName": "Alice",
	}, &joined)

	hostConn := dialWS(t, server, created.HostToken)
	playerConn := dialWS(t, server, joined.Token)
	readUntil(t, hostConn, "session_state")
	readUntil(t, playerConn, "session_state")

	if err := hostConn.WriteJSON(map[string]any{
		"type":    "kick_player",
		"payload": map[string]any{"participantId": joined.ParticipantID, "reason": "afk"},
	}); err != nil {
		t.Fatalf("write kick: %v", err)
	}

	payload := readUntil(t, playerConn, "kicked")
	if payload["reason"] != "afk" {
		t.Fatalf("expected kick reason, got %v", payload)
	}
	readUntil(t, playerConn, "force_disconnect")

	// the server tears the socket down after the final frame
	_ = playerConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var discarded json.RawMessage
	if err := playerConn.ReadJSON(&discarded); err == nil {
		t.Fatalf("expected closed connection after force_disconnect")
	}
}

func TestClockSyncResponseEchoesClientTimestamp(t *testing.T) {
	server, _ := newTestServer(t)

	var created app.CreatedSession
	postJSON(t, server.URL+"/sessions", map[string]any{
		"hostId":  "host-1",
		"quizzes": []string{"quiz-1"},
	}, &created)

	conn := dialWS(t, server, created.HostToken)
	readUntil(t, conn, "session_state")

	if err := conn.WriteJSON(map[string]any{
		"type":    "clock_sync_request",
		"payload": map[string]any{"clientSentMs": 123456789},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload := readUntil(t, conn, "clock_sync_response")
	if payload["clientSentMs"].(float64) != 123456789 {
		t.Fatalf("response must echo the client timestamp, got %v", payload)
	}
	if payload["serverTimeMs"].(float64) <= 0 {
		t.Fatalf("expected server timestamp, got %v", payload)
	}

	// closing the round with a report yields an offset estimate
	serverMs := int64(payload["serverTimeMs"].(float64))
	if err := conn.WriteJSON(map[string]any{
		"type": "clock_sync_report",
		"payload": map[string]any{
			"clientSentMs":     serverMs - 2050, // client clock 2s behind, 100ms round trip
			"serverTimeMs":     serverMs,
			"clientReceivedMs": serverMs - 1950,
		},
	}); err != nil {
		t.Fatalf("write report: %v", err)
	}
	state := readUntil(t, conn, "clock_sync_state")
	if state["synced"] != true {
		t.Fatalf("expected synced estimator, got %v", state)
	}
	if state["offsetMs"].(float64) != 2000 || state["rttMs"].(float64) != 100 {
		t.Fatalf("expected 2s offset and 100ms rtt, got %v", state)
	}
}
