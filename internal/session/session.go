// Package session implements the live-session engine: one state machine per
// running quiz, the answer intake and leaderboard aggregation, and the
// registry that owns session lifetimes. All mutation of one session is
// serialized behind its mutex; timers re-enter through the same lock and
// carry a generation token so stale callbacks cancel themselves.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
)

// Timing holds the engine-level timing knobs shared by every session.
type Timing struct {
	Countdown    time.Duration
	DisplayDelay time.Duration
	Freeze       time.Duration
	AnswerGrace  time.Duration
	Alpha        float64
}

// DefaultTiming mirrors the classic live-quiz pacing: 3s countdown, 3s
// question display before answers open, 1s score freeze, then linear decay.
func DefaultTiming() Timing {
	return Timing{
		Countdown:    3 * time.Second,
		DisplayDelay: 3 * time.Second,
		Freeze:       time.Second,
		AnswerGrace:  500 * time.Millisecond,
		Alpha:        scoring.DefaultAlpha,
	}
}

// Settings are the host-configurable flags, snapshotted when the quiz starts.
type Settings struct {
	HideLeaderboard bool `json:"hideLeaderboard"`
	JoiningOpen     bool `json:"joiningOpen"`
	ShowPIN         bool `json:"showPin"`
}

// DefaultSettings keeps joining open and the PIN visible.
func DefaultSettings() Settings {
	return Settings{JoiningOpen: true, ShowPIN: true}
}

type participantState struct {
	p        domain.Participant
	removed  bool
	scoreSeq uint64
	answers  map[int]*domain.AnswerRecord
}

type questionWindow struct {
	openedAt  time.Time
	timeLimit time.Duration
	accepting bool
}

// Session owns one live quiz. Its participants and answer records are
// private to it; everything reaches it through the exported methods, which
// all serialize on one mutex.
type Session struct {
	id     string
	code   string
	hostID string

	clock clockwork.Clock
	sink  EventSink
	log   zerolog.Logger

	// registry hooks, set at creation, never changed afterwards
	permaBan func(participantID string)
	onEnded  func(summary domain.SessionSummary)

	mu           sync.Mutex
	status       domain.SessionStatus
	questions    []domain.Question
	pending      Settings
	active       Settings
	timing       Timing
	current      int
	window       questionWindow
	participants map[string]*participantState
	bans         map[string]struct{}
	stats        []domain.QuestionStats
	generation   uint64
	scoreClock   uint64
	timer        clockwork.Timer
}

func newSession(id, code, hostID string, questions []domain.Question, settings Settings, timing Timing, clock clockwork.Clock, sink EventSink, log zerolog.Logger) *Session {
	return &Session{
		id:           id,
		code:         code,
		hostID:       hostID,
		clock:        clock,
		sink:         sink,
		log:          log.With().Str("session_id", id).Logger(),
		status:       domain.StatusLobby,
		questions:    questions,
		pending:      settings,
		active:       settings,
		timing:       timing,
		current:      -1,
		participants: make(map[string]*participantState),
		bans:         make(map[string]struct{}),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Code returns the human-enterable room code.
func (s *Session) Code() string { return s.code }

// HostID returns the creating host's subject id.
func (s *Session) HostID() string { return s.hostID }

// Status returns the current lifecycle phase.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Join registers a participant or resumes an existing one. Rejoining with a
// known id is always allowed while the session lives, so disconnected
// players can come back mid-question.
func (s *Session) Join(participantID, displayName string) (StateEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return StateEvent{}, domain.ErrJoiningClosed
	}
	if _, banned := s.bans[participantID]; banned {
		return StateEvent{}, domain.ErrBanned
	}

	if p, ok := s.participants[participantID]; ok && !p.removed {
		if displayName != "" {
			p.p.DisplayName = displayName
		}
		p.p.Connected = true
	} else {
		if s.status != domain.StatusLobby && !s.active.JoiningOpen {
			return StateEvent{}, domain.ErrJoiningClosed
		}
		if ok {
			// returning after a kick: same identity, prior answers kept
			p.removed = false
			p.p.Connected = true
			if displayName != "" {
				p.p.DisplayName = displayName
			}
		} else {
			s.participants[participantID] = &participantState{
				p: domain.Participant{
					ID:          participantID,
					DisplayName: displayName,
					Connected:   true,
				},
				answers: make(map[int]*domain.AnswerRecord),
			}
		}
	}

	s.sink.Broadcast(s.id, s.snapshotLocked(""))
	return s.snapshotLocked(participantID), nil
}

// Leave removes a participant from the roster. Their answer records stay.
func (s *Session) Leave(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok || p.removed {
		return
	}
	p.removed = true
	p.p.Connected = false
	s.sink.Broadcast(s.id, s.snapshotLocked(""))
}

// SetConnected flags a participant's transport state without removing them,
// so a reconnect can resume the same identity and score.
func (s *Session) SetConnected(participantID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok || p.removed || p.p.Connected == connected {
		return
	}
	p.p.Connected = connected
	s.sink.Broadcast(s.id, s.snapshotLocked(""))
	if !connected && s.status == domain.StatusQuestion && s.window.accepting && s.allConnectedAnsweredLocked() {
		s.closeQuestionLocked()
	}
}

// UpdateSettings stages new host settings. The active configuration is
// snapshotted at start; in the lobby changes apply immediately.
func (s *Session) UpdateSettings(actorID string, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	if s.status == domain.StatusEnded {
		return domain.ErrInvalidState
	}
	s.pending = settings
	if s.status == domain.StatusLobby {
		s.active = settings
	}
	return nil
}

// Start moves the session from lobby into the countdown.
func (s *Session) Start(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	if s.status != domain.StatusLobby {
		return domain.ErrInvalidState
	}
	if len(s.questions) == 0 {
		return fmt.Errorf("start with no questions: %w", domain.ErrInvalidCommand)
	}

	s.active = s.pending
	s.status = domain.StatusCountdown
	s.current = -1
	gen := s.bumpGenerationLocked()

	s.sink.Broadcast(s.id, CountdownEvent{Count: int(s.timing.Countdown.Seconds())})
	s.armTimerLocked(s.timing.Countdown, gen, s.countdownExpired)
	return nil
}

// Next advances the session: it closes an open question, or moves from the
// results into the next question or the podium.
func (s *Session) Next(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	switch s.status {
	case domain.StatusQuestion:
		s.closeQuestionLocked()
		return nil
	case domain.StatusResults:
		if s.current >= len(s.questions)-1 {
			s.showPodiumLocked()
			return nil
		}
		s.openQuestionLocked()
		return nil
	default:
		return domain.ErrInvalidState
	}
}

// EndQuestion closes the current question window ahead of its timer.
func (s *Session) EndQuestion(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	if s.status != domain.StatusQuestion {
		return domain.ErrInvalidState
	}
	s.closeQuestionLocked()
	return nil
}

// End terminates the session from any state and publishes the final
// leaderboard. The summary hook runs outside the session lock.
func (s *Session) End(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	if s.status == domain.StatusEnded {
		return domain.ErrInvalidState
	}
	s.endLocked()
	return nil
}

// Replay resets scores and returns to the lobby with the same question set.
func (s *Session) Replay(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	if s.status != domain.StatusTop3 {
		return domain.ErrInvalidState
	}

	s.bumpGenerationLocked()
	s.status = domain.StatusLobby
	s.current = -1
	s.window = questionWindow{}
	s.stats = nil
	s.scoreClock = 0
	for _, p := range s.participants {
		p.p.Score = 0
		p.scoreSeq = 0
		p.answers = make(map[int]*domain.AnswerRecord)
	}
	s.active = s.pending

	s.sink.Broadcast(s.id, ReplayEvent{})
	s.sink.Broadcast(s.id, s.snapshotLocked(""))
	return nil
}

// Kick removes a participant from the current session. They may rejoin
// later unless also banned.
func (s *Session) Kick(actorID, participantID, reason string) error {
	return s.remove(actorID, participantID, KickedEvent{Reason: reason})
}

// BanFromSession removes a participant and blocks them from rejoining this
// session.
func (s *Session) BanFromSession(actorID, participantID, reason string) error {
	s.mu.Lock()
	if actorID != s.hostID {
		s.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	s.bans[participantID] = struct{}{}
	s.mu.Unlock()
	return s.remove(actorID, participantID, BannedFromSessionEvent{Reason: reason})
}

// BanPermanently removes a participant and blocks them from every session
// created by this host.
func (s *Session) BanPermanently(actorID, participantID, reason string) error {
	s.mu.Lock()
	if actorID != s.hostID {
		s.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	s.bans[participantID] = struct{}{}
	hook := s.permaBan
	s.mu.Unlock()
	if hook != nil {
		hook(participantID)
	}
	return s.remove(actorID, participantID, BannedPermanentlyEvent{Reason: reason})
}

func (s *Session) remove(actorID, participantID string, notice Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actorID != s.hostID {
		return domain.ErrNotAuthorized
	}
	p, ok := s.participants[participantID]
	if !ok || p.removed {
		return domain.ErrParticipantNotFound
	}
	p.removed = true
	p.p.Connected = false

	// the notice must reach the target before their connection dies
	s.sink.SendTo(s.id, participantID, notice)
	s.sink.Disconnect(s.id, participantID, ForceDisconnectEvent{Reason: notice.EventType()})
	s.sink.Broadcast(s.id, s.snapshotLocked(""))

	if s.status == domain.StatusQuestion && s.window.accepting && s.allConnectedAnsweredLocked() {
		s.closeQuestionLocked()
	}
	return nil
}

// Snapshot returns the idempotent state view for one participant, used on
// bind and reconnect, and for the polling fallback.
func (s *Session) Snapshot(participantID string) StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(participantID)
}

// Leaderboard returns the current canonical ranking.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked(-1)
}

// Rank returns the 1-based leaderboard position of a participant.
func (s *Session) Rank(participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.leaderboardLocked(-1).Entries {
		if e.ParticipantID == participantID {
			return i + 1, nil
		}
	}
	return 0, domain.ErrParticipantNotFound
}

// --- transitions, all called with s.mu held ---

func (s *Session) bumpGenerationLocked() uint64 {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.generation
}

func (s *Session) armTimerLocked(d time.Duration, gen uint64, fn func(gen uint64)) {
	s.timer = s.clock.AfterFunc(d, func() { fn(gen) })
}

func (s *Session) countdownExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.status != domain.StatusCountdown {
		return
	}
	s.openQuestionLocked()
}

func (s *Session) questionExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.status != domain.StatusQuestion || !s.window.accepting {
		return
	}
	s.closeQuestionLocked()
}

func (s *Session) openQuestionLocked() {
	if s.window.accepting {
		// two open windows would corrupt scoring; fail the session loudly
		s.log.Error().Int("question", s.current).Msg("question window already open, forcing session end")
		s.endLocked()
		return
	}

	s.current++
	q := s.questions[s.current]
	gen := s.bumpGenerationLocked()
	now := s.clock.Now()

	s.window = questionWindow{
		openedAt:  now,
		timeLimit: q.TimeLimit(),
		accepting: true,
	}
	s.status = domain.StatusQuestion

	s.sink.Broadcast(s.id, QuestionStartEvent{
		Index:           s.current,
		TotalQuestions:  len(s.questions),
		Question:        viewOf(q),
		StartTimeMs:     now.UnixMilli(),
		DisplayDelaySec: int(s.timing.DisplayDelay.Seconds()),
	})

	s.armTimerLocked(s.timing.DisplayDelay+q.TimeLimit()+s.timing.AnswerGrace, gen, s.questionExpired)
}

func (s *Session) closeQuestionLocked() {
	s.window.accepting = false
	s.bumpGenerationLocked()
	s.status = domain.StatusResults

	q := s.questions[s.current]
	st := domain.QuestionStats{QuestionIndex: s.current, QuestionID: q.ID}
	for _, p := range s.participants {
		if rec, ok := p.answers[s.current]; ok {
			st.Answered++
			if rec.Correct {
				st.Correct++
			}
		}
	}
	s.stats = append(s.stats, st)

	ev := QuestionEndEvent{
		QuestionIndex: s.current,
		CorrectAnswer: correctIndices(q),
		Leaderboard:   s.leaderboardLocked(s.current).Entries,
	}
	if s.active.HideLeaderboard && s.current < len(s.questions)-1 {
		ev.Leaderboard = nil
	}
	s.sink.Broadcast(s.id, ev)
}

func (s *Session) showPodiumLocked() {
	s.bumpGenerationLocked()
	s.status = domain.StatusTop3
	s.sink.Broadcast(s.id, Top3Event{Leaderboard: s.leaderboardLocked(-1).TopN(3)})
}

func (s *Session) endLocked() {
	s.bumpGenerationLocked()
	s.window.accepting = false
	s.status = domain.StatusEnded

	lb := s.leaderboardLocked(-1)
	s.sink.Broadcast(s.id, EndEvent{Leaderboard: lb.Entries})

	if s.onEnded != nil {
		summary := domain.SessionSummary{
			SessionID:   s.id,
			RoomCode:    s.code,
			EndedAt:     s.clock.Now(),
			Leaderboard: lb,
			Stats:       append([]domain.QuestionStats(nil), s.stats...),
		}
		hook := s.onEnded
		go hook(summary)
	}
}

// --- helpers, called with s.mu held ---

func (s *Session) connectedCountLocked() int {
	n := 0
	for _, p := range s.participants {
		if !p.removed && p.p.Connected {
			n++
		}
	}
	return n
}

func (s *Session) answeredCountLocked() int {
	n := 0
	for _, p := range s.participants {
		if p.removed {
			continue
		}
		if _, ok := p.answers[s.current]; ok {
			n++
		}
	}
	return n
}

func (s *Session) allConnectedAnsweredLocked() bool {
	connected, answered := 0, 0
	for _, p := range s.participants {
		if p.removed || !p.p.Connected {
			continue
		}
		connected++
		if _, ok := p.answers[s.current]; ok {
			answered++
		}
	}
	return connected > 0 && answered == connected
}

// leaderboardLocked builds the canonical ranking: score descending, ties
// broken by who reached their score first, then by participant id.
// gainIndex >= 0 annotates each entry with the points won on that question.
func (s *Session) leaderboardLocked(gainIndex int) domain.Leaderboard {
	type ranked struct {
		entry domain.LeaderboardEntry
		seq   uint64
	}
	rows := make([]ranked, 0, len(s.participants))
	for _, p := range s.participants {
		if p.removed {
			continue
		}
		e := domain.LeaderboardEntry{
			ParticipantID: p.p.ID,
			DisplayName:   p.p.DisplayName,
			Score:         p.p.Score,
		}
		if gainIndex >= 0 {
			if rec, ok := p.answers[gainIndex]; ok {
				e.ScoreGain = rec.Points
			}
		}
		rows = append(rows, ranked{entry: e, seq: p.scoreSeq})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		if rows[i].seq != rows[j].seq {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].entry.ParticipantID < rows[j].entry.ParticipantID
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}
	return domain.Leaderboard{
		SessionID: s.id,
		Entries:   entries,
		UpdatedAt: s.clock.Now(),
	}
}

func (s *Session) snapshotLocked(participantID string) StateEvent {
	ev := StateEvent{
		SessionID:      s.id,
		Status:         s.status,
		QuestionIndex:  s.current,
		TotalQuestions: len(s.questions),
		ServerTimeMs:   s.clock.Now().UnixMilli(),
	}
	if s.active.ShowPIN {
		ev.RoomCode = s.code
	}
	if s.status == domain.StatusQuestion || s.status == domain.StatusResults {
		view := viewOf(s.questions[s.current])
		ev.Question = &view
		ev.QuestionStartMs = s.window.openedAt.UnixMilli()
		ev.AcceptingAnswers = s.window.accepting
		ev.AnsweredCount = s.answeredCountLocked()
	}
	for _, p := range s.participants {
		if !p.removed {
			ev.Participants = append(ev.Participants, p.p)
		}
	}
	sort.Slice(ev.Participants, func(i, j int) bool {
		return ev.Participants[i].ID < ev.Participants[j].ID
	})
	if !s.active.HideLeaderboard || s.status == domain.StatusTop3 || s.status == domain.StatusEnded {
		ev.Leaderboard = s.leaderboardLocked(-1).Entries
	}
	if p, ok := s.participants[participantID]; ok && !p.removed {
		score := p.p.Score
		ev.OwnScore = &score
	}
	return ev
}

func correctIndices(q domain.Question) []int {
	var out []int
	for i := range q.Choices {
		if q.Choices[i].Correct {
			out = append(out, i)
		}
	}
	return out
}
