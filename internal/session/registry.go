package session

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// DefaultDrainTimeout keeps an ended session readable for late final
// leaderboard fetches before eviction.
const DefaultDrainTimeout = 2 * time.Minute

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	Sink         EventSink
	Clock        clockwork.Clock
	Timing       Timing
	DrainTimeout time.Duration
	Logger       zerolog.Logger
	// OnSummary is invoked once per session after it ends, off the
	// session lock, with the final leaderboard and per-question stats.
	OnSummary func(summary domain.SessionSummary)
}

// Registry is the process-wide map from session id and room code to the
// running session. It is the only structure shared across connection
// handling goroutines; everything inside a session stays private to it.
type Registry struct {
	sink      EventSink
	clock     clockwork.Clock
	timing    Timing
	drain     time.Duration
	log       zerolog.Logger
	onSummary func(domain.SessionSummary)

	mu       sync.RWMutex
	sessions map[string]*Session
	codes    map[string]string // room code -> session id
	hostBans map[string]map[string]struct{}
	rnd      *rand.Rand
}

func NewRegistry(cfg RegistryConfig) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	timing := cfg.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	return &Registry{
		sink:      cfg.Sink,
		clock:     clock,
		timing:    timing,
		drain:     drain,
		log:       cfg.Logger,
		onSummary: cfg.OnSummary,
		sessions:  make(map[string]*Session),
		codes:     make(map[string]string),
		hostBans:  make(map[string]map[string]struct{}),
		rnd:       rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// Create builds and registers a new session for a host.
func (r *Registry) Create(hostID string, questions []domain.Question, settings Settings) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("create session with no questions: %w", domain.ErrInvalidCommand)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	code := r.uniqueCodeLocked()

	sess := newSession(id, code, hostID, questions, settings, r.timing, r.clock, r.sink, r.log)
	sess.permaBan = func(participantID string) {
		r.BanPermanently(hostID, participantID)
	}
	sess.onEnded = func(summary domain.SessionSummary) {
		if r.onSummary != nil {
			r.onSummary(summary)
		}
		r.scheduleEviction(id)
	}

	r.sessions[id] = sess
	r.codes[code] = id

	r.log.Info().Str("session_id", id).Str("room_code", code).Str("host_id", hostID).Msg("session created")
	return sess, nil
}

// Get looks a session up by id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// GetByCode looks a session up by its room code.
func (r *Registry) GetByCode(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.codes[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// BanPermanently records a host-scoped ban spanning every session created
// by that host.
func (r *Registry) BanPermanently(hostID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hostBans[hostID] == nil {
		r.hostBans[hostID] = make(map[string]struct{})
	}
	r.hostBans[hostID][participantID] = struct{}{}
}

// IsBannedByHost reports whether a participant is permanently banned by a
// host.
func (r *Registry) IsBannedByHost(hostID, participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, banned := r.hostBans[hostID][participantID]
	return banned
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// scheduleEviction removes an ended session after the drain timeout so late
// readers can still fetch the final leaderboard.
func (r *Registry) scheduleEviction(sessionID string) {
	r.clock.AfterFunc(r.drain, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		sess, ok := r.sessions[sessionID]
		if !ok {
			return
		}
		delete(r.sessions, sessionID)
		delete(r.codes, sess.code)
		r.log.Info().Str("session_id", sessionID).Msg("session evicted after drain")
	})
}

// uniqueCodeLocked draws 6-digit room codes until one is free among the
// currently registered sessions.
func (r *Registry) uniqueCodeLocked() string {
	for {
		code := fmt.Sprintf("%06d", r.rnd.Intn(1000000))
		if _, taken := r.codes[code]; !taken {
			return code
		}
	}
}
