package recorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"formfiller/internal/dom"
	"formfiller/internal/executor"
	"formfiller/internal/models"
)

var (
	ErrSessionNotFound = errors.New("recording session not found")
	ErrSessionBusy     = errors.New("session is recording; stop it before replaying")
	ErrTooManySessions = errors.New("too many open sessions")
)

// Host is a page a session records on and replays into.
type Host interface {
	dom.EventSource
	executor.Page
	URL() string
	Close() error
}

// SessionRequest describes the page a new session opens.
type SessionRequest struct {
	URL    string `json:"url" binding:"required"`
	Device string `json:"device"`
}

// HostFactory opens a Host for a request.
type HostFactory func(ctx context.Context, req SessionRequest) (Host, error)

type Session struct {
	ID        string    `json:"session_id"`
	URL       string    `json:"url"`
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	Status    Status    `json:"status"`
}

type session struct {
	info     Session
	host     Host
	rec      *Recorder
	replayer *executor.Replayer
}

// Manager owns the live recording sessions.
type Manager struct {
	sessions map[string]*session
	opening  int
	mutex    sync.RWMutex

	factory     HostFactory
	opts        Options
	replay      executor.Config
	replayOpts  []executor.Option
	maxSessions int
	hub         *Hub
	log         *zap.Logger
	now         func() time.Time
}

type ManagerOption func(*Manager)

func WithReplayConfig(cfg executor.Config) ManagerOption {
	return func(m *Manager) { m.replay = cfg }
}

// WithReplayerOptions is passed to every session's replayer after the logger.
func WithReplayerOptions(opts ...executor.Option) ManagerOption {
	return func(m *Manager) { m.replayOpts = append(m.replayOpts, opts...) }
}

// WithMaxSessions caps open sessions; each holds a browser. Zero means no cap.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) { m.maxSessions = n }
}

func WithRecorderOptions(opts Options) ManagerOption {
	return func(m *Manager) { m.opts = opts }
}

func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(factory HostFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		factory:  factory,
		replay:   executor.DefaultConfig(),
		hub:      NewHub(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("sessions")
	return m
}

// Hub returns the event hub sessions publish to.
func (m *Manager) Hub() *Hub { return m.hub }

// StartRecording opens a host for req and starts recording on it.
func (m *Manager) StartRecording(ctx context.Context, req SessionRequest) (Session, error) {
	if err := m.reserve(); err != nil {
		return Session{}, err
	}
	host, err := m.factory(ctx, req)
	if err != nil {
		m.release()
		return Session{}, fmt.Errorf("open page: %w", err)
	}

	id := uuid.New().String()
	opts := m.opts
	if opts.Logger == nil {
		opts.Logger = m.log
	}
	user := opts.OnAction
	opts.OnAction = func(a models.Action) {
		if user != nil {
			user(a)
		}
		m.hub.Publish(Event{Type: EventAction, SessionID: id, Action: &a})
	}
	rec := New(opts)
	if err := rec.Start(host); err != nil {
		m.release()
		_ = host.Close()
		return Session{}, err
	}

	now := m.now()
	s := &session{
		info:     Session{ID: id, URL: req.URL, Device: req.Device, CreatedAt: now, LastSeen: now},
		host:     host,
		rec:      rec,
		replayer: executor.NewReplayer(m.replay, append([]executor.Option{executor.WithLogger(m.log)}, m.replayOpts...)...),
	}

	m.mutex.Lock()
	m.opening--
	m.sessions[id] = s
	m.mutex.Unlock()

	m.log.Info("recording session started", zap.String("session", id), zap.String("url", req.URL))
	return s.snapshot(), nil
}

// reserve claims a slot under the cap while the browser opens.
func (m *Manager) reserve() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.maxSessions > 0 && len(m.sessions)+m.opening >= m.maxSessions {
		return fmt.Errorf("%w (limit %d)", ErrTooManySessions, m.maxSessions)
	}
	m.opening++
	return nil
}

func (m *Manager) release() {
	m.mutex.Lock()
	m.opening--
	m.mutex.Unlock()
}

func (m *Manager) get(id string) (*session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Session returns the current view of one session.
func (m *Manager) Session(id string) (Session, error) {
	s, err := m.get(id)
	if err != nil {
		return Session{}, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return s.snapshot(), nil
}

// StopRecording stops capturing and returns the log. The session stays open
// so the log can be saved or replayed; CleanupRecording closes it.
func (m *Manager) StopRecording(id string) ([]models.Action, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	actions := s.rec.Stop()
	m.touch(s)
	m.hub.Publish(Event{Type: EventStopped, SessionID: id})
	return actions, nil
}

// GetRecordingStatus reports the session state and the actions captured so far.
func (m *Manager) GetRecordingStatus(id string) (Status, []models.Action, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, nil, err
	}
	return s.rec.Status(), s.rec.Actions(), nil
}

// Replay plays actions into the session's page. An empty list is a no-op.
func (m *Manager) Replay(ctx context.Context, id string, actions []models.Action) (*executor.Result, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if s.rec.Status().Recording {
		return nil, ErrSessionBusy
	}
	m.touch(s)
	result, err := s.replayer.Play(ctx, s.host, actions, func(p executor.Progress) {
		m.hub.Publish(Event{Type: EventProgress, SessionID: id, Progress: &p})
	})
	if err != nil {
		return nil, err
	}
	m.hub.Publish(Event{Type: EventResult, SessionID: id, Result: result})
	return result, nil
}

// Ping marks the session as alive.
func (m *Manager) Ping(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(s)
	return nil
}

func (m *Manager) touch(s *session) {
	m.mutex.Lock()
	s.info.LastSeen = m.now()
	m.mutex.Unlock()
}

// CleanupRecording stops the session if needed and closes its page.
func (m *Manager) CleanupRecording(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mutex.Unlock()
	if !ok {
		return nil
	}
	s.rec.Stop()
	m.hub.Publish(Event{Type: EventClosed, SessionID: id})
	if err := s.host.Close(); err != nil {
		m.log.Warn("closing page failed", zap.String("session", id), zap.Error(err))
		return err
	}
	return nil
}

// Sweep closes sessions not seen for ttl, stopped or not, and returns how many
// it closed.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)
	var stale []string
	m.mutex.RLock()
	for id, s := range m.sessions {
		if s.info.LastSeen.Before(cutoff) && !s.replayer.Running() {
			stale = append(stale, id)
		}
	}
	m.mutex.RUnlock()

	for _, id := range stale {
		_ = m.CleanupRecording(id)
	}
	if len(stale) > 0 {
		m.log.Info("idle sessions closed", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Sessions lists open sessions, oldest first.
func (m *Manager) Sessions() []Session {
	m.mutex.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	m.mutex.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close shuts every session down.
func (m *Manager) Close() {
	m.mutex.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mutex.RUnlock()
	for _, id := range ids {
		_ = m.CleanupRecording(id)
	}
}

func (s *session) snapshot() Session {
	info := s.info
	info.Status = s.rec.Status()
	return info
}
