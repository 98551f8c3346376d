package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/models"
	"github.com/google/uuid"
)

// Backend is the question-answering server as seen by a session.
type Backend interface {
	Ask(ctx context.Context, question string) (models.ChatResponse, error)
	Health(ctx context.Context) (models.Health, error)
}

// Config holds the tunables of a session.
type Config struct {
	// BackendURL is only used to tell the user where the unreachable server was expected.
	BackendURL string
	// DefaultModel labels answers whose response names no model.
	DefaultModel string
	// MaxInputLength caps the number of characters of a question.
	MaxInputLength int
	// PreRequestDelay is waited before every question so the typing indicator doesn't flash.
	PreRequestDelay time.Duration
	// QueryTimeout bounds a single question.
	QueryTimeout time.Duration
	// QuickQuestions are the canned questions offered as shortcuts.
	QuickQuestions []string
}

// Session owns the chat state of one mounted page. All methods are safe for concurrent use. Every
// change is reported to the notify function with the new snapshot; notify runs under the session
// lock so snapshots are delivered in order, and it must not call back into the session.
type Session struct {
	id      string
	cfg     Config
	backend Backend
	notify  func(State)
	logger  *slog.Logger

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	state State
}

const errLoggerKey = "err"

const (
	// DefaultPreRequestDelay is the cosmetic pause before a question is sent.
	DefaultPreRequestDelay = 500 * time.Millisecond
	// DefaultQueryTimeout bounds a question, longer than the client's default.
	DefaultQueryTimeout = 45 * time.Second
)

// DefaultQuickQuestions are offered when the configuration names none.
var DefaultQuickQuestions = []string{
	"How many students are there?",
	"Show all students in Data Science class",
	"What is the average marks?",
	"List students sorted by marks",
}

// DefaultConfig returns the configuration matching the compiled-in behavior of the widget.
func DefaultConfig() Config {
	return Config{
		BackendURL:      "http://localhost:8000",
		DefaultModel:    models.DefaultModelLabel,
		MaxInputLength:  MaxInputLength,
		PreRequestDelay: DefaultPreRequestDelay,
		QueryTimeout:    DefaultQueryTimeout,
		QuickQuestions:  DefaultQuickQuestions,
	}
}

// NewSession creates a mounted session holding NewState. A nil notify is allowed.
func NewSession(id string, backend Backend, cfg Config, notify func(State), logger *slog.Logger) *Session {
	if notify == nil {
		notify = func(State) {}
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = MaxInputLength
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = models.DefaultModelLabel
	}

	s := &Session{
		id:      id,
		cfg:     cfg,
		backend: backend,
		notify:  notify,
		logger:  logger.With(slog.String("module", "chat"), slog.String("sessionID", id)),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	s.state = NewState(s.now())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mount runs the one-shot health probe. Only the first call probes; the others return immediately.
// It blocks until the probe resolves.
func (s *Session) Mount(ctx context.Context) {
	if _, ok := s.transition(func(st State) (State, bool) { return st.BeginHealthCheck() }); !ok {
		return
	}

	h, err := s.backend.Health(ctx)
	switch {
	case err != nil:
		s.logger.Error("Health check failed", slog.String(errLoggerKey, err.Error()))
	case !h.Healthy():
		s.logger.Warn("Backend reported unhealthy",
			slog.String("api", h.API),
			slog.String("ollama", h.Ollama),
			slog.String("database", h.Database))
	}

	now := s.now()
	s.transition(func(st State) (State, bool) {
		return st.ResolveHealth(h, err, s.cfg.BackendURL, now), true
	})
}

// Submit appends input as a user message and marks the session as awaiting the answer. The caller
// must follow a successful Submit with Answer for the same input. On error nothing changes and no
// request may be issued.
func (s *Session) Submit(input string) (models.Message, error) {
	var (
		msg models.Message
		err error
	)
	id, now := s.newID(), s.now()
	s.transition(func(st State) (State, bool) {
		st, msg, err = st.Submit(input, id, s.cfg.MaxInputLength, now)
		return st, err == nil
	})
	return msg, err
}

// Answer waits the pre-request delay, asks the backend, and appends the resulting bot message. The
// session is back in PhaseIdle when Answer returns, whatever the outcome, a panicking backend
// included. It does nothing unless the session awaits an answer.
func (s *Session) Answer(ctx context.Context, question string) {
	if s.State().Phase != PhaseAwaitingResponse {
		return
	}

	resolved := false
	defer func() {
		if resolved {
			return
		}
		if r := recover(); r != nil {
			s.logger.Error("Answer panicked", slog.String("panic", fmt.Sprint(r)))
		}
		s.resolveAnswer(models.ChatResponse{}, errAborted)
	}()

	if err := sleep(ctx, s.cfg.PreRequestDelay); err != nil {
		s.resolveAnswer(models.ChatResponse{}, err)
		resolved = true
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	res, err := s.backend.Ask(ctx, question)
	if err != nil {
		s.logger.Error("Failed to answer question",
			slog.String("question", question),
			slog.String(errLoggerKey, err.Error()))
	}
	s.resolveAnswer(res, err)
	resolved = true
}

// SelectQuickQuestion copies the i-th quick question into the input buffer and returns it.
func (s *Session) SelectQuickQuestion(i int) (string, error) {
	var (
		q   string
		err error
	)
	s.transition(func(st State) (State, bool) {
		st, err = st.SelectQuickQuestion(s.cfg.QuickQuestions, i)
		q = st.Input
		return st, err == nil
	})
	return q, err
}

func (s *Session) resolveAnswer(res models.ChatResponse, err error) {
	id, now := s.newID(), s.now()
	s.transition(func(st State) (State, bool) {
		return st.ResolveAnswer(res, err, id, s.cfg.DefaultModel, now), true
	})
}

// transition applies fn under the lock and, when fn reports a change, notifies with the new state.
func (s *Session) transition(fn func(State) (State, bool)) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.state)
	if !changed {
		return s.state, false
	}
	next.Version = s.state.Version + 1
	s.state = next
	s.notify(next)
	return next, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
