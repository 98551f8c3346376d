package chat

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/models"
)

// Phase is the lifecycle phase of a chat session. A session is in exactly one phase at a time, so a
// health probe and a question can never be in flight together.
type Phase int

const (
	// PhaseIdle accepts submissions.
	PhaseIdle Phase = iota
	// PhaseHealthChecking waits for the one-shot health probe.
	PhaseHealthChecking
	// PhaseAwaitingResponse waits for the answer to the last submitted question.
	PhaseAwaitingResponse
)

// State is a snapshot of a chat session. Transitions are methods returning a new State; the receiver
// is never modified and message slices are never shared for writing.
type State struct {
	Phase        Phase
	Connectivity models.Connectivity
	Messages     []models.Message

	// Input is the input buffer, filled by quick questions and cleared on submit.
	Input string

	// Version grows by one with every change applied by a Session, so renderings of older
	// snapshots can be told apart.
	Version uint64
}

const (
	// WelcomeMessageID identifies the seeded welcome message, rewritten once after a healthy probe.
	WelcomeMessageID = "welcome"
	// HealthErrorMessageID identifies the notice appended when the probe fails.
	HealthErrorMessageID = "api-error"
	// MaxInputLength is the maximum number of characters of a question.
	MaxInputLength = 500
)

var (
	// ErrEmptyInput is returned when the trimmed input is empty.
	ErrEmptyInput = errors.New("message is required")
	// ErrInputTooLong is returned when the input exceeds the configured maximum length.
	ErrInputTooLong = errors.New("message is too long")
	// ErrBusy is returned while a health probe or a question is in flight.
	ErrBusy = errors.New("a request is already in flight")
	// ErrDisconnected is returned when the last health probe failed.
	ErrDisconnected = errors.New("backend is not reachable")
	// ErrUnknownQuickQuestion is returned for an out-of-range quick question.
	ErrUnknownQuickQuestion = errors.New("unknown quick question")

	errAborted     = errors.New("request aborted")
	errEmptyAnswer = errors.New("response carries no query, explanation or result")
)

const (
	welcomeText = "Hello! I'm your SQL Assistant powered by Ollama. " +
		"Ask me questions about students in natural language."
	welcomeStatusText = "Hello! I'm your SQL Assistant powered by Ollama.\n\n" +
		"✅ **System Status:**\n" +
		"• API: Connected\n" +
		"• Model: %s\n" +
		"• Students: %d\n\n" +
		"Ask me questions about students in natural language."
	healthErrorText = "⚠️ Cannot connect to API server. Make sure the backend is running on %s"

	timeoutText     = "Request timed out. Ollama might be processing slowly."
	unavailableText = "Ollama service is not available. Make sure Ollama is running."
	fallbackText    = "Failed to process your request."
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHealthChecking:
		return "health_checking"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// NewState returns the state of a freshly mounted session, seeded with the welcome message.
func NewState(now time.Time) State {
	return State{
		Phase:        PhaseIdle,
		Connectivity: models.ConnectivityUnknown,
		Messages: []models.Message{
			{
				ID:        WelcomeMessageID,
				Sender:    models.SenderBot,
				Text:      welcomeText,
				Timestamp: now,
				Variant:   models.VariantText,
			},
		},
	}
}

// Loading reports whether a question is in flight.
func (s State) Loading() bool {
	return s.Phase == PhaseAwaitingResponse
}

// Typing reports whether the typing indicator is shown. It follows Loading.
func (s State) Typing() bool {
	return s.Phase == PhaseAwaitingResponse
}

// Validate reports why input can't be submitted in this state, or nil if it can.
func (s State) Validate(input string, maxLen int) error {
	switch {
	case s.Connectivity == models.ConnectivityError:
		return ErrDisconnected
	case s.Phase != PhaseIdle:
		return ErrBusy
	case strings.TrimSpace(input) == "":
		return ErrEmptyInput
	case utf8.RuneCountInString(input) > maxLen:
		return ErrInputTooLong
	}
	return nil
}

// BeginHealthCheck moves a freshly mounted state into PhaseHealthChecking. It reports false, leaving
// the state unchanged, once a probe has started or resolved, so a session probes at most once.
func (s State) BeginHealthCheck() (State, bool) {
	if s.Phase != PhaseIdle || s.Connectivity != models.ConnectivityUnknown {
		return s, false
	}
	s.Phase = PhaseHealthChecking
	return s, true
}

// ResolveHealth applies the health probe outcome. Outcomes arriving outside PhaseHealthChecking are
// ignored, which keeps the welcome rewrite to a single occurrence.
//
// A healthy report rewrites the welcome message in place with the reported model and record count.
// An error, or a report where the server or its model backend is down, appends the connection notice
// naming backendURL.
func (s State) ResolveHealth(h models.Health, err error, backendURL string, now time.Time) State {
	if s.Phase != PhaseHealthChecking {
		return s
	}
	s.Phase = PhaseIdle

	if err == nil && h.Healthy() {
		s.Connectivity = models.ConnectivityConnected

		model := h.Model
		if model == "" {
			model = models.DefaultModelLabel
		}
		idx := slices.IndexFunc(s.Messages, func(m models.Message) bool { return m.ID == WelcomeMessageID })
		if idx != -1 {
			welcome := s.Messages[idx]
			welcome.Text = fmt.Sprintf(welcomeStatusText, model, h.StudentCount)
			s.Messages = Upsert(s.Messages, welcome)
		}
		return s
	}

	s.Connectivity = models.ConnectivityError
	s.Messages = Upsert(s.Messages, models.Message{
		ID:        HealthErrorMessageID,
		Sender:    models.SenderBot,
		Text:      fmt.Sprintf(healthErrorText, backendURL),
		Timestamp: now,
		Variant:   models.VariantError,
		Payload:   &models.Payload{Error: "API connection failed"},
	})
	return s
}

// Submit appends a user message holding the raw input, clears the input buffer and moves into
// PhaseAwaitingResponse. On a validation error the state is returned unchanged.
func (s State) Submit(input, id string, maxLen int, now time.Time) (State, models.Message, error) {
	if err := s.Validate(input, maxLen); err != nil {
		return s, models.Message{}, err
	}

	msg := models.Message{
		ID:        id,
		Sender:    models.SenderUser,
		Text:      input,
		Timestamp: now,
		Variant:   models.VariantText,
	}
	s.Messages = Upsert(s.Messages, msg)
	s.Input = ""
	s.Phase = PhaseAwaitingResponse
	return s, msg, nil
}

// ResolveAnswer appends the bot message built from the outcome of a question and returns to
// PhaseIdle. Outside PhaseAwaitingResponse it is a no-op.
func (s State) ResolveAnswer(res models.ChatResponse, err error, id, defaultModel string, now time.Time) State {
	if s.Phase != PhaseAwaitingResponse {
		return s
	}
	s.Phase = PhaseIdle

	if err != nil {
		s.Messages = Upsert(s.Messages, models.Message{
			ID:        id,
			Sender:    models.SenderBot,
			Text:      ErrorText(err),
			Timestamp: now,
			Variant:   models.VariantError,
			Payload:   &models.Payload{Error: err.Error()},
		})
		return s
	}

	// An answer with nothing to show is reported like a failed request.
	if res.SQLQuery == "" && res.Explanation == "" && len(res.Result) == 0 {
		s.Messages = Upsert(s.Messages, models.Message{
			ID:        id,
			Sender:    models.SenderBot,
			Text:      fallbackText,
			Timestamp: now,
			Variant:   models.VariantError,
			Payload:   &models.Payload{Error: errEmptyAnswer.Error()},
		})
		return s
	}

	model := res.ModelUsed
	if model == "" {
		model = defaultModel
	}
	s.Messages = Upsert(s.Messages, models.Message{
		ID:        id,
		Sender:    models.SenderBot,
		Timestamp: now,
		Variant:   models.VariantResponse,
		Payload: &models.Payload{
			ModelInfo:   model,
			SQL:         res.SQLQuery,
			Explanation: res.Explanation,
			Table:       res.Result,
			RowCount:    len(res.Result),
		},
	})
	return s
}

// SelectQuickQuestion copies the i-th question into the input buffer. It never submits, and is
// refused while a question is in flight.
func (s State) SelectQuickQuestion(questions []string, i int) (State, error) {
	if s.Phase == PhaseAwaitingResponse {
		return s, ErrBusy
	}
	if i < 0 || i >= len(questions) {
		return s, ErrUnknownQuickQuestion
	}
	s.Input = questions[i]
	return s, nil
}

// Upsert returns messages with msg in place of the message sharing its ID, or with msg appended when
// no message has that ID. The given slice is never modified.
func Upsert(messages []models.Message, msg models.Message) []models.Message {
	res := make([]models.Message, len(messages), len(messages)+1)
	copy(res, messages)

	idx := slices.IndexFunc(res, func(m models.Message) bool { return m.ID == msg.ID })
	if idx == -1 {
		return append(res, msg)
	}
	res[idx] = msg
	return res
}

// ErrorText classifies a failed question into the text shown to the user: a timeout, the model
// service reported unavailable, or anything else with the server's detail or the raw error.
func ErrorText(err error) string {
	if errors.Is(err, models.ErrRequestTimeout) {
		return timeoutText
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 503 {
			return unavailableText
		}
		if apiErr.Detail != "" {
			return "Error: " + apiErr.Detail
		}
	}

	if errors.Is(err, errAborted) {
		return fallbackText
	}
	return "Error: " + err.Error()
}
