package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	sqlchatui "github.com/MegaGrindStone/sqlchat-web-ui"
	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
	"github.com/MegaGrindStone/sqlchat-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// SessionStore defines the interface for keeping the chat sessions of mounted pages. Sessions are
// only kept in memory; a reloaded page gets a new session and the old one is eventually dropped.
type SessionStore interface {
	Session(id string) (*chat.Session, bool)
	AddSession(sess *chat.Session)
}

// Main handles the core functionality of the chat widget, managing server-sent events, HTML
// templates, and the interactions between the chat sessions and the question-answering backend.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	backend  chat.Backend
	sessions SessionStore
	cfg      chat.Config

	logger *slog.Logger
}

type statusData struct {
	Class string
	Label string
}

type chatboxData struct {
	SessionID    string
	Phase        string
	Connectivity string
	Status       statusData
	Messages     []models.MessageView
	Typing       bool
	Version      uint64

	InputDisabled bool
	SendDisabled  bool
}

// SSE event types for real-time updates.
var chatboxSSEType = sse.Type("chatbox")

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided backend and session store. It initializes the
// SSE server and parses the required HTML templates from the embedded filesystem. Every SSE client
// is subscribed to the default topic and to the topic of the session named by its session_id query.
func NewMain(backend chat.Backend, sessions SessionStore, cfg chat.Config, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		sqlchatui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	if len(cfg.QuickQuestions) == 0 {
		cfg.QuickQuestions = chat.DefaultQuickQuestions
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = chat.MaxInputLength
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				sessionID := s.Req.URL.Query().Get("session_id")
				if _, ok := sessions.Session(sessionID); ok {
					topics = append(topics, sessionTopic(sessionID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		backend:   backend,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger.With(slog.String("module", "main")),
	}, nil
}

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// SSE clients drop events without data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// publishChatbox is the notify function of every session. It runs under the session lock, so it only
// renders the given snapshot and never calls back into the session.
func (m Main) publishChatbox(sessionID string, st chat.State) {
	data, err := m.chatboxData(sessionID, st)
	if err != nil {
		m.logger.Error("Failed to render messages",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "chatbox", data); err != nil {
		m.logger.Error("Failed to execute chatbox template",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: chatboxSSEType,
	}
	msg.AppendData(sb.String())
	if err := m.sseSrv.Publish(&msg, sessionTopic(sessionID)); err != nil {
		m.logger.Error("Failed to publish chatbox",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatboxData(sessionID string, st chat.State) (chatboxData, error) {
	views := make([]models.MessageView, len(st.Messages))
	for i, msg := range st.Messages {
		v, err := models.RenderMessage(msg)
		if err != nil {
			return chatboxData{}, fmt.Errorf("failed to render message %s: %w", msg.ID, err)
		}
		views[i] = v
	}

	disconnected := st.Connectivity == models.ConnectivityError
	return chatboxData{
		SessionID:     sessionID,
		Phase:         st.Phase.String(),
		Connectivity:  string(st.Connectivity),
		Status:        status(st.Connectivity),
		Messages:      views,
		Typing:        st.Typing(),
		Version:       st.Version,
		InputDisabled: st.Loading() || disconnected,
		SendDisabled:  st.Phase != chat.PhaseIdle || disconnected,
	}, nil
}

func status(c models.Connectivity) statusData {
	switch c {
	case models.ConnectivityConnected:
		return statusData{Class: "connected", Label: "✅ Connected"}
	case models.ConnectivityError:
		return statusData{Class: "error", Label: "❌ Disconnected"}
	}
	return statusData{Class: "unknown", Label: "⏳ Checking..."}
}
