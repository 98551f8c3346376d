package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
	"github.com/google/uuid"
)

type homePageData struct {
	Chatbox        chatboxData
	QuickQuestions []string
	MaxInputLength int
}

// HandleHome mounts a new chat widget. Every page load creates a fresh session seeded with the
// welcome message, so reloading discards the previous transcript. The one-shot health probe of the
// session starts in the background and its outcome reaches the page through SSE.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := uuid.New().String()
	sess := chat.NewSession(sessionID, m.backend, m.cfg, func(st chat.State) {
		m.publishChatbox(sessionID, st)
	}, m.logger)
	m.sessions.AddSession(sess)

	cb, err := m.chatboxData(sessionID, sess.State())
	if err != nil {
		m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The probe outlives the request on purpose, its result is pushed to the page.
	go sess.Mount(context.Background())

	data := homePageData{
		Chatbox:        cb,
		QuickQuestions: sess.Config().QuickQuestions,
		MaxInputLength: sess.Config().MaxInputLength,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
