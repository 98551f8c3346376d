package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
)

// HandleChats processes a question submitted through an HTTP POST request. It accepts the question
// through the "message" form field and the session through the "session_id" field.
//
// An accepted question is appended to the transcript as a user message and answered asynchronously;
// the answer reaches the page through SSE. The response is the re-rendered chatbox, showing the user
// message and the typing indicator.
//
// The function returns 400 for an empty or too long message, 409 while another request is in flight,
// 503 when the backend was found unreachable and 404 for an unknown session. None of these append
// anything or issue any request.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.session(w, r)
	if !ok {
		return
	}

	msg := r.FormValue("message")
	if _, err := sess.Submit(msg); err != nil {
		m.logger.Warn("Submission rejected",
			slog.String("sessionID", sess.ID()),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), submitErrorStatus(err))
		return
	}

	// The answer outlives the request; an abandoned page leaves it running until its timeout.
	go sess.Answer(context.Background(), msg)

	m.renderChatbox(w, sess)
}

// HandleQuickQuestion copies a canned question into the session's input buffer. The "index" form field
// selects the question; its text is returned as plain text for the input box. Nothing is submitted.
func (m Main) HandleQuickQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.session(w, r)
	if !ok {
		return
	}

	idx, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		m.logger.Error("Invalid quick question index", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}

	q, err := sess.SelectQuickQuestion(idx)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, chat.ErrBusy) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(q))
}

// HandleChatbox renders the current chatbox of a session. The page fetches it whenever its event
// stream (re)connects, so no update published while it was disconnected is lost.
func (m Main) HandleChatbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.session(w, r)
	if !ok {
		return
	}
	m.renderChatbox(w, sess)
}

// HandleSSE serves the event stream of a page.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		m.logger.Error("Session ID is required")
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return nil, false
	}

	sess, ok := m.sessions.Session(sessionID)
	if !ok {
		m.logger.Error("Session not found", slog.String("sessionID", sessionID))
		http.Error(w, "Session not found, reload the page", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (m Main) renderChatbox(w http.ResponseWriter, sess *chat.Session) {
	data, err := m.chatboxData(sess.ID(), sess.State())
	if err != nil {
		m.logger.Error("Failed to render messages",
			slog.String("sessionID", sess.ID()),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := m.templates.ExecuteTemplate(w, "chatbox", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, chat.ErrDisconnected):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
