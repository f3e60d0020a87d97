package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/swipemail/swipemail/internal/gmail"
	"github.com/swipemail/swipemail/internal/instrumentation"
	"github.com/swipemail/swipemail/internal/sanitize"
	"github.com/swipemail/swipemail/internal/session"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	client, err := s.newGmailClient(r, sess.AccessToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := gmail.ListOptions{
		LabelID:   r.URL.Query().Get("labelId"),
		PageToken: r.URL.Query().Get("pageToken"),
	}
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if n, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			opts.MaxResults = n
		}
	}
	if raw := r.URL.Query().Get("unreadOnly"); raw != "" {
		unread := raw != "false"
		opts.UnreadOnly = &unread
	}

	start := time.Now()
	result, err := client.ListMessages(r.Context(), opts)
	s.recordProviderCall(r.Context(), "messages.list", err, time.Since(start))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RecordPartialFetchDrops(r.Context(), result.Dropped)

	// Sanitization happens at the display boundary so the stored session
	// and intermediate pipeline never carry rendered HTML.
	for i := range result.Emails {
		view := sanitize.FormatBody(result.Emails[i].RawBody, result.Emails[i].Snippet)
		result.Emails[i].DisplayBody = &view
	}

	writeJSON(w, result)
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	client, err := s.newGmailClient(r, sess.AccessToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	labels, err := client.ListLabels(r.Context())
	s.recordProviderCall(r.Context(), "labels.list", err, time.Since(start))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, labels)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.handleAction(w, r, sess, "messages.markRead", (*gmail.Client).MarkRead)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.handleAction(w, r, sess, "messages.archive", (*gmail.Client).Archive)
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.handleAction(w, r, sess, "messages.star", (*gmail.Client).Star)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, sess *session.Session, operation string, action func(*gmail.Client, context.Context, string) error) {
	messageID := r.URL.Query().Get("messageId")
	if messageID == "" {
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: "messageId is required"})
		return
	}

	client, err := s.newGmailClient(r, sess.AccessToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	err = action(client, r.Context(), messageID)
	s.recordProviderCall(r.Context(), operation, err, time.Since(start))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) recordProviderCall(ctx context.Context, operation string, err error, duration time.Duration) {
	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultError
	}
	s.metrics.RecordProviderCall(ctx, operation, result, duration)
}
