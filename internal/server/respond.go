package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/swipemail/swipemail/internal/apperr"
	"github.com/swipemail/swipemail/internal/logging"
)

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps an error onto an HTTP status and a JSON body. Provider
// error bodies are forwarded verbatim so the frontend can surface Google's
// message, everything else collapses to a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)

	body := errorBody{Error: e.Message, Kind: e.Kind.String()}
	if e.Kind == apperr.KindInternal {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			logging.Err(err),
		)
		body.Error = "Internal server error"
	}

	writeJSONStatus(w, e.HTTPStatus(), body)
}
