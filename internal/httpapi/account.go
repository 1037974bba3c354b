package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/audiodesc/internal/assistant"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/session"
)

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	kind := assistant.ErrorKind(err)
	s.log.Error(r.Context(), msg, "error_kind", kind, "error", err.Error())
	respondErrorKind(w, http.StatusInternalServerError, kind, assistant.FriendlyMessage(kind))
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessions.AcceptTerms(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, "accept terms failed", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.sessions.Preferences(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, "load preferences failed", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var p session.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := s.sessions.SetPreferences(r.Context(), userIDFrom(r.Context()), p)
	if errors.Is(err, session.ErrInvalidPreferences) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, "save preferences failed", err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// handleReset goes through the queue so it cannot overtake the user's
// earlier jobs.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, queue.Job{UserID: userIDFrom(r.Context()), Reset: true})
}

// handleForget cancels the user's queued jobs and deletes every stored
// record of the user.
func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	user := userIDFrom(r.Context())
	for _, id := range s.jobs.ownedBy(user) {
		s.queue.Cancel(id)
	}
	if err := s.sessions.Forget(r.Context(), user); err != nil {
		s.internalError(w, r, "forget user failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
