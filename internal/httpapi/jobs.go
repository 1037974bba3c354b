package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/assistant"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/go-chi/chi/v5"
)

const consentRequired = "consent_required"

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type jobStatus struct {
	JobID     string   `json:"job_id"`
	Status    string   `json:"status"`
	Chunks    []string `json:"chunks,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func statusOf(h *queue.Handle) jobStatus {
	select {
	case <-h.Done():
	default:
		return jobStatus{JobID: h.ID(), Status: "pending"}
	}

	res := h.Result()
	if res.Err != nil {
		kind := assistant.ErrorKind(res.Err)
		return jobStatus{JobID: h.ID(), Status: "failed", ErrorKind: kind, Message: assistant.FriendlyMessage(kind)}
	}
	return jobStatus{JobID: h.ID(), Status: "done", Chunks: res.Chunks}
}

// submitStatus maps a Submit error to an HTTP status.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, queue.ErrDraining):
		return http.StatusServiceUnavailable
	case errors.Is(err, queue.ErrInvalidJob):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// checkConsent writes a 403 and returns false until the user accepted the
// terms.
func (s *Server) checkConsent(w http.ResponseWriter, r *http.Request, user string) bool {
	ok, err := s.sessions.HasAcceptedTerms(r.Context(), user)
	if err != nil {
		kind := assistant.ErrorKind(err)
		s.log.Error(r.Context(), "consent lookup failed", "error_kind", kind)
		respondErrorKind(w, http.StatusInternalServerError, kind, assistant.FriendlyMessage(kind))
		return false
	}
	if !ok {
		respondErrorKind(w, http.StatusForbidden, consentRequired, "terms of use must be accepted first")
		return false
	}
	return true
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, job queue.Job) {
	h, err := s.queue.Submit(job)
	if err != nil {
		kind := assistant.ErrorKind(err)
		respondErrorKind(w, submitStatus(err), kind, assistant.FriendlyMessage(kind))
		return
	}
	s.jobs.add(h, job.UserID)
	respondJSON(w, http.StatusAccepted, submitResponse{JobID: h.ID(), Status: "queued"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := userIDFrom(r.Context())
	if !s.checkConsent(w, r, user) {
		return
	}

	var (
		job queue.Job
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		job, err = s.parseMultipart(w, r)
	} else {
		job, err = parseJSONQuestion(r)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job.UserID = user
	s.submit(w, r, job)
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (queue.Job, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return queue.Job{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	job := queue.Job{Question: r.FormValue("question")}
	if v := r.FormValue("fresh"); v != "" {
		fresh, err := strconv.ParseBool(v)
		if err != nil {
			return queue.Job{}, fmt.Errorf("invalid fresh flag: %w", err)
		}
		job.Fresh = fresh
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			job.Kind = ai.KindText
			return job, nil
		}
		return queue.Job{}, fmt.Errorf("invalid file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return queue.Job{}, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return queue.Job{}, fmt.Errorf("file exceeds %d bytes", s.maxUpload)
	}

	job.Data = data
	job.Mime = header.Header.Get("Content-Type")
	if job.Mime == "" || job.Mime == "application/octet-stream" {
		job.Mime = http.DetectContentType(data)
	}
	job.Mime, _, _ = strings.Cut(job.Mime, ";")

	if k := r.FormValue("kind"); k != "" {
		kind, err := ai.ParseKind(k)
		if err != nil {
			return queue.Job{}, err
		}
		job.Kind = kind
	} else {
		job.Kind = ai.KindFromMime(job.Mime)
	}
	return job, nil
}

func parseJSONQuestion(r *http.Request) (queue.Job, error) {
	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return queue.Job{}, errors.New("invalid request body")
	}
	if strings.TrimSpace(payload.Question) == "" {
		return queue.Job{}, errors.New("question is required")
	}
	return queue.Job{Kind: ai.KindText, Question: payload.Question}, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	user := userIDFrom(r.Context())
	h, ok := s.jobs.get(chi.URLParam(r, "id"), user)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			respondError(w, http.StatusBadRequest, "invalid wait duration")
			return
		}
		if d > s.maxWait {
			d = s.maxWait
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		_, _ = h.Wait(ctx)
		cancel()
	}

	st := statusOf(h)
	code := http.StatusOK
	if st.Status == "pending" {
		code = http.StatusAccepted
	}
	respondJSON(w, code, st)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	user := userIDFrom(r.Context())
	id := chi.URLParam(r, "id")
	if _, ok := s.jobs.get(id, user); !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": s.queue.Cancel(id)})
}
