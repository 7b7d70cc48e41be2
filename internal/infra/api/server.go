package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/usecase"
)

// Server exposes the engine over HTTP: submission, status, the live event
// stream, and the persisted artifacts of a finished job.
type Server struct {
	submit   usecase.SubmissionUseCase
	progress usecase.ProgressUseCase
	log      *zerolog.Logger
	srv      *http.Server
}

func NewServer(port int, submit usecase.SubmissionUseCase, progress usecase.ProgressUseCase, log *zerolog.Logger) *Server {
	s := &Server{submit: submit, progress: progress, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/extractions", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Get("/events", s.handleEvents)
			r.Get("/result", s.handleResult)
			r.Get("/mappings", s.handleMappings)
			r.Post("/cancel", s.handleCancel)
		})
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

type submitRequest struct {
	DocumentID  string `json:"document_id"`
	TenantID    string `json:"tenant_id"`
	Title       string `json:"title"`
	Pages       int    `json:"pages"`
	SizeBytes   int64  `json:"size_bytes"`
	Fingerprint string `json:"fingerprint"`
}

type jobView struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	State       string    `json:"state"`
	Strategy    string    `json:"strategy,omitempty"`
	SubRanges   int       `json:"sub_ranges,omitempty"`
	Partial     bool      `json:"partial"`
	Attempts    int       `json:"attempts"`
	TokensSpent int64     `json:"tokens_spent"`
	CallsMade   int       `json:"calls_made"`
	Cause       string    `json:"cause,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewOf(j *model.ExtractionJob) jobView {
	return jobView{
		ID:          j.ID,
		DocumentID:  j.DocumentID,
		TenantID:    j.TenantID,
		State:       string(j.State),
		Strategy:    string(j.Strategy.Kind),
		SubRanges:   len(j.Strategy.SubRanges),
		Partial:     j.Partial,
		Attempts:    j.Attempts,
		TokensSpent: j.TokensSpent,
		CallsMade:   j.CallsMade,
		Cause:       string(j.Cause),
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

type statusView struct {
	Job    jobView               `json:"job"`
	Events []model.ProgressEvent `json:"events"`
}

type resultView struct {
	JobID      string                  `json:"job_id"`
	Controls   []model.ControlRecord   `json:"controls"`
	Exceptions []model.ExceptionRecord `json:"exceptions,omitempty"`
	CUECs      []model.CUECRecord      `json:"cuecs,omitempty"`
	Gaps       []model.RangeGap        `json:"gaps,omitempty"`
	Partial    bool                    `json:"partial"`
	CreatedAt  time.Time               `json:"created_at"`
}

type mappingView struct {
	ControlID    string   `json:"control_id"`
	ArticleID    string   `json:"article_id,omitempty"`
	Coverage     string   `json:"coverage"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	TableVersion string   `json:"table_version"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	job, err := s.submit.Submit(r.Context(), model.DocumentRef{
		ID:          req.DocumentID,
		TenantID:    req.TenantID,
		Title:       req.Title,
		Pages:       req.Pages,
		SizeBytes:   req.SizeBytes,
		Fingerprint: req.Fingerprint,
		UploadedAt:  time.Now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(job))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.progress.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{Job: viewOf(status.Job), Events: status.Events})
}

// handleEvents streams progress over SSE: the persisted history first, then
// live events until the job reaches a terminal state or the client leaves.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading history so no event can slip between the two.
	live, cancel, err := s.progress.Subscribe(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	status, err := s.progress.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lastSeq := 0
	for _, ev := range status.Events {
		writeSSE(w, ev)
		lastSeq = ev.Seq
	}
	flusher.Flush()
	if status.Job.State.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			if ev.Seq <= lastSeq {
				continue // already sent from history
			}
			lastSeq = ev.Seq
			writeSSE(w, ev)
			flusher.Flush()
			if ev.State.Terminal() {
				return
			}
		}
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.progress.Result(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultView{
		JobID:      res.JobID,
		Controls:   res.Controls,
		Exceptions: res.Exceptions,
		CUECs:      res.CUECs,
		Gaps:       res.Gaps,
		Partial:    res.Partial,
		CreatedAt:  res.CreatedAt,
	})
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.progress.Mappings(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]mappingView, 0, len(rows))
	for _, m := range rows {
		views = append(views, mappingView{
			ControlID:    m.ControlID,
			ArticleID:    m.ArticleID,
			Coverage:     string(m.Coverage),
			MatchedTerms: m.MatchedTerms,
			TableVersion: m.TableVersion,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.submit.Cancel(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func writeSSE(w http.ResponseWriter, ev model.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Seq, b)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrJobAlreadyActive), errors.Is(err, domain.ErrJobTerminal):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
