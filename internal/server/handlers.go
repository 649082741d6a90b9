package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/server/middleware"
	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// parseTenderQuery reads the GET /tenders filters:
// relevant, min_confidence, method, source, unclassified, q and limit.
func parseTenderQuery(v url.Values) (store.Query, error) {
	q := store.Query{Search: v.Get("q")}

	if s := v.Get("relevant"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, &ErrValidation{Field: "relevant", Message: "must be true or false"}
		}
		q.Relevant = store.Bool(b)
	}
	if s := v.Get("unclassified"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, &ErrValidation{Field: "unclassified", Message: "must be true or false"}
		}
		q.Unclassified = b
	}
	if s := v.Get("min_confidence"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f > 100 {
			return q, &ErrValidation{Field: "min_confidence", Message: "must be a number between 0 and 100"}
		}
		q.MinConfidence = f
	}
	if s := v.Get("method"); s != "" {
		m, err := types.ParseMethod(s)
		if err != nil {
			return q, &ErrValidation{Field: "method", Message: err.Error()}
		}
		q.Method = m
	}
	q.Source = types.SourceKind(v.Get("source"))

	limit, err := parseLimit(v.Get("limit"))
	if err != nil {
		return q, err
	}
	q.Limit = limit
	return q, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	}
	return min(n, maxListLimit), nil
}

func (s *Server) handleListTenders(w http.ResponseWriter, r *http.Request) {
	q, err := parseTenderQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	tenders, err := s.store.QueryTenders(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tenders == nil {
		tenders = []*types.Tender{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"tenders": tenders,
		"count":   len(tenders),
	})
}

func (s *Server) handleGetTender(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTender(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	logs, err := s.store.ListRunLogs(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []types.RunLog{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":  logs,
		"count": len(logs),
	})
}

// handleTriggerRun starts a run in the background and answers 202. Only one
// triggered run may be in flight.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		s.writeError(w, ErrNotConfigured)
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.writeError(w, ErrRunInProgress)
		return
	}

	subject, _ := middleware.GetSubject(r)
	s.runs.Add(1)
	go func() {
		defer func() {
			s.running.Store(false)
			s.runs.Done()
		}()
		start := time.Now()
		res, err := s.trigger(s.runCtx)
		if err != nil {
			s.log.Error("Triggered run failed", logger.String("requested_by", subject), logger.Error(err))
			return
		}
		s.log.Info("Triggered run finished",
			logger.String("requested_by", subject),
			logger.Int("sources", len(res.Logs)),
			logger.Int("newly_relevant", len(res.NewlyRelevant)),
			logger.Bool("success", res.Succeeded()),
			logger.Duration("duration", time.Since(start)),
		)
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleListExemplars(w http.ResponseWriter, r *http.Request) {
	if s.exemplars == nil {
		s.writeError(w, ErrNotConfigured)
		return
	}
	exemplars, err := s.exemplars.Exemplars(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if exemplars == nil {
		exemplars = []types.PositiveExemplar{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"exemplars": exemplars,
		"count":     len(exemplars),
	})
}

// AddExemplarRequest is the body of POST /exemplars.
type AddExemplarRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Confidence in [0, 1]; defaults to 1.
	Confidence *float64 `json:"confidence,omitempty"`
}

// handleAddExemplar stores a manual exemplar and retrains the similarity tier.
func (s *Server) handleAddExemplar(w http.ResponseWriter, r *http.Request) {
	if s.exemplars == nil {
		s.writeError(w, ErrNotConfigured)
		return
	}

	var req AddExemplarRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}
	if req.Title == "" && req.Description == "" {
		s.writeError(w, &ErrValidation{Field: "title", Message: "title or description is required"})
		return
	}
	confidence := 1.0
	if req.Confidence != nil {
		if *req.Confidence < 0 || *req.Confidence > 1 {
			s.writeError(w, &ErrValidation{Field: "confidence", Message: "must be between 0 and 1"})
			return
		}
		confidence = *req.Confidence
	}

	e, err := s.exemplars.AddExemplar(r.Context(), req.Title, req.Description, confidence, types.ExemplarManual)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.exemplars.Rebuild(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, e)
}
