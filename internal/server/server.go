package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"shiftstore/internal/config"
	"shiftstore/internal/pipeline"
	"shiftstore/internal/storage"
	"shiftstore/internal/web"

	"github.com/gorilla/mux"
)

// RunQueue is the part of the pipeline the server drives.
type RunQueue interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

// Server exposes focus runs over HTTP.
type Server struct {
	addr   string
	cfg    *config.Config
	store  *storage.Store
	queue  RunQueue
	hub    *web.Hub
	log    *slog.Logger
	server *http.Server
}

// NewServer creates a server. hub may be nil to disable the /ws endpoint.
func NewServer(addr string, cfg *config.Config, store *storage.Store, queue RunQueue, hub *web.Hub, log *slog.Logger) *Server {
	return &Server{
		addr:  addr,
		cfg:   cfg,
		store: store,
		queue: queue,
		hub:   hub,
		log:   log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/runs", s.handleSubmit).Methods("POST")
	r.HandleFunc("/runs/{id}", s.handleRun).Methods("GET")
	r.HandleFunc("/runs/{id}/sequences", s.handleSequences).Methods("GET")
	r.HandleFunc("/runs/{id}/fit", s.handleFit).Methods("GET")
	r.HandleFunc("/stream", s.handleRunStream).Methods("GET")
	if s.hub != nil {
		s.hub.Mount(r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := s.store.RecentRuns(limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if recs == nil {
		recs = []storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Run(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	resp := map[string]any{"run": rec}
	if meta, err := s.store.RunMeta(id); err == nil {
		resp["meta"] = meta
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Run(id); err != nil {
		s.storeError(w, err)
		return
	}
	seqs, err := s.store.RunSequences(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if seqs == nil {
		seqs = []storage.SequenceRecord{}
	}
	writeJSON(w, http.StatusOK, seqs)
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Run(id); err != nil {
		s.storeError(w, err)
		return
	}
	pts, err := s.store.FitInput(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if pts == nil {
		pts = []storage.FitPoint{}
	}
	writeJSON(w, http.StatusOK, pts)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	job, err := req.Job(s.cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.queue.Submit(job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Info("run submitted", "run", job.ID, "catalog", job.InputPath)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": job.ID, "status": pipeline.StatusQueued})
}

// RunEvent is the stream payload for a finished run.
type RunEvent struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	Input  string         `json:"input"`
	Error  string         `json:"error,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// NewRunEvent flattens a pipeline result for JSON clients.
func NewRunEvent(res pipeline.Result) RunEvent {
	ev := RunEvent{
		ID:     res.Job.ID,
		Type:   string(res.Job.Type),
		Status: res.Status,
		Input:  res.Job.InputPath,
		Meta:   res.Meta,
	}
	if res.Error != nil {
		ev.Error = res.Error.Error()
	}
	return ev
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(NewRunEvent(res))
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}
