package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/petrijr/durable"
	"github.com/petrijr/durable/pkg/api"
	"github.com/petrijr/durable/sample/video"
)

// reviewAPI is the HTTP front end reviewers use:
//
//	POST /videos              {"location": "..."}     start a pipeline
//	GET  /approvals                                   pending approval requests
//	POST /approvals/{id}      {"decision": "Approved"} answer a request
//	GET  /instances[?limit=n]                         pipeline instances
//	GET  /instances/{id}                              one instance
type reviewAPI struct {
	engine durable.Engine
	acts   *video.Activities
	logger *slog.Logger
}

func (s *reviewAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", s.handleStart)
	mux.HandleFunc("GET /approvals", s.handlePendingApprovals)
	mux.HandleFunc("POST /approvals/{id}", s.handleApprove)
	mux.HandleFunc("GET /instances", s.handleListInstances)
	mux.HandleFunc("GET /instances/{id}", s.handleGetInstance)
	return mux
}

func (s *reviewAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if in.Location == "" {
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	}

	id, err := s.engine.StartOrchestration(r.Context(), video.ProcessVideoOrchestrator, in.Location)
	if err != nil {
		s.logger.Error("start pipeline", slog.Any("error", err))
		http.Error(w, "failed to start pipeline", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"instance_id": id})
}

func (s *reviewAPI) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.acts.PendingApprovals())
}

func (s *reviewAPI) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var in struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if in.Decision != video.Approved && in.Decision != video.Rejected {
		http.Error(w, "decision must be Approved or Rejected", http.StatusBadRequest)
		return
	}

	err := s.engine.RaiseEvent(r.Context(), id, video.ApprovalEvent, in.Decision)
	switch {
	case errors.Is(err, api.ErrInstanceNotFound):
		http.Error(w, "no such instance", http.StatusNotFound)
		return
	case errors.Is(err, api.ErrInstanceNotRunning):
		http.Error(w, "instance already finished", http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("raise approval", slog.String("instance_id", id), slog.Any("error", err))
		http.Error(w, "failed to deliver approval", http.StatusInternalServerError)
		return
	}

	s.acts.ResolveApproval(id)
	respond(w, http.StatusAccepted, map[string]string{
		"instance_id": id,
		"decision":    in.Decision,
	})
}

func (s *reviewAPI) handleListInstances(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	states, err := s.engine.ListInstances(r.Context(), durable.InstanceListOptions{
		Name: video.ProcessVideoOrchestrator,
	})
	if err != nil {
		s.logger.Error("list instances", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(states) > limit {
		states = states[:limit]
	}

	out := make([]stateView, 0, len(states))
	for _, st := range states {
		out = append(out, statusView(st))
	}
	respond(w, http.StatusOK, out)
}

func (s *reviewAPI) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetStatus(r.Context(), r.PathValue("id"))
	if errors.Is(err, api.ErrInstanceNotFound) {
		http.Error(w, "no such instance", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get status", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, statusView(st))
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// listen serves h on addr until ctx is done.
func listen(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("review API listening", slog.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
