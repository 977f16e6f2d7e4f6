package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/notesmith/internal/pipeline"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/section"
	"github.com/dgallion1/notesmith/internal/stage"
)

func (s *Server) submit(w http.ResponseWriter, docID string, stages ...stage.Stage) {
	if !registry.ValidDocID(docID) {
		jsonError(w, "invalid document id", http.StatusBadRequest)
		return
	}
	job, err := s.orchestrator.Submit(docID, stages...)
	if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped) {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

// handleRunStage queues one stage for a document.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	st, err := section.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.submit(w, chi.URLParam(r, "docID"), st)
}

// handleBuild queues Skeleton, Enhance and Patch as one job.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	s.submit(w, chi.URLParam(r, "docID"), stage.Skeleton, stage.Enhance, stage.Patch)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.orchestrator.Jobs(chi.URLParam(r, "docID"))})
}
