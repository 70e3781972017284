package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
	"github.com/cronbox/core/pkg/models/api"
	"github.com/cronbox/core/pkg/scheduler"
	"github.com/cronbox/core/pkg/validation"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type Handler struct {
	store  database.Store
	sched  *scheduler.Scheduler
	logger *logger.Logger
}

func NewHandler(store database.Store, sched *scheduler.Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		store:  store,
		sched:  sched,
		logger: log,
	}
}

// Create handles POST /api/v1/jobs. The command and schedule are
// validated before anything is persisted: a rejected definition leaves
// no trace in the store or the registry.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}
	if err := validation.ValidateCommand(req.Command); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateSchedule(req.Schedule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.store.CreateJob(ctx, models.Job{
		Name:     req.Name,
		Command:  req.Command,
		Schedule: req.Schedule,
		Status:   models.JobStatusActive,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("job_name", req.Name).Msg("Failed to create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// The schedule already passed the same parser the trigger uses, so
	// this only fails on a scheduler-side defect.
	if err := h.sched.ScheduleJob(job, false); err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Persisted job could not be scheduled")
		writeError(w, http.StatusInternalServerError, "failed to schedule job")
		return
	}
	if req.RunNow {
		h.sched.RunNow(job)
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

// List handles GET /api/v1/jobs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	response := make([]api.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		response = append(response, toJobResponse(job))
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/v1/jobs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Pause handles POST /api/v1/jobs/{id}/pause. Pausing is idempotent
// and never interrupts a run already in flight.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateJobStatus(r.Context(), job.ID, models.JobStatusPaused); err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to pause job")
		writeError(w, http.StatusInternalServerError, "failed to pause job")
		return
	}
	h.sched.CancelJob(job.ID)

	job.Status = models.JobStatusPaused
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Resume handles POST /api/v1/jobs/{id}/resume. Resuming an already
// active job re-registers its trigger, which is harmless.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateJobStatus(r.Context(), job.ID, models.JobStatusActive); err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to resume job")
		writeError(w, http.StatusInternalServerError, "failed to resume job")
		return
	}
	job.Status = models.JobStatusActive
	if err := h.sched.ScheduleJob(job, false); err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Resumed job could not be scheduled")
		writeError(w, http.StatusInternalServerError, "failed to schedule job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Run handles POST /api/v1/jobs/{id}/run: one immediate asynchronous
// execution, allowed even while the job is paused.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	h.sched.RunNow(job)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// Delete handles DELETE /api/v1/jobs/{id}. The job's run history goes
// with it; a run already in flight finishes but can no longer be
// finalized once its rows are gone, which the engine logs.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	h.sched.CancelJob(job.ID)
	if err := h.store.DeleteJob(r.Context(), job.ID); err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to delete job")
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Runs handles GET /api/v1/jobs/{id}/runs, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := h.store.ListJobRuns(r.Context(), job.ID, limit)
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to list job runs")
		writeError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}

	response := make([]api.JobRunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, api.JobRunResponse{
			ID:         run.ID,
			JobID:      run.JobID,
			Status:     string(run.Status),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Output:     run.Output,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// lookupJob resolves the {id} path value to a stored job, writing the
// error response itself when that fails.
func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request) (models.Job, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return models.Job{}, false
	}

	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return models.Job{}, false
		}
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return models.Job{}, false
	}
	return job, true
}

func toJobResponse(job models.Job) api.JobResponse {
	return api.JobResponse{
		ID:        job.ID,
		Name:      job.Name,
		Slug:      job.Slug,
		Command:   job.Command,
		Schedule:  job.Schedule,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
