package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/diffbridge/diffbridge/internal/app/workflow"
	"github.com/diffbridge/diffbridge/internal/domain/validation"
)

// maxUploadBytes bounds validated file uploads.
const maxUploadBytes = 32 << 20

type createTaskRequest struct {
	GitBranch           string `json:"gitBranch" validate:"required"`
	ReferenceCommitHash string `json:"referenceCommitHash"`
}

type taskResponse struct {
	ID                      string     `json:"id"`
	Status                  string     `json:"status"`
	GitBranch               string     `json:"gitBranch"`
	ReferenceCommitHash     string     `json:"referenceCommitHash,omitempty"`
	CurrentCommitHash       string     `json:"currentCommitHash,omitempty"`
	DiffFileName            string     `json:"diffFileName"`
	DiffFilePath            string     `json:"diffFilePath,omitempty"`
	DiffGeneratedAt         *time.Time `json:"diffGeneratedAt,omitempty"`
	GenerationJobID         string     `json:"generationJobId,omitempty"`
	IntegrationJobID        string     `json:"integrationJobId,omitempty"`
	ValidatorUserID         string     `json:"validatorUserId,omitempty"`
	ValidatedFilePath       string     `json:"validatedFilePath,omitempty"`
	ValidatedFileUploadedAt *time.Time `json:"validatedFileUploadedAt,omitempty"`
	IntegrationResult       string     `json:"integrationResult,omitempty"`
	ErrorMessage            string     `json:"errorMessage,omitempty"`
	ErrorFileLink           string     `json:"errorFileLink,omitempty"`
	IntegrationCompletedAt  *time.Time `json:"integrationCompletedAt,omitempty"`
	CreatedBy               string     `json:"createdBy"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

func toTaskResponse(task *validation.Task) taskResponse {
	st := task.State()
	return taskResponse{
		ID:                      st.ID.String(),
		Status:                  st.Status.String(),
		GitBranch:               st.GitBranch,
		ReferenceCommitHash:     st.ReferenceCommitHash,
		CurrentCommitHash:       st.CurrentCommitHash,
		DiffFileName:            st.DiffFileName,
		DiffFilePath:            st.DiffFilePath,
		DiffGeneratedAt:         timePtr(st.DiffGeneratedAt),
		GenerationJobID:         st.GenerationJobID,
		IntegrationJobID:        st.IntegrationJobID,
		ValidatorUserID:         st.ValidatorUserID,
		ValidatedFilePath:       st.ValidatedFilePath,
		ValidatedFileUploadedAt: timePtr(st.ValidatedFileUploadedAt),
		IntegrationResult:       string(st.IntegrationResult),
		ErrorMessage:            st.ErrorMessage,
		ErrorFileLink:           st.ErrorFileLink,
		IntegrationCompletedAt:  timePtr(st.IntegrationCompletedAt),
		CreatedBy:               st.CreatedBy,
		CreatedAt:               st.CreatedAt,
		UpdatedAt:               st.UpdatedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "gitBranch is required"})
		return
	}

	task, err := s.coordinator.CreateTask(r.Context(), identityFromRequest(r), req.GitBranch, req.ReferenceCommitHash)
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statusFilter *validation.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := validation.ParseStatus(raw)
		if status == validation.StatusUnspecified {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status filter"})
			return
		}
		statusFilter = &status
	}

	tasks, err := s.coordinator.ListTasks(r.Context(), identityFromRequest(r), statusFilter)
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return
	}

	task, err := s.coordinator.GetTask(r.Context(), identityFromRequest(r), taskID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// handleUploadValidatedFile accepts the reviewed CSV either as a multipart
// form (field "file") or as a raw request body.
func (s *Server) handleUploadValidatedFile(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return
	}

	fileName, contentType, data, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	task, err := s.coordinator.AttachValidatedFile(r.Context(), identityFromRequest(r), taskID, fileName, contentType, data)
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func readUpload(r *http.Request) (fileName, contentType string, data []byte, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	mediaType := r.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", nil, err
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		if err != nil {
			return "", "", nil, err
		}
		return header.Filename, header.Header.Get("Content-Type"), data, nil
	}

	data, err = io.ReadAll(r.Body)
	if err != nil {
		return "", "", nil, err
	}
	return r.Header.Get("X-File-Name"), mediaType, data, nil
}

func (s *Server) handleTriggerIntegration(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return
	}

	task, err := s.coordinator.TriggerIntegration(r.Context(), identityFromRequest(r), taskID)
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

type webhookRequest struct {
	JobID     string `json:"jobId" validate:"required"`
	Status    string `json:"status" validate:"required"`
	Artifacts struct {
		DiffURL           string `json:"diffUrl"`
		CurrentCommitHash string `json:"currentCommitHash"`
		ErrorMessage      string `json:"errorMessage"`
		ErrorFileURL      string `json:"errorFileUrl"`
	} `json:"artifacts"`
}

type webhookResponse struct {
	Result string `json:"result"`
}

// handleJenkinsWebhook receives at-least-once build reports. Both applied and
// ignored deliveries return 200 so the CI system stops retrying; only an
// unknown correlation id is a 404.
func (s *Server) handleJenkinsWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "jobId and status are required"})
		return
	}

	outcome, err := validation.ParseOutcome(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), req.JobID, outcome, validation.JobArtifacts{
		DiffURL:           req.Artifacts.DiffURL,
		CurrentCommitHash: req.Artifacts.CurrentCommitHash,
		ErrorMessage:      req.Artifacts.ErrorMessage,
		ErrorFileURL:      req.Artifacts.ErrorFileURL,
	})
	if err != nil {
		writeError(r.Context(), s.logger, w, err)
		return
	}

	switch result {
	case workflow.IngestNotFound:
		writeJSON(w, http.StatusNotFound, webhookResponse{Result: result.String()})
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Result: result.String()})
	}
}
