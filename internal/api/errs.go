package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes. Rejections that leave
// no state behind are 4xx; dispatch failures surface as 502 since the fault
// sits with the CI system; an inconsistent dispatch is a 500 because operator
// intervention is required.
func writeError(ctx context.Context, log *logger.Logger, w http.ResponseWriter, err error) {
	var (
		validationErr validation.ValidationError
		stateErr      validation.TaskInvalidStateError
		dispatchErr   validation.DispatchFailureError
		inconsistent  validation.InconsistentDispatchError
	)

	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		msg = validationErr.Error()
	case errors.Is(err, validation.ErrPermissionDenied):
		status = http.StatusForbidden
		msg = "permission denied"
	case errors.Is(err, validation.ErrTaskNotFound):
		status = http.StatusNotFound
		msg = "task not found"
	case errors.As(err, &stateErr):
		status = http.StatusConflict
		msg = stateErr.Error()
	case errors.Is(err, validation.ErrConcurrentModification):
		status = http.StatusConflict
		msg = "task was modified concurrently, retry"
	case errors.As(err, &dispatchErr):
		status = http.StatusBadGateway
		msg = "dispatching CI job failed"
	case errors.As(err, &inconsistent):
		// The job is running but the task cannot be matched to it. Nothing
		// the caller retries will fix this.
		status = http.StatusInternalServerError
		msg = "task state is inconsistent with CI, contact an operator"
	}

	if status >= 500 {
		log.Error(ctx, "request failed", "status", status, "err", err)
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
