package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/merlin/internal/boundary"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/pipeline"
)

// maxBodyBytes caps the size of a prediction request body.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	bus      domain.EventBus
	version  string
}

// NewHandler creates a new API handler. bus may be nil.
func NewHandler(p *pipeline.Pipeline, bus domain.EventBus, version string) *Handler {
	return &Handler{
		pipeline: p,
		bus:      bus,
		version:  version,
	}
}

// ModelsResponse is the response for GET /models and POST /models/reload.
type ModelsResponse struct {
	Tier         ensemble.Tier   `json:"tier"`
	Availability map[string]bool `json:"availability"`
}

// Predict handles POST /predict. The body is the transaction record; the
// response is the prediction result or the error object.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, boundary.ErrorObject{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, boundary.ErrorObject{Error: "failed to read request body"})
		return
	}

	res, err := h.pipeline.Run(r.Context(), raw)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("prediction failed", "error", err, "request_id", GetRequestID(r.Context()))
		}
		writeJSON(w, status, boundary.ErrorBody(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := boundary.WriteResult(w, res); err != nil {
		slog.Error("failed to write prediction", "error", err)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the critical models are loaded. It triggers model
// resolution if nothing is loaded yet.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.pipeline.Loader().Models(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
			"error": errorMessage(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
	})
}

// ListModels returns model availability and the starting tier.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	m, err := h.pipeline.Loader().Models(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), boundary.ErrorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse(m))
}

// ReloadModels resolves every artifact again and swaps the models in.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	m, err := h.pipeline.Loader().Reload(r.Context())
	if err != nil {
		slog.Warn("model reload failed", "error", err)
		writeJSON(w, statusFor(err), boundary.ErrorBody(err))
		return
	}

	slog.Info("models reloaded",
		"tier", ensemble.SelectTier(m.Availability),
		"availability", m.Availability.Map(),
	)
	writeJSON(w, http.StatusOK, modelsResponse(m))
}

func modelsResponse(m *ensemble.Models) ModelsResponse {
	return ModelsResponse{
		Tier:         ensemble.SelectTier(m.Availability),
		Availability: m.Availability.Map(),
	}
}

// statusFor maps an error to its HTTP status: input errors are the
// caller's fault, model errors mean the service cannot score right now.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInputEmpty, domain.KindInputMalformed,
		domain.KindInputFieldMissing, domain.KindInputFieldInvalid:
		return http.StatusBadRequest
	case domain.KindMissingCriticalModel, domain.KindModelRuntimeFailure,
		domain.KindNoModelsAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
