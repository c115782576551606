package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/conversation"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/infrastructure/postgres"
)

// SessionHandler serves the conversation endpoints.
type SessionHandler struct {
	store  *postgres.Store
	agent  *conversation.Agent
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSessionHandler creates the handler.
func NewSessionHandler(store *postgres.Store, agent *conversation.Agent, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:  store,
		agent:  agent,
		logger: logger,
		tracer: otel.Tracer("session-handler"),
	}
}

// Routes returns the session subtree.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Start)
	r.Delete("/{id}", h.End)
	r.Get("/{id}/turns", h.Turns)
	r.Post("/{id}/messages", h.Message)
	return r
}

// StartRequest is the body for POST /sessions.
type StartRequest struct {
	PatientID string `json:"patient_id"`
}

// Start handles POST /sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "start_session")
	defer span.End()

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientID == "" {
		respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	if _, err := h.store.GetPatient(ctx, req.PatientID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	id := h.agent.StartSession(req.PatientID)
	span.SetAttributes(attribute.String("session_id", id))
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// End handles DELETE /sessions/{id}.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.agent.EndSession(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Turns handles GET /sessions/{id}/turns.
func (h *SessionHandler) Turns(w http.ResponseWriter, r *http.Request) {
	turns, err := h.agent.Turns(chi.URLParam(r, "id"))
	if errors.Is(err, conversation.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load turns")
		return
	}
	respondJSON(w, http.StatusOK, turns)
}

// MessageRequest is the body for POST /sessions/{id}/messages. Exactly one
// of Question or Reading drives the exchange.
type MessageRequest struct {
	PatientID string          `json:"patient_id"`
	Question  string          `json:"question,omitempty"`
	Reading   *ReadingRequest `json:"reading,omitempty"`
}

// Message handles POST /sessions/{id}/messages.
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "session_message")
	defer span.End()

	sessionID := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("session_id", sessionID))

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientID == "" {
		respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}
	if req.Question == "" && req.Reading == nil {
		respondError(w, http.StatusBadRequest, "question or reading is required")
		return
	}

	p, err := h.store.GetPatient(ctx, req.PatientID)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "patient not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	if req.Reading != nil {
		takenAt := time.Now().UTC()
		if req.Reading.TakenAt != nil {
			takenAt = req.Reading.TakenAt.UTC()
		}
		var reading patient.Reading
		if req.Reading.QuickDefault {
			reading = patient.QuickDefault(takenAt)
		} else {
			reading = patient.Reading{
				Systolic:  req.Reading.Systolic,
				Diastolic: req.Reading.Diastolic,
				HeartRate: req.Reading.HeartRate,
				TakenAt:   takenAt,
				Location:  req.Reading.Location,
				Notes:     req.Reading.Notes,
			}
		}
		if err := reading.Validate(); err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.store.InsertReading(ctx, p.ID, reading); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save reading")
			return
		}

		hist, err := h.store.Readings(ctx, p.ID, historyWindow)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load readings")
			return
		}
		resp, err := h.agent.HandleReading(ctx, sessionID, p, hist)
		if err != nil {
			h.messageError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	hist, err := h.store.Readings(ctx, p.ID, historyWindow)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	resp, err := h.agent.HandleQuestion(ctx, sessionID, p, hist, req.Question)
	if err != nil {
		h.messageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) messageError(w http.ResponseWriter, err error) {
	var verr *patient.ValidationError
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		respondError(w, http.StatusInternalServerError, "message handling failed")
	}
}
