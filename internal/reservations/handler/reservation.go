package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"labreserve/internal/reservations/service"
	apperrors "labreserve/pkg/errors"
	httputil "labreserve/pkg/http"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ReservationHandler struct {
	service      service.ReservationService
	availability *service.AvailabilityEngine
	log          *logger.Logger
}

func NewReservationHandler(
	service service.ReservationService,
	availability *service.AvailabilityEngine,
	log *logger.Logger,
) *ReservationHandler {
	return &ReservationHandler{
		service:      service,
		availability: availability,
		log:          log,
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/availability", h.ProbeAvailability)
	router.POST("/api/v1/reservations", h.Create)
	router.GET("/api/v1/reservations", h.GetAll)
	router.GET("/api/v1/reservations/:id", h.GetByID)
	router.PATCH("/api/v1/reservations/:id", h.Update)
	router.POST("/api/v1/reservations/:id/transitions", h.Transition)
	router.POST("/api/v1/reservations/:id/close-session", h.CloseSession)
}

func (h *ReservationHandler) ProbeAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	resourceID := q.Get("resource_id")
	date := q.Get("date")
	if resourceID == "" || date == "" {
		h.writeError(w, apperrors.InvalidInput("resource_id and date query parameters are required"), "ProbeAvailability")
		return
	}

	durationMin := 0
	if raw := q.Get("duration_min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, apperrors.InvalidInput("duration_min must be an integer"), "ProbeAvailability")
			return
		}
		durationMin = parsed
	}

	view, err := h.availability.DayView(r.Context(), resourceID, date, durationMin)
	if err != nil {
		h.writeError(w, err, "ProbeAvailability")
		return
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "ProbeAvailability", "error", err)
	}
}

type createReservationRequest struct {
	model.Reservation
	DurationMin *int `json:"duration_min,omitempty"`
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "Create")
		return
	}

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "Create")
		return
	}

	if err := h.service.Create(r.Context(), requester.ID, requester.Role, &req.Reservation, req.DurationMin); err != nil {
		h.writeError(w, err, "Create")
		return
	}

	if err := httputil.WriteCreated(w, req.Reservation); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err, "GetByID")
		return
	}

	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

// GetAll lists reservations. Students see only their own; staff may list
// everything or filter by holder.
func (h *ReservationHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "GetAll")
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err, "GetAll")
		return
	}

	holderID := r.URL.Query().Get("holder_id")
	if requester.Role == model.RoleStudent {
		holderID = requester.ID
	}

	var reservations []*model.Reservation
	var total int64
	if holderID != "" {
		reservations, total, err = h.service.GetByHolder(r.Context(), holderID, limit, offset)
	} else {
		reservations, total, err = h.service.GetAll(r.Context(), r.URL.Query().Get("status"), limit, offset)
	}
	if err != nil {
		h.writeError(w, err, "GetAll")
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "error", err)
	}
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "Update")
		return
	}

	var updates model.ReservationUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "Update")
		return
	}

	if err := h.service.Update(r.Context(), ps.ByName("id"), requester.ID, requester.Role, &updates); err != nil {
		h.writeError(w, err, "Update")
		return
	}

	httputil.WriteNoContent(w)
}

type transitionRequest struct {
	Action string     `json:"action"`
	Notes  string     `json:"notes,omitempty"`
	TimeIn *time.Time `json:"time_in,omitempty"`
}

func (h *ReservationHandler) Transition(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "Transition")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "Transition")
		return
	}

	res, err := h.service.Transition(r.Context(), ps.ByName("id"), req.Action, requester.ID, requester.Role, req.Notes, req.TimeIn)
	if err != nil {
		h.writeError(w, err, "Transition")
		return
	}

	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "Transition", "error", err)
	}
}

type closeSessionRequest struct {
	TimeOut *time.Time `json:"time_out,omitempty"`
}

func (h *ReservationHandler) CloseSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, err := httputil.ExtractRequester(r); err != nil {
		h.writeError(w, err, "CloseSession")
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "CloseSession")
		return
	}

	result, err := h.service.CloseSession(r.Context(), ps.ByName("id"), req.TimeOut)
	if err != nil {
		h.writeError(w, err, "CloseSession")
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "CloseSession", "error", err)
	}
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, err error, op string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", op, "error", writeErr)
	}
}

func (h *ReservationHandler) writeJSON(w http.ResponseWriter, status int, body any, op string) {
	if err := httputil.WriteJSON(w, status, body); err != nil {
		h.log.Error("failed to write JSON response", "handler", op, "error", err)
	}
}
