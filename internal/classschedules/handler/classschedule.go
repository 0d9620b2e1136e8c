package handler

import (
	"encoding/json"
	"net/http"

	"labreserve/internal/classschedules/service"
	apperrors "labreserve/pkg/errors"
	httputil "labreserve/pkg/http"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ClassScheduleHandler struct {
	service service.ClassScheduleService
	log     *logger.Logger
}

func NewClassScheduleHandler(service service.ClassScheduleService, log *logger.Logger) *ClassScheduleHandler {
	return &ClassScheduleHandler{
		service: service,
		log:     log,
	}
}

func (h *ClassScheduleHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/class-schedules", h.Create)
	router.GET("/api/v1/class-schedules", h.GetByRoom)
	router.GET("/api/v1/class-schedules/:id", h.GetByID)
	router.DELETE("/api/v1/class-schedule-groups/:groupId", h.DeleteGroup)
}

func (h *ClassScheduleHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "Create")
		return
	}
	if requester.Role == model.RoleStudent {
		h.writeError(w, apperrors.Forbidden("Only staff may manage class schedules"), "Create")
		return
	}

	var sched model.ClassSchedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "error", writeErr)
		}
		return
	}

	occurrences, err := h.service.Create(r.Context(), &sched)
	if err != nil {
		h.writeError(w, err, "Create")
		return
	}

	if err := httputil.WriteCreated(w, occurrences); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *ClassScheduleHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sched, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err, "GetByID")
		return
	}

	if err := httputil.WriteSuccess(w, sched); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *ClassScheduleHandler) GetByRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err, "GetByRoom")
		return
	}

	schedules, total, err := h.service.GetByRoom(r.Context(), r.URL.Query().Get("room_id"), limit, offset)
	if err != nil {
		h.writeError(w, err, "GetByRoom")
		return
	}

	if err := httputil.WritePaginated(w, schedules, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetByRoom", "error", err)
	}
}

func (h *ClassScheduleHandler) DeleteGroup(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "DeleteGroup")
		return
	}
	if requester.Role == model.RoleStudent {
		h.writeError(w, apperrors.Forbidden("Only staff may manage class schedules"), "DeleteGroup")
		return
	}

	if _, err := h.service.DeleteGroup(r.Context(), ps.ByName("groupId")); err != nil {
		h.writeError(w, err, "DeleteGroup")
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ClassScheduleHandler) writeError(w http.ResponseWriter, err error, op string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", op, "error", writeErr)
	}
}
