package handler

import (
	"encoding/json"
	"net/http"

	"labreserve/internal/quota/service"
	apperrors "labreserve/pkg/errors"
	httputil "labreserve/pkg/http"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type QuotaHandler struct {
	service service.QuotaService
	log     *logger.Logger
}

func NewQuotaHandler(service service.QuotaService, log *logger.Logger) *QuotaHandler {
	return &QuotaHandler{
		service: service,
		log:     log,
	}
}

func (h *QuotaHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/quota-holders", h.CreateHolder)
	router.GET("/api/v1/quota-holders", h.GetAllHolders)
	router.GET("/api/v1/quota-holders/:id", h.GetHolder)
	router.POST("/api/v1/quotas/reset", h.ResetAll)
}

func (h *QuotaHandler) CreateHolder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "CreateHolder")
		return
	}
	if requester.Role != model.RoleAdmin {
		h.writeError(w, apperrors.Forbidden("Only administrators may manage quota holders"), "CreateHolder")
		return
	}

	var holder model.QuotaHolder
	if err := json.NewDecoder(r.Body).Decode(&holder); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "CreateHolder")
		return
	}

	if err := h.service.CreateHolder(r.Context(), &holder); err != nil {
		h.writeError(w, err, "CreateHolder")
		return
	}

	if err := httputil.WriteCreated(w, holderView(&holder)); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateHolder", "error", err)
	}
}

func (h *QuotaHandler) GetHolder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	holder, err := h.service.GetHolder(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err, "GetHolder")
		return
	}

	if err := httputil.WriteSuccess(w, holderView(holder)); err != nil {
		h.log.Error("failed to write success response", "handler", "GetHolder", "error", err)
	}
}

func (h *QuotaHandler) GetAllHolders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err, "GetAllHolders")
		return
	}

	holders, total, err := h.service.GetAllHolders(r.Context(), r.URL.Query().Get("role"), limit, offset)
	if err != nil {
		h.writeError(w, err, "GetAllHolders")
		return
	}

	views := make([]quotaHolderView, 0, len(holders))
	for _, holder := range holders {
		views = append(views, holderView(holder))
	}

	if err := httputil.WritePaginated(w, views, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAllHolders", "error", err)
	}
}

type resetRequest struct {
	Term       string `json:"term"`
	DefaultMin int    `json:"default_min,omitempty"`
}

type resetResponse struct {
	Reset   *model.SemesterReset `json:"reset"`
	Applied bool                 `json:"applied"`
}

// ResetAll is the single entry point exposed to the academic-calendar
// collaborator. Re-triggering it for an already-applied term is a no-op.
func (h *QuotaHandler) ResetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requester, err := httputil.ExtractRequester(r)
	if err != nil {
		h.writeError(w, err, "ResetAll")
		return
	}
	if requester.Role != model.RoleAdmin {
		h.writeError(w, apperrors.Forbidden("Only administrators may reset quotas"), "ResetAll")
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Invalid request body"}, "ResetAll")
		return
	}

	reset, applied, err := h.service.ResetAll(r.Context(), req.Term, req.DefaultMin)
	if err != nil {
		h.writeError(w, err, "ResetAll")
		return
	}

	if err := httputil.WriteSuccess(w, resetResponse{Reset: reset, Applied: applied}); err != nil {
		h.log.Error("failed to write success response", "handler", "ResetAll", "error", err)
	}
}

// quotaHolderView adds the HH:MM:SS rendering of the balance, which is the
// only form clients see.
type quotaHolderView struct {
	*model.QuotaHolder
	Remaining string `json:"remaining"`
}

func holderView(holder *model.QuotaHolder) quotaHolderView {
	return quotaHolderView{
		QuotaHolder: holder,
		Remaining:   holder.RemainingHMS(),
	}
}

func (h *QuotaHandler) writeError(w http.ResponseWriter, err error, op string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", op, "error", writeErr)
	}
}

func (h *QuotaHandler) writeJSON(w http.ResponseWriter, status int, body any, op string) {
	if err := httputil.WriteJSON(w, status, body); err != nil {
		h.log.Error("failed to write JSON response", "handler", op, "error", err)
	}
}
