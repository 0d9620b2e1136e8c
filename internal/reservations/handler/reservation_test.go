package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labreserve/internal/reservations/service"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Mock service for testing
type mockReservationService struct {
	createFunc     func(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error
	transitionFunc func(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error)
	byHolderFunc   func(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, int64, error)
}

func (m *mockReservationService) Create(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, requesterID, requesterRole, res, durationMin)
	}
	return nil
}

func (m *mockReservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return nil, apperrors.NotFoundWithID("Reservation", id)
}

func (m *mockReservationService) GetAll(ctx context.Context, status string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	return []*model.Reservation{}, 0, nil
}

func (m *mockReservationService) GetByHolder(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if m.byHolderFunc != nil {
		return m.byHolderFunc(ctx, holderID, limit, offset)
	}
	return []*model.Reservation{}, 0, nil
}

func (m *mockReservationService) Update(ctx context.Context, id, requesterID, requesterRole string, updates *model.ReservationUpdate) error {
	return nil
}

func (m *mockReservationService) Transition(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error) {
	if m.transitionFunc != nil {
		return m.transitionFunc(ctx, id, action, actorID, actorRole, notes, timeIn)
	}
	return &model.Reservation{ID: id}, nil
}

func (m *mockReservationService) CloseSession(ctx context.Context, id string, timeOut *time.Time) (*service.CloseSessionResult, error) {
	return &service.CloseSessionResult{DebitedMinutes: 60, NewBalance: "09:00:00"}, nil
}

func testHandler(svc service.ReservationService) (*ReservationHandler, *httprouter.Router) {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	h := NewReservationHandler(svc, nil, log)
	router := httprouter.New()
	h.RegisterRoutes(router)
	return h, router
}

func TestCreate_RequiresRequesterHeaders(t *testing.T) {
	_, router := testHandler(&mockReservationService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without requester headers, got %d", rec.Code)
	}
}

func TestCreate_PassesRequesterToService(t *testing.T) {
	var gotID, gotRole string
	var gotDuration *int
	svc := &mockReservationService{
		createFunc: func(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error {
			gotID, gotRole, gotDuration = requesterID, requesterRole, durationMin
			res.ID = "res-1"
			res.Number = "RSV-20260601-ABCDEF"
			return nil
		},
	}
	_, router := testHandler(svc)

	body := `{"resource_id":"665f1f77bcf86cd799439011","date":"2026-06-01","start_time":"09:00","duration_min":90,"purpose":"lab work"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	req.Header.Set("X-Requester-Id", "665f1f77bcf86cd799439033")
	req.Header.Set("X-Requester-Role", model.RoleStudent)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotID != "665f1f77bcf86cd799439033" || gotRole != model.RoleStudent {
		t.Errorf("requester not forwarded: %s / %s", gotID, gotRole)
	}
	if gotDuration == nil || *gotDuration != 90 {
		t.Errorf("duration_min not forwarded: %v", gotDuration)
	}
}

func TestCreate_ConflictBecomes409(t *testing.T) {
	svc := &mockReservationService{
		createFunc: func(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error {
			return apperrors.Conflict("Requested interval overlaps an existing commitment")
		},
	}
	_, router := testHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"purpose":"x"}`))
	req.Header.Set("X-Requester-Id", "665f1f77bcf86cd799439044")
	req.Header.Set("X-Requester-Role", model.RoleFaculty)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp["code"] != apperrors.CodeConflict {
		t.Errorf("expected code %s, got %v", apperrors.CodeConflict, resp["code"])
	}
}

func TestCreate_RejectsUnknownRole(t *testing.T) {
	_, router := testHandler(&mockReservationService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{}`))
	req.Header.Set("X-Requester-Id", "665f1f77bcf86cd799439033")
	req.Header.Set("X-Requester-Role", "superuser")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}
}

func TestTransition_ForwardsActionAndActor(t *testing.T) {
	var gotAction, gotActor, gotRole string
	svc := &mockReservationService{
		transitionFunc: func(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error) {
			gotAction, gotActor, gotRole = action, actorID, actorRole
			return &model.Reservation{ID: id, Status: model.StatusApproved}, nil
		},
	}
	_, router := testHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/res-1/transitions", strings.NewReader(`{"action":"approve"}`))
	req.Header.Set("X-Requester-Id", "admin-1")
	req.Header.Set("X-Requester-Role", model.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotAction != "approve" || gotActor != "admin-1" || gotRole != model.RoleAdmin {
		t.Errorf("transition not forwarded: %s / %s / %s", gotAction, gotActor, gotRole)
	}
}

func TestTransition_InvalidTransitionBecomes409(t *testing.T) {
	svc := &mockReservationService{
		transitionFunc: func(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error) {
			return nil, apperrors.InvalidTransition(action, model.StatusCompleted)
		},
	}
	_, router := testHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/res-1/transitions", strings.NewReader(`{"action":"start"}`))
	req.Header.Set("X-Requester-Id", "665f1f77bcf86cd799439033")
	req.Header.Set("X-Requester-Role", model.RoleStudent)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for invalid transition, got %d", rec.Code)
	}
}

func TestGetAll_StudentIsScopedToOwnReservations(t *testing.T) {
	var gotHolder string
	svc := &mockReservationService{
		byHolderFunc: func(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
			gotHolder = holderID
			return []*model.Reservation{}, 0, nil
		},
	}
	_, router := testHandler(svc)

	// A student asking for someone else's reservations gets their own anyway.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations?holder_id=665f1f77bcf86cd799439099", nil)
	req.Header.Set("X-Requester-Id", "665f1f77bcf86cd799439033")
	req.Header.Set("X-Requester-Role", model.RoleStudent)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotHolder != "665f1f77bcf86cd799439033" {
		t.Errorf("expected holder scope to the requester, got %q", gotHolder)
	}
}
