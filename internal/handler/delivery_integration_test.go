package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"github.com/expresso-itaporanga/tracking-api/internal/repository"
	"github.com/expresso-itaporanga/tracking-api/internal/service"
	"github.com/expresso-itaporanga/tracking-api/internal/transport"
)

func TestDeliveryIntegration_CreateDelivery(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		createFn: func(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
			if d.TrackingCode != "EXP-2025-0001" {
				t.Fatalf("trackingCode = %s", d.TrackingCode)
			}
			d.ID = "d-created"
			d.Status = domain.StatusRegistered
			return d, nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	body := `{"trackingCode":"EXP-2025-0001","sender":"Loja Central","recipient":"Maria Souza","origin":"Itaporanga, PB","destination":"Campina Grande, PB"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/deliveries", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var created map[string]any
	if err := json.Unmarshal(respBody, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "d-created" {
		t.Fatalf("id = %v, want d-created", created["id"])
	}
	if created["status"] != domain.StatusRegistered.String() {
		t.Fatalf("status = %v, want REGISTERED", created["status"])
	}

	badDateBody := `{"trackingCode":"EXP-2025-0002","sender":"a","recipient":"b","origin":"c","destination":"d","expectedDeliveryAt":"next tuesday"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/deliveries", badDateBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad expectedDeliveryAt", resp.StatusCode)
	}
}

func TestDeliveryIntegration_CreateDeliveryConflict(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		createFn: func(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
			return nil, fmt.Errorf("%w: tracking code %q already exists", domain.ErrConflict, d.TrackingCode)
		},
	}

	app := newDeliveryTestApp(t, svc)

	body := `{"trackingCode":"EXP-2025-0001","sender":"a","recipient":"b","origin":"c","destination":"d"}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/deliveries", body)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestDeliveryIntegration_GetDelivery(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)
	note := "delivery registered in the system"
	svc := &stubDeliveryService{
		getFn: func(ctx context.Context, code string) (*domain.Delivery, []domain.StatusUpdate, error) {
			if code == "EXP-MISSING" {
				return nil, nil, fmt.Errorf("%w: delivery %q", domain.ErrNotFound, code)
			}
			d := &domain.Delivery{
				ID:           "d1",
				TrackingCode: code,
				Status:       domain.StatusInTransit,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			history := []domain.StatusUpdate{
				{ID: "s1", Status: domain.StatusRegistered, Timestamp: now, Notes: &note},
				{ID: "s2", Status: domain.StatusInTransit, Timestamp: now.Add(time.Hour)},
			}
			return d, history, nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/deliveries/EXP-2025-0001", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var detail struct {
		TrackingCode string `json:"trackingCode"`
		History      []struct {
			Status string  `json:"status"`
			Notes  *string `json:"notes"`
		} `json:"history"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(detail.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(detail.History))
	}
	if detail.History[0].Notes == nil || *detail.History[0].Notes != note {
		t.Fatalf("first history note = %v", detail.History[0].Notes)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deliveries/EXP-MISSING", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeliveryIntegration_ListDeliveries(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error) {
			if params.Status == nil || *params.Status != domain.StatusInTransit {
				t.Fatalf("status filter = %v, want IN_TRANSIT", params.Status)
			}
			return []domain.Delivery{{ID: "d1", TrackingCode: "EXP-1", Status: domain.StatusInTransit}}, 1, nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/deliveries?status=in_transit", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var list struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if list.Meta.Total != 1 || len(list.Data) != 1 {
		t.Fatalf("list = %+v", list)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deliveries?status=WARPING", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deliveries?status=in_transit&pageSize=9999", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deliveries?status=in_transit&start=yesterday", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad start bound", resp.StatusCode)
	}
}

func TestDeliveryIntegration_UpdateStatus(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		updateStatusFn: func(ctx context.Context, code string, input service.UpdateStatusInput) (*domain.Delivery, error) {
			if input.Status != "DELAYED" {
				t.Fatalf("status = %s, want DELAYED", input.Status)
			}
			if input.Reason == nil || *input.Reason != "Traffic" {
				t.Fatalf("reason = %v, want Traffic", input.Reason)
			}
			reason := *input.Reason
			return &domain.Delivery{
				ID:           "d1",
				TrackingCode: code,
				Status:       domain.StatusDelayed,
				DelayReason:  &reason,
			}, nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	body := `{"status":"DELAYED","reason":"Traffic","location":"BR-230"}`
	resp, respBody := performRequest(t, app, http.MethodPut, "/v1/deliveries/EXP-1/status", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var updated map[string]any
	if err := json.Unmarshal(respBody, &updated); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if updated["delayReason"] != "Traffic" {
		t.Fatalf("delayReason = %v, want Traffic", updated["delayReason"])
	}
}

func TestDeliveryIntegration_DeleteDelivery(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		deleteFn: func(ctx context.Context, code string) error {
			if code == "EXP-MISSING" {
				return fmt.Errorf("%w: delivery %q", domain.ErrNotFound, code)
			}
			return nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/deliveries/EXP-1", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/deliveries/EXP-MISSING", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeliveryIntegration_UpdateFieldsInvalidDriver(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		updateFieldsFn: func(ctx context.Context, code string, patch repository.FieldPatch) (*domain.Delivery, error) {
			return nil, fmt.Errorf("%w: user %q not found", domain.ErrInvalidDriver, *patch.DriverID)
		},
	}

	app := newDeliveryTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPut, "/v1/deliveries/EXP-1", `{"driverId":"ghost"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid driver", resp.StatusCode)
	}
}

func newDeliveryTestApp(t *testing.T, svc DeliveryService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterDeliveryRoutes(app, svc); err != nil {
		t.Fatalf("RegisterDeliveryRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubDeliveryService struct {
	createFn       func(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error)
	getFn          func(ctx context.Context, trackingCode string) (*domain.Delivery, []domain.StatusUpdate, error)
	listFn         func(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error)
	updateStatusFn func(ctx context.Context, trackingCode string, input service.UpdateStatusInput) (*domain.Delivery, error)
	updateFieldsFn func(ctx context.Context, trackingCode string, patch repository.FieldPatch) (*domain.Delivery, error)
	deleteFn       func(ctx context.Context, trackingCode string) error
}

func (s *stubDeliveryService) Create(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
	if s.createFn == nil {
		return d, nil
	}
	return s.createFn(ctx, d)
}

func (s *stubDeliveryService) Get(ctx context.Context, trackingCode string) (*domain.Delivery, []domain.StatusUpdate, error) {
	if s.getFn == nil {
		return nil, nil, fmt.Errorf("%w: delivery %q", domain.ErrNotFound, trackingCode)
	}
	return s.getFn(ctx, trackingCode)
}

func (s *stubDeliveryService) List(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error) {
	if s.listFn == nil {
		return nil, 0, nil
	}
	return s.listFn(ctx, params)
}

func (s *stubDeliveryService) UpdateStatus(ctx context.Context, trackingCode string, input service.UpdateStatusInput) (*domain.Delivery, error) {
	if s.updateStatusFn == nil {
		return &domain.Delivery{TrackingCode: trackingCode}, nil
	}
	return s.updateStatusFn(ctx, trackingCode, input)
}

func (s *stubDeliveryService) UpdateFields(ctx context.Context, trackingCode string, patch repository.FieldPatch) (*domain.Delivery, error) {
	if s.updateFieldsFn == nil {
		return &domain.Delivery{TrackingCode: trackingCode}, nil
	}
	return s.updateFieldsFn(ctx, trackingCode, patch)
}

func (s *stubDeliveryService) Delete(ctx context.Context, trackingCode string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, trackingCode)
}
