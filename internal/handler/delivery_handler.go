package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"github.com/expresso-itaporanga/tracking-api/internal/repository"
	"github.com/expresso-itaporanga/tracking-api/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type DeliveryService interface {
	Create(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error)
	Get(ctx context.Context, trackingCode string) (*domain.Delivery, []domain.StatusUpdate, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error)
	UpdateStatus(ctx context.Context, trackingCode string, input service.UpdateStatusInput) (*domain.Delivery, error)
	UpdateFields(ctx context.Context, trackingCode string, patch repository.FieldPatch) (*domain.Delivery, error)
	Delete(ctx context.Context, trackingCode string) error
}

type DeliveryHandler struct {
	service DeliveryService
}

func NewDeliveryHandler(service DeliveryService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/deliveries", h.CreateDelivery)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/deliveries/:code", h.GetDelivery)
	v1.Put("/deliveries/:code/status", h.UpdateDeliveryStatus)
	v1.Put("/deliveries/:code", h.UpdateDeliveryFields)
	v1.Delete("/deliveries/:code", h.DeleteDelivery)

	return nil
}

type createDeliveryRequest struct {
	TrackingCode       string   `json:"trackingCode"`
	Sender             string   `json:"sender"`
	Recipient          string   `json:"recipient"`
	Origin             string   `json:"origin"`
	Destination        string   `json:"destination"`
	ExpectedDeliveryAt *string  `json:"expectedDeliveryAt,omitempty"`
	DistanceKm         *float64 `json:"distanceKm,omitempty"`
	WeightKg           *float64 `json:"weightKg,omitempty"`
	Price              *float64 `json:"price,omitempty"`
	DriverID           *string  `json:"driverId,omitempty"`
}

type updateStatusRequest struct {
	Status   string  `json:"status"`
	Location *string `json:"location,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type updateDeliveryRequest struct {
	Sender             *string  `json:"sender,omitempty"`
	Recipient          *string  `json:"recipient,omitempty"`
	Origin             *string  `json:"origin,omitempty"`
	Destination        *string  `json:"destination,omitempty"`
	ExpectedDeliveryAt *string  `json:"expectedDeliveryAt,omitempty"`
	DistanceKm         *float64 `json:"distanceKm,omitempty"`
	WeightKg           *float64 `json:"weightKg,omitempty"`
	Price              *float64 `json:"price,omitempty"`
	DriverID           *string  `json:"driverId,omitempty"`
}

type deliveryResponse struct {
	ID                 string     `json:"id"`
	TrackingCode       string     `json:"trackingCode"`
	Sender             string     `json:"sender"`
	Recipient          string     `json:"recipient"`
	Origin             string     `json:"origin"`
	Destination        string     `json:"destination"`
	Status             string     `json:"status"`
	ExpectedDeliveryAt *time.Time `json:"expectedDeliveryAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	DelayReason        *string    `json:"delayReason,omitempty"`
	ReturnReason       *string    `json:"returnReason,omitempty"`
	DistanceKm         *float64   `json:"distanceKm,omitempty"`
	WeightKg           *float64   `json:"weightKg,omitempty"`
	Price              *float64   `json:"price,omitempty"`
	DriverID           *string    `json:"driverId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type statusUpdateResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Location  *string   `json:"location,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
}

type deliveryDetailResponse struct {
	deliveryResponse
	History []statusUpdateResponse `json:"history"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DeliveryHandler) CreateDelivery(c *fiber.Ctx) error {
	var req createDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	delivery, err := requestToDomainDelivery(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), &delivery)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toDeliveryResponse(created))
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	delivery, history, err := h.service.Get(c.Context(), code)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(deliveryDetailResponse{
		deliveryResponse: toDeliveryResponse(delivery),
		History:          toStatusUpdateResponses(history),
	})
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	deliveries, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		data = append(data, toDeliveryResponse(&deliveries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *DeliveryHandler) UpdateDeliveryStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code := strings.TrimSpace(c.Params("code"))
	delivery, err := h.service.UpdateStatus(c.Context(), code, service.UpdateStatusInput{
		Status:   req.Status,
		Location: req.Location,
		Notes:    req.Notes,
		Reason:   req.Reason,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) UpdateDeliveryFields(c *fiber.Ctx) error {
	var req updateDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	patch, err := requestToFieldPatch(req)
	if err != nil {
		return toHTTPError(err)
	}

	code := strings.TrimSpace(c.Params("code"))
	delivery, err := h.service.UpdateFields(c.Context(), code, patch)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) DeleteDelivery(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	if err := h.service.Delete(c.Context(), code); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	start, err := parseTimeQuery(c.Query("start"), "start")
	if err != nil {
		return repository.ListParams{}, err
	}
	end, err := parseTimeQuery(c.Query("end"), "end")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = start
	params.To = end

	return params, nil
}

func parseTimeQuery(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := parseFlexibleTime(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD", domain.ErrValidation, field)
	}
	return &t, nil
}

func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func requestToDomainDelivery(req createDeliveryRequest) (domain.Delivery, error) {
	d := domain.Delivery{
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		Sender:       strings.TrimSpace(req.Sender),
		Recipient:    strings.TrimSpace(req.Recipient),
		Origin:       strings.TrimSpace(req.Origin),
		Destination:  strings.TrimSpace(req.Destination),
		DistanceKM:   req.DistanceKm,
		WeightKG:     req.WeightKg,
		Price:        req.Price,
		DriverID:     req.DriverID,
	}

	if req.ExpectedDeliveryAt != nil {
		expected, err := parseFlexibleTime(strings.TrimSpace(*req.ExpectedDeliveryAt))
		if err != nil {
			return domain.Delivery{}, fmt.Errorf("%w: expectedDeliveryAt must be RFC3339 or YYYY-MM-DD", domain.ErrValidation)
		}
		d.ExpectedDeliveryAt = &expected
	}

	return d, nil
}

func requestToFieldPatch(req updateDeliveryRequest) (repository.FieldPatch, error) {
	patch := repository.FieldPatch{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Origin:      req.Origin,
		Destination: req.Destination,
		DistanceKM:  req.DistanceKm,
		WeightKG:    req.WeightKg,
		Price:       req.Price,
		DriverID:    req.DriverID,
	}

	if req.ExpectedDeliveryAt != nil {
		expected, err := parseFlexibleTime(strings.TrimSpace(*req.ExpectedDeliveryAt))
		if err != nil {
			return repository.FieldPatch{}, fmt.Errorf("%w: expectedDeliveryAt must be RFC3339 or YYYY-MM-DD", domain.ErrValidation)
		}
		patch.ExpectedDeliveryAt = &expected
	}

	return patch, nil
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:                 d.ID,
		TrackingCode:       d.TrackingCode,
		Sender:             d.Sender,
		Recipient:          d.Recipient,
		Origin:             d.Origin,
		Destination:        d.Destination,
		Status:             d.Status.String(),
		ExpectedDeliveryAt: d.ExpectedDeliveryAt,
		CompletedAt:        d.CompletedAt,
		DelayReason:        d.DelayReason,
		ReturnReason:       d.ReturnReason,
		DistanceKm:         d.DistanceKM,
		WeightKg:           d.WeightKG,
		Price:              d.Price,
		DriverID:           d.DriverID,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func toStatusUpdateResponses(history []domain.StatusUpdate) []statusUpdateResponse {
	responses := make([]statusUpdateResponse, 0, len(history))
	for _, entry := range history {
		responses = append(responses, statusUpdateResponse{
			ID:        entry.ID,
			Status:    entry.Status.String(),
			Timestamp: entry.Timestamp,
			Location:  entry.Location,
			Notes:     entry.Notes,
		})
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidDriver),
		errors.Is(err, domain.ErrInvalidDate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
