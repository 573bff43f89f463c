package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"github.com/expresso-itaporanga/tracking-api/internal/observability"
	"github.com/expresso-itaporanga/tracking-api/internal/queue"
	"github.com/expresso-itaporanga/tracking-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const initialStatusNote = "delivery registered in the system"

type DeliveryService struct {
	deliveries repository.DeliveryRepository
	users      repository.UserRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewDeliveryService(
	deliveries repository.DeliveryRepository,
	users repository.UserRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		deliveries: deliveries,
		users:      users,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *DeliveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Create registers a new delivery and its first history entry. The pair is
// written in one transaction; a reused tracking code fails the whole call.
func (s *DeliveryService) Create(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.prepareForCreate(delivery); err != nil {
		return nil, err
	}

	if delivery.DriverID != nil {
		if err := s.checkDriver(ctx, *delivery.DriverID); err != nil {
			return nil, err
		}
	}

	notes := initialStatusNote
	initial := &domain.StatusUpdate{
		ID:        uuid.NewString(),
		Status:    delivery.Status,
		Timestamp: delivery.CreatedAt,
		Notes:     &notes,
	}

	if err := s.deliveries.Create(ctx, delivery, initial); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: tracking code %q already exists", domain.ErrConflict, delivery.TrackingCode)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncDeliveryCreated()
	}
	s.publishEvent(ctx, delivery, initial)

	return delivery, nil
}

// Get returns a delivery and its full status history ordered by timestamp.
func (s *DeliveryService) Get(ctx context.Context, trackingCode string) (*domain.Delivery, []domain.StatusUpdate, error) {
	code := strings.TrimSpace(trackingCode)
	if code == "" {
		return nil, nil, fmt.Errorf("%w: tracking code is required", domain.ErrValidation)
	}

	delivery, err := s.deliveries.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.deliveries.ListHistory(ctx, delivery.ID)
	if err != nil {
		return nil, nil, err
	}

	return delivery, history, nil
}

// List returns deliveries whose creation time falls in the requested window.
// When no bound is given the window defaults to the current calendar month.
func (s *DeliveryService) List(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error) {
	if params.From == nil && params.To == nil {
		window := monthWindow(s.now().UTC())
		params.From = &window.From
		params.To = &window.To
	}
	return s.deliveries.List(ctx, params)
}

type UpdateStatusInput struct {
	Status   string
	Location *string
	Notes    *string
	Reason   *string
}

// UpdateStatus moves the delivery to a new status and appends the matching
// history entry atomically. A DELAYED or RETURNED status may attach a reason
// stored on the delivery itself; DELIVERED stamps the completion time.
func (s *DeliveryService) UpdateStatus(
	ctx context.Context,
	trackingCode string,
	input UpdateStatusInput,
) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	code := strings.TrimSpace(trackingCode)
	if code == "" {
		return nil, fmt.Errorf("%w: tracking code is required", domain.ErrValidation)
	}
	if strings.TrimSpace(input.Status) == "" {
		return nil, fmt.Errorf("%w: status is required", domain.ErrValidation)
	}

	status, err := domain.ParseStatusFromString(input.Status)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	notes := normalizeOptionalString(input.Notes)
	if notes == nil {
		templated := fmt.Sprintf("status updated to %s", status)
		notes = &templated
	}

	entry := &domain.StatusUpdate{
		ID:        uuid.NewString(),
		Status:    status,
		Timestamp: at,
		Location:  normalizeOptionalString(input.Location),
		Notes:     notes,
	}

	attach := repository.StatusAttach{}
	reason := normalizeOptionalString(input.Reason)
	switch status {
	case domain.StatusDelivered:
		attach.CompletedAt = &at
	case domain.StatusDelayed:
		attach.DelayReason = reason
	case domain.StatusReturned:
		attach.ReturnReason = reason
	}

	delivery, err := s.deliveries.AppendStatus(ctx, code, entry, attach)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncStatusUpdate(status.String())
	}
	s.publishEvent(ctx, delivery, entry)

	return delivery, nil
}

// UpdateFields applies an administrative partial edit of non-status fields.
func (s *DeliveryService) UpdateFields(
	ctx context.Context,
	trackingCode string,
	patch repository.FieldPatch,
) (*domain.Delivery, error) {
	code := strings.TrimSpace(trackingCode)
	if code == "" {
		return nil, fmt.Errorf("%w: tracking code is required", domain.ErrValidation)
	}

	if patch.DriverID != nil && *patch.DriverID != "" {
		if err := s.checkDriver(ctx, *patch.DriverID); err != nil {
			return nil, err
		}
	}

	return s.deliveries.UpdateFields(ctx, code, patch)
}

// Delete is the administrative override; history entries cascade with it.
func (s *DeliveryService) Delete(ctx context.Context, trackingCode string) error {
	code := strings.TrimSpace(trackingCode)
	if code == "" {
		return fmt.Errorf("%w: tracking code is required", domain.ErrValidation)
	}
	return s.deliveries.Delete(ctx, code)
}

func (s *DeliveryService) prepareForCreate(d *domain.Delivery) error {
	if d == nil {
		return fmt.Errorf("%w: delivery is required", domain.ErrValidation)
	}

	d.TrackingCode = strings.TrimSpace(d.TrackingCode)
	d.Sender = strings.TrimSpace(d.Sender)
	d.Recipient = strings.TrimSpace(d.Recipient)
	d.Origin = strings.TrimSpace(d.Origin)
	d.Destination = strings.TrimSpace(d.Destination)
	d.DriverID = normalizeOptionalString(d.DriverID)

	d.ID = uuid.NewString()
	d.Status = domain.StatusRegistered
	d.CreatedAt = s.now().UTC()
	d.UpdatedAt = d.CreatedAt
	d.CompletedAt = nil
	d.DelayReason = nil
	d.ReturnReason = nil

	return d.Validate()
}

func (s *DeliveryService) checkDriver(ctx context.Context, driverID string) error {
	if s.users == nil {
		return fmt.Errorf("user repository is not configured")
	}

	user, err := s.users.GetByID(ctx, driverID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: user %q not found", domain.ErrInvalidDriver, driverID)
	}
	if err != nil {
		return err
	}
	if user.Role != domain.RoleDriver {
		return fmt.Errorf("%w: user %q has role %s", domain.ErrInvalidDriver, driverID, user.Role)
	}
	return nil
}

// publishEvent emits the status change to the event feed. Publishing is a
// side feed: failures are logged, never surfaced to the caller.
func (s *DeliveryService) publishEvent(ctx context.Context, d *domain.Delivery, entry *domain.StatusUpdate) {
	if s.publisher == nil || d == nil || entry == nil {
		return
	}

	msg := queue.DeliveryEventMessage{
		DeliveryID:   d.ID,
		TrackingCode: d.TrackingCode,
		Status:       entry.Status,
		Location:     entry.Location,
		OccurredAt:   entry.Timestamp,
	}
	if err := s.publisher.Publish(ctx, queue.EventsQueueName, msg); err != nil {
		s.logger.Error("failed to publish delivery event",
			zap.String("trackingCode", d.TrackingCode),
			zap.String("status", entry.Status.String()),
			zap.Error(err),
		)
	}
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
