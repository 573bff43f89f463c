package repository

import (
	"context"
	"errors"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Status   *domain.Status
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// StatusAttach carries delivery-level fields written together with a status
// history entry.
type StatusAttach struct {
	CompletedAt  *time.Time
	DelayReason  *string
	ReturnReason *string
}

// FieldPatch is an administrative partial edit of non-status fields. Nil
// pointers leave the field untouched. An empty DriverID unassigns the driver.
type FieldPatch struct {
	Sender             *string
	Recipient          *string
	Origin             *string
	Destination        *string
	ExpectedDeliveryAt *time.Time
	DistanceKM         *float64
	WeightKG           *float64
	Price              *float64
	DriverID           *string
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery, initial *domain.StatusUpdate) error
	GetByTrackingCode(ctx context.Context, trackingCode string) (*domain.Delivery, error)
	ListHistory(ctx context.Context, deliveryID string) ([]domain.StatusUpdate, error)
	List(ctx context.Context, params ListParams) ([]domain.Delivery, int64, error)
	ListWindow(ctx context.Context, from, to time.Time) ([]domain.Delivery, error)
	AppendStatus(ctx context.Context, trackingCode string, entry *domain.StatusUpdate, attach StatusAttach) (*domain.Delivery, error)
	UpdateFields(ctx context.Context, trackingCode string, patch FieldPatch) (*domain.Delivery, error)
	Delete(ctx context.Context, trackingCode string) error
	LastStatusAt(ctx context.Context, deliveryIDs []string, status domain.Status) (map[string]time.Time, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

// Create persists the delivery together with its initial history entry in a
// single transaction: either both rows land or neither does.
func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.Delivery, initial *domain.StatusUpdate) error {
	model := deliveryModelFromDomain(d)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		entry := statusUpdateModelFromDomain(initial)
		entry.DeliveryID = model.ID
		return tx.Create(entry).Error
	})
	if err != nil {
		return err
	}

	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByTrackingCode(ctx context.Context, trackingCode string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "tracking_code = ?", trackingCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ListHistory(ctx context.Context, deliveryID string) ([]domain.StatusUpdate, error) {
	var models []StatusUpdateModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("timestamp ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	updates := make([]domain.StatusUpdate, 0, len(models))
	for i := range models {
		updates = append(updates, *statusUpdateModelToDomain(&models[i]))
	}
	return updates, nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params ListParams) ([]domain.Delivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, total, nil
}

// ListWindow returns every delivery created inside [from, to], unpaged. It
// feeds report computation; windows are bounded so result sets stay small.
func (r *GormDeliveryRepo) ListWindow(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

// AppendStatus sets the delivery's current status and appends the history
// entry atomically. attach fields are written on the delivery row itself.
func (r *GormDeliveryRepo) AppendStatus(
	ctx context.Context,
	trackingCode string,
	entry *domain.StatusUpdate,
	attach StatusAttach,
) (*domain.Delivery, error) {
	var updated DeliveryModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DeliveryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "tracking_code = ?", trackingCode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":     entry.Status,
			"updated_at": entry.Timestamp,
		}
		if attach.CompletedAt != nil {
			updates["completed_at"] = *attach.CompletedAt
		}
		if attach.DelayReason != nil {
			updates["delay_reason"] = *attach.DelayReason
		}
		if attach.ReturnReason != nil {
			updates["return_reason"] = *attach.ReturnReason
		}

		if err := tx.Model(&DeliveryModel{}).Where("id = ?", model.ID).Updates(updates).Error; err != nil {
			return err
		}

		entryModel := statusUpdateModelFromDomain(entry)
		entryModel.DeliveryID = model.ID
		if err := tx.Create(entryModel).Error; err != nil {
			return err
		}
		if entry != nil {
			*entry = *statusUpdateModelToDomain(entryModel)
		}

		return tx.First(&updated, "id = ?", model.ID).Error
	})
	if err != nil {
		return nil, err
	}

	return deliveryModelToDomain(&updated), nil
}

func (r *GormDeliveryRepo) UpdateFields(
	ctx context.Context,
	trackingCode string,
	patch FieldPatch,
) (*domain.Delivery, error) {
	var updated DeliveryModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DeliveryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "tracking_code = ?", trackingCode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"updated_at": time.Now().UTC(),
		}
		if patch.Sender != nil {
			updates["sender"] = *patch.Sender
		}
		if patch.Recipient != nil {
			updates["recipient"] = *patch.Recipient
		}
		if patch.Origin != nil {
			updates["origin"] = *patch.Origin
		}
		if patch.Destination != nil {
			updates["destination"] = *patch.Destination
		}
		if patch.ExpectedDeliveryAt != nil {
			updates["expected_delivery_at"] = *patch.ExpectedDeliveryAt
		}
		if patch.DistanceKM != nil {
			updates["distance_km"] = *patch.DistanceKM
		}
		if patch.WeightKG != nil {
			updates["weight_kg"] = *patch.WeightKG
		}
		if patch.Price != nil {
			updates["price"] = *patch.Price
		}
		if patch.DriverID != nil {
			if *patch.DriverID == "" {
				updates["driver_id"] = nil
			} else {
				updates["driver_id"] = *patch.DriverID
			}
		}

		if err := tx.Model(&DeliveryModel{}).Where("id = ?", model.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.First(&updated, "id = ?", model.ID).Error
	})
	if err != nil {
		return nil, err
	}

	return deliveryModelToDomain(&updated), nil
}

// Delete removes a delivery; its history entries go with it by FK cascade.
func (r *GormDeliveryRepo) Delete(ctx context.Context, trackingCode string) error {
	result := r.db.WithContext(ctx).
		Where("tracking_code = ?", trackingCode).
		Delete(&DeliveryModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type lastStatusRow struct {
	DeliveryID string    `gorm:"column:delivery_id"`
	Timestamp  time.Time `gorm:"column:ts"`
}

// LastStatusAt returns, per delivery id, the timestamp of the most recent
// history entry carrying the given status. Deliveries without a matching
// entry are absent from the map.
func (r *GormDeliveryRepo) LastStatusAt(
	ctx context.Context,
	deliveryIDs []string,
	status domain.Status,
) (map[string]time.Time, error) {
	if len(deliveryIDs) == 0 {
		return map[string]time.Time{}, nil
	}

	var rows []lastStatusRow
	err := r.db.WithContext(ctx).
		Model(&StatusUpdateModel{}).
		Select("delivery_id, MAX(timestamp) as ts").
		Where("delivery_id IN ? AND status = ?", deliveryIDs, status).
		Group("delivery_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		result[row.DeliveryID] = row.Timestamp
	}
	return result, nil
}
