package repository

import (
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
)

// DeliveryModel is the persistence model for the deliveries table.
type DeliveryModel struct {
	ID                 string        `gorm:"type:uuid;primaryKey"`
	TrackingCode       string        `gorm:"type:varchar(50);not null;uniqueIndex:idx_deliveries_tracking_code"`
	Sender             string        `gorm:"type:text;not null"`
	Recipient          string        `gorm:"type:text;not null"`
	Origin             string        `gorm:"type:text;not null"`
	Destination        string        `gorm:"type:text;not null"`
	Status             domain.Status `gorm:"type:varchar(30);not null"`
	ExpectedDeliveryAt *time.Time    `gorm:"type:timestamptz"`
	CompletedAt        *time.Time    `gorm:"type:timestamptz"`
	DelayReason        *string       `gorm:"type:text"`
	ReturnReason       *string       `gorm:"type:text"`
	DistanceKM         *float64
	WeightKG           *float64
	Price              *float64
	DriverID           *string `gorm:"type:uuid"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// StatusUpdateModel is the persistence model for delivery_status_updates.
// Rows are removed by cascade when the owning delivery is deleted.
type StatusUpdateModel struct {
	ID         string        `gorm:"type:uuid;primaryKey"`
	DeliveryID string        `gorm:"type:uuid;not null"`
	Status     domain.Status `gorm:"type:varchar(30);not null"`
	Timestamp  time.Time     `gorm:"type:timestamptz;not null"`
	Location   *string       `gorm:"type:text"`
	Notes      *string       `gorm:"type:text"`

	Delivery DeliveryModel `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
}

func (StatusUpdateModel) TableName() string {
	return "delivery_status_updates"
}

// UserModel is the persistence model for users.
type UserModel struct {
	ID        string      `gorm:"type:uuid;primaryKey"`
	Username  string      `gorm:"type:varchar(80);not null;uniqueIndex:idx_users_username"`
	Role      domain.Role `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:                 d.ID,
		TrackingCode:       d.TrackingCode,
		Sender:             d.Sender,
		Recipient:          d.Recipient,
		Origin:             d.Origin,
		Destination:        d.Destination,
		Status:             d.Status,
		ExpectedDeliveryAt: d.ExpectedDeliveryAt,
		CompletedAt:        d.CompletedAt,
		DelayReason:        d.DelayReason,
		ReturnReason:       d.ReturnReason,
		DistanceKM:         d.DistanceKM,
		WeightKG:           d.WeightKG,
		Price:              d.Price,
		DriverID:           d.DriverID,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:                 m.ID,
		TrackingCode:       m.TrackingCode,
		Sender:             m.Sender,
		Recipient:          m.Recipient,
		Origin:             m.Origin,
		Destination:        m.Destination,
		Status:             m.Status,
		ExpectedDeliveryAt: m.ExpectedDeliveryAt,
		CompletedAt:        m.CompletedAt,
		DelayReason:        m.DelayReason,
		ReturnReason:       m.ReturnReason,
		DistanceKM:         m.DistanceKM,
		WeightKG:           m.WeightKG,
		Price:              m.Price,
		DriverID:           m.DriverID,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func statusUpdateModelFromDomain(u *domain.StatusUpdate) *StatusUpdateModel {
	if u == nil {
		return nil
	}

	return &StatusUpdateModel{
		ID:         u.ID,
		DeliveryID: u.DeliveryID,
		Status:     u.Status,
		Timestamp:  u.Timestamp,
		Location:   u.Location,
		Notes:      u.Notes,
	}
}

func statusUpdateModelToDomain(m *StatusUpdateModel) *domain.StatusUpdate {
	if m == nil {
		return nil
	}

	return &domain.StatusUpdate{
		ID:         m.ID,
		DeliveryID: m.DeliveryID,
		Status:     m.Status,
		Timestamp:  m.Timestamp,
		Location:   m.Location,
		Notes:      m.Notes,
	}
}

func userModelFromDomain(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}

	return &UserModel{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:        m.ID,
		Username:  m.Username,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}
