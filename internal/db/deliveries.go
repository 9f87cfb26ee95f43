package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/courier/internal/models"
	"gorm.io/gorm"
)

// DefaultListLimit caps Recent when no limit is given.
const DefaultListLimit = 20

// DeliveryLog stores delivery attempts.
type DeliveryLog struct {
	db *gorm.DB
}

// NewDeliveryLog wraps an open, migrated database.
func NewDeliveryLog(db *gorm.DB) (*DeliveryLog, error) {
	if db == nil {
		return nil, fmt.Errorf("db: delivery log: db is required")
	}
	return &DeliveryLog{db: db}, nil
}

// Record inserts d, assigning an ID when it has none.
func (l *DeliveryLog) Record(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := l.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("db: record delivery: %w", err)
	}
	return nil
}

// Recent returns the newest deliveries first. A non-empty userID restricts
// the result to that user.
func (l *DeliveryLog) Recent(ctx context.Context, userID string, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := l.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var out []models.Delivery
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("db: list deliveries: %w", err)
	}
	return out, nil
}

// Counts returns the number of deliveries per status.
func (l *DeliveryLog) Counts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := l.db.WithContext(ctx).Model(&models.Delivery{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("db: count deliveries: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
