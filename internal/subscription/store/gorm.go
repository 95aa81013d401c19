package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/dataset"
)

// Connect opens a postgres connection and pings it.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type subscriptionModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	SubscriptionID string `gorm:"uniqueIndex;not null"`
	Type           string `gorm:"not null"`
	Dataset        string `gorm:"not null"`
	Entity         string
	ProjectID      int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (subscriptionModel) TableName() string { return "query_subscriptions" }

func modelFromSubscription(sub Subscription) subscriptionModel {
	return subscriptionModel{
		ID:             sub.ID,
		SubscriptionID: strings.TrimSpace(sub.SubscriptionID),
		Type:           sub.Type,
		Dataset:        string(sub.Dataset),
		Entity:         string(sub.Entity),
		ProjectID:      sub.ProjectID,
	}
}

func (m subscriptionModel) toSubscription() Subscription {
	return Subscription{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Type:           m.Type,
		Dataset:        dataset.Dataset(m.Dataset),
		Entity:         dataset.EntityKey(m.Entity),
		ProjectID:      m.ProjectID,
	}
}

// GormStore keeps subscriptions in the query_subscriptions table.
type GormStore struct {
	db  *gorm.DB
	log logging.ServiceLogger
}

func NewGormStore(db *gorm.DB, log logging.ServiceLogger) *GormStore {
	if log == nil {
		log = logging.Nop()
	}
	return &GormStore{db: db, log: log}
}

// AutoMigrate creates or updates the subscriptions table.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&subscriptionModel{})
}

func (s *GormStore) FindSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	// Find, not First: a miss must not log record-not-found.
	var rows []subscriptionModel
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", strings.TrimSpace(subscriptionID)).
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return Subscription{}, s.logError("find subscription failed", err, subscriptionID)
	}
	if len(rows) == 0 {
		return Subscription{}, ErrNotFound
	}
	return rows[0].toSubscription(), nil
}

func (s *GormStore) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	row := modelFromSubscription(sub)
	if row.SubscriptionID == "" {
		return Subscription{}, errors.New("subscription id is required")
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Subscription{}, s.logError("create subscription failed", err, sub.SubscriptionID)
	}
	return row.toSubscription(), nil
}

func (s *GormStore) Delete(ctx context.Context, subscriptionID string) error {
	res := s.db.WithContext(ctx).
		Where("subscription_id = ?", strings.TrimSpace(subscriptionID)).
		Delete(&subscriptionModel{})
	if res.Error != nil {
		return s.logError("delete subscription failed", res.Error, subscriptionID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) logError(msg string, err error, subscriptionID string) error {
	s.log.Error(msg, err, logging.LogFields{"subscription_id": subscriptionID})
	return fmt.Errorf("%s: %w", msg, err)
}
