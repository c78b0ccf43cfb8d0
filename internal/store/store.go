package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// Open connects the local state database. The DSN selects the driver: a
// postgres URL for deployments that centralize storefront state, anything
// else is treated as a sqlite file path (the single-process default).
func Open(dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dial = postgres.Open(dsn)
	} else {
		dial = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.AutoMigrate(&models.Session{}); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return db, nil
}

// SessionRepo persists the identity snapshot across restarts. There is at
// most one row: this process plays the part of one browser tab.
type SessionRepo struct {
	DB *gorm.DB
}

func (r *SessionRepo) Save(ctx context.Context, s *models.Session) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Create(s).Error
	})
}

func (r *SessionRepo) Load(ctx context.Context) (*models.Session, error) {
	var s models.Session
	if err := r.DB.WithContext(ctx).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Clear(ctx context.Context) error {
	return r.DB.WithContext(ctx).Where("1 = 1").Delete(&models.Session{}).Error
}
