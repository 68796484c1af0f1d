// Package settings keeps the single row of site-wide configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

const settingsID = 1

const defaultSiteName = "Coin Store"

type Store struct {
	logger *logger.Logger
	store  *repository.Store
}

func NewStore(store *repository.Store, logger *logger.Logger) *Store {
	return &Store{store: store, logger: logger}
}

// Get returns the settings row, creating it with defaults on first use.
func (s *Store) Get(ctx context.Context) (*models.Settings, error) {
	return s.get(s.store.DB(ctx))
}

// GetTx is Get bound to an open transaction.
func (s *Store) GetTx(ctx context.Context, tx *gorm.DB) (*models.Settings, error) {
	return s.get(tx.WithContext(ctx))
}

func (s *Store) get(db *gorm.DB) (*models.Settings, error) {
	var settings models.Settings
	err := db.First(&settings, "id = ?", settingsID).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	settings = models.Settings{
		ID:            settingsID,
		GiftCardTypes: append(models.StringList(nil), models.DefaultGiftCardTypes...),
		SiteName:      defaultSiteName,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}
	if err := db.First(&settings, "id = ?", settingsID).Error; err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	s.logger.Info("Default settings created")
	return &settings, nil
}

// GiftCardTypes returns the allowed gift card brands.
func (s *Store) GiftCardTypes(ctx context.Context) ([]string, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return settings.GiftCardTypes, nil
}

// Update applies an admin edit.
func (s *Store) Update(ctx context.Context, update models.SettingsUpdate, actor models.Actor) (*models.Settings, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var types models.StringList
	if update.GiftCardTypes != nil {
		for _, t := range update.GiftCardTypes {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		if len(types) == 0 {
			return nil, models.NewValidationError("giftCardTypes", "at least one gift card type is required")
		}
	}

	var settings *models.Settings
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		settings, err = s.get(tx)
		if err != nil {
			return err
		}
		if w := update.WalletAddresses; w != nil {
			if w.BTC != nil {
				settings.WalletAddresses.BTC = strings.TrimSpace(*w.BTC)
			}
			if w.ETH != nil {
				settings.WalletAddresses.ETH = strings.TrimSpace(*w.ETH)
			}
			if w.USDT != nil {
				settings.WalletAddresses.USDT = strings.TrimSpace(*w.USDT)
			}
		}
		if types != nil {
			settings.GiftCardTypes = types
		}
		if update.SiteName != nil {
			settings.SiteName = *update.SiteName
		}
		if update.SiteDescription != nil {
			settings.SiteDescription = *update.SiteDescription
		}
		if err := tx.Save(settings).Error; err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Settings updated", "by", actor.UserID)
	return settings, nil
}
