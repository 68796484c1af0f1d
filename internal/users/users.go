// Package users looks up customers and administrators.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

// NewUser is the input for registering an account.
type NewUser struct {
	Name  string      `json:"name" validate:"required"`
	Email string      `json:"email" validate:"required,email"`
	Role  models.Role `json:"role" validate:"omitempty,oneof=user admin"`
}

type Directory struct {
	logger   *logger.Logger
	store    *repository.Store
	validate *validator.Validate
}

func NewDirectory(store *repository.Store, logger *logger.Logger) *Directory {
	return &Directory{store: store, logger: logger, validate: validator.New()}
}

func (d *Directory) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := d.store.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("user", id)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := d.store.DB(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("user", email)
		}
		return nil, fmt.Errorf("failed to find user %s: %w", email, err)
	}
	return &user, nil
}

// Create registers an account with an empty wallet.
func (d *Directory) Create(ctx context.Context, input NewUser) (*models.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if err := d.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	if _, err := d.FindByEmail(ctx, input.Email); err == nil {
		return nil, models.NewValidationError("email", "%s is already registered", input.Email)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user := &models.User{Name: input.Name, Email: input.Email, Role: input.Role}
	if err := d.store.DB(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	d.logger.Info("User created", "id", user.ID, "role", user.Role)
	return user, nil
}

// ListBalances returns every customer with the cached balance, richest first.
func (d *Directory) ListBalances(ctx context.Context) ([]models.UserBalance, error) {
	var balances []models.UserBalance
	err := d.store.DB(ctx).Model(&models.User{}).
		Select("id", "name", "email", "wallet_balance", "created_at").
		Where("role = ?", models.RoleUser).
		Order("wallet_balance DESC").
		Scan(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return balances, nil
}

// AdminEmails returns the addresses of every administrator.
func (d *Directory) AdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := d.store.DB(ctx).Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list admin emails: %w", err)
	}
	return emails, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return models.NewValidationError(strings.ToLower(fe.Field()), "failed on the %s rule", fe.Tag())
	}
	return models.NewValidationError("", "%s", err.Error())
}
