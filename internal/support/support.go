// Package support runs the customer support desk: tickets, their
// conversation and the admin triage fields.
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

type Desk struct {
	logger   *logger.Logger
	store    *repository.Store
	notifier models.NotificationService
	events   models.EventPublisher
	validate *validator.Validate
}

func NewDesk(store *repository.Store, notifier models.NotificationService, publisher models.EventPublisher, logger *logger.Logger) *Desk {
	return &Desk{
		logger:   logger,
		store:    store,
		notifier: notifier,
		events:   publisher,
		validate: validator.New(),
	}
}

// Open creates a ticket whose first message is the description. A referenced
// order must belong to the caller.
func (d *Desk) Open(ctx context.Context, input models.NewTicket, actor models.Actor) (*models.SupportTicket, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)
	input.OrderID = strings.TrimSpace(input.OrderID)
	if err := d.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}

	var ticket *models.SupportTicket
	err := d.store.WithTx(ctx, func(tx *gorm.DB) error {
		created := &models.SupportTicket{
			UserID:      actor.UserID,
			Category:    input.Category,
			Subject:     input.Subject,
			Description: input.Description,
			Priority:    input.Priority,
			Status:      models.TicketOpen,
		}
		if input.OrderID != "" {
			var order models.Order
			if err := tx.Select("id", "user_id").First(&order, "id = ?", input.OrderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NotFound("order", input.OrderID)
				}
				return fmt.Errorf("failed to get order %s: %w", input.OrderID, err)
			}
			if order.UserID != actor.UserID {
				return models.ErrForbidden
			}
			created.OrderID = &order.ID
		}

		if err := insertNumbered(tx, created); err != nil {
			return err
		}
		if err := addMessage(tx, created.ID, actor, input.Description); err != nil {
			return err
		}
		var err error
		ticket, err = load(tx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("Support ticket opened", "ticket", ticket.TicketNumber, "user", ticket.UserID, "category", ticket.Category)
	events.Emit(ctx, d.events, d.logger, models.EventTicketOpened, ticket.ID, ticket)
	d.notify(&models.Notification{
		Audience: models.AudienceAdmin,
		Subject:  "New support ticket",
		Message:  fmt.Sprintf("%s [%s/%s] from %s: %s", ticket.TicketNumber, ticket.Category, ticket.Priority, requester(ticket), ticket.Subject),
	})
	return ticket, nil
}

// insertNumbered stores the ticket as TKT-<n>, n being one past the current
// count. When a concurrent ticket took that number it falls back to a
// timestamp number.
func insertNumbered(tx *gorm.DB, ticket *models.SupportTicket) error {
	var count int64
	if err := tx.Model(&models.SupportTicket{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count tickets: %w", err)
	}
	ticket.TicketNumber = fmt.Sprintf("TKT-%06d", count+1)
	err := tx.Transaction(func(tx *gorm.DB) error {
		return tx.Create(ticket).Error
	})
	if err == nil {
		return nil
	}
	ticket.TicketNumber = fmt.Sprintf("TKT-%d", time.Now().UnixMilli())
	if err := tx.Create(ticket).Error; err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// Get returns a ticket with its conversation to its owner or an admin.
func (d *Desk) Get(ctx context.Context, id string, actor models.Actor) (*models.SupportTicket, error) {
	ticket, err := load(d.store.DB(ctx), id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(ticket.UserID) {
		return nil, models.ErrForbidden
	}
	return ticket, nil
}

func (d *Desk) ListForUser(ctx context.Context, userID string, filter models.TicketFilter) ([]models.SupportTicket, error) {
	return d.list(d.store.DB(ctx).Where("user_id = ?", userID), filter)
}

func (d *Desk) ListAll(ctx context.Context, filter models.TicketFilter, admin models.Actor) ([]models.SupportTicket, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return d.list(d.store.DB(ctx), filter)
}

func (d *Desk) list(query *gorm.DB, filter models.TicketFilter) ([]models.SupportTicket, error) {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	var tickets []models.SupportTicket
	err := query.
		Preload("User").
		Preload("Order").
		Preload("Assignee").
		Order("created_at DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// Reply appends a message. A customer reply reopens a closed ticket, an admin
// reply is emailed to the customer.
func (d *Desk) Reply(ctx context.Context, id string, actor models.Actor, message string) (*models.SupportTicket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, models.NewValidationError("message", "message is required")
	}

	ticket, err := d.update(ctx, id, func(tx *gorm.DB, current *models.SupportTicket) (map[string]interface{}, error) {
		if !actor.CanAccess(current.UserID) {
			return nil, models.ErrForbidden
		}
		if err := addMessage(tx, current.ID, actor, message); err != nil {
			return nil, err
		}
		changes := map[string]interface{}{"updated_at": time.Now().UTC()}
		if current.Status == models.TicketClosed && !actor.IsAdmin() {
			changes["status"] = models.TicketOpen
			changes["closed_at"] = nil
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	if actor.IsAdmin() && actor.UserID != ticket.UserID && ticket.User != nil {
		d.notify(&models.Notification{
			Audience: models.AudienceUser,
			Email:    ticket.User.Email,
			Subject:  "New reply on " + ticket.TicketNumber,
			Message:  fmt.Sprintf("Our support team replied to \"%s\":\n\n%s", ticket.Subject, message),
		})
	}
	return ticket, nil
}

// Close lets the owner or an admin close a ticket.
func (d *Desk) Close(ctx context.Context, id string, actor models.Actor) (*models.SupportTicket, error) {
	return d.update(ctx, id, func(_ *gorm.DB, current *models.SupportTicket) (map[string]interface{}, error) {
		if !actor.CanAccess(current.UserID) {
			return nil, models.ErrForbidden
		}
		return map[string]interface{}{"status": models.TicketClosed, "closed_at": time.Now().UTC()}, nil
	})
}

func (d *Desk) SetStatus(ctx context.Context, id string, status models.TicketStatus, admin models.Actor) (*models.SupportTicket, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("ticket status %q: %w", status, models.ErrInvalidStatus)
	}
	return d.update(ctx, id, func(_ *gorm.DB, _ *models.SupportTicket) (map[string]interface{}, error) {
		changes := map[string]interface{}{"status": status}
		switch status {
		case models.TicketResolved:
			changes["resolved_at"] = time.Now().UTC()
		case models.TicketClosed:
			changes["closed_at"] = time.Now().UTC()
		}
		return changes, nil
	})
}

func (d *Desk) SetPriority(ctx context.Context, id string, priority models.TicketPriority, admin models.Actor) (*models.SupportTicket, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if !priority.Valid() {
		return nil, models.NewValidationError("priority", "unknown priority %q", priority)
	}
	return d.update(ctx, id, func(_ *gorm.DB, _ *models.SupportTicket) (map[string]interface{}, error) {
		return map[string]interface{}{"priority": priority}, nil
	})
}

// Assign hands the ticket to the calling admin. Open tickets move to in_progress.
func (d *Desk) Assign(ctx context.Context, id string, admin models.Actor) (*models.SupportTicket, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return d.update(ctx, id, func(_ *gorm.DB, current *models.SupportTicket) (map[string]interface{}, error) {
		changes := map[string]interface{}{"assigned_to": admin.UserID}
		if current.Status == models.TicketOpen {
			changes["status"] = models.TicketInProgress
		}
		return changes, nil
	})
}

func (d *Desk) SetNotes(ctx context.Context, id string, notes string, admin models.Actor) (*models.SupportTicket, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, models.NewValidationError("notes", "notes are required")
	}
	return d.update(ctx, id, func(_ *gorm.DB, _ *models.SupportTicket) (map[string]interface{}, error) {
		return map[string]interface{}{"admin_notes": notes}, nil
	})
}

// Statistics counts tickets by status, category and priority.
func (d *Desk) Statistics(ctx context.Context, admin models.Actor) (*models.TicketStatistics, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	db := d.store.DB(ctx)

	byStatus, err := countBy(db, "status")
	if err != nil {
		return nil, err
	}
	stats := &models.TicketStatistics{}
	for _, c := range byStatus {
		stats.Total += c.Count
		switch models.TicketStatus(c.Name) {
		case models.TicketOpen:
			stats.Open = c.Count
		case models.TicketInProgress:
			stats.InProgress = c.Count
		case models.TicketResolved:
			stats.Resolved = c.Count
		case models.TicketClosed:
			stats.Closed = c.Count
		}
	}
	if stats.ByCategory, err = countBy(db, "category"); err != nil {
		return nil, err
	}
	if stats.ByPriority, err = countBy(db, "priority"); err != nil {
		return nil, err
	}
	return stats, nil
}

func countBy(db *gorm.DB, column string) ([]models.TicketCount, error) {
	counts := []models.TicketCount{}
	err := db.Model(&models.SupportTicket{}).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order(column).
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets by %s: %w", column, err)
	}
	return counts, nil
}

// update loads the ticket, applies the changes returned by fn and reloads it,
// all in one transaction.
func (d *Desk) update(ctx context.Context, id string, fn func(tx *gorm.DB, current *models.SupportTicket) (map[string]interface{}, error)) (*models.SupportTicket, error) {
	var ticket *models.SupportTicket
	err := d.store.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := load(tx, id)
		if err != nil {
			return err
		}
		changes, err := fn(tx, current)
		if err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := tx.Model(&models.SupportTicket{}).Where("id = ?", id).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update ticket %s: %w", id, err)
			}
		}
		ticket, err = load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("Support ticket updated", "ticket", ticket.TicketNumber, "status", ticket.Status, "priority", ticket.Priority)
	events.Emit(ctx, d.events, d.logger, models.EventTicketUpdated, ticket.ID, ticket)
	return ticket, nil
}

func (d *Desk) notify(n *models.Notification) {
	if d.notifier != nil {
		d.notifier.SendNotification(n)
	}
}

func requester(ticket *models.SupportTicket) string {
	if ticket.User == nil {
		return ticket.UserID
	}
	return ticket.User.Email
}

func addMessage(tx *gorm.DB, ticketID string, actor models.Actor, message string) error {
	role := models.RoleUser
	if actor.IsAdmin() {
		role = models.RoleAdmin
	}
	entry := &models.TicketMessage{TicketID: ticketID, SenderID: actor.UserID, SenderRole: role, Message: message}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add message to ticket %s: %w", ticketID, err)
	}
	return nil
}

func load(db *gorm.DB, id string) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	err := db.
		Preload("User").
		Preload("Order").
		Preload("Assignee").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Messages.Sender").
		First(&ticket, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("ticket", id)
		}
		return nil, fmt.Errorf("failed to get ticket %s: %w", id, err)
	}
	return &ticket, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return models.NewValidationError(strings.ToLower(fe.Field()), "failed on the %s rule", fe.Tag())
	}
	return models.NewValidationError("ticket", "%s", err.Error())
}
