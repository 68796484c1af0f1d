package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/pkg/logger"
)

// Store owns the database handle shared by every component.
type Store struct {
	logger *logger.Logger

	Conn *gorm.DB
}

// NewPostgresStore connects to PostgreSQL and migrates the schema.
func NewPostgresStore(dsn string, logger *logger.Logger) (*Store, error) {
	store, err := NewStore(postgres.Open(dsn), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return store, nil
}

// NewStore opens a GORM connection using the given dialector and migrates the schema.
func NewStore(dialector gorm.Dialector, logger *logger.Logger) (*Store, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return FromDB(db, logger), nil
}

// FromDB wraps an already opened and migrated connection.
func FromDB(db *gorm.DB, logger *logger.Logger) *Store {
	return &Store{Conn: db, logger: logger}
}

// Migrate creates or updates every table of the store.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusEntry{},
		&models.Transaction{},
		&models.PaymentRequest{},
		&models.Settings{},
		&models.SupportTicket{},
		&models.TicketMessage{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single database transaction. Any error returned by fn
// rolls back every write made through tx.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.Conn.WithContext(ctx).Transaction(fn)
}

// DB returns a handle bound to ctx for reads outside a transaction.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.Conn.WithContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}
