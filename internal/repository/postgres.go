package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func newGormLogger() gormLogger.Interface {
	// Configure GORM logger to suppress "record not found" messages
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// NewPostgresDB connects to PostgreSQL and migrates the subscriber ledger.
func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	repo, err := NewRepository(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL", "host", host, "db", dbname)
	return repo, nil
}

// NewSQLiteDB opens a SQLite ledger, used for local development.
func NewSQLiteDB(path string, logger *logger.Logger) (*PostgresDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	repo, err := NewRepository(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully opened SQLite database", "path", path)
	return repo, nil
}

// NewRepository wraps an open gorm connection and migrates the schema.
func NewRepository(conn *gorm.DB, logger *logger.Logger) (*PostgresDB, error) {
	if err := conn.AutoMigrate(&models.Subscriber{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return &PostgresDB{Conn: conn, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func notPaid() clause.Where {
	return clause.Where{Exprs: []clause.Expression{
		clause.Neq{Column: clause.Column{Table: models.Subscriber{}.TableName(), Name: "status"}, Value: string(models.SubscriberPaid)},
	}}
}

func (db *PostgresDB) UpsertPending(ctx context.Context, subscriber *models.Subscriber) error {
	subscriber.Status = models.SubscriberPending
	subscriber.PaidAt = nil

	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "transaction_id", "external_reference", "payment_code",
			"amount_cents", "order_bump", "status", "updated_at",
		}),
		Where: notPaid(),
	}).Create(subscriber).Error
	if err != nil {
		return fmt.Errorf("failed to upsert pending subscriber: %w", err)
	}
	db.logger.Debug("Pending subscriber upserted", "email", subscriber.Email)
	return nil
}

func (db *PostgresDB) RecordPaid(ctx context.Context, subscriber *models.Subscriber, paidAt time.Time) error {
	subscriber.Status = models.SubscriberPaid
	subscriber.PaidAt = &paidAt

	assignments := clause.AssignmentColumns([]string{
		"name", "transaction_id", "amount_cents", "status", "updated_at",
	})
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "paid_at"},
		Value:  gorm.Expr("COALESCE(subscribers.paid_at, excluded.paid_at)"),
	})

	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: assignments,
	}).Create(subscriber).Error
	if err != nil {
		return fmt.Errorf("failed to record paid subscriber: %w", err)
	}
	return nil
}

func (db *PostgresDB) MarkPaidByEmail(ctx context.Context, email string, paidAt time.Time) (bool, error) {
	return db.markPaid(ctx, "email = ?", email, paidAt)
}

func (db *PostgresDB) MarkPaidByTransaction(ctx context.Context, transactionID string, paidAt time.Time) (bool, error) {
	return db.markPaid(ctx, "transaction_id = ?", transactionID, paidAt)
}

func (db *PostgresDB) markPaid(ctx context.Context, query string, key string, paidAt time.Time) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.Subscriber{}).
		Where(query, key).
		Where("status <> ?", string(models.SubscriberPaid)).
		Updates(map[string]interface{}{
			"status":     string(models.SubscriberPaid),
			"paid_at":    paidAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark subscriber paid: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Subscriber{}).Where(query, key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check subscriber exists: %w", err)
	}
	if count == 0 {
		return false, models.ErrSubscriberNotFound
	}
	// already paid
	return false, nil
}

func (db *PostgresDB) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	return db.first(ctx, "email = ?", email)
}

func (db *PostgresDB) GetByTransaction(ctx context.Context, transactionID string) (*models.Subscriber, error) {
	return db.first(ctx, "transaction_id = ?", transactionID)
}

func (db *PostgresDB) first(ctx context.Context, query string, key string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if err := db.Conn.WithContext(ctx).Where(query, key).First(&subscriber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &subscriber, nil
}

func (db *PostgresDB) ListPendingSince(ctx context.Context, since time.Time, limit int) ([]*models.Subscriber, error) {
	var subscribers []*models.Subscriber
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND updated_at >= ? AND transaction_id IS NOT NULL", string(models.SubscriberPending), since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subscribers).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending subscribers: %w", err)
	}
	return subscribers, nil
}
