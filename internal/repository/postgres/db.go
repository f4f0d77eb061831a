package postgres

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Table names. Both attachment tables share the domain.Attachment shape.
const (
	campaignAttachmentsTable   = "campaign_attachments"
	submissionAttachmentsTable = "submission_attachments"
)

func attachmentTable(kind domain.ParentKind) string {
	if kind == domain.KindSubmission {
		return submissionAttachmentsTable
	}
	return campaignAttachmentsTable
}

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	return OpenWithDialector(postgres.Open(dsn))
}

// OpenWithDialector opens a gorm connection with the given dialector and migrates the schema.
func OpenWithDialector(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// gormConfig turns on error translation so unique violations surface as
// gorm.ErrDuplicatedKey instead of driver-specific errors.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// translateErr maps gorm's translated errors to repository sentinels.
func translateErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicateKey
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally anywhere in the column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.User{}, &domain.Campaign{}, &domain.Submission{}, &domain.EmailEntry{}); err != nil {
		return err
	}
	for _, table := range []string{campaignAttachmentsTable, submissionAttachmentsTable} {
		if err := db.Table(table).AutoMigrate(&domain.Attachment{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

// Health wraps a *gorm.DB so it can be used as a repository.Pinger.
type Health struct {
	DB *gorm.DB
}

func (h Health) Ping(ctx context.Context) error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
