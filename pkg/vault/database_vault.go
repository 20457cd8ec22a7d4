package vault

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("vault.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("vault.empty_database_url")
	errSQLiteEmptyPath     = errors.New("vault.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("vault.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("vault.unsupported_no_scheme")
)

// DatabaseVault persists credential slots using GORM.
type DatabaseVault struct {
	db          *gorm.DB
	service     string
	driverLabel string
}

// Driver exposes the selected database driver label.
func (databaseVault *DatabaseVault) Driver() string {
	return databaseVault.driverLabel
}

type credentialRecord struct {
	Service     string `gorm:"column:service;primaryKey"`
	Slot        string `gorm:"column:slot;primaryKey"`
	Secret      string `gorm:"column:secret;not null"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null"`
}

func (credentialRecord) TableName() string {
	return "credential_slots"
}

// NewDatabaseVault constructs a GORM-backed vault for sqlite:// and postgres:// URLs.
func NewDatabaseVault(ctx context.Context, databaseURL string, service string) (*DatabaseVault, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("vault.open: %w", errEmptyDatabaseURL)
	}
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("vault.open: %w", ErrEmptyServiceName)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("vault.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("vault.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseVault{
		db:          gormDB,
		service:     service,
		driverLabel: driverLabel,
	}, nil
}

// Read returns the slot's secret, reporting absence explicitly.
func (databaseVault *DatabaseVault) Read(ctx context.Context, slot Slot) (string, bool, error) {
	if !validSlot(slot) {
		return "", false, fmt.Errorf("vault.read.%s: %w", databaseVault.driverLabel, ErrUnknownSlot)
	}
	var record credentialRecord
	err := databaseVault.db.WithContext(ctx).
		Where("service = ? AND slot = ?", databaseVault.service, string(slot)).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vault.read.%s: %w", databaseVault.driverLabel, err)
	}
	return record.Secret, true, nil
}

// Write resets the slot and stores the new secret. The delete and the insert
// are deliberately separate statements: when the delete succeeds and the
// insert fails, the slot ends up empty rather than holding the stale secret.
func (databaseVault *DatabaseVault) Write(ctx context.Context, slot Slot, secret string) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.write.%s: %w", databaseVault.driverLabel, ErrUnknownSlot)
	}
	if secret == "" {
		return fmt.Errorf("vault.write.%s: %w", databaseVault.driverLabel, ErrEmptySecret)
	}
	if err := databaseVault.deleteSlot(ctx, slot); err != nil {
		return fmt.Errorf("vault.write.%s: %w", databaseVault.driverLabel, err)
	}
	record := credentialRecord{
		Service:     databaseVault.service,
		Slot:        string(slot),
		Secret:      secret,
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	if err := databaseVault.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("vault.write.%s: %w", databaseVault.driverLabel, err)
	}
	return nil
}

// Clear removes the slot's secret; clearing an empty slot is not an error.
func (databaseVault *DatabaseVault) Clear(ctx context.Context, slot Slot) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.clear.%s: %w", databaseVault.driverLabel, ErrUnknownSlot)
	}
	if err := databaseVault.deleteSlot(ctx, slot); err != nil {
		return fmt.Errorf("vault.clear.%s: %w", databaseVault.driverLabel, err)
	}
	return nil
}

// ClearAll removes every slot, attempting each even after a failure.
func (databaseVault *DatabaseVault) ClearAll(ctx context.Context) error {
	var firstErr error
	for _, slot := range Slots {
		if err := databaseVault.Clear(ctx, slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (databaseVault *DatabaseVault) deleteSlot(ctx context.Context, slot Slot) error {
	return databaseVault.db.WithContext(ctx).
		Where("service = ? AND slot = ?", databaseVault.service, string(slot)).
		Delete(&credentialRecord{}).Error
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("vault.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("vault.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("vault.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("vault.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
