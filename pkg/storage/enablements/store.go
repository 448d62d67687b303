package enablements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hookswitch/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config mirrors the storage configuration for the enablements table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

var _ storage.Store = (*Store)(nil)

type row struct {
	UserID     string    `gorm:"column:user_id;size:128;not null;uniqueIndex:idx_enablement_key,priority:1"`
	Provider   string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_enablement_key,priority:2"`
	AccountID  string    `gorm:"column:account_id;size:128;not null;uniqueIndex:idx_enablement_key,priority:3"`
	Event      string    `gorm:"column:event;size:64;not null;uniqueIndex:idx_enablement_key,priority:4"`
	Enabled    bool      `gorm:"column:enabled;not null"`
	ConfigJSON string    `gorm:"column:config_json;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed enablements store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "hookswitch_enablements"
	}
	store := &Store{
		db:    gormDB,
		table: table,
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertEnablement inserts or updates the row for (user, provider, account, event).
func (s *Store) UpsertEnablement(ctx context.Context, record storage.EnablementRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if record.Provider == "" || record.Event == "" {
		return errors.New("provider and event are required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data := toRow(record)
	return s.tableDB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}, {Name: "account_id"}, {Name: "event"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "config_json", "updated_at"}),
		}).
		Create(&data).Error
}

// GetEnablement fetches a single row, or nil when absent.
func (s *Store) GetEnablement(ctx context.Context, userID, provider, accountID, event string) (*storage.EnablementRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("user_id = ? AND provider = ? AND account_id = ? AND event = ?", userID, provider, accountID, event).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// ListEnablements lists rows matching filter, oldest first.
func (s *Store) ListEnablements(ctx context.Context, filter storage.EnablementFilter) ([]storage.EnablementRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	query := s.tableDB().WithContext(ctx)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Event != "" {
		query = query.Where("event = ?", filter.Event)
	}
	var data []row
	if err := query.Order("created_at asc").Order("event asc").Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.EnablementRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.EnablementRecord) row {
	return row{
		UserID:     record.UserID,
		Provider:   record.Provider,
		AccountID:  record.AccountID,
		Event:      record.Event,
		Enabled:    record.Enabled,
		ConfigJSON: record.ConfigJSON,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func fromRow(data row) storage.EnablementRecord {
	return storage.EnablementRecord{
		UserID:     data.UserID,
		Provider:   data.Provider,
		AccountID:  data.AccountID,
		Event:      data.Event,
		Enabled:    data.Enabled,
		ConfigJSON: data.ConfigJSON,
		CreatedAt:  data.CreatedAt,
		UpdatedAt:  data.UpdatedAt,
	}
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
