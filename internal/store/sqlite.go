package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteBackend keeps user documents in a single table, one row per user
type SQLiteBackend struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and migrates the documents table
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite backend requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&UserDocument{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLiteBackend{db: db, sqlDB: sqlDB}, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Get(ctx context.Context, userID string) ([]byte, error) {
	var row UserDocument
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Document), nil
}

func (s *SQLiteBackend) Put(ctx context.Context, userID string, doc []byte) error {
	row := UserDocument{
		UserID:    userID,
		Document:  string(doc),
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLiteBackend) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&UserDocument{}).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *SQLiteBackend) Close() error {
	return s.sqlDB.Close()
}
