// Package sqlstore implements core.RecordStore and core.FileStore on top of
// gorm. Production deployments use MySQL through Open; any other gorm
// dialector can be passed to New.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hupe1980/agentstack/core"
)

// RecordRow is the table holding every persisted record.
type RecordRow struct {
	Kind      string    `gorm:"primaryKey;size:32"`
	ID        string    `gorm:"primaryKey;size:64"`
	Type      string    `gorm:"size:64;not null"`
	Data      []byte    `gorm:"not null"`
	Seq       int64     `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (RecordRow) TableName() string { return "agentstack_records" }

// FileRow is the table holding artifact payloads.
type FileRow struct {
	Path      string `gorm:"primaryKey;size:255"`
	OwnerID   string `gorm:"index;size:64"`
	Data      []byte `gorm:"not null"`
	CreatedAt time.Time
}

// TableName implements gorm's tabler.
func (FileRow) TableName() string { return "agentstack_files" }

// Store is a gorm backed record and file store.
type Store struct {
	db *gorm.DB
}

// Options configures Open.
type Options struct {
	// LogLevel controls gorm's own logger.
	LogLevel logger.LogLevel
	// SkipMigrate disables AutoMigrate on open.
	SkipMigrate bool
}

// Open connects to MySQL with sane DSN defaults and migrates the tables.
func Open(dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{LogLevel: logger.Warn}
	for _, fn := range optFns {
		fn(&opts)
	}

	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}

	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{SlowThreshold: time.Second, LogLevel: opts.LogLevel, IgnoreRecordNotFoundError: true, Colorful: false},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}

	if opts.SkipMigrate {
		return &Store{db: db}, nil
	}

	return New(db)
}

// New wraps an open gorm DB and migrates the tables.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&RecordRow{}, &FileRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Put upserts a record. The insertion sequence of the first write is kept so
// List preserves creation order.
func (s *Store) Put(ctx context.Context, kind core.EntityKind, id string, rec core.Record) error {
	row := RecordRow{
		Kind: string(kind),
		ID:   id,
		Type: rec.Type,
		Data: rec.Data,
		Seq:  time.Now().UnixNano(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}

	return nil
}

// Get returns a record or an error wrapping core.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind core.EntityKind, id string) (core.Record, error) {
	var row RecordRow
	if err := s.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Record{}, fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
		}
		return core.Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}

	return core.Record{Type: row.Type, Data: row.Data}, nil
}

// Delete removes a record or returns an error wrapping core.ErrNotFound.
func (s *Store) Delete(ctx context.Context, kind core.EntityKind, id string) error {
	res := s.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).Delete(&RecordRow{})
	if res.Error != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
	}

	return nil
}

// List returns ids of kind in creation order.
func (s *Store) List(ctx context.Context, kind core.EntityKind) ([]string, error) {
	ids := []string{}
	if err := s.db.WithContext(ctx).Model(&RecordRow{}).Where("kind = ?", string(kind)).Order("seq, id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	return ids, nil
}

// SaveFile stores a payload under <ownerID>/<random id><ext>.
func (s *Store) SaveFile(ctx context.Context, ownerID string, data []byte, ext string) (string, error) {
	path := fmt.Sprintf("%s/%s%s", ownerID, core.NewID(), ext)

	if err := s.db.WithContext(ctx).Create(&FileRow{Path: path, OwnerID: ownerID, Data: data}).Error; err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	return path, nil
}

// LoadFile returns a payload or an error wrapping core.ErrNotFound.
func (s *Store) LoadFile(ctx context.Context, path string) ([]byte, error) {
	var row FileRow
	if err := s.db.WithContext(ctx).First(&row, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: file %s", core.ErrNotFound, path)
		}
		return nil, fmt.Errorf("load file %s: %w", path, err)
	}

	return row.Data, nil
}

// DeleteFile removes a payload.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	res := s.db.WithContext(ctx).Where("path = ?", path).Delete(&FileRow{})
	if res.Error != nil {
		return fmt.Errorf("delete file %s: %w", path, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: file %s", core.ErrNotFound, path)
	}

	return nil
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + key + "=" + val
}
