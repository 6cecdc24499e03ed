package runstate

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type stateRecord struct {
	StateKey  string `gorm:"primaryKey"`
	Snapshot  string `gorm:"not null"`
	UpdatedAt time.Time
}

func (stateRecord) TableName() string {
	return "autompp_run_state"
}

// SQLiteBackend keeps the snapshot in a single-row table through gorm.
type SQLiteBackend struct {
	path     string
	stateKey string

	initOnce sync.Once
	initErr  error
	db       *gorm.DB
}

func NewSQLiteBackend(path string) (Backend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteBackend{path: path, stateKey: defaultStateKey}, nil
}

func (b *SQLiteBackend) ensureReady() error {
	b.initOnce.Do(func() {
		db, err := gorm.Open(sqlite.Open(b.path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			b.initErr = err
			return
		}
		if err := db.AutoMigrate(&stateRecord{}); err != nil {
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *SQLiteBackend) Load() (Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	var rec stateRecord
	err := b.db.Where("state_key = ?", b.stateKey).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot([]byte(rec.Snapshot))
}

func (b *SQLiteBackend) Save(snapshot Snapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	rec := stateRecord{StateKey: b.stateKey, Snapshot: string(payload), UpdatedAt: time.Now().UTC()}
	return b.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
