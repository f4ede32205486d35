// Package sqlite is the production store. One file on disk, WAL mode,
// a small connection pool; good enough for a single-process engine.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"catalyst/internal/alert"
	"catalyst/internal/store"
	"catalyst/internal/store/model"
	"catalyst/internal/trade"
)

type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// NewFromDB wraps an already-open gorm handle, used by tests with an
// in-memory database.
func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	models := []interface{}{
		&model.OrderModel{},
		&model.PositionModel{},
		&model.EventModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Orders() store.Orders       { return &orderRepo{db: s.db} }
func (s *Store) Positions() store.Positions { return &positionRepo{db: s.db} }
func (s *Store) Events() store.Events       { return &eventRepo{db: s.db} }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type orderRepo struct {
	db *gorm.DB
}

func (r *orderRepo) Save(ctx context.Context, rec trade.OrderRecord) error {
	m := model.FromOrderRecord(rec)
	now := time.Now().Unix()
	m.UpdatedAtUnix = now

	var existing model.OrderModel
	err := r.db.WithContext(ctx).Where("broker_id = ?", rec.BrokerID).First(&existing).Error
	switch {
	case err == nil:
		m.ID = existing.ID
		m.CreatedAtUnix = existing.CreatedAtUnix
		return r.db.WithContext(ctx).Save(&m).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		m.CreatedAtUnix = now
		return r.db.WithContext(ctx).Create(&m).Error
	default:
		return err
	}
}

func (r *orderRepo) Get(ctx context.Context, brokerID string) (trade.OrderRecord, bool, error) {
	var m model.OrderModel
	err := r.db.WithContext(ctx).Where("broker_id = ?", brokerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trade.OrderRecord{}, false, nil
	}
	if err != nil {
		return trade.OrderRecord{}, false, err
	}
	return m.ToOrderRecord(), true, nil
}

func (r *orderRepo) Open(ctx context.Context) ([]trade.OrderRecord, error) {
	terminal := []string{
		string(trade.StatusFilled),
		string(trade.StatusCancelled),
		string(trade.StatusRejected),
		string(trade.StatusExpired),
	}
	var rows []model.OrderModel
	if err := r.db.WithContext(ctx).Where("status NOT IN ?", terminal).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (r *orderRepo) BySymbol(ctx context.Context, symbol string) ([]trade.OrderRecord, error) {
	var rows []model.OrderModel
	if err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func toRecords(rows []model.OrderModel) []trade.OrderRecord {
	out := make([]trade.OrderRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToOrderRecord())
	}
	return out
}

type positionRepo struct {
	db *gorm.DB
}

func (r *positionRepo) Save(ctx context.Context, pos trade.Position) error {
	m := model.FromPosition(pos)
	if m.UpdatedAtUnix == 0 {
		m.UpdatedAtUnix = time.Now().Unix()
	}

	// One open row per symbol; closing writes the same row with
	// Open=false and the row is never touched again.
	var existing model.PositionModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND open = ?", pos.Symbol, true).
		First(&existing).Error
	switch {
	case err == nil:
		m.ID = existing.ID
		return r.db.WithContext(ctx).Save(&m).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(&m).Error
	default:
		return err
	}
}

func (r *positionRepo) Open(ctx context.Context) ([]trade.Position, error) {
	var rows []model.PositionModel
	if err := r.db.WithContext(ctx).Where("open = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]trade.Position, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToPosition())
	}
	return out, nil
}

func (r *positionRepo) OpenBySymbol(ctx context.Context, symbol string) (trade.Position, bool, error) {
	var m model.PositionModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND open = ?", symbol, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trade.Position{}, false, nil
	}
	if err != nil {
		return trade.Position{}, false, err
	}
	return m.ToPosition(), true, nil
}

type eventRepo struct {
	db *gorm.DB
}

func (r *eventRepo) Append(ctx context.Context, e alert.Event) error {
	m := model.FromEvent(e)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *eventRepo) Recent(ctx context.Context, limit int) ([]alert.Event, error) {
	var rows []model.EventModel
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]alert.Event, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToEvent())
	}
	return out, nil
}
