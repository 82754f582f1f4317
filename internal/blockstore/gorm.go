package blockstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceModel is one named counter row.
type SequenceModel struct {
	Name         string `gorm:"primaryKey;size:64"`
	CurrentValue uint64 `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

func (SequenceModel) TableName() string {
	return "sequences"
}

// GormStore keeps the counter in the sequences table and relies on the
// database transaction for atomicity.
type GormStore struct {
	db   *gorm.DB
	name string
}

// NewGormStore migrates the sequences table and makes sure the named row
// exists.
func NewGormStore(ctx context.Context, db *gorm.DB, name string) (*GormStore, error) {
	if name == "" {
		return nil, fmt.Errorf("sequence name is required")
	}
	if err := db.WithContext(ctx).AutoMigrate(&SequenceModel{}); err != nil {
		return nil, &StorageError{Op: "migrate", Path: name, Err: err}
	}

	s := &GormStore{db: db, name: name}
	if err := s.ensureRow(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return s, nil
}

// ReserveBlock runs UPDATE sequences SET current_value = current_value + ?
// and reads the row back inside one transaction.
func (s *GormStore) ReserveBlock(ctx context.Context, increment uint64) (uint64, error) {
	if increment == 0 {
		return 0, ErrInvalidIncrement
	}

	var bound uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRow(tx); err != nil {
			return err
		}

		res := tx.Model(&SequenceModel{}).
			Where("name = ?", s.name).
			Update("current_value", gorm.Expr("current_value + ?", increment))
		if res.Error != nil {
			return &StorageError{Op: "update", Path: s.name, Err: res.Error}
		}
		if res.RowsAffected != 1 {
			return &StorageError{Op: "update", Path: s.name, Err: fmt.Errorf("expected 1 row, updated %d", res.RowsAffected)}
		}

		var m SequenceModel
		if err := tx.Where("name = ?", s.name).Take(&m).Error; err != nil {
			return &StorageError{Op: "select", Path: s.name, Err: err}
		}
		bound = m.CurrentValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return bound, nil
}

// Current reads the persisted counter without advancing it.
func (s *GormStore) Current(ctx context.Context) (uint64, error) {
	var m SequenceModel
	if err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&m).Error; err != nil {
		return 0, &StorageError{Op: "select", Path: s.name, Err: err}
	}
	return m.CurrentValue, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) ensureRow(tx *gorm.DB) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SequenceModel{Name: s.name}).Error
	if err != nil {
		return &StorageError{Op: "insert", Path: s.name, Err: err}
	}
	return nil
}
