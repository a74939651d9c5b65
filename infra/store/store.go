// Package store persists training runs and their epoch history in SQLite so
// runs can be listed and compared after the fact.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Run is one training run.
type Run struct {
	ID        string `gorm:"primaryKey"`
	Model     string
	Dataset   string
	Status    string
	Epochs    int
	FinalLoss float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EpochRecord is one epoch of one run.
type EpochRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"index"`
	Epoch      int
	Phase      string
	Loss       float64
	DurationMS int64
	CreatedAt  time.Time
}

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}, &EpochRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(id, model, dataset string) error {
	run := Run{ID: id, Model: model, Dataset: dataset, Status: StatusRunning}
	if err := s.db.Create(&run).Error; err != nil {
		return fmt.Errorf("store: create run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(id, status string, epochs int, finalLoss float64) error {
	res := s.db.Model(&Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"epochs":     epochs,
		"final_loss": finalLoss,
	})
	if res.Error != nil {
		return fmt.Errorf("store: finish run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: finish run %s: not found", id)
	}
	return nil
}

// SaveEpoch appends one epoch record.
func (s *Store) SaveEpoch(rec EpochRecord) error {
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("store: save epoch %d of %s: %w", rec.Epoch, rec.RunID, err)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	var runs []Run
	if err := s.db.Order("created_at desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

// History returns the epoch records of one run in order.
func (s *Store) History(runID string) ([]EpochRecord, error) {
	var recs []EpochRecord
	err := s.db.Where("run_id = ?", runID).Order("epoch asc, phase asc").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: history of %s: %w", runID, err)
	}
	return recs, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
