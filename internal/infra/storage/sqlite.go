package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder observes journal activity.
type Recorder interface {
	RecordJournalWrite()
	RecordError()
}

// Journal persists every non-empty state change the mirror emits.
// Listener enqueues on the sequencer goroutine; a single writer goroutine owns the database.
type Journal struct {
	db       *gorm.DB
	queue    chan *domain.ChangeRecord
	seq      uint64
	recorder Recorder
	now      func() time.Time

	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ domain.ChangeRepository = (*Journal)(nil)

// NewJournal opens (or creates) the SQLite journal at path and starts its writer.
func NewJournal(path string, recorder Recorder) (*Journal, error) {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newJournal(db, recorder)
}

func newJournal(db *gorm.DB, recorder Recorder) (*Journal, error) {
	// Auto Migration
	if err := db.AutoMigrate(&domain.ChangeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	j := &Journal{
		db:       db,
		queue:    make(chan *domain.ChangeRecord, 1024),
		recorder: recorder,
		now:      time.Now,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for rec := range j.queue {
		if err := j.Save(rec); err != nil {
			slog.Error("Journal write failed", slog.String("id", rec.ID), slog.Any("error", err))
			if j.recorder != nil {
				j.recorder.RecordError()
			}
		}
	}
}

// Listener returns a store listener that journals each non-empty change.
// A full queue drops the record rather than stalling the sequencer.
func (j *Journal) Listener() store.Listener[store.BlockState] {
	return func(n store.Notification[store.BlockState]) {
		if len(n.StateChange) == 0 {
			return
		}
		rec, err := j.record(n)
		if err != nil {
			slog.Error("Journal encode failed", slog.Any("error", err))
			return
		}
		select {
		case j.queue <- rec:
		default:
			slog.Warn("Journal queue full, dropping change", slog.Uint64("seq", rec.Seq))
			if j.recorder != nil {
				j.recorder.RecordError()
			}
		}
	}
}

func (j *Journal) record(n store.Notification[store.BlockState]) (*domain.ChangeRecord, error) {
	payload, err := json.Marshal(n.StateChange)
	if err != nil {
		return nil, err
	}
	fields := n.StateChange.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return &domain.ChangeRecord{
		ID:         uuid.NewString(),
		Seq:        quant.NextSeq(&j.seq),
		BlockTag:   n.NewState.Extra.BlockTag,
		Fields:     strings.Join(names, ","),
		Payload:    string(payload),
		RecordedAt: j.now().UTC(),
	}, nil
}

// ======================================================================================
// Change Operations
// ======================================================================================

// Save writes one record synchronously
func (j *Journal) Save(rec *domain.ChangeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := j.db.Create(rec).Error; err != nil {
		return err
	}
	if j.recorder != nil {
		j.recorder.RecordJournalWrite()
	}
	return nil
}

// Get retrieves a record by id
func (j *Journal) Get(id string) (*domain.ChangeRecord, error) {
	var rec domain.ChangeRecord
	err := j.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &rec, err
}

// Recent returns up to limit records, newest first
func (j *Journal) Recent(limit int) ([]domain.ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.ChangeRecord
	err := j.db.Order("recorded_at DESC").Order("seq DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// Prune deletes records older than cutoff and reports how many were removed
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	res := j.db.Where("recorded_at < ?", cutoff.UTC()).Delete(&domain.ChangeRecord{})
	return res.RowsAffected, res.Error
}

// Close drains the queue and closes the database.
// Listener must not be invoked after Close.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.queue)
		j.wg.Wait()

		sqlDB, dbErr := j.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}
