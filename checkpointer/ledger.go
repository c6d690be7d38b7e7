package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// RunRecord is one ledger row per pipeline run.
type RunRecord struct {
	ID            uint      `gorm:"primaryKey"`
	StartedAt     time.Time `gorm:"index"`
	FinishedAt    time.Time
	Status        string `gorm:"index;size:16"` // success, failed
	FirstRun      bool
	NewEvents     int
	TotalEvents   int
	FailedObjects int
	CheckpointURI string `gorm:"size:1024"`
	LastTimestamp *time.Time
	LastError     string `gorm:"type:text"`
}

// ObjectFailure is one ledger row per failed source object in a run.
type ObjectFailure struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      uint      `gorm:"index"`
	Key        string    `gorm:"index;size:1024"`
	Reason     string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

func OpenLedgerDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunRecord{}, &ObjectFailure{}); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenLedgerQueryDB opens an existing ledger for querying without mutating
// schema. Used when reading historical monthly files.
func OpenLedgerQueryDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// Ledger records run outcomes in local SQLite files. With Folder/Prefix
// set, files roll per natural month (<prefix>YYYYMM.db); otherwise a
// single fixed Path is used.
type Ledger struct {
	Path   string
	Folder string
	Prefix string

	db    *gorm.DB
	dbKey string
}

func NewLedger(path, folder, prefix string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" && strings.TrimSpace(folder) == "" {
		return nil, fmt.Errorf("ledger requires Path or Folder")
	}
	l := &Ledger{Path: path, Folder: folder, Prefix: prefix}
	if err := l.ensureDBForNow(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	l.db = nil
	l.dbKey = ""
	return err
}

func (l *Ledger) ensureDBForNow() error {
	if strings.TrimSpace(l.Folder) == "" {
		if l.db != nil {
			return nil
		}
		db, err := OpenLedgerDB(l.Path)
		if err != nil {
			return err
		}
		l.db = db
		l.dbKey = "static"
		return nil
	}

	now := time.Now()
	key := fmt.Sprintf("%04d%02d", now.Year(), int(now.Month()))
	if l.db != nil && l.dbKey == key {
		return nil
	}
	// switch DB per natural month
	_ = l.Close()
	if strings.TrimSpace(l.Prefix) == "" {
		l.Prefix = "runs_"
	}
	if err := os.MkdirAll(l.Folder, 0o755); err != nil {
		return err
	}
	dbPath := filepath.Join(l.Folder, l.Prefix+key+".db")
	db, err := OpenLedgerDB(dbPath)
	if err != nil {
		return err
	}
	l.db = db
	l.dbKey = key
	return nil
}

// Record persists one run's summary plus its per-object failures in a
// single transaction.
func (l *Ledger) Record(sum Summary, failures []ObjectError) error {
	if err := l.ensureDBForNow(); err != nil {
		return err
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		rec := RunRecord{
			StartedAt:     sum.StartedAt,
			FinishedAt:    sum.FinishedAt,
			Status:        sum.Status,
			FirstRun:      sum.FirstRun,
			NewEvents:     sum.NewEvents,
			TotalEvents:   sum.TotalEvents,
			FailedObjects: sum.FailedObjects,
			CheckpointURI: sum.CheckpointURI,
			LastTimestamp: sum.LastTimestamp,
			LastError:     sum.Error,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, f := range failures {
			of := ObjectFailure{
				RunID:      rec.ID,
				Key:        f.Key,
				Reason:     f.Err.Error(),
				RecordedAt: sum.FinishedAt,
			}
			if err := tx.Create(&of).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentRuns returns up to n most recent runs from the current ledger
// file, newest first.
func (l *Ledger) RecentRuns(n int) ([]RunRecord, error) {
	if err := l.ensureDBForNow(); err != nil {
		return nil, err
	}
	var runs []RunRecord
	if err := l.db.Order("id desc").Limit(n).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// FailuresSince collects object failures recorded at or after from,
// walking historical monthly ledger files when rolling is configured.
func (l *Ledger) FailuresSince(from time.Time) ([]ObjectFailure, error) {
	if strings.TrimSpace(l.Folder) == "" {
		if err := l.ensureDBForNow(); err != nil {
			return nil, err
		}
		var out []ObjectFailure
		err := l.db.Where("recorded_at >= ?", from.UTC()).Order("id asc").Find(&out).Error
		return out, err
	}

	paths, err := listMonthlyLedgers(l.Folder, l.Prefix, from.UTC(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	var out []ObjectFailure
	for _, path := range paths {
		db, err := OpenLedgerQueryDB(path)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		var batch []ObjectFailure
		err = db.Where("recorded_at >= ?", from.UTC()).Order("id asc").Find(&batch).Error
		_ = sqlDB.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func listMonthlyLedgers(folder string, prefix string, from time.Time, to time.Time) ([]string, error) {
	pattern := filepath.Join(folder, prefix+"*.db")
	candidates, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	// Parse month from filename: <prefix><YYYYMM>.db
	fromKey := from.Year()*100 + int(from.Month())
	toKey := to.Year()*100 + int(to.Month())

	filtered := make([]string, 0, len(candidates))
	for _, p := range candidates {
		base := filepath.Base(p)
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".db") {
			continue
		}
		yyyymm := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".db")
		if len(yyyymm) != 6 {
			continue
		}
		tm, err := time.Parse("200601", yyyymm)
		if err != nil {
			continue
		}
		key := tm.Year()*100 + int(tm.Month())
		if key < fromKey || key > toKey {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.Strings(filtered)
	return filtered, nil
}
