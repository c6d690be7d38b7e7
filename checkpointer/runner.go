package checkpointer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// RunnerConfig configures one checkpoint pipeline.
type RunnerConfig struct {
	// SourcePrefix narrows the event log listing within the source store.
	SourcePrefix string
	// CheckpointKey is where the checkpoint artifact lives in the
	// checkpoint store.
	CheckpointKey string

	FetchRetries       int
	FetchRetryInterval time.Duration

	JobLabel     string
	ServiceLabel string
	Debug        bool

	// Timeout bounds one run; zero means no internal deadline.
	Timeout time.Duration

	// Ledger settings. Empty LedgerPath and LedgerFolder disable the ledger.
	LedgerPath   string
	LedgerFolder string
	LedgerPrefix string

	// SyslogAddr + DeadmanToken enable the per-run summary message.
	SyslogAddr   string
	DeadmanToken string
}

// Runner drives one incremental checkpoint pass:
// load -> cutoff -> retrieve -> merge -> persist.
//
// The checkpoint key is assumed to have at most one concurrent writer;
// two simultaneous runs against the same key can race and silently lose
// one run's updates.
type Runner struct {
	cfg    RunnerConfig
	source *EventSource
	store  *CheckpointStore
	ledger *Ledger
	syslog SummarySender
}

// Summary is the outcome of one run.
type Summary struct {
	Status        string     `json:"status"` // success, failed
	FirstRun      bool       `json:"first_run"`
	CheckpointURI string     `json:"checkpoint_uri,omitempty"`
	NewEvents     int        `json:"new_events"`
	TotalEvents   int        `json:"total_events"`
	FailedObjects int        `json:"failed_objects"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	ElapsedMS     int64      `json:"elapsed_ms"`
	Error         string     `json:"error,omitempty"`
}

func NewRunner(cfg RunnerConfig, sourceStore ObjectStore, checkpointStore ObjectStore) (*Runner, error) {
	if sourceStore == nil || checkpointStore == nil {
		return nil, fmt.Errorf("source and checkpoint stores are required")
	}
	if strings.TrimSpace(cfg.CheckpointKey) == "" {
		return nil, fmt.Errorf("CheckpointKey is required")
	}
	if cfg.ServiceLabel == "" {
		cfg.ServiceLabel = "event-logs"
	}

	r := &Runner{
		cfg: cfg,
		source: NewEventSource(sourceStore, cfg.SourcePrefix, RetryPolicy{
			MaxAttempts:     cfg.FetchRetries,
			InitialInterval: cfg.FetchRetryInterval,
		}),
		store: NewCheckpointStore(checkpointStore, cfg.CheckpointKey),
	}
	if strings.TrimSpace(cfg.LedgerPath) != "" || strings.TrimSpace(cfg.LedgerFolder) != "" {
		ledger, err := NewLedger(cfg.LedgerPath, cfg.LedgerFolder, cfg.LedgerPrefix)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		r.ledger = ledger
	}
	if strings.TrimSpace(cfg.SyslogAddr) != "" && strings.TrimSpace(cfg.DeadmanToken) != "" {
		r.syslog = NewSyslogClient(cfg.SyslogAddr)
	}
	return r, nil
}

func (r *Runner) Close() error {
	if r == nil || r.ledger == nil {
		return nil
	}
	return r.ledger.Close()
}

func (r *Runner) debugf(format string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	log.Printf(format, args...)
}

// RunOnce executes one incremental pass and returns its summary. The
// summary is also recorded in the ledger and sent to syslog when those
// are configured, including on failure. An aborted or failed run never
// saves the checkpoint.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now().UTC()
	sum := Summary{Status: "failed", StartedAt: start}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var failures []ObjectError
	runErr := r.run(ctx, &sum, &failures)

	sum.FinishedAt = time.Now().UTC()
	sum.ElapsedMS = sum.FinishedAt.Sub(sum.StartedAt).Milliseconds()
	if runErr != nil {
		sum.Status = "failed"
		sum.Error = runErr.Error()
	} else {
		sum.Status = "success"
	}

	if r.ledger != nil {
		if err := r.ledger.Record(sum, failures); err != nil {
			log.Printf("ledger record failed: %v", err)
		}
	}
	// Best-effort: the deadman should still fire on failed runs.
	r.sendSummary(sum)

	return sum, runErr
}

func (r *Runner) run(ctx context.Context, sum *Summary, failures *[]ObjectError) error {
	r.debugf("run start: prefix=%q checkpointKey=%q timeout=%s", r.cfg.SourcePrefix, r.cfg.CheckpointKey, r.cfg.Timeout)

	// LoadCheckpoint: absence means first run; corruption is fatal.
	loaded, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	var cp Checkpoint
	if loaded == nil {
		sum.FirstRun = true
		cp = EmptyCheckpoint()
		r.debugf("no previous checkpoint, full scrape")
	} else {
		cp = *loaded
		r.debugf("loaded checkpoint: rows=%d", cp.RowCount())
	}

	// DetermineCutoff from the loaded checkpoint.
	var cutoff *time.Time
	if ts, ok := cp.LastTimestamp(); ok {
		cutoff = &ts
		r.debugf("cutoff=%s", ts.Format(time.RFC3339Nano))
	}

	// RetrieveNewRecords: per-object failures are tolerated; only a
	// listing-layer failure or cancellation aborts.
	valid, objErrs, err := r.source.Retrieve(ctx, cutoff)
	if err != nil {
		return err
	}
	*failures = objErrs
	sum.FailedObjects = len(objErrs)
	for _, oe := range objErrs {
		log.Printf("object failed: %v", oe)
	}
	r.debugf("retrieved: valid=%d failed=%d", len(valid), len(objErrs))

	// MergeCheckpoint.
	merged := cp.AddEvents(valid)
	sum.NewEvents = len(valid)
	sum.TotalEvents = merged.RowCount()
	if ts, ok := merged.LastTimestamp(); ok {
		sum.LastTimestamp = &ts
	}

	// An expired run must not persist a partial merge.
	if err := ctx.Err(); err != nil {
		return err
	}

	// PersistCheckpoint: failure here is fatal even though the merge
	// succeeded in memory; nothing was durably committed.
	uri, err := r.store.Save(ctx, merged)
	if err != nil {
		return err
	}
	sum.CheckpointURI = uri
	r.debugf("saved checkpoint: uri=%s rows=%d new=%d", uri, merged.RowCount(), len(valid))
	return nil
}

func (r *Runner) sendSummary(sum Summary) {
	if r.syslog == nil {
		return
	}
	structured := buildStructuredData("cndp", map[string]string{
		"job":       r.cfg.JobLabel,
		"service":   r.cfg.ServiceLabel,
		"status":    sum.Status,
		"first_run": fmt.Sprintf("%v", sum.FirstRun),
		"deadman":   r.cfg.DeadmanToken,
	})
	b, _ := json.Marshal(sum)
	if err := r.syslog.SendRFC5424Timeout("event-checkpointer", structured, string(b), 3*time.Second); err != nil {
		log.Printf("summary send failed: %v", err)
	}
}
