package checkpointer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ErrCorruptedCheckpoint marks an artifact that exists but cannot be
// decoded as the checkpoint schema. Fatal: merging against a corrupted
// base could silently lose data, so there is no automatic repair.
var ErrCorruptedCheckpoint = errors.New("checkpoint artifact is corrupted")

// checkpointRow is the columnar artifact schema, column per event field.
// Optional fields are nullable columns; the timestamp column is a UTC
// microsecond-precision parquet timestamp. Snappy compression throughout.
type checkpointRow struct {
	Action        string    `parquet:"action,snappy"`
	Study         string    `parquet:"study,snappy"`
	PipelineID    int32     `parquet:"pipeline_id,snappy"`
	ProjectLabel  string    `parquet:"project_label,snappy"`
	CenterLabel   string    `parquet:"center_label,snappy"`
	SourceName    string    `parquet:"source_name,snappy"`
	ParticipantID string    `parquet:"participant_id,snappy"`
	VisitDate     string    `parquet:"visit_date,snappy"`
	VisitNumber   *string   `parquet:"visit_number,optional,snappy"`
	Datatype      string    `parquet:"datatype,snappy"`
	Module        *string   `parquet:"module,optional,snappy"`
	Packet        *string   `parquet:"packet,optional,snappy"`
	Timestamp     time.Time `parquet:"timestamp,timestamp(microsecond),snappy"`
}

// CheckpointStore loads and saves the checkpoint artifact at a fixed key
// in an injected object store. One artifact per checkpoint location, no
// partitioning; at most one concurrent writer per key is assumed.
type CheckpointStore struct {
	store ObjectStore
	key   string
}

func NewCheckpointStore(store ObjectStore, key string) *CheckpointStore {
	return &CheckpointStore{store: store, key: key}
}

// Exists reports whether a checkpoint artifact is present.
func (s *CheckpointStore) Exists(ctx context.Context) (bool, error) {
	return s.store.Exists(ctx, s.key)
}

// Load reads the checkpoint artifact. Returns (nil, nil) when no artifact
// exists (first run). An artifact that cannot be parsed yields
// ErrCorruptedCheckpoint.
func (s *CheckpointStore) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	rows, err := parquet.Read[checkpointRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptedCheckpoint, s.store.URI(s.key), err)
	}
	events := make([]VisitEvent, len(rows))
	for i, row := range rows {
		events[i] = VisitEvent{
			Action:        row.Action,
			Study:         row.Study,
			PipelineID:    row.PipelineID,
			ProjectLabel:  row.ProjectLabel,
			CenterLabel:   row.CenterLabel,
			SourceName:    row.SourceName,
			ParticipantID: row.ParticipantID,
			VisitDate:     row.VisitDate,
			VisitNumber:   row.VisitNumber,
			Datatype:      row.Datatype,
			Module:        row.Module,
			Packet:        row.Packet,
			Timestamp:     row.Timestamp.UTC(),
		}
	}
	cp := CheckpointFromRecords(events)
	return &cp, nil
}

// Save serializes the checkpoint and overwrites the artifact, returning
// its URI. The write is atomic from the caller's perspective: the store
// contract guarantees either the old or the new artifact is readable.
func (s *CheckpointStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
	events := cp.Rows()
	rows := make([]checkpointRow, len(events))
	for i, ev := range events {
		rows[i] = checkpointRow{
			Action:        ev.Action,
			Study:         ev.Study,
			PipelineID:    ev.PipelineID,
			ProjectLabel:  ev.ProjectLabel,
			CenterLabel:   ev.CenterLabel,
			SourceName:    ev.SourceName,
			ParticipantID: ev.ParticipantID,
			VisitDate:     ev.VisitDate,
			VisitNumber:   ev.VisitNumber,
			Datatype:      ev.Datatype,
			Module:        ev.Module,
			Packet:        ev.Packet,
			Timestamp:     ev.Timestamp.UTC(),
		}
	}
	var buf bytes.Buffer
	if err := parquet.Write[checkpointRow](&buf, rows); err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.store.Put(ctx, s.key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return s.store.URI(s.key), nil
}
