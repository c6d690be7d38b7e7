package checkpointer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ObjectError records one per-object failure: the key plus the fetch,
// parse, or validation cause. Collected, never fatal.
type ObjectError struct {
	Key string
	Err error
}

func (e ObjectError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

// EventSource retrieves and validates visit events from an object store
// location. A single malformed object never blocks the rest of a batch:
// failures are partitioned into ObjectErrors and the batch proceeds.
type EventSource struct {
	store  ObjectStore
	prefix string
	retry  RetryPolicy
}

func NewEventSource(store ObjectStore, prefix string, retry RetryPolicy) *EventSource {
	return &EventSource{store: store, prefix: prefix, retry: retry}
}

// Retrieve lists event log objects under the source prefix, filters them
// by the naming convention and the cutoff, fetches and validates the
// survivors, and returns the valid events plus all per-object failures.
//
// since is the cutoff: only events with payload timestamp strictly after
// it are returned; nil means everything (first run). The timestamp encoded
// in the key name is a cheap pre-filter; because it only carries second
// precision, boundary objects are kept and the payload timestamp decides.
//
// Only a listing failure or context cancellation is returned as an error;
// both abort the batch.
func (s *EventSource) Retrieve(ctx context.Context, since *time.Time) ([]VisitEvent, []ObjectError, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("list event logs: %w", err)
	}

	var valid []VisitEvent
	var failures []ObjectError
	for _, key := range keys {
		info, ok := ParseEventKey(key)
		if !ok {
			// Not an event log; silently excluded, not an error.
			continue
		}
		if since != nil && info.HasEncoded && info.Encoded.Before(since.Truncate(time.Second)) {
			continue
		}
		// Interruptible at the object boundary: an expired run must not
		// reach the merge/save phase with a partial batch.
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		data, err := s.fetch(ctx, key)
		if err != nil {
			failures = append(failures, ObjectError{Key: key, Err: err})
			continue
		}
		raw, err := decodePayload(data)
		if err != nil {
			failures = append(failures, ObjectError{Key: key, Err: err})
			continue
		}
		ev, verr := ValidateRecord(key, raw)
		if verr != nil {
			failures = append(failures, ObjectError{Key: key, Err: verr})
			continue
		}
		if since != nil && !ev.Timestamp.After(*since) {
			continue
		}
		valid = append(valid, ev)
	}
	return valid, failures, nil
}

func (s *EventSource) fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry.retry(ctx, func() error {
		b, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrObjectNotExist) {
				// Object vanished between list and fetch; retrying won't help.
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
