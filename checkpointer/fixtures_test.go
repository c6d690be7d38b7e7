package checkpointer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// validPayload returns a payload that passes every schema check. Tests
// mutate individual fields to provoke specific failures.
func validPayload() map[string]any {
	return map[string]any{
		"action":         "submit",
		"study":          "adrc",
		"pipeline_id":    42,
		"project_label":  "ingest-form-screening",
		"center_label":   "alpha",
		"source_name":    "form-screening-gear",
		"participant_id": "PTID1",
		"visit_date":     "2025-01-01",
		"visit_number":   "v1",
		"datatype":       "form",
		"module":         "UDS",
		"packet":         "I",
		"timestamp":      "2025-01-01T12:00:00Z",
	}
}

// eventKey builds a convention-matching key whose encoded timestamp is ts.
func eventKey(action string, ts time.Time, participant string, visitNum string) string {
	return fmt.Sprintf("log-%s-%s-42-ingestproject-%s-%s.json",
		action, ts.UTC().Format("20060102-150405"), participant, visitNum)
}

// writeObject writes a payload into an FSStore-backed directory. Strings
// and byte slices are written verbatim (for deliberately broken objects);
// anything else is JSON-marshaled.
func writeObject(t *testing.T, dir string, key string, payload any) {
	t.Helper()
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
	}
	p := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeEventObject writes one valid event payload under a convention key
// and returns the key. The payload timestamp matches the encoded one.
func writeEventObject(t *testing.T, dir string, ts time.Time, participant string, visitNum string) string {
	t.Helper()
	key := eventKey("submit", ts, participant, visitNum)
	payload := validPayload()
	payload["participant_id"] = participant
	payload["visit_number"] = visitNum
	payload["timestamp"] = ts.UTC().Format(time.RFC3339Nano)
	writeObject(t, dir, key, payload)
	return key
}

func mustValidate(t *testing.T, key string, raw map[string]any) VisitEvent {
	t.Helper()
	ev, verr := ValidateRecord(key, raw)
	if verr != nil {
		t.Fatalf("unexpected validation failure: %v", verr)
	}
	return ev
}

// countingStore wraps an ObjectStore and counts Get calls per key.
type countingStore struct {
	ObjectStore
	mu   sync.Mutex
	gets map[string]int
}

func newCountingStore(inner ObjectStore) *countingStore {
	return &countingStore{ObjectStore: inner, gets: make(map[string]int)}
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.gets[key]++
	s.mu.Unlock()
	return s.ObjectStore.Get(ctx, key)
}

func (s *countingStore) getCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[key]
}

type mockSyslogSender struct {
	mu    sync.Mutex
	calls []mockSyslogCall
}

type mockSyslogCall struct {
	appName        string
	structuredData string
	message        string
}

func (m *mockSyslogSender) SendRFC5424Timeout(appName string, structuredData string, message string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockSyslogCall{appName: appName, structuredData: structuredData, message: message})
	return nil
}

func (m *mockSyslogSender) Calls() []mockSyslogCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockSyslogCall, len(m.calls))
	copy(out, m.calls)
	return out
}
