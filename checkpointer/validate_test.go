package checkpointer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidateRecord_Valid(t *testing.T) {
	ev := mustValidate(t, "k", validPayload())
	if ev.Action != ActionSubmit {
		t.Fatalf("action: got %q", ev.Action)
	}
	if ev.PipelineID != 42 {
		t.Fatalf("pipeline_id: got %d", ev.PipelineID)
	}
	if ev.Module == nil || *ev.Module != "UDS" {
		t.Fatalf("module: got %v", ev.Module)
	}
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp: got %s", ev.Timestamp)
	}
}

func TestValidateRecord_StudyDefaults(t *testing.T) {
	raw := validPayload()
	delete(raw, "study")
	ev := mustValidate(t, "k", raw)
	if ev.Study != DefaultStudy {
		t.Fatalf("expected default study %q, got %q", DefaultStudy, ev.Study)
	}
}

func TestValidateRecord_PipelineIDCoercion(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int32
		ok    bool
	}{
		{"int", 7, 7, true},
		{"int32", int32(7), 7, true},
		{"int64", int64(7), 7, true},
		{"uint", uint(7), 7, true},
		{"uint64", uint64(7), 7, true},
		{"whole float", 7.0, 7, true},
		{"numeric string", "7", 7, true},
		{"json number", json.Number("7"), 7, true},
		{"zero", 0, 0, false},
		{"negative", -3, 0, false},
		{"negative int64", int64(-3), 0, false},
		{"fractional", 1.5, 0, false},
		{"over int32", int64(1) << 40, 0, false},
		{"word", "seven", 0, false},
		{"null", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validPayload()
			raw["pipeline_id"] = tc.value
			ev, verr := ValidateRecord("k", raw)
			if tc.ok {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				if ev.PipelineID != tc.want {
					t.Fatalf("got %d, want %d", ev.PipelineID, tc.want)
				}
				return
			}
			if verr == nil {
				t.Fatalf("expected validation failure for %v", tc.value)
			}
		})
	}
}

func TestValidateRecord_RequiredFields(t *testing.T) {
	for _, field := range []string{"action", "project_label", "center_label", "source_name", "participant_id", "visit_date", "datatype", "timestamp"} {
		t.Run(field, func(t *testing.T) {
			raw := validPayload()
			delete(raw, field)
			_, verr := ValidateRecord("k", raw)
			if verr == nil {
				t.Fatalf("expected failure with %s missing", field)
			}
			found := false
			for _, fe := range verr.Fields {
				if fe.Field == field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a %s field error, got: %v", field, verr)
			}
		})
	}
}

func TestValidateRecord_ParticipantIDPattern(t *testing.T) {
	for _, bad := range []string{"", "has space", "elevenchars", "tab\there"} {
		raw := validPayload()
		raw["participant_id"] = bad
		if _, verr := ValidateRecord("k", raw); verr == nil {
			t.Fatalf("expected failure for participant_id %q", bad)
		}
	}
	raw := validPayload()
	raw["participant_id"] = "A!B~C"
	mustValidate(t, "k", raw)
}

func TestValidateRecord_VisitDateFormat(t *testing.T) {
	for _, bad := range []string{"2025/01/01", "20250101", "2025-1-1", "jan 1 2025"} {
		raw := validPayload()
		raw["visit_date"] = bad
		if _, verr := ValidateRecord("k", raw); verr == nil {
			t.Fatalf("expected failure for visit_date %q", bad)
		}
	}
}

func TestValidateRecord_ModuleDatatypeRule(t *testing.T) {
	// form without module is rejected
	raw := validPayload()
	raw["module"] = nil
	_, verr := ValidateRecord("k", raw)
	if verr == nil {
		t.Fatal("expected failure for form datatype with null module")
	}
	if !strings.Contains(verr.Error(), "module") {
		t.Fatalf("expected module error, got: %v", verr)
	}

	// non-form with module is rejected
	raw = validPayload()
	raw["datatype"] = "dicom"
	if _, verr := ValidateRecord("k", raw); verr == nil {
		t.Fatal("expected failure for dicom datatype carrying a module")
	}

	// non-form with null module is fine
	raw = validPayload()
	raw["datatype"] = "dicom"
	raw["module"] = nil
	ev := mustValidate(t, "k", raw)
	if ev.Module != nil {
		t.Fatalf("expected nil module, got %v", *ev.Module)
	}
}

func TestValidateRecord_NullOptionalsPreserved(t *testing.T) {
	raw := validPayload()
	raw["visit_number"] = nil
	raw["packet"] = nil
	ev := mustValidate(t, "k", raw)
	if ev.VisitNumber != nil || ev.Packet != nil {
		t.Fatalf("expected nil optionals, got %v %v", ev.VisitNumber, ev.Packet)
	}
}

func TestValidateRecord_UnknownFieldRejected(t *testing.T) {
	raw := validPayload()
	raw["extra_field"] = "x"
	_, verr := ValidateRecord("k", raw)
	if verr == nil {
		t.Fatal("expected failure for unknown field")
	}
}

func TestValidateRecord_CollectsEveryViolation(t *testing.T) {
	raw := validPayload()
	raw["action"] = "frobnicate"
	raw["pipeline_id"] = -1
	raw["participant_id"] = "way too long for the pattern"
	_, verr := ValidateRecord("k", raw)
	if verr == nil {
		t.Fatal("expected failure")
	}
	if len(verr.Fields) < 3 {
		t.Fatalf("expected all violations reported, got %d: %v", len(verr.Fields), verr)
	}
	if verr.Key != "k" {
		t.Fatalf("expected key preserved, got %q", verr.Key)
	}
}

func TestValidateRecord_TimestampFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2025-01-01T12:00:00Z":            time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		"2025-01-01T12:00:00+02:00":       time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		"2025-01-01T12:00:00.123456Z":     time.Date(2025, 1, 1, 12, 0, 0, 123456000, time.UTC),
		"2025-01-01T12:00:00":             time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		"2025-01-01 12:00:00":             time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		"2025-01-01T12:00:00.123456789Z":  time.Date(2025, 1, 1, 12, 0, 0, 123456000, time.UTC), // truncated to micros
	}
	for in, want := range cases {
		raw := validPayload()
		raw["timestamp"] = in
		ev := mustValidate(t, "k", raw)
		if !ev.Timestamp.Equal(want) {
			t.Fatalf("timestamp %q: got %s, want %s", in, ev.Timestamp, want)
		}
	}

	raw := validPayload()
	raw["timestamp"] = "last tuesday"
	if _, verr := ValidateRecord("k", raw); verr == nil {
		t.Fatal("expected failure for unparseable timestamp")
	}
}

func TestDecodePayload(t *testing.T) {
	raw, err := decodePayload([]byte(`{"pipeline_id": 9007199254740993}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["pipeline_id"].(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", raw["pipeline_id"])
	}
	if _, err := decodePayload([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
