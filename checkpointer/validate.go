package checkpointer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// participantIDRe: 1-10 printable non-whitespace characters.
var participantIDRe = regexp.MustCompile(`^[!-~]{1,10}$`)

var visitDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// RecordError reports why one raw payload was rejected, with every
// violated constraint, not just the first.
type RecordError struct {
	Key    string       `json:"source_key"`
	Fields []FieldError `json:"errors"`
}

func (e *RecordError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("%s: %s", e.Key, strings.Join(msgs, "; "))
}

var knownFields = map[string]bool{
	"action":         true,
	"study":          true,
	"pipeline_id":    true,
	"project_label":  true,
	"center_label":   true,
	"source_name":    true,
	"participant_id": true,
	"visit_date":     true,
	"visit_number":   true,
	"datatype":       true,
	"module":         true,
	"packet":         true,
	"timestamp":      true,
}

// ValidateRecord checks a raw decoded payload against the event schema and
// returns a fully constructed VisitEvent or a RecordError listing every
// violation. The record is atomic: no event is returned alongside errors.
//
// Coercion: pipeline_id accepts integers and numeric strings. All other
// fields keep their declared types. Optional fields set to null stay nil.
// Unknown fields are rejected.
func ValidateRecord(key string, raw map[string]any) (VisitEvent, *RecordError) {
	var ev VisitEvent
	var errs []FieldError

	addErr := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Msg: msg})
	}

	for field := range raw {
		if !knownFields[field] {
			addErr(field, "unknown field")
		}
	}

	ev.Action = requireString(raw, "action", addErr)
	if ev.Action != "" && !validActions[ev.Action] {
		addErr("action", fmt.Sprintf("must be one of submit, pass-qc, not-pass-qc, delete; got %q", ev.Action))
	}

	if _, ok := raw["study"]; ok {
		ev.Study = requireString(raw, "study", addErr)
	} else {
		ev.Study = DefaultStudy
	}

	ev.PipelineID = coercePipelineID(raw, addErr)
	ev.ProjectLabel = requireString(raw, "project_label", addErr)
	ev.CenterLabel = requireString(raw, "center_label", addErr)
	ev.SourceName = requireString(raw, "source_name", addErr)

	ev.ParticipantID = requireString(raw, "participant_id", addErr)
	if ev.ParticipantID != "" && !participantIDRe.MatchString(ev.ParticipantID) {
		addErr("participant_id", "must be 1-10 printable non-whitespace characters")
	}

	ev.VisitDate = requireString(raw, "visit_date", addErr)
	if ev.VisitDate != "" && !visitDateRe.MatchString(ev.VisitDate) {
		addErr("visit_date", "must match YYYY-MM-DD")
	}

	ev.VisitNumber = optionalString(raw, "visit_number", addErr)

	ev.Datatype = requireString(raw, "datatype", addErr)
	if ev.Datatype != "" && !validDatatypes[ev.Datatype] {
		addErr("datatype", fmt.Sprintf("unknown datatype %q", ev.Datatype))
	}

	ev.Module = optionalString(raw, "module", addErr)
	if ev.Module != nil && !validModules[*ev.Module] {
		addErr("module", fmt.Sprintf("unknown module %q", *ev.Module))
	}

	ev.Packet = optionalString(raw, "packet", addErr)

	ev.Timestamp = parseTimestampField(raw, addErr)

	// Cross-field rule, evaluated after the per-field checks: module
	// presence is fully determined by datatype.
	if ev.Datatype == "form" && ev.Module == nil {
		addErr("module", "module is required for form datatype")
	}
	if ev.Datatype != "" && ev.Datatype != "form" && ev.Module != nil {
		addErr("module", fmt.Sprintf("datatype %q must not carry a module", ev.Datatype))
	}

	if len(errs) > 0 {
		return VisitEvent{}, &RecordError{Key: key, Fields: errs}
	}
	return ev, nil
}

// decodePayload parses raw JSON bytes into an untyped record, preserving
// integer precision via json.Number.
func decodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return raw, nil
}

func requireString(raw map[string]any, field string, addErr func(string, string)) string {
	v, ok := raw[field]
	if !ok || v == nil {
		addErr(field, "required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		addErr(field, "must be a string")
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		addErr(field, "must be non-empty")
	}
	return s
}

func optionalString(raw map[string]any, field string, addErr func(string, string)) *string {
	v, ok := raw[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		addErr(field, "must be a string or null")
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}

func coercePipelineID(raw map[string]any, addErr func(string, string)) int32 {
	v, ok := raw["pipeline_id"]
	if !ok || v == nil {
		addErr("pipeline_id", "required")
		return 0
	}
	var n int64
	var err error
	switch t := v.(type) {
	case json.Number:
		n, err = t.Int64()
		if err != nil {
			addErr("pipeline_id", "must be an integer")
			return 0
		}
	case string:
		n, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			addErr("pipeline_id", "must be an integer or numeric string")
			return 0
		}
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		if uint64(t) > math.MaxInt64 {
			addErr("pipeline_id", "must be a positive 32-bit integer")
			return 0
		}
		n = int64(t)
	case uint64:
		if t > math.MaxInt64 {
			addErr("pipeline_id", "must be a positive 32-bit integer")
			return 0
		}
		n = int64(t)
	case float64:
		if t != math.Trunc(t) {
			addErr("pipeline_id", "must be an integer")
			return 0
		}
		n = int64(t)
	default:
		addErr("pipeline_id", "must be an integer or numeric string")
		return 0
	}
	if n <= 0 || n > math.MaxInt32 {
		addErr("pipeline_id", "must be a positive 32-bit integer")
		return 0
	}
	return int32(n)
}

// Timestamp layouts accepted on the wire. Zone-less forms are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestampField(raw map[string]any, addErr func(string, string)) time.Time {
	v, ok := raw["timestamp"]
	if !ok || v == nil {
		addErr("timestamp", "required")
		return time.Time{}
	}
	s, ok := v.(string)
	if !ok {
		addErr("timestamp", "must be an ISO-8601 datetime string")
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			// Checkpoint columns carry microsecond precision.
			return ts.UTC().Truncate(time.Microsecond)
		}
	}
	addErr("timestamp", fmt.Sprintf("unsupported datetime format %q", s))
	return time.Time{}
}
