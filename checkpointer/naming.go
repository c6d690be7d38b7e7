package checkpointer

import (
	"regexp"
	"time"
)

// Event log keys encode the action, a second-precision timestamp and the
// identifying fields of the visit:
//
//	log-{action}-{YYYYMMDD-HHMMSS}-{pipeline_id}-{project}-{participant}-{visitnum}.json
//
// A legacy day-form is still accepted:
//
//	log-{action}-{YYYYMMDD}.json
var (
	eventKeyRe  = regexp.MustCompile(`^(?:.*/)?log-(submit|pass-qc|not-pass-qc|delete)-(\d{8}-\d{6})-\d+-[\w\-]+-[\w]+-[\w]+\.json$`)
	legacyKeyRe = regexp.MustCompile(`^(?:.*/)?log-(submit|pass-qc|not-pass-qc|delete)-(\d{8})\.json$`)
)

// KeyInfo is what an event log key name encodes.
type KeyInfo struct {
	Action  string
	Encoded time.Time // second precision, UTC
	// Legacy day-form keys encode no usable timestamp; they are always
	// fetched and the payload timestamp decides inclusion.
	HasEncoded bool
}

// ParseEventKey reports whether key follows the event log naming
// convention and, for the full form, the timestamp encoded in the name.
func ParseEventKey(key string) (KeyInfo, bool) {
	if m := eventKeyRe.FindStringSubmatch(key); m != nil {
		ts, err := time.Parse("20060102-150405", m[2])
		if err != nil {
			return KeyInfo{}, false
		}
		return KeyInfo{Action: m[1], Encoded: ts.UTC(), HasEncoded: true}, true
	}
	if m := legacyKeyRe.FindStringSubmatch(key); m != nil {
		if _, err := time.Parse("20060102", m[2]); err != nil {
			return KeyInfo{}, false
		}
		return KeyInfo{Action: m[1]}, true
	}
	return KeyInfo{}, false
}
