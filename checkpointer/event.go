package checkpointer

import "time"

// Actions that can be recorded against a visit.
const (
	ActionSubmit    = "submit"
	ActionPassQC    = "pass-qc"
	ActionNotPassQC = "not-pass-qc"
	ActionDelete    = "delete"
)

// DefaultStudy is assumed when a payload omits the study field.
const DefaultStudy = "adrc"

var validActions = map[string]bool{
	ActionSubmit:    true,
	ActionPassQC:    true,
	ActionNotPassQC: true,
	ActionDelete:    true,
}

// Closed set of datatypes an event may carry.
var validDatatypes = map[string]bool{
	"apoe":                 true,
	"biomarker":            true,
	"dicom":                true,
	"enrollment":           true,
	"form":                 true,
	"genetic-availability": true,
	"gwas":                 true,
	"imputation":           true,
	"scan-analysis":        true,
}

// Module names valid for form-datatype events.
var validModules = map[string]bool{
	"UDS":  true,
	"FTLD": true,
	"LBD":  true,
	"MDS":  true,
}

// VisitEvent is one validated occurrence of an action on a visit
// (participant + visit date + visit number). Optional fields are nil
// when the payload set them to null or omitted them.
//
// Invariant: Module is non-nil iff Datatype == "form". Construction goes
// through ValidateRecord, which enforces this.
type VisitEvent struct {
	Action        string    `json:"action"`
	Study         string    `json:"study"`
	PipelineID    int32     `json:"pipeline_id"`
	ProjectLabel  string    `json:"project_label"`
	CenterLabel   string    `json:"center_label"`
	SourceName    string    `json:"source_name"`
	ParticipantID string    `json:"participant_id"`
	VisitDate     string    `json:"visit_date"` // literal YYYY-MM-DD, kept as string
	VisitNumber   *string   `json:"visit_number"`
	Datatype      string    `json:"datatype"`
	Module        *string   `json:"module"`
	Packet        *string   `json:"packet"`
	Timestamp     time.Time `json:"timestamp"` // when the action occurred, UTC
}
