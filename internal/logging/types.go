package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	SnapshotID string
	Path       string
	Value      float64
	VectorJSON string
	Source     string
	Status     string
	Decision   string // "recorded" | "created" | "updated" | "mismatch" | "rejected" | "invalid"
	Reason     string
	CreatedAt  time.Time
}

// #endregion provenance-entry

// Decision values written by the archive and the replay harness.
const (
	DecisionRecorded = "recorded"
	DecisionCreated  = "created"
	DecisionUpdated  = "updated"
	DecisionMismatch = "mismatch"
	DecisionRejected = "rejected"
	DecisionInvalid  = "invalid"
)
