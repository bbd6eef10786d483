package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/paramreg/internal/logging"
	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/registry"
)

// Actions a replayed write can end in.
const (
	ActionCreated  = logging.DecisionCreated
	ActionUpdated  = logging.DecisionUpdated
	ActionMismatch = logging.DecisionMismatch
	ActionRejected = logging.DecisionRejected
	ActionInvalid  = logging.DecisionInvalid
)

// #region types
// Write is one recorded registry write.
type Write struct {
	Path        string               `json:"path"`
	Value       float64              `json:"value"`
	Vector      []float64            `json:"vector,omitempty"`
	Source      string               `json:"source"`
	Status      registry.Status      `json:"status"`
	Uncertainty *measure.Uncertainty `json:"uncertainty,omitempty"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}

// Result captures the outcome of replaying one write.
type Result struct {
	Index    int                `json:"index"`
	Path     string             `json:"path"`
	Action   string             `json:"action"` // "created" | "updated" | "mismatch" | "rejected" | "invalid"
	Reason   string             `json:"reason"`
	Mismatch *registry.Mismatch `json:"mismatch,omitempty"`
	Err      error              `json:"-"`
}

// Summary provides aggregate counts from a replay run.
type Summary struct {
	TotalWrites int `json:"total_writes"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Mismatches  int `json:"mismatches"`
	Rejected    int `json:"rejected"`
	Invalid     int `json:"invalid"`
}

// #endregion types

// #region replay
// Replay applies writes to reg in order through Set, exactly as a live
// caller would, and classifies each outcome. A rejected or invalid write
// does not stop the run.
func Replay(reg *registry.Registry, writes []Write) []Result {
	results := make([]Result, 0, len(writes))
	for i, w := range writes {
		var opts []registry.SetOption
		if w.Uncertainty != nil {
			opts = append(opts, registry.WithUncertainty(*w.Uncertainty))
		}
		if w.Metadata != nil {
			opts = append(opts, registry.WithMetadata(w.Metadata))
		}

		var out registry.Outcome
		var err error
		if w.Vector != nil {
			out, err = reg.SetVector(w.Path, w.Vector, w.Source, w.Status, opts...)
		} else {
			out, err = reg.Set(w.Path, w.Value, w.Source, w.Status, opts...)
		}

		r := Result{Index: i, Path: w.Path, Err: err}
		switch {
		case errors.Is(err, registry.ErrProtectedOverwrite):
			r.Action = ActionRejected
			r.Reason = err.Error()
		case err != nil:
			r.Action = ActionInvalid
			r.Reason = err.Error()
		case out.Created:
			r.Action = ActionCreated
			r.Reason = "new parameter"
		case out.Mismatch != nil:
			r.Action = ActionMismatch
			r.Mismatch = out.Mismatch
			if out.Mismatch.ShapeChanged {
				r.Reason = "value changed shape"
			} else {
				r.Reason = fmt.Sprintf("moved %g beyond tolerance %g", out.Mismatch.AbsDiff, out.Mismatch.Threshold)
			}
		default:
			r.Action = ActionUpdated
			r.Reason = "within tolerance"
		}
		results = append(results, r)
	}
	return results
}

// Summarize computes aggregate counts from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalWrites: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionCreated:
			s.Created++
		case ActionUpdated:
			s.Updated++
		case ActionMismatch:
			s.Mismatches++
		case ActionRejected:
			s.Rejected++
		case ActionInvalid:
			s.Invalid++
		}
	}
	return s
}

// #endregion replay

// #region provenance
// FromProvenance flattens a provenance snapshot into writes ordered by
// timestamp. Records with equal timestamps keep path order, then log order.
// Provenance does not carry uncertainties or metadata, so neither is
// replayed.
func FromProvenance(prov registry.ProvenanceSnapshot) []Write {
	type stamped struct {
		w   Write
		rec registry.Record
	}
	var all []stamped
	for _, path := range prov.Paths() {
		for _, rec := range prov.Provenance[path] {
			all = append(all, stamped{
				w: Write{
					Path:   path,
					Value:  rec.Value,
					Vector: slices.Clone(rec.Vector),
					Source: rec.Source,
					Status: rec.Status,
				},
				rec: rec,
			})
		}
	}
	slices.SortStableFunc(all, func(a, b stamped) int {
		return a.rec.Timestamp.Compare(b.rec.Timestamp)
	})
	out := make([]Write, len(all))
	for i, s := range all {
		out[i] = s.w
	}
	return out
}

// Entries converts replay results into provenance rows for the archive.
// writes must be the slice the results came from.
func Entries(snapshotID string, writes []Write, results []Result) ([]logging.ProvenanceEntry, error) {
	if len(writes) != len(results) {
		return nil, fmt.Errorf("entries: %d writes for %d results", len(writes), len(results))
	}
	out := make([]logging.ProvenanceEntry, len(results))
	for i, r := range results {
		w := writes[i]
		e := logging.ProvenanceEntry{
			SnapshotID: snapshotID,
			Path:       w.Path,
			Value:      w.Value,
			Source:     w.Source,
			Status:     string(w.Status),
			Decision:   r.Action,
			Reason:     r.Reason,
		}
		if w.Vector != nil {
			b, err := json.Marshal(w.Vector)
			if err != nil {
				return nil, fmt.Errorf("marshal vector %s: %w", w.Path, err)
			}
			e.VectorJSON = string(b)
		}
		out[i] = e
	}
	return out, nil
}

// #endregion provenance
