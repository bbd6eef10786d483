package registry

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// #region snapshot-types
// ParametersSnapshot is a deep copy of every entry at export time. Changing
// it never affects the registry it came from.
type ParametersSnapshot struct {
	SnapshotID string           `json:"snapshot_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Parameters map[string]Entry `json:"parameters"`
}

// ProvenanceSnapshot is a deep copy of every provenance log at export time.
type ProvenanceSnapshot struct {
	SnapshotID string              `json:"snapshot_id"`
	ExportedAt time.Time           `json:"exported_at"`
	Provenance map[string][]Record `json:"provenance"`
}

// Paths returns the snapshot's paths in sorted order.
func (s ParametersSnapshot) Paths() []string {
	out := make([]string, 0, len(s.Parameters))
	for p := range s.Parameters {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Entry returns the entry for path with Path filled in. JSON-decoded
// snapshots do not carry Path inside the entry.
func (s ParametersSnapshot) Entry(path string) (Entry, bool) {
	e, ok := s.Parameters[path]
	if !ok {
		return Entry{}, false
	}
	e = e.clone()
	e.Path = path
	return e, true
}

// Paths returns the snapshot's paths in sorted order.
func (s ProvenanceSnapshot) Paths() []string {
	out := make([]string, 0, len(s.Provenance))
	for p := range s.Provenance {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// #endregion snapshot-types

// #region export
// ExportParameters returns a timestamped deep copy of every entry.
func (r *Registry) ExportParameters() ParametersSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := ParametersSnapshot{
		SnapshotID: uuid.New().String(),
		ExportedAt: r.now().UTC(),
		Parameters: make(map[string]Entry, len(r.entries)),
	}
	for p, e := range r.entries {
		snap.Parameters[p] = e.clone()
	}
	return snap
}

// ExportProvenance returns a timestamped deep copy of every provenance log.
func (r *Registry) ExportProvenance() ProvenanceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := ProvenanceSnapshot{
		SnapshotID: uuid.New().String(),
		ExportedAt: r.now().UTC(),
		Provenance: make(map[string][]Record, len(r.provenance)),
	}
	for p, recs := range r.provenance {
		cp := make([]Record, len(recs))
		for i, rec := range recs {
			cp[i] = rec.clone()
		}
		snap.Provenance[p] = cp
	}
	return snap
}

// #endregion export

// #region import
// Import writes every entry of snap through Set in path order, keeping the
// snapshot's UpdatedAt. The usual overwrite rules apply, so importing into
// a non-empty registry can fail part way; entries written before the
// failure stay.
func (r *Registry) Import(snap ParametersSnapshot) error {
	for _, p := range snap.Paths() {
		e, _ := snap.Entry(p)
		opts := []SetOption{WithMetadata(e.Metadata), withTimestamp(e.UpdatedAt)}
		if e.Uncertainty != nil {
			opts = append(opts, WithUncertainty(*e.Uncertainty))
		}
		var err error
		if e.Vector != nil {
			_, err = r.SetVector(p, e.Vector, e.Source, e.Status, opts...)
		} else {
			_, err = r.Set(p, e.Value, e.Source, e.Status, opts...)
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", p, err)
		}
	}
	return nil
}

// #endregion import
