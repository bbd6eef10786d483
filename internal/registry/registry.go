package registry

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/paramreg/internal/measure"
)

// #region observer
// Observer receives write outcomes, e.g. for metrics.
type Observer interface {
	WriteAccepted(status Status)
	WriteRejected(status Status)
	MismatchDetected(path string)
	Reset()
}

type nopObserver struct{}

func (nopObserver) WriteAccepted(Status) {}
func (nopObserver) WriteRejected(Status) {}
func (nopObserver) MismatchDetected(string) {}
func (nopObserver) Reset() {}

// #endregion observer

// #region registry-struct
// Registry holds the current value of every parameter path together with
// its append-only provenance. All methods are safe for concurrent use; the
// check-then-write sequence in Set runs under one lock.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	provenance map[string][]Record
	mismatches []Mismatch

	tolerance Tolerance
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithTolerance sets the mismatch tolerance.
func WithTolerance(t Tolerance) Option {
	return func(r *Registry) { r.tolerance = t }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:    make(map[string]Entry),
		provenance: make(map[string][]Record),
		tolerance:  DefaultTolerance(),
		logger:     zap.NewNop(),
		observer:   nopObserver{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
// Prefer passing an explicit *Registry; tests should use New.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// #endregion registry-struct

// #region set
// SetOption adds optional fields to a write.
type SetOption func(*write)

type write struct {
	path        string
	value       float64
	vector      []float64
	source      string
	status      Status
	uncertainty *measure.Uncertainty
	metadata    map[string]string
	at          time.Time
}

// WithUncertainty attaches an uncertainty to the write.
func WithUncertainty(u measure.Uncertainty) SetOption {
	return func(w *write) { w.uncertainty = &u }
}

// WithMetadata attaches auxiliary notes (units, derivation, ...). The map
// is copied.
func WithMetadata(md map[string]string) SetOption {
	return func(w *write) { w.metadata = maps.Clone(md) }
}

// withTimestamp pins UpdatedAt and the provenance timestamp, used by Import.
func withTimestamp(t time.Time) SetOption {
	return func(w *write) { w.at = t }
}

func (w *write) validate() error {
	if err := ValidatePath(w.path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWrite, err)
	}
	if !w.status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidWrite, w.status)
	}
	if w.vector != nil {
		if len(w.vector) == 0 {
			return fmt.Errorf("%w: empty vector", ErrInvalidWrite)
		}
		for i, v := range w.vector {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: component %d is not finite", ErrInvalidWrite, i)
			}
		}
	} else if math.IsNaN(w.value) || math.IsInf(w.value, 0) {
		return fmt.Errorf("%w: value is not finite", ErrInvalidWrite)
	}
	if w.uncertainty != nil {
		if err := w.uncertainty.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWrite, err)
		}
	}
	return nil
}

// Set writes a scalar value. A new path always succeeds. Writing over an
// ESTABLISHED entry with any other status fails with a
// *ProtectedOverwriteError and leaves the entry and its provenance alone.
// A permitted overwrite that moves the value beyond the tolerance is still
// applied; the drift is returned in Outcome.Mismatch and kept in the
// mismatch log.
func (r *Registry) Set(path string, value float64, source string, status Status, opts ...SetOption) (Outcome, error) {
	w := write{path: path, value: value, source: source, status: status}
	return r.apply(w, opts)
}

// SetVector writes a small fixed-size vector value with the same rules as Set.
func (r *Registry) SetVector(path string, vector []float64, source string, status Status, opts ...SetOption) (Outcome, error) {
	w := write{path: path, vector: slices.Clone(vector), source: source, status: status}
	if w.vector == nil {
		w.vector = []float64{}
	}
	return r.apply(w, opts)
}

func (r *Registry) apply(w write, opts []SetOption) (Outcome, error) {
	for _, opt := range opts {
		opt(&w)
	}
	if err := w.validate(); err != nil {
		return Outcome{}, fmt.Errorf("set %s: %w", w.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stamped under the lock so history order matches timestamp order.
	if w.at.IsZero() {
		w.at = r.now().UTC()
	}

	existing, exists := r.entries[w.path]
	if exists && existing.Status.Protects(w.status) {
		r.observer.WriteRejected(w.status)
		r.logger.Warn("rejected overwrite of established parameter",
			zap.String("path", w.path),
			zap.String("incoming_status", string(w.status)),
			zap.String("incoming_source", w.source),
		)
		return Outcome{}, &ProtectedOverwriteError{
			Path:     w.path,
			Existing: existing.Status,
			Incoming: w.status,
			Source:   w.source,
		}
	}

	out := Outcome{Created: !exists}
	if exists {
		if m, ok := r.compare(existing, w); ok {
			r.mismatches = append(r.mismatches, m)
			out.Mismatch = &m
			r.observer.MismatchDetected(w.path)
			r.logger.Warn("parameter value drifted beyond tolerance",
				zap.String("path", w.path),
				zap.Float64("previous", m.Previous),
				zap.Float64("incoming", m.Incoming),
				zap.Float64("abs_diff", m.AbsDiff),
				zap.Float64("threshold", m.Threshold),
				zap.String("previous_source", m.PreviousSource),
				zap.String("incoming_source", m.IncomingSource),
			)
		}
	}

	r.entries[w.path] = Entry{
		Path:        w.path,
		Value:       w.value,
		Vector:      w.vector,
		Uncertainty: w.uncertainty,
		Status:      w.status,
		Source:      w.source,
		Metadata:    w.metadata,
		UpdatedAt:   w.at,
	}
	r.provenance[w.path] = append(r.provenance[w.path], Record{
		Value:     w.value,
		Vector:    slices.Clone(w.vector),
		Source:    w.source,
		Status:    w.status,
		Timestamp: w.at,
	})
	r.observer.WriteAccepted(w.status)
	r.logger.Debug("parameter written",
		zap.String("path", w.path),
		zap.String("status", string(w.status)),
		zap.String("source", w.source),
		zap.Bool("created", out.Created),
	)
	return out, nil
}

// compare returns the mismatch between the stored entry and an incoming
// write, if any. A change of shape always counts.
func (r *Registry) compare(old Entry, w write) (Mismatch, bool) {
	m := Mismatch{
		Path:           w.path,
		Component:      -1,
		PreviousSource: old.Source,
		IncomingSource: w.source,
		DetectedAt:     w.at,
	}
	switch {
	case old.Vector == nil && w.vector == nil:
		m.Previous, m.Incoming = old.Value, w.value
		m.AbsDiff = math.Abs(w.value - old.Value)
		m.Threshold = r.tolerance.Threshold(old.Value, w.value)
		return m, r.tolerance.Exceeded(old.Value, w.value)
	case old.Vector == nil || w.vector == nil || len(old.Vector) != len(w.vector):
		m.ShapeChanged = true
		return m, true
	}

	found := false
	worst := -1.0
	for i := range w.vector {
		a, b := old.Vector[i], w.vector[i]
		if !r.tolerance.Exceeded(a, b) {
			continue
		}
		if d := math.Abs(a - b); d > worst {
			worst = d
			found = true
			m.Component = i
			m.Previous, m.Incoming = a, b
			m.AbsDiff = d
			m.Threshold = r.tolerance.Threshold(a, b)
		}
	}
	return m, found
}

// #endregion set

// #region read
// Get returns the current scalar value of path.
func (r *Registry) Get(path string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	if !ok {
		return 0, &MissingParameterError{Path: path}
	}
	if e.Vector != nil {
		return 0, fmt.Errorf("get %s: %w", path, ErrVectorValue)
	}
	return e.Value, nil
}

// GetVector returns a copy of the vector value of path. Scalars come back
// as a one-element vector.
func (r *Registry) GetVector(path string) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	if !ok {
		return nil, &MissingParameterError{Path: path}
	}
	if e.Vector == nil {
		return []float64{e.Value}, nil
	}
	return slices.Clone(e.Vector), nil
}

// GetEntry returns a copy of the entry at path. It never fails; ok is
// false when the path is unknown.
func (r *Registry) GetEntry(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Has reports whether path has an entry.
func (r *Registry) Has(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[path]
	return ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Paths returns the sorted paths at or below prefix. An empty prefix
// returns every path.
func (r *Registry) Paths(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for p := range r.entries {
		if underPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// History returns a copy of the provenance log for path, oldest first.
func (r *Registry) History(path string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.provenance[path]
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = rec.clone()
	}
	return out
}

// Mismatches returns a copy of the mismatch log in detection order.
func (r *Registry) Mismatches() []Mismatch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.mismatches)
}

// #endregion read

// #region reset
// Reset drops every entry, provenance record and mismatch. It exists for
// test isolation and is not part of normal operation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
	r.provenance = make(map[string][]Record)
	r.mismatches = nil
	r.observer.Reset()
	r.logger.Debug("registry reset")
}

// #endregion reset
