package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/paramreg/internal/measure"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return New(opts...)
}

// #region set-get-tests
func TestSetCreatesEntry(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.Set("gauge.alpha_gut", 0.0412, "gut_unification", StatusDerived,
		WithUncertainty(measure.Symmetric(0.0003)),
		WithMetadata(map[string]string{"units": "dimensionless"}),
	)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Nil(t, out.Mismatch)

	v, err := r.Get("gauge.alpha_gut")
	require.NoError(t, err)
	assert.Equal(t, 0.0412, v)
	assert.True(t, r.Has("gauge.alpha_gut"))

	e, ok := r.GetEntry("gauge.alpha_gut")
	require.True(t, ok)
	assert.Equal(t, "gauge.alpha_gut", e.Path)
	assert.Equal(t, StatusDerived, e.Status)
	assert.Equal(t, "gut_unification", e.Source)
	assert.Equal(t, "dimensionless", e.Metadata["units"])
	require.NotNil(t, e.Uncertainty)
	assert.Equal(t, 0.0003, e.Uncertainty.Upper)
	assert.False(t, e.UpdatedAt.IsZero())

	require.Len(t, r.History("gauge.alpha_gut"), 1)
}

func TestGetMissing(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParameter))

	var mpe *MissingParameterError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, "nope", mpe.Path)
	assert.Equal(t, "MISSING_PARAMETER", mpe.Code())

	_, ok := r.GetEntry("nope")
	assert.False(t, ok)
	assert.False(t, r.Has("nope"))
}

func TestProtectedOverwriteRejected(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Set("x", 10, "pdg", StatusEstablished, WithUncertainty(measure.Symmetric(1)))
	require.NoError(t, err)

	_, err = r.Set("x", 12, "formula", StatusDerived)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtectedOverwrite))

	var poe *ProtectedOverwriteError
	require.True(t, errors.As(err, &poe))
	assert.Equal(t, StatusEstablished, poe.Existing)
	assert.Equal(t, StatusDerived, poe.Incoming)

	v, err := r.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
	assert.Len(t, r.History("x"), 1, "rejected write must not reach provenance")
	assert.Empty(t, r.Mismatches())
}

func TestProtectedOverwriteEveryNonEstablishedStatus(t *testing.T) {
	for _, st := range Statuses() {
		if st == StatusEstablished {
			continue
		}
		t.Run(string(st), func(t *testing.T) {
			r := newTestRegistry(t)
			_, err := r.Set("m", 1, "pdg", StatusEstablished)
			require.NoError(t, err)
			_, err = r.Set("m", 1, "other", st)
			assert.ErrorIs(t, err, ErrProtectedOverwrite)
		})
	}
}

func TestEstablishedOverEstablishedAllowed(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Set("mz", 91.1876, "pdg-2022", StatusEstablished)
	require.NoError(t, err)
	out, err := r.Set("mz", 91.1880, "pdg-2024", StatusEstablished)
	require.NoError(t, err)
	assert.False(t, out.Created)

	v, _ := r.Get("mz")
	assert.Equal(t, 91.1880, v)
	assert.Len(t, r.History("mz"), 2)
}

func TestNonEstablishedMayBecomeEstablished(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Set("mh", 125.0, "formula", StatusPredicted)
	require.NoError(t, err)
	_, err = r.Set("mh", 125.1, "pdg", StatusEstablished)
	require.NoError(t, err)

	e, _ := r.GetEntry("mh")
	assert.Equal(t, StatusEstablished, e.Status)
}

// #endregion set-get-tests

// #region mismatch-tests
func TestMismatchWithinTolerance(t *testing.T) {
	r := newTestRegistry(t, WithTolerance(Tolerance{Relative: 1e-3}))

	_, err := r.Set("p", 1.000, "a", StatusDerived)
	require.NoError(t, err)
	out, err := r.Set("p", 1.0001, "a", StatusDerived)
	require.NoError(t, err)

	assert.Nil(t, out.Mismatch)
	assert.Empty(t, r.Mismatches())
}

func TestMismatchBeyondTolerance(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := newTestRegistry(t, WithTolerance(Tolerance{Relative: 1e-3}), WithLogger(zap.New(core)))

	_, err := r.Set("p", 1.000, "a", StatusDerived)
	require.NoError(t, err)
	out, err := r.Set("p", 1.500, "b", StatusDerived)
	require.NoError(t, err)

	require.NotNil(t, out.Mismatch)
	assert.Equal(t, 1.0, out.Mismatch.Previous)
	assert.Equal(t, 1.5, out.Mismatch.Incoming)
	assert.Equal(t, "a", out.Mismatch.PreviousSource)
	assert.Equal(t, "b", out.Mismatch.IncomingSource)
	assert.Equal(t, -1, out.Mismatch.Component)

	require.Len(t, r.Mismatches(), 1)
	v, _ := r.Get("p")
	assert.Equal(t, 1.5, v)
	assert.Len(t, r.History("p"), 2)
	assert.Equal(t, 1, logs.FilterMessage("parameter value drifted beyond tolerance").Len())
}

func TestMismatchAbsoluteFloor(t *testing.T) {
	r := newTestRegistry(t, WithTolerance(Tolerance{Relative: 0, Absolute: 0.01}))

	_, _ = r.Set("z", 0, "a", StatusDerived)
	out, err := r.Set("z", 0.005, "a", StatusDerived)
	require.NoError(t, err)
	assert.Nil(t, out.Mismatch)

	out, err = r.Set("z", 0.05, "a", StatusDerived)
	require.NoError(t, err)
	assert.NotNil(t, out.Mismatch)
}

func TestVectorMismatch(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.SetVector("ckm.row1", []float64{0.974, 0.225, 0.004}, "fit", StatusDerived)
	require.NoError(t, err)

	out, err := r.SetVector("ckm.row1", []float64{0.974, 0.300, 0.004}, "fit", StatusDerived)
	require.NoError(t, err)
	require.NotNil(t, out.Mismatch)
	assert.Equal(t, 1, out.Mismatch.Component)
	assert.InDelta(t, 0.075, out.Mismatch.AbsDiff, 1e-12)

	out, err = r.SetVector("ckm.row1", []float64{0.974, 0.300}, "fit", StatusDerived)
	require.NoError(t, err)
	require.NotNil(t, out.Mismatch)
	assert.True(t, out.Mismatch.ShapeChanged)

	vec, err := r.GetVector("ckm.row1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.974, 0.300}, vec)

	_, err = r.Get("ckm.row1")
	assert.ErrorIs(t, err, ErrVectorValue)
}

// #endregion mismatch-tests

// #region validation-tests
func TestInvalidWrites(t *testing.T) {
	r := newTestRegistry(t)
	cases := []struct {
		name string
		set  func() error
	}{
		{"empty path", func() error { _, err := r.Set("", 1, "s", StatusDerived); return err }},
		{"empty segment", func() error { _, err := r.Set("a..b", 1, "s", StatusDerived); return err }},
		{"whitespace", func() error { _, err := r.Set("a.b c", 1, "s", StatusDerived); return err }},
		{"unknown status", func() error { _, err := r.Set("a", 1, "s", Status("GUESSED")); return err }},
		{"negative uncertainty", func() error {
			_, err := r.Set("a", 1, "s", StatusDerived, WithUncertainty(measure.Symmetric(-1)))
			return err
		}},
		{"empty vector", func() error { _, err := r.SetVector("a", nil, "s", StatusDerived); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.set(), ErrInvalidWrite)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestZeroUncertaintyAllowed(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Set("g", 9.81, "axiom", StatusGeometric, WithUncertainty(measure.Symmetric(0)))
	assert.NoError(t, err)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" derived ")
	require.NoError(t, err)
	assert.Equal(t, StatusDerived, st)

	_, err = ParseStatus("wild-guess")
	assert.Error(t, err)
}

func TestStatusScored(t *testing.T) {
	assert.True(t, StatusDerived.Scored())
	assert.True(t, StatusPredicted.Scored())
	assert.False(t, StatusEstablished.Scored())
	assert.False(t, StatusGeometric.Scored())
	assert.False(t, StatusCalibrated.Scored())
}

// #endregion validation-tests

// #region isolation-tests
func TestGetEntryReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Set("a", 1, "s", StatusDerived, WithMetadata(map[string]string{"k": "v"}))

	e, _ := r.GetEntry("a")
	e.Metadata["k"] = "mutated"
	e.Value = 99

	again, _ := r.GetEntry("a")
	assert.Equal(t, "v", again.Metadata["k"])
	assert.Equal(t, 1.0, again.Value)
}

func TestMetadataCopiedOnWrite(t *testing.T) {
	r := newTestRegistry(t)
	md := map[string]string{"units": "GeV"}
	_, _ = r.Set("a", 1, "s", StatusDerived, WithMetadata(md))
	md["units"] = "TeV"

	e, _ := r.GetEntry("a")
	assert.Equal(t, "GeV", e.Metadata["units"])
}

func TestPathsByPrefix(t *testing.T) {
	r := newTestRegistry(t)
	for _, p := range []string{"gauge.alpha_gut", "gauge.sin2w", "gaugeless", "higgs.mass"} {
		_, err := r.Set(p, 1, "s", StatusDerived)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"gauge.alpha_gut", "gauge.sin2w"}, r.Paths("gauge"))
	assert.Len(t, r.Paths(""), 4)
}

func TestReset(t *testing.T) {
	r := newTestRegistry(t, WithTolerance(Tolerance{Relative: 1e-3}))
	_, _ = r.Set("a", 1, "s", StatusDerived)
	_, _ = r.Set("a", 2, "s", StatusDerived)
	require.Len(t, r.Mismatches(), 1)

	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.History("a"))
	assert.Empty(t, r.Mismatches())
	assert.False(t, r.Has("a"))
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

// #endregion isolation-tests

// #region concurrency-tests
func TestConcurrentEstablishedRace(t *testing.T) {
	r := New()
	_, err := r.Set("x", 1, "seed", StatusEstablished)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := StatusDerived
			if i%2 == 0 {
				st = StatusEstablished
			}
			_, err := r.Set("x", float64(i), fmt.Sprintf("w%d", i), st)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrProtectedOverwrite)
				rejected++
			} else {
				accepted++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, accepted)
	assert.Equal(t, 25, rejected)
	assert.Len(t, r.History("x"), 26)
	e, _ := r.GetEntry("x")
	assert.Equal(t, StatusEstablished, e.Status)
}

func TestConcurrentWritesKeepTimestampOrder(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Set("t", float64(i), fmt.Sprintf("w%d", i), StatusDerived)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist := r.History("t")
	require.Len(t, hist, 100)
	for i := 1; i < len(hist); i++ {
		require.True(t, hist[i].Timestamp.After(hist[i-1].Timestamp),
			"record %d at %s is not after %s", i, hist[i].Timestamp, hist[i-1].Timestamp)
	}
	e, ok := r.GetEntry("t")
	require.True(t, ok)
	last := hist[len(hist)-1]
	assert.Equal(t, last.Value, e.Value)
	assert.Equal(t, last.Timestamp, e.UpdatedAt)
}

// #endregion concurrency-tests
