package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/report"
)

func TestRegistryCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())
	reg := registry.New(registry.WithObserver(c))

	_, err := reg.Set("x", 10, "pdg", registry.StatusEstablished)
	require.NoError(t, err)
	_, err = reg.Set("x", 12, "fit", registry.StatusDerived)
	require.Error(t, err)
	_, err = reg.Set("y", 1, "fit", registry.StatusDerived)
	require.NoError(t, err)
	_, err = reg.Set("y", 2, "fit", registry.StatusDerived)
	require.NoError(t, err)
	reg.Reset()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("ESTABLISHED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.writes.WithLabelValues("DERIVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("DERIVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mismatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resets))
}

func TestReportGauges(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.ReportGenerated(report.ValidationReport{
		NPass:          3,
		NFail:          1,
		NUnscored:      2,
		TotalChiSquare: 12.5,
		PValue:         0.01,
	}, 5*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.reportResults.WithLabelValues("PASS")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.reportResults.WithLabelValues("TENSION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reportResults.WithLabelValues("FAIL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.reportResults.WithLabelValues("UNSCORED")))
	assert.Equal(t, 12.5, testutil.ToFloat64(c.reportChi2))
	assert.Equal(t, 0.01, testutil.ToFloat64(c.reportPValue))
	assert.Equal(t, 1, testutil.CollectAndCount(c.reportDuration))
}

func TestExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.MismatchDetected("a.b")

	expected := `
# HELP paramreg_mismatches_total Overwrites that moved a value beyond tolerance
# TYPE paramreg_mismatches_total counter
paramreg_mismatches_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "paramreg_mismatches_total"))
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
