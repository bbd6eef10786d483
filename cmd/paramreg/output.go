package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/replay"
	"github.com/danielpatrickdp/paramreg/internal/report"
)

const timeLayout = "2006-01-02T15:04:05Z"

// #region report-output
func printReport(out io.Writer, rep report.ValidationReport) {
	fmt.Fprintf(out, "Report:     %s\n", rep.ReportID)
	fmt.Fprintf(out, "Snapshot:   %s\n", rep.SnapshotID)
	fmt.Fprintf(out, "Generated:  %s\n", rep.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(out, "Status:     %s\n", rep.OverallStatus)
	fmt.Fprintf(out, "Chi2:       %.4f (dof %d, p = %.4g)\n", rep.TotalChiSquare, rep.DegreesOfFreedom, rep.PValue)
	fmt.Fprintf(out, "Tiers:      %d pass, %d tension, %d warning, %d fail, %d unscored\n\n",
		rep.NPass, rep.NTension, rep.NWarning, rep.NFail, rep.NUnscored)

	if len(rep.Results) > 0 {
		fmt.Fprintf(out, "%-28s  %12s  %12s  %10s  %7s  %-8s  %s\n",
			"Path", "Computed", "Experiment", "Sigma_exp", "Dev", "Tier", "Source")
		fmt.Fprintf(out, "%-28s+-%12s+-%12s+-%10s+-%7s+-%-8s+-%s\n",
			strings.Repeat("-", 28), "------------", "------------", "----------", "-------", "--------", "----------")
		for _, r := range rep.Results {
			fmt.Fprintf(out, "%-28s  %12.6g  %12.6g  %10s  %7s  %-8s  %s\n",
				r.Path, r.ComputedValue, r.ExperimentalValue,
				fmtPtr(r.UncertaintyUsed, "%.4g"), fmtPtr(r.SigmaDeviation, "%.2f"), r.Tier, r.Source)
		}
	}

	if len(rep.Groups) > 0 {
		fmt.Fprintln(out, "\nCorrelation groups:")
		for _, g := range rep.Groups {
			if g.Unscoreable {
				fmt.Fprintf(out, "  %-16s unscoreable [%s] %s\n", g.Name, g.Code, g.Reason)
				continue
			}
			fmt.Fprintf(out, "  %-16s chi2 %.4f  dof %d  p %.4g\n", g.Name, g.ChiSquare, g.DegreesOfFreedom, g.PValue)
		}
	}
	printList(out, "Unconstrained", rep.Unconstrained)
	printList(out, "Conflicts", rep.Conflicts)
	printList(out, "Recommendations", rep.Recommendations)
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(out, "  - %s\n", it)
	}
}

// #endregion report-output

// #region parameter-output
func printParameters(out io.Writer, snap registry.ParametersSnapshot, prov registry.ProvenanceSnapshot) {
	fmt.Fprintf(out, "%-28s  %-24s  %-14s  %-11s  %5s  %s\n",
		"Path", "Value", "Uncertainty", "Status", "Hist", "Source")
	fmt.Fprintf(out, "%-28s+-%-24s+-%-14s+-%-11s+-%5s+-%s\n",
		strings.Repeat("-", 28), strings.Repeat("-", 24), "--------------", "-----------", "-----", "----------")
	for _, p := range snap.Paths() {
		e, _ := snap.Entry(p)
		value := fmt.Sprintf("%.6g", e.Value)
		if e.IsVector() {
			parts := make([]string, len(e.Vector))
			for i, v := range e.Vector {
				parts[i] = fmt.Sprintf("%.4g", v)
			}
			value = "[" + strings.Join(parts, " ") + "]"
		}
		unc := "—"
		if u := e.Uncertainty; u != nil {
			if u.IsSymmetric() {
				unc = fmt.Sprintf("±%.4g", u.Upper)
			} else {
				unc = fmt.Sprintf("-%.3g/+%.3g", u.Lower, u.Upper)
			}
		}
		fmt.Fprintf(out, "%-28s  %-24s  %-14s  %-11s  %5d  %s\n",
			p, value, unc, e.Status, len(prov.Provenance[p]), e.Source)
	}
}

// #endregion parameter-output

// #region replay-output
func printReplay(out io.Writer, results []replay.Result, expected []replay.FixtureExpectedResult) {
	fmt.Fprintf(out, "%4s  %-28s  %-9s  %-9s  %s\n", "#", "Path", "Action", "Expected", "Reason")
	fmt.Fprintf(out, "%4s+-%-28s+-%-9s+-%-9s+-%s\n",
		"----", strings.Repeat("-", 28), "---------", "---------", "--------------------")
	for _, r := range results {
		want := "—"
		mark := ""
		if r.Index < len(expected) {
			want = expected[r.Index].Action
			if want != r.Action {
				mark = "  <-- MISMATCH"
			}
		}
		fmt.Fprintf(out, "%4d  %-28s  %-9s  %-9s  %s%s\n", r.Index, r.Path, r.Action, want, r.Reason, mark)
	}
}

func printReplaySummary(out io.Writer, s replay.Summary) {
	fmt.Fprintf(out, "\n%d writes: %d created, %d updated, %d mismatch, %d rejected, %d invalid\n",
		s.TotalWrites, s.Created, s.Updated, s.Mismatches, s.Rejected, s.Invalid)
}

// #endregion replay-output

// #region metrics-output
// printMetrics writes every gathered sample as name{labels} value.
func printMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name, labels := mf.GetName(), formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(out, "%s%s %g\n", name, labels, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				fmt.Fprintf(out, "%s%s %g\n", name, labels, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				fmt.Fprintf(out, "%s_count%s %d\n", name, labels, h.GetSampleCount())
				fmt.Fprintf(out, "%s_sum%s %g\n", name, labels, h.GetSampleSum())
			}
		}
	}
	return nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// #endregion metrics-output

// #region helpers
func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func fmtPtr(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// #endregion helpers
