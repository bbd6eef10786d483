package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/paramreg/internal/archive"
	"github.com/danielpatrickdp/paramreg/internal/dataset"
	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/report"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// errThreshold is returned when --fail-on trips, so main exits non-zero
// after the report has been printed.
var errThreshold = errors.New("validation threshold exceeded")

type validateOpts struct {
	params   string
	datasets []string
	rules    string
	archive  bool
	jsonOut  bool
	failOn   string
}

func newValidateCmd(a *app) *cobra.Command {
	var o validateOpts
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Score a parameter snapshot against experimental datasets",
		Long: `Loads a parameter snapshot (a JSON export, or the active archived
snapshot when --params is omitted), checks it through the registry, and
scores every DERIVED and PREDICTED entry against the datasets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.params, "params", "", "parameter snapshot JSON")
	f.StringSliceVar(&o.datasets, "dataset", nil, "dataset file relative to the dataset root (repeatable; default: all)")
	f.StringVar(&o.rules, "rules", "", "recommendation rules YAML (overrides PARAMREG_RULES)")
	f.BoolVar(&o.archive, "archive", false, "archive the snapshot and report")
	f.BoolVar(&o.jsonOut, "json", false, "output the report as JSON")
	f.StringVar(&o.failOn, "fail-on", "", "exit non-zero when the overall status is at least this tier")
	return cmd
}

func (a *app) runValidate(cmd *cobra.Command, o validateOpts) error {
	var failOn stats.Tier
	if o.failOn != "" {
		t, err := stats.ParseTier(o.failOn)
		if err != nil {
			return err
		}
		failOn = t
	}

	var store *archive.Store
	if o.archive || o.params == "" {
		s, err := a.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	fromArchive := o.params == ""
	var snap registry.ParametersSnapshot
	var err error
	if fromArchive {
		snap, err = store.LatestParameters()
	} else {
		snap, err = loadSnapshot(o.params)
	}
	if err != nil {
		return err
	}

	reg := a.newRegistry()
	if err := reg.Import(snap); err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	checked := reg.ExportParameters()
	if snap.SnapshotID != "" {
		checked.SnapshotID = snap.SnapshotID
	}
	if !snap.ExportedAt.IsZero() {
		checked.ExportedAt = snap.ExportedAt
	}

	constraints, groups, err := a.loadDatasets(o.datasets)
	if err != nil {
		return err
	}

	rules, err := a.loadRules(o.rules)
	if err != nil {
		return err
	}
	reporter, err := report.NewReporter(
		report.Config{Rules: rules, CombineUncertainties: a.cfg.CombineUncertainties},
		report.WithLogger(a.logger.Named("report")),
		report.WithObserver(a.metrics),
	)
	if err != nil {
		return err
	}
	rep := reporter.Generate(checked, constraints, groups)

	if o.archive {
		if !fromArchive {
			if err := store.SaveParameters(checked); err != nil {
				return err
			}
			if err := store.SaveProvenance(checked.SnapshotID, reg.ExportProvenance()); err != nil {
				return err
			}
		}
		if err := store.SaveReport(rep); err != nil {
			return err
		}
		a.logger.Info("report archived",
			zap.String("report_id", rep.ReportID),
			zap.String("snapshot_id", rep.SnapshotID),
		)
	}

	out := cmd.OutOrStdout()
	if o.jsonOut {
		if err := printJSON(out, rep); err != nil {
			return err
		}
	} else {
		printReport(out, rep)
	}

	if failOn != "" && rep.OverallStatus.AtLeast(failOn) {
		return fmt.Errorf("%w: overall status %s", errThreshold, rep.OverallStatus)
	}
	return nil
}

// loadSnapshot reads a ParametersSnapshot JSON export.
func loadSnapshot(path string) (registry.ParametersSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return registry.ParametersSnapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var snap registry.ParametersSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return registry.ParametersSnapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if len(snap.Parameters) == 0 {
		return registry.ParametersSnapshot{}, fmt.Errorf("snapshot %s has no parameters", path)
	}
	return snap, nil
}

// loadDatasets loads the named datasets, or every dataset under the root
// when names is empty, and concatenates their constraints and groups.
func (a *app) loadDatasets(names []string) ([]dataset.ExperimentalConstraint, []*stats.CorrelationGroup, error) {
	acc := dataset.NewOSAccessor(a.cfg.DatasetRoot, dataset.WithLogger(a.logger.Named("dataset")))
	if len(names) == 0 {
		listed, err := acc.List(".")
		if err != nil {
			return nil, nil, err
		}
		if len(listed) == 0 {
			return nil, nil, fmt.Errorf("no datasets under %s", a.cfg.DatasetRoot)
		}
		names = listed
	}
	sets, err := acc.LoadAll(names...)
	if err != nil {
		return nil, nil, err
	}
	var constraints []dataset.ExperimentalConstraint
	var groups []*stats.CorrelationGroup
	for _, ds := range sets {
		constraints = append(constraints, ds.Constraints()...)
		groups = append(groups, ds.Groups()...)
	}
	return constraints, groups, nil
}

func (a *app) loadRules(flagPath string) ([]report.Rule, error) {
	path := flagPath
	if path == "" {
		path = a.cfg.RulesPath
	}
	if path == "" {
		return nil, nil
	}
	return report.LoadRules(path)
}
