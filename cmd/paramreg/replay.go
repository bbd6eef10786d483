package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/replay"
)

// errReplayDiverged is returned when a fixture replay does not reproduce
// the fixture's expected actions.
var errReplayDiverged = errors.New("replay diverged from fixture")

type replayOpts struct {
	fixture  string
	snapshot string
	record   bool
	jsonOut  bool
}

type replayOutput struct {
	Results []replay.Result `json:"results"`
	Summary replay.Summary  `json:"summary"`
}

func newReplayCmd(a *app) *cobra.Command {
	var o replayOpts
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run recorded writes through a fresh registry",
		Long: `Fixture mode replays the writes of a JSON fixture and checks each
outcome against the fixture's expected actions. Snapshot mode rebuilds the
provenance of an archived snapshot and replays it in timestamp order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.fixture != "" {
				return a.runFixtureMode(cmd.OutOrStdout(), o)
			}
			return a.runSnapshotMode(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.fixture, "fixture", "", "replay fixture JSON")
	f.StringVar(&o.snapshot, "snapshot", "", "archived snapshot whose provenance to replay")
	f.BoolVar(&o.record, "record", false, "log replay outcomes to the archive (snapshot mode)")
	f.BoolVar(&o.jsonOut, "json", false, "output results as JSON")
	cmd.MarkFlagsMutuallyExclusive("fixture", "snapshot")
	cmd.MarkFlagsOneRequired("fixture", "snapshot")
	return cmd
}

// #region fixture-mode
func (a *app) runFixtureMode(out io.Writer, o replayOpts) error {
	f, err := replay.LoadFixture(o.fixture)
	if err != nil {
		return err
	}
	reg := f.NewRegistry(
		registry.WithLogger(a.logger.Named("registry")),
		registry.WithObserver(a.metrics),
	)
	results := replay.Replay(reg, f.Writes)
	summary := replay.Summarize(results)

	if o.jsonOut {
		if err := printJSON(out, replayOutput{Results: results, Summary: summary}); err != nil {
			return err
		}
	} else {
		if f.Description != "" {
			fmt.Fprintf(out, "Fixture: %s\n\n", f.Description)
		}
		printReplay(out, results, f.ExpectedResults)
		printReplaySummary(out, summary)
	}

	diverged := 0
	for i, want := range f.ExpectedResults {
		if results[i].Action != want.Action {
			diverged++
		}
	}
	for p, want := range f.ExpectedValues {
		got, err := reg.Get(p)
		if err != nil || got != want {
			diverged++
			a.logger.Warn("final value differs from fixture",
				zap.String("path", p),
				zap.Float64("want", want),
				zap.Float64("got", got),
			)
		}
	}
	if diverged > 0 {
		return fmt.Errorf("%w: %d difference(s)", errReplayDiverged, diverged)
	}
	return nil
}

// #endregion fixture-mode

// #region snapshot-mode
func (a *app) runSnapshotMode(out io.Writer, o replayOpts) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	prov, err := store.LoadProvenance(o.snapshot)
	if err != nil {
		return err
	}
	writes := replay.FromProvenance(prov)
	if len(writes) == 0 {
		return fmt.Errorf("snapshot %s has no recorded provenance", o.snapshot)
	}

	results := replay.Replay(a.newRegistry(), writes)
	summary := replay.Summarize(results)

	if o.record {
		entries, err := replay.Entries(o.snapshot, writes, results)
		if err != nil {
			return err
		}
		if err := store.LogEntries(entries); err != nil {
			return err
		}
		a.logger.Info("replay outcomes recorded",
			zap.String("snapshot_id", o.snapshot),
			zap.Int("entries", len(entries)),
		)
	}

	if o.jsonOut {
		return printJSON(out, replayOutput{Results: results, Summary: summary})
	}
	printReplay(out, results, nil)
	printReplaySummary(out, summary)
	return nil
}

// #endregion snapshot-mode
