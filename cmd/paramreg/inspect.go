package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/paramreg/internal/archive"
	"github.com/danielpatrickdp/paramreg/internal/registry"
)

type inspectOpts struct {
	last     int
	snapshot string
	report   string
	jsonOut  bool
}

func newInspectCmd(a *app) *cobra.Command {
	var o inspectOpts
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List archived snapshots and reports, or show one in detail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case o.report != "":
				return runReportDetail(out, store, o.report, o.jsonOut)
			case o.snapshot != "":
				return runSnapshotDetail(out, store, o.snapshot, o.jsonOut)
			}
			return runListMode(out, store, o.last, o.jsonOut)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.last, "last", 20, "show N most recent snapshots and reports")
	f.StringVar(&o.snapshot, "snapshot", "", "show one archived snapshot")
	f.StringVar(&o.report, "report", "", "show one archived report")
	f.BoolVar(&o.jsonOut, "json", false, "output as JSON instead of tables")
	cmd.MarkFlagsMutuallyExclusive("snapshot", "report")
	return cmd
}

// #region list-mode

type listOutput struct {
	Snapshots []archive.SnapshotRecord `json:"snapshots"`
	Reports   []archive.ReportRecord   `json:"reports"`
}

func runListMode(out io.Writer, store *archive.Store, last int, jsonOut bool) error {
	snaps, err := store.ListSnapshots(last)
	if err != nil {
		return err
	}
	reports, err := store.ListReports(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out, listOutput{Snapshots: snaps, Reports: reports})
	}
	if len(snaps) == 0 {
		fmt.Fprintln(out, "no snapshots archived")
		return nil
	}

	fmt.Fprintf(out, "%-12s  %-12s  %7s  %s\n", "Snapshot", "Parent", "Entries", "Exported")
	fmt.Fprintf(out, "%-12s+-%-12s+-%7s+-%s\n", "------------", "------------", "-------", "--------------------")
	for _, s := range snaps {
		fmt.Fprintf(out, "%-12s  %-12s  %7d  %s\n",
			shortID(s.SnapshotID), orDash(shortID(s.ParentID)), s.EntryCount, s.ExportedAt.Format(timeLayout))
	}

	if len(reports) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\n%-12s  %-12s  %-8s  %10s  %4s  %8s  %s\n",
		"Report", "Snapshot", "Status", "Chi2", "DoF", "p", "Generated")
	fmt.Fprintf(out, "%-12s+-%-12s+-%-8s+-%10s+-%4s+-%8s+-%s\n",
		"------------", "------------", "--------", "----------", "----", "--------", "--------------------")
	for _, r := range reports {
		fmt.Fprintf(out, "%-12s  %-12s  %-8s  %10.4f  %4d  %8.4f  %s\n",
			shortID(r.ReportID), shortID(r.SnapshotID), r.OverallStatus,
			r.TotalChiSquare, r.DegreesOfFreedom, r.PValue, r.GeneratedAt.Format(timeLayout))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type snapshotDetail struct {
	Snapshot   registry.ParametersSnapshot  `json:"snapshot"`
	Provenance map[string][]registry.Record `json:"provenance"`
}

func runSnapshotDetail(out io.Writer, store *archive.Store, id string, jsonOut bool) error {
	snap, err := store.GetParameters(id)
	if err != nil {
		return err
	}
	prov, err := store.LoadProvenance(id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out, snapshotDetail{Snapshot: snap, Provenance: prov.Provenance})
	}

	fmt.Fprintf(out, "Snapshot:   %s\n", snap.SnapshotID)
	fmt.Fprintf(out, "Exported:   %s\n", snap.ExportedAt.Format(timeLayout))
	fmt.Fprintf(out, "Entries:    %d\n\n", len(snap.Parameters))
	printParameters(out, snap, prov)
	return nil
}

func runReportDetail(out io.Writer, store *archive.Store, id string, jsonOut bool) error {
	rep, err := store.GetReport(id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out, rep)
	}
	printReport(out, rep)
	return nil
}

// #endregion detail-mode
