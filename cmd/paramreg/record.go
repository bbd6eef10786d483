package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRecordCmd(a *app) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Archive a parameter snapshot and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(params)
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

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SaveParameters(checked); err != nil {
				return err
			}
			if err := store.SaveProvenance(checked.SnapshotID, reg.ExportProvenance()); err != nil {
				return err
			}
			a.logger.Info("snapshot recorded",
				zap.String("snapshot_id", checked.SnapshotID),
				zap.Int("entries", len(checked.Parameters)),
			)
			fmt.Fprintln(cmd.OutOrStdout(), checked.SnapshotID)
			return nil
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "parameter snapshot JSON")
	_ = cmd.MarkFlagRequired("params")
	return cmd
}

func newActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <snapshot-id>",
		Short: "Point the active snapshot at an archived snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Activate(args[0]); err != nil {
				return err
			}
			a.logger.Info("snapshot activated", zap.String("snapshot_id", args[0]))
			return nil
		},
	}
}
