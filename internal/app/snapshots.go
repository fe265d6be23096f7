package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/engine"
	"github.com/blackwell-systems/simsnap/internal/output"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
)

var (
	restoreFlagYes   bool
	deleteAllFlagYes bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots <device> <app>",
	Short: "List an application's snapshots",
	Long: `List the snapshots of an application, newest first, with their size.

The # column can be used wherever a snapshot is expected, as can the
snapshot ID, its name, or the keyword latest.`,
	Example: `  simsnap snapshots "iPhone 15" com.example.app`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSnapshots,
}

var takeCmd = &cobra.Command{
	Use:   "take <device> <app>",
	Short: "Snapshot an application's Documents directory",
	Long: `Copy an application's Documents directory into a new snapshot and
verify the copy file by file.

If the copy does not match, the partial snapshot is removed. Quit the app
in the simulator first if files are being written.`,
	Example: `  simsnap take "iPhone 15" com.example.app`,
	Args:    cobra.ExactArgs(2),
	RunE:    runTake,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <device> <app> [snapshot-id | name | # | latest]",
	Short: "Replace an application's Documents with a snapshot",
	Long: `Replace an application's Documents directory with the contents of a
snapshot. The restored tree is verified and the restore is retried once
on mismatch.

Arguments:
  snapshot  ID, name, position from 'simsnap snapshots', or latest
            (default: latest)`,
	Example: `  simsnap restore "iPhone 15" com.example.app
  simsnap restore "iPhone 15" com.example.app 2
  simsnap restore "iPhone 15" com.example.app "logged in" --yes`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runRestore,
}

var deleteCmd = &cobra.Command{
	Use:     "delete <device> <app> <snapshot>",
	Short:   "Delete one snapshot",
	Example: `  simsnap delete "iPhone 15" com.example.app 20240315T101500.123Z`,
	Args:    cobra.ExactArgs(3),
	RunE:    runDelete,
}

var deleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every snapshot on every simulator",
	Long: `Delete the snapshots of every application on every simulator.

Applications whose paths can no longer be validated are skipped.`,
	Example: `  simsnap delete-all
  simsnap delete-all --yes`,
	Args: cobra.NoArgs,
	RunE: runDeleteAll,
}

var renameCmd = &cobra.Command{
	Use:   "rename <device> <app> <snapshot> <name>",
	Short: "Set a snapshot's display name",
	Long: `Set the name a snapshot is listed under. An empty name, or the
snapshot's own ID, restores the default.`,
	Example: `  simsnap rename "iPhone 15" com.example.app latest "logged in"
  simsnap rename "iPhone 15" com.example.app "logged in" ""`,
	Args: cobra.ExactArgs(4),
	RunE: runRename,
}

var sizeCmd = &cobra.Command{
	Use:     "size",
	Short:   "Show the combined size of all snapshots",
	Example: `  simsnap size`,
	Args:    cobra.NoArgs,
	RunE:    runSize,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreFlagYes, "yes", false, "Skip confirmation prompt")
	deleteAllCmd.Flags().BoolVar(&deleteAllFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(snapshotsCmd)
	RootCmd.AddCommand(takeCmd)
	RootCmd.AddCommand(restoreCmd)
	RootCmd.AddCommand(deleteCmd)
	RootCmd.AddCommand(deleteAllCmd)
	RootCmd.AddCommand(renameCmd)
	RootCmd.AddCommand(sizeCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	list, err := s.engine.ListSnapshots(app)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), sizeTimeout)
	defer cancel()
	st, err := s.engine.Await(ctx, func(st engine.State) bool {
		_, ok := st.Snapshots[app.ID]
		return ok && st.SnapshotSizesLoaded(app.ID)
	})
	if err != nil {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderSnapshotTable(list))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderSnapshotTable(snapshotValues(st.Snapshots[app.ID])))
	return nil
}

func runTake(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}

	var snap *snapshots.Snapshot
	err = s.runTracked(cmd, "Preparing", func() error {
		var err error
		snap, err = s.engine.TakeSnapshot(app)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %s of %s created\n", snap.Name(), app.Name)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	key := "latest"
	if len(args) == 3 {
		key = args[2]
	}
	snap, err := s.snapshot(app, key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !restoreFlagYes {
		prompt := fmt.Sprintf("Replace the Documents of %s with snapshot %s?", app.Name, snap.Name())
		if !confirm(cmd.InOrStdin(), out, prompt) {
			fmt.Fprintln(out, "Restore cancelled")
			return nil
		}
	}

	if err := s.runTracked(cmd, "Preparing", func() error {
		return s.engine.RestoreSnapshot(snap, app)
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Restored %s from snapshot %s\n", app.Name, snap.Name())
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	snap, err := s.snapshot(app, args[2])
	if err != nil {
		return err
	}
	if err := s.engine.DeleteSnapshot(snap, app); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted snapshot %s\n", snap.Name())
	return nil
}

func runDeleteAll(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if !deleteAllFlagYes {
		if !confirm(cmd.InOrStdin(), out, "Delete every snapshot on every simulator?") {
			fmt.Fprintln(out, "Delete cancelled")
			return nil
		}
	}

	spinner := output.NewSpinner("Deleting snapshots")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	n, err := s.engine.DeleteAllSnapshots()
	spinner.Stop()

	fmt.Fprintf(out, "Deleted %d snapshots\n", n)
	if err != nil {
		return fmt.Errorf("some snapshots could not be deleted: %w", err)
	}
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	snap, err := s.snapshot(app, args[2])
	if err != nil {
		return err
	}
	if err := s.engine.RenameSnapshot(snap, app, args[3]); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %s is now listed as %q\n", snap.ID, snap.Name())
	return nil
}

func runSize(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	before := s.engine.State().Version
	if err := s.engine.SnapshotsTotalSize(); err != nil {
		return fmt.Errorf("failed to compute snapshots size: %w", err)
	}

	spinner := output.NewSpinner("Computing snapshots size")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()

	ctx, cancel := context.WithTimeout(commandContext(cmd), sizeTimeout)
	defer cancel()
	st, err := s.engine.Await(ctx, func(st engine.State) bool {
		return st.Version > before && !st.AllSnapshotsSizeLoading
	})
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("failed to compute snapshots size: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "All snapshots: %s\n", output.RenderSize(st.AllSnapshotsSize))
	return nil
}
