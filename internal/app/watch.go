package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/log"
	"github.com/blackwell-systems/simsnap/internal/output"
	"github.com/blackwell-systems/simsnap/internal/watcher"
)

var watchDebounce = watcher.DefaultDebounce

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the device root for simulator and app changes",
	Long: `Watch the device root and every simulator's container directories,
and re-run discovery when something changes.

Devices that are created or erased, and apps that are installed, removed or
reinstalled, are reported as they settle. Reinstalled apps get a new
container ID; snapshot commands re-bind to it by bundle identifier.

Press Ctrl+C to stop.`,
	Example: `  simsnap watch
  simsnap watch --debounce 2s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "Quiet period before changes are reported")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchUntil(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// watchUntil runs the watcher until ctx is done.
func watchUntil(ctx context.Context, out, errOut io.Writer) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.engine.ListDevices(); err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	w, err := watcher.New(s.cfg.DeviceRoot, func(changes []watcher.Change) {
		rediscover(s, out, changes)
	}, watcher.WithDebounce(watchDebounce), watcher.WithLogger(log.Logger()))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	spinner := output.NewSpinner("Starting watcher")
	spinner.SetWriter(errOut)
	spinner.Start()
	if err := w.Start(); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ Watching %s (%d directories)", s.cfg.DeviceRoot, len(w.Watched())))

	<-ctx.Done()
	fmt.Fprintln(out, "Stopping watcher")
	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	return nil
}

// rediscover prints a change batch and re-publishes the affected devices
// and their applications.
func rediscover(s *session, out io.Writer, changes []watcher.Change) {
	affected := map[string]bool{}
	for _, c := range changes {
		device := c.DeviceID
		if device == "" {
			device = "-"
		} else {
			affected[c.DeviceID] = true
		}
		fmt.Fprintf(out, "%-6s %-36s %s\n", c.Op, device, c.Path)
	}

	devices, err := s.engine.ListDevices()
	if err != nil {
		log.Warn("rediscovery failed", "error", err)
		return
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, dev := range devices {
			if dev.ID != id {
				continue
			}
			apps, err := s.engine.ListApplications(dev)
			if err != nil {
				log.Warn("failed to list applications", "device", dev.ID, "error", err)
				continue
			}
			fmt.Fprintf(out, "%s: %d applications\n", dev.Name, len(apps))
		}
	}
}
