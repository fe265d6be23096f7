package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/engine"
	"github.com/blackwell-systems/simsnap/internal/output"
)

// sizeTimeout bounds how long list commands wait for background sizes
// before printing what they have.
const sizeTimeout = 2 * time.Minute

var appsNoSizes bool

var appsCmd = &cobra.Command{
	Use:   "apps <device>",
	Short: "List the applications installed on a simulator",
	Long: `List the applications installed on a simulator with the size of their
Documents directory.

Applications without a matched data container show "no data"; snapshot
commands are unavailable for them.`,
	Example: `  simsnap apps "iPhone 15"
  simsnap apps "iPhone 15" --no-sizes`,
	Args: cobra.ExactArgs(1),
	RunE: runApps,
}

var openCmd = &cobra.Command{
	Use:   "open <device> <app>",
	Short: "Open an application's Documents folder",
	Long: `Reveal an application's Documents folder in the file manager.

The folder is created if the data container exists but Documents does not.
The app may be given by bundle identifier, container ID or name.`,
	Example: `  simsnap open "iPhone 15" com.example.app`,
	Args:    cobra.ExactArgs(2),
	RunE:    runOpen,
}

func init() {
	appsCmd.Flags().BoolVar(&appsNoSizes, "no-sizes", false, "Print without waiting for documents sizes")

	RootCmd.AddCommand(appsCmd)
	RootCmd.AddCommand(openCmd)
}

func runApps(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	dev, err := s.device(args[0])
	if err != nil {
		return err
	}
	apps, err := s.engine.ListApplications(dev)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	if appsNoSizes {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderApplicationTable(apps))
		return nil
	}

	spinner := output.NewSpinner("Computing documents sizes")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()

	ctx, cancel := context.WithTimeout(commandContext(cmd), sizeTimeout)
	defer cancel()
	st, err := s.engine.Await(ctx, func(st engine.State) bool {
		_, ok := st.Applications[dev.ID]
		return ok && st.ApplicationSizesLoaded(dev.ID)
	})
	spinner.Stop()
	if err != nil {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderApplicationTable(apps))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderApplicationTable(applicationValues(st.Applications[dev.ID])))
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	if err := s.engine.OpenDocumentsFolder(commandContext(cmd), app); err != nil {
		return fmt.Errorf("failed to open documents folder: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Opened Documents of %s\n", app.Name)
	return nil
}
