package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/output"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List simulators with installed apps",
	Long: `List the simulators under the device root that have at least one
installed application.

Pinned devices come first (marked with *), then devices by name.`,
	Example: `  simsnap devices
  simsnap devices --root /tmp/Devices`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var pinCmd = &cobra.Command{
	Use:   "pin <device>",
	Short: "Pin a simulator to the top of the device list",
	Long: `Pin a simulator so it is listed before unpinned ones.

The device may be given by UDID or display name.`,
	Example: `  simsnap pin "iPhone 15"
  simsnap pin 3F2B0C1D-0000-4000-8000-000000000001`,
	Args: cobra.ExactArgs(1),
	RunE: runPin,
}

var unpinCmd = &cobra.Command{
	Use:     "unpin <device>",
	Short:   "Unpin a simulator",
	Example: `  simsnap unpin "iPhone 15"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runUnpin,
}

func init() {
	RootCmd.AddCommand(devicesCmd)
	RootCmd.AddCommand(pinCmd)
	RootCmd.AddCommand(unpinCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	devices, err := s.engine.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderDeviceTable(devices))
	return nil
}

func runPin(cmd *cobra.Command, args []string) error {
	return setPinned(cmd, args[0], true)
}

func runUnpin(cmd *cobra.Command, args []string) error {
	return setPinned(cmd, args[0], false)
}

func setPinned(cmd *cobra.Command, key string, pinned bool) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	dev, err := s.device(key)
	if err != nil {
		return err
	}
	if err := s.engine.SetPinned(dev.ID, pinned); err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}

	verb := "Pinned"
	if !pinned {
		verb = "Unpinned"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, dev.Name, dev.ID)
	return nil
}
