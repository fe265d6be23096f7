package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/output"
)

var (
	pushPayload string
	pushHistory bool
	pushLimit   int
)

var pushCmd = &cobra.Command{
	Use:   "push <device> <app>",
	Short: "Send a push notification to an application",
	Long: `Send an APNs payload to an application with 'xcrun simctl push'.

The payload is a JSON object read from a file, or from stdin with
--payload -. Every attempt is recorded, successful or not; --history
lists them newest first.`,
	Example: `  simsnap push "iPhone 15" com.example.app --payload alert.json
  echo '{"aps":{"alert":"hi"}}' | simsnap push "iPhone 15" com.example.app --payload -
  simsnap push "iPhone 15" com.example.app --history`,
	Args: cobra.ExactArgs(2),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushPayload, "payload", "", "JSON payload file, or - for stdin")
	pushCmd.Flags().BoolVar(&pushHistory, "history", false, "List previous pushes instead of sending")
	pushCmd.Flags().IntVar(&pushLimit, "limit", 20, "Number of history entries to show")

	RootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	if !pushHistory && pushPayload == "" {
		return fmt.Errorf("--payload is required unless --history is set")
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := s.target(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if pushHistory {
		records, err := s.store.ListPushHistory(app.DeviceID, app.BundleID, pushLimit)
		if err != nil {
			return fmt.Errorf("failed to load push history: %w", err)
		}
		fmt.Fprint(out, output.RenderPushHistory(records))
		return nil
	}

	payload, err := readPayload(cmd.InOrStdin(), pushPayload)
	if err != nil {
		return err
	}
	rec, err := s.sim.PushAndRecord(commandContext(cmd), s.store, app.DeviceID, app.BundleID, payload)
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}

	fmt.Fprintf(out, "✓ Push sent to %s\n", app.BundleID)
	if rec.Output != "" {
		fmt.Fprintln(out, rec.Output)
	}
	return nil
}

func readPayload(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}
