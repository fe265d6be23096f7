// Package simctl wraps the external tools simsnap shells out to: xcrun
// simctl for push notifications and the platform's folder opener.
package simctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/blackwell-systems/simsnap/internal/store"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Client invokes simulator tooling.
type Client struct {
	runner Runner
	goos   string
	now    func() time.Time
}

// New creates a Client. A nil runner uses ExecRunner.
func New(r Runner) *Client {
	if r == nil {
		r = ExecRunner{}
	}
	return &Client{runner: r, goos: runtime.GOOS, now: time.Now}
}

// Push delivers an APNs payload to bundleID on the booted or named device
// via `xcrun simctl push`. The payload must be a JSON object. The tool's
// output is returned as-is.
func (c *Client) Push(ctx context.Context, deviceID, bundleID string, payload []byte) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", fmt.Errorf("payload is not a JSON object: %w", err)
	}

	f, err := os.CreateTemp("", "simsnap-push-*.apns")
	if err != nil {
		return "", fmt.Errorf("failed to create payload file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write payload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write payload file: %w", err)
	}

	output, err := c.runner.Run(ctx, "xcrun", "simctl", "push", deviceID, bundleID, f.Name())
	out := strings.TrimSpace(string(output))
	if err != nil {
		return out, fmt.Errorf("simctl push %s failed: %w (output: %s)", bundleID, err, out)
	}
	return out, nil
}

// PushRecorder persists push attempts.
type PushRecorder interface {
	InsertPushRecord(rec *store.PushRecord) (int64, error)
}

// PushAndRecord pushes payload and appends the outcome to history, whether
// or not the push succeeded. The push error, if any, is returned after the
// record is stored.
func (c *Client) PushAndRecord(ctx context.Context, history PushRecorder, deviceID, bundleID string, payload []byte) (*store.PushRecord, error) {
	output, pushErr := c.Push(ctx, deviceID, bundleID, payload)
	rec := &store.PushRecord{
		DeviceID: deviceID,
		BundleID: bundleID,
		Payload:  string(payload),
		Success:  pushErr == nil,
		Output:   output,
		SentAt:   c.now(),
	}
	if pushErr != nil && output == "" {
		rec.Output = pushErr.Error()
	}

	id, err := history.InsertPushRecord(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to record push: %w", err)
	}
	rec.ID = id
	return rec, pushErr
}

// OpenFolder reveals path in the platform's file manager.
func (c *Client) OpenFolder(ctx context.Context, path string) error {
	name := "xdg-open"
	if c.goos == "darwin" {
		name = "open"
	}
	output, err := c.runner.Run(ctx, name, path)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w (output: %s)", name, path, err, strings.TrimSpace(string(output)))
	}
	return nil
}
