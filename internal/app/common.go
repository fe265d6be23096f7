package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/config"
	"github.com/blackwell-systems/simsnap/internal/engine"
	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/log"
	"github.com/blackwell-systems/simsnap/internal/output"
	"github.com/blackwell-systems/simsnap/internal/simctl"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
	"github.com/blackwell-systems/simsnap/internal/store"
)

// simRunner runs xcrun and the folder opener. Nil uses os/exec; tests swap
// in a fake.
var simRunner simctl.Runner

// session is everything one command invocation needs: config, database,
// resolver and a running engine.
type session struct {
	cfg    *config.Config
	store  *store.Store
	inv    *inventory.Resolver
	sim    *simctl.Client
	engine *engine.Engine

	stop context.CancelFunc
	done chan struct{}
}

// openSession loads the config, initializes logging, opens the database and
// starts the engine. Close must be called when done.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := log.Init(log.Options{
		Verbose:       cfg.Log.Verbose,
		JSON:          cfg.Log.JSON,
		Dir:           cfg.Log.Dir,
		RetentionDays: cfg.Log.RetentionDays,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	for _, w := range cfg.Warnings {
		log.Warn("ignoring config value", "detail", w)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger := log.Logger()
	opts := []inventory.Option{inventory.WithLogger(logger)}
	if len(cfg.SystemAppDirs) > 0 {
		opts = append(opts, inventory.WithSystemAppDirs(cfg.SystemAppDirs))
	}
	inv := inventory.New(cfg.DeviceRoot, st, opts...)
	sim := simctl.New(simRunner)

	e := engine.New(engine.Config{
		Inventory:   inv,
		Pins:        st,
		Names:       st,
		Opener:      sim,
		Workers:     cfg.Workers,
		SettleDelay: cfg.SettleDelay,
		RetryPause:  cfg.RetryPause,
		MessageTTL:  cfg.MessageTTL,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cfg:    cfg,
		store:  st,
		inv:    inv,
		sim:    sim,
		engine: e,
		stop:   cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		e.Run(ctx)
	}()

	log.Debug("session opened", "device_root", cfg.DeviceRoot, "db", cfg.DBPath)
	return s, nil
}

// Close stops the engine and releases the database and log file.
func (s *session) Close() {
	s.stop()
	<-s.done
	s.engine.Close()
	s.store.Close()
	log.Close()
}

// device resolves a device by UDID or display name.
func (s *session) device(key string) (*inventory.Device, error) {
	dev, err := s.inv.FindDevice(key)
	if err != nil {
		return nil, fmt.Errorf("failed to find device %q: %w", key, err)
	}
	return dev, nil
}

// application resolves an application of dev by bundle identifier,
// container ID or display name. The device's list is published as a side
// effect.
func (s *session) application(dev *inventory.Device, key string) (*inventory.Application, error) {
	apps, err := s.engine.ListApplications(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	app, ok := inventory.LookupApplication(apps, key)
	if !ok {
		return nil, snaperr.New(snaperr.KindNotFound, "find application", key, nil)
	}
	return app, nil
}

// target resolves the device and application named by the first two args.
func (s *session) target(args []string) (*inventory.Application, error) {
	dev, err := s.device(args[0])
	if err != nil {
		return nil, err
	}
	return s.application(dev, args[1])
}

// snapshot resolves one of app's snapshots.
func (s *session) snapshot(app *inventory.Application, key string) (*snapshots.Snapshot, error) {
	list, err := s.engine.ListSnapshots(app)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	snap, ok := findSnapshot(list, key)
	if !ok {
		return nil, snaperr.New(snaperr.KindNotFound, "find snapshot", key, nil)
	}
	return snap, nil
}

// findSnapshot matches key against "latest", snapshot ID, display name and
// the 1-based position in list, in that order. list is newest first.
func findSnapshot(list []*snapshots.Snapshot, key string) (*snapshots.Snapshot, bool) {
	if len(list) == 0 {
		return nil, false
	}
	if strings.EqualFold(key, "latest") {
		return list[0], true
	}
	for _, snap := range list {
		if snap.ID == key {
			return snap, true
		}
	}
	for _, snap := range list {
		if strings.EqualFold(snap.Name(), key) {
			return snap, true
		}
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(list) {
		return list[n-1], true
	}
	return nil, false
}

// runTracked runs a snapshot operation while drawing the engine's published
// progress on stderr.
func (s *session) runTracked(cmd *cobra.Command, phase string, fn func() error) error {
	bar := output.NewProgress(phase)
	bar.SetWriter(cmd.ErrOrStderr())

	updates, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case st := <-updates:
				if op := st.Operation; op.Running() {
					bar.Update(op.Fraction, op.Phase)
				}
			case <-stop:
				return
			}
		}
	}()

	err := fn()
	close(stop)
	wg.Wait()
	if err == nil {
		bar.Update(1, "Done")
	}
	bar.Finish()
	return err
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything other than "y" or "yes" declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// applicationValues converts published applications for rendering.
func applicationValues(apps []inventory.Application) []*inventory.Application {
	ptrs := make([]*inventory.Application, len(apps))
	for i := range apps {
		ptrs[i] = &apps[i]
	}
	return ptrs
}

// snapshotValues converts published snapshots for rendering.
func snapshotValues(list []snapshots.Snapshot) []*snapshots.Snapshot {
	ptrs := make([]*snapshots.Snapshot, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	return ptrs
}

// commandContext returns cmd's context, or Background when the command was
// invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
