// Package sizer computes directory sizes off the caller's goroutine.
//
// Every request re-walks its tree; nothing is cached. Results come back as
// (scope, id, size) tuples on a channel so that a single owner can apply
// them and drop results for ids it no longer tracks.
package sizer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// Scope tells the consumer which kind of record a result belongs to.
type Scope string

const (
	ScopeApplication  Scope = "application"
	ScopeSnapshot     Scope = "snapshot"
	ScopeAllSnapshots Scope = "all_snapshots"
)

// Request asks for the size of Path on behalf of record ID.
type Request struct {
	Scope Scope
	ID    string
	Path  string
	Paths []string // summed instead of Path when non-empty
}

// Result is the outcome of one Request.
type Result struct {
	Scope Scope
	ID    string
	Size  int64
	Err   error
}

// ComputeSize returns the total size in bytes of the regular files under
// path. Entries that cannot be read or stat'ed are skipped; the only error
// is an unreadable path.
func ComputeSize(path string) (int64, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, snaperr.New(snaperr.KindIO, "compute size", path, err)
	}
	if !fi.IsDir() {
		if fi.Mode().IsRegular() {
			return fi.Size(), nil
		}
		return 0, nil
	}
	if _, err := os.ReadDir(path); err != nil {
		return 0, snaperr.New(snaperr.KindIO, "compute size", path, err)
	}

	var total int64
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != path {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, nil
}

// TotalSize sums ComputeSize over paths in parallel. Missing paths count as
// zero.
func TotalSize(ctx context.Context, paths []string, workers int) (int64, error) {
	sizes := make([]int64, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := ComputeSize(p)
			if err != nil {
				return nil
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range sizes {
		total += n
	}
	return total, nil
}

// Aggregator runs size requests on a bounded pool of goroutines.
type Aggregator struct {
	sem     *semaphore.Weighted
	results chan Result
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// DefaultWorkers bounds concurrent tree walks.
const DefaultWorkers = 4

// NewAggregator creates an Aggregator running at most workers walks at once.
func NewAggregator(workers int) *Aggregator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Aggregator{
		sem:     semaphore.NewWeighted(int64(workers)),
		results: make(chan Result, 64),
	}
}

// Results delivers one Result per submitted request. It is closed by Close.
func (a *Aggregator) Results() <-chan Result {
	return a.results
}

// Submit schedules req and returns immediately. Requests submitted after
// Close, or whose ctx is cancelled before a worker frees up, are dropped.
func (a *Aggregator) Submit(ctx context.Context, req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return
		}
		res := run(req)
		a.sem.Release(1)

		select {
		case a.results <- res:
		case <-ctx.Done():
		}
	}()
}

// Close waits for in-flight requests and closes the results channel. The
// results channel must still be drained while Close runs.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	close(a.results)
}

func run(req Request) Result {
	res := Result{Scope: req.Scope, ID: req.ID}
	if len(req.Paths) > 0 {
		res.Size, res.Err = TotalSize(context.Background(), req.Paths, 1)
		return res
	}
	res.Size, res.Err = ComputeSize(req.Path)
	return res
}
