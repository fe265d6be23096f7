package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// DailyFile is an io.Writer appending to <dir>/simsnap-YYYY-MM-DD.jsonl and
// switching files when the date changes.
type DailyFile struct {
	dir  string
	now  func() time.Time
	mu   sync.Mutex
	file *os.File
	day  string
}

// OpenDailyFile opens today's log file in dir, creating dir if needed.
func OpenDailyFile(dir string) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f := &DailyFile{dir: dir, now: time.Now}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openLocked(f.now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *DailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if day := f.now().Format(dayLayout); day != f.day {
		if err := f.openLocked(day); err != nil {
			return 0, err
		}
	}
	return f.file.Write(p)
}

// Close closes the current file.
func (f *DailyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *DailyFile) openLocked(day string) error {
	if f.file != nil {
		f.file.Close()
	}
	path := filepath.Join(f.dir, fileName(day))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	f.file = file
	f.day = day
	return nil
}

func fileName(day string) string {
	return "simsnap-" + day + ".jsonl"
}

// Prune removes daily log files older than retentionDays. Other files are
// left alone.
func Prune(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "simsnap-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		day, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, "simsnap-"), ".jsonl"))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
