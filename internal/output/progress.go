package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar displays an operation's fraction and current phase.
// Example: [=========>          ]  45% Copying documents
type ProgressBar struct {
	fraction float64
	phase    string
	width    int
	mu       sync.Mutex
	writer   io.Writer
	lastLine string
}

// NewProgress creates a new progress bar writing to stderr.
func NewProgress(phase string) *ProgressBar {
	return &ProgressBar{
		phase:  phase,
		width:  30,
		writer: os.Stderr,
	}
}

// SetWidth sets the width of the bar in characters.
func (p *ProgressBar) SetWidth(width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
}

// SetWriter sets the output writer (useful for testing).
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Update sets the fraction (0..1) and phase and redraws the bar. A fraction
// lower than the current one is ignored.
func (p *ProgressBar) Update(fraction float64, phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fraction > 1 {
		fraction = 1
	}
	if fraction > p.fraction {
		p.fraction = fraction
	}
	if phase != "" {
		p.phase = phase
	}
	p.render()
}

// Finish ends the bar's line. On a TTY the bar is left at its last state.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writerIsTTY(p.writer) {
		fmt.Fprintln(p.writer)
	}
}

// render draws the bar (must be called with lock held). On a non-TTY writer
// each distinct phase is printed once instead of redrawing.
func (p *ProgressBar) render() {
	percentage := int(p.fraction * 100)
	filled := int(p.fraction * float64(p.width))

	bar := strings.Builder{}
	bar.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteString("=")
		case i == filled-1:
			bar.WriteString(">")
		default:
			bar.WriteString(" ")
		}
	}
	bar.WriteString("]")

	if writerIsTTY(p.writer) {
		// Pad to clear a longer previous phase.
		line := fmt.Sprintf("%s %3d%% %s", bar.String(), percentage, p.phase)
		pad := len(p.lastLine) - len(line)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(p.writer, "\r%s%s", line, strings.Repeat(" ", pad))
		p.lastLine = line
		return
	}

	line := fmt.Sprintf("%3d%% %s", percentage, p.phase)
	if p.phase != p.lastLine {
		fmt.Fprintln(p.writer, line)
		p.lastLine = p.phase
	}
}

// Spinner displays an animated spinner with a message.
// Example: |  Computing sizes...
type Spinner struct {
	message string
	running bool
	chars   []string
	mu      sync.Mutex
	writer  io.Writer
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSpinner creates a new spinner writing to stderr. If the writer is not a
// TTY, the animation goroutine is skipped and the message is printed once.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
		done:    make(chan struct{}),
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		idx := 0
		for {
			select {
			case <-s.ticker.C:
				s.mu.Lock()
				if !s.running {
					s.mu.Unlock()
					return
				}
				fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.message)
				idx = (idx + 1) % len(s.chars)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
	}
}

// UpdateMessage updates the spinner message while it's running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// StopWithMessage stops the spinner and prints a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}
