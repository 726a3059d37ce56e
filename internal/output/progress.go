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

// Spinner displays an animated spinner with a message.
// Example: |  Removing luci-app-ddns…
type Spinner struct {
	message    string
	running    bool
	chars      []string
	mu         sync.Mutex
	writer     io.Writer
	ticker     *time.Ticker
	done       chan struct{}
	timeout    time.Duration
	startTime  time.Time
	showTiming bool
}

// NewSpinner creates a new spinner with a message. It does not start
// until Start is called.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stdout,
		done:    make(chan struct{}),
	}
}

// WithTimeout configures the spinner to show elapsed time and optionally
// a timeout duration. If timeout is > 0, displays remaining time format
// "message (Xs remaining)"; otherwise displays elapsed time format
// "message (Xs elapsed)".
//
// This method must be called before Start(). It returns the spinner for chaining.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	s.showTiming = true
	return s
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the spinner animation.
// On a non-TTY writer the animation goroutine is not started; the message
// is printed once instead so that non-interactive output stays clean.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.startTime = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s\n", s.message)
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
				fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.formatMessage())
				idx = (idx + 1) % len(s.chars)
				s.mu.Unlock()

			case <-s.done:
				return
			}
		}
	}()
}

// formatMessage returns the spinner message with optional timing information.
// Must be called with lock held.
func (s *Spinner) formatMessage() string {
	if !s.showTiming {
		return s.message
	}

	elapsed := time.Since(s.startTime)
	if s.timeout > 0 {
		remaining := s.timeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%s (%ds remaining)", s.message, int(remaining.Seconds()))
	}
	return fmt.Sprintf("%s (%ds elapsed)", s.message, int(elapsed.Seconds()))
}

// clearLine erases the animated line. Must be called with lock held.
func (s *Spinner) clearLine() {
	if s.running && writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.formatMessage())+4))
	}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.clearLine()
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
}

// Println prints a line above the spinner. The animation redraws on the
// next tick.
func (s *Spinner) Println(line string) {
	s.printlnTo(s.writer, line)
}

func (s *Spinner) printlnTo(w io.Writer, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLine()
	fmt.Fprintln(w, line)
}

// UpdateMessage updates the spinner message while it's running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// StopWithMessage stops the spinner and displays a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}

// ProgressLog is the in-flight indicator for removal workflows: a spinner
// titled with the current step, with request/response trace lines printed
// above it when verbose.
type ProgressLog struct {
	mu      sync.Mutex
	writer  io.Writer
	verbose bool
	timeout time.Duration
	spinner *Spinner
}

// NewProgressLog creates a ProgressLog writing to w. A positive timeout
// shows the remaining time next to the title.
func NewProgressLog(w io.Writer, verbose bool, timeout time.Duration) *ProgressLog {
	if w == nil {
		w = os.Stdout
	}
	return &ProgressLog{writer: w, verbose: verbose, timeout: timeout}
}

// Begin starts the indicator.
func (p *ProgressLog) Begin(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.Stop()
	}
	s := NewSpinner(title)
	s.SetWriter(p.writer)
	if p.timeout > 0 {
		s.WithTimeout(p.timeout)
	}
	s.Start()
	p.spinner = s
}

// Trace prints a trace line when verbose.
func (p *ProgressLog) Trace(line string) {
	if !p.verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	text := colorize(colorGray, "  "+line)
	if p.spinner != nil {
		p.spinner.Println(text)
		return
	}
	fmt.Fprintln(p.writer, text)
}

// Println writes line to w, clearing the spinner line first when one is
// running.
func (p *ProgressLog) Println(w io.Writer, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.printlnTo(w, line)
		return
	}
	fmt.Fprintln(w, line)
}

// End stops the indicator.
func (p *ProgressLog) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}
}
