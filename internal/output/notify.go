package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/blackwell-systems/luciprune/internal/remover"
)

// Notifier prints workflow notifications as single status lines.
type Notifier struct {
	mu       sync.Mutex
	writer   io.Writer
	errw     io.Writer
	progress *ProgressLog
}

// NewNotifier creates a Notifier. Failures go to errw, everything else
// to w.
func NewNotifier(w, errw io.Writer) *Notifier {
	if w == nil {
		w = os.Stdout
	}
	if errw == nil {
		errw = os.Stderr
	}
	return &Notifier{writer: w, errw: errw}
}

// Above makes n print through p, so notifications that arrive while a
// spinner is running do not share its line.
func (n *Notifier) Above(p *ProgressLog) *Notifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = p
	return n
}

// Notify implements remover.Notifier.
func (n *Notifier) Notify(note remover.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	w := n.writer
	var line string
	switch note.Level {
	case remover.LevelSuccess:
		line = fmt.Sprintf("%s %s", colorize(colorGreen, "✓"), note.Message)
	case remover.LevelDanger:
		w = n.errw
		line = fmt.Sprintf("%s %s", colorize(colorRed, "✗"), note.Message)
	default:
		line = fmt.Sprintf("%s %s", colorize(colorGray, "·"), note.Message)
	}

	if n.progress != nil {
		n.progress.Println(w, line)
		return
	}
	fmt.Fprintln(w, line)
}
