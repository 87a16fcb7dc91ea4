package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"

	"github.com/calpub/journal-transporter/internal/style"
)

const (
	defaultWidth = 80
	minBarWidth  = 10
)

// CLI renders nested progress bars on a terminal. The major and minor
// levels each get a bar; detail steps advance the minor bar's caption.
type CLI struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	width   int
	bar     progress.Model

	major  barState
	minor  barState
	detail string
	drawn  int // lines occupied by the previous render
	closed bool
}

type barState struct {
	label string
	index int
	total int
}

// CLIOption configures the CLI reporter.
type CLIOption func(*CLI)

// WithOutput directs rendering to w instead of stdout.
func WithOutput(w io.Writer) CLIOption {
	return func(c *CLI) { c.out = w }
}

// WithVerbose enables printing of debug messages.
func WithVerbose(verbose bool) CLIOption {
	return func(c *CLI) { c.verbose = verbose }
}

// WithWidth fixes the render width instead of probing the terminal.
func WithWidth(width int) CLIOption {
	return func(c *CLI) { c.width = width }
}

// NewCLI creates a terminal progress reporter.
func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{
		out: os.Stdout,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.width == 0 {
		c.width = defaultWidth
		if f, ok := c.out.(*os.File); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				c.width = w
			}
		}
	}
	return c
}

// Debug prints a dimmed diagnostic line above the progress block when
// verbose mode is on.
func (c *CLI) Debug(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.verbose {
		return
	}
	c.clear()
	fmt.Fprintln(c.out, style.Dim.Render(message))
	c.render()
}

// Major begins a new outer phase.
func (c *CLI) Major(message string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.major = barState{label: message, total: total}
	c.minor = barState{}
	c.detail = ""
	c.clear()
	c.render()
}

// Minor advances the outer bar and begins a new inner loop.
func (c *CLI) Minor(index int, message string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.major.index = index
	c.minor = barState{label: message, total: total}
	c.detail = ""
	c.clear()
	c.render()
}

// Detail advances the inner bar.
func (c *CLI) Detail(index int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minor.index = index
	c.detail = message
	c.clear()
	c.render()
}

// Close finishes rendering and leaves the cursor on a fresh line.
// Closing twice is harmless.
func (c *CLI) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.drawn = 0
	fmt.Fprintln(c.out)
}

// clear erases the previously rendered block (caller must hold mu).
func (c *CLI) clear() {
	for i := 0; i < c.drawn; i++ {
		fmt.Fprint(c.out, "\x1b[1A\x1b[2K")
	}
	c.drawn = 0
}

// render draws the current progress block (caller must hold mu).
func (c *CLI) render() {
	var lines []string
	if c.major.total > 0 {
		lines = append(lines, c.barLine(c.major))
	}
	if c.minor.label != "" && c.minor.total > 0 {
		lines = append(lines, c.barLine(c.minor))
	}
	if c.detail != "" {
		lines = append(lines, style.Dim.Render("  "+c.truncate(c.detail)))
	}
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
	c.drawn = len(lines)
}

func (c *CLI) barLine(s barState) string {
	label := style.Label.Render(c.truncate(s.label))
	barWidth := c.width / 3
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}
	c.bar.Width = barWidth
	frac := 0.0
	if s.total > 0 {
		frac = float64(s.index) / float64(s.total)
	}
	if frac > 1 {
		frac = 1
	}
	count := style.Dim.Render(fmt.Sprintf("%d/%d", s.index, s.total))
	return fmt.Sprintf("%s %s %s", c.bar.ViewAs(frac), count, label)
}

// truncate keeps a line from wrapping, which would corrupt the redraw.
func (c *CLI) truncate(s string) string {
	max := c.width - minBarWidth
	if max < 1 || len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "…"
}
