// Package console draws the interactive banner and the single-line status
// display.
package console

import (
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	// BarWidth is the number of cells in the progress bar.
	BarWidth = 20

	clearScreen = "\033[H\033[2J"
	clearLine   = "\r\033[2K"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Banner is the static information shown at startup and after each click.
type Banner struct {
	Version     string
	IdleTimeout time.Duration
	Target      string
	Screen      image.Point
	Point       image.Point
	LogFile     string
}

// Renderer writes to a terminal. It is not safe for concurrent use; only the
// trigger loop draws.
type Renderer struct {
	out    io.Writer
	banner Banner
	spin   int

	title   *color.Color
	ok      *color.Color
	warn    *color.Color
	dim     *color.Color
	running *color.Color
	missing *color.Color
}

func New(out io.Writer, banner Banner) *Renderer {
	return &Renderer{
		out:     out,
		banner:  banner,
		title:   color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow),
		dim:     color.New(color.Faint),
		running: color.New(color.FgGreen),
		missing: color.New(color.FgRed),
	}
}

// Discard returns a renderer that draws nothing.
func Discard() *Renderer {
	return New(io.Discard, Banner{})
}

// Progress is idle/timeout clamped to [0, 1].
func Progress(idle, timeout time.Duration) float64 {
	if timeout <= 0 {
		return 1
	}
	p := float64(idle) / float64(timeout)
	return max(0, min(p, 1))
}

// Bar renders progress as width cells.
func Bar(progress float64, width int) string {
	progress = max(0, min(progress, 1))
	filled := int(progress * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Spinner returns the current frame and advances to the next one.
func (r *Renderer) Spinner() string {
	frame := spinnerFrames[r.spin]
	r.spin = (r.spin + 1) % len(spinnerFrames)
	return frame
}

// Banner clears the screen and prints the startup banner.
func (r *Renderer) Banner() {
	b := r.banner
	rule := strings.Repeat("=", 60)

	fmt.Fprint(r.out, clearScreen)
	fmt.Fprintln(r.out, "\n"+rule)
	r.title.Fprintln(r.out, "    ╔═══════════════════════════════╗")
	r.title.Fprintln(r.out, "               Idle Clicker          ")
	r.title.Fprintln(r.out, "    ╚═══════════════════════════════╝")
	if b.Version != "" {
		fmt.Fprintf(r.out, "  Version: %s\n", b.Version)
	}
	fmt.Fprintf(r.out, "  Idle timeout: %s\n", formatSeconds(b.IdleTimeout))
	fmt.Fprintf(r.out, "  Target process: %s\n", b.Target)
	fmt.Fprintf(r.out, "  Screen size: %dx%d\n", b.Screen.X, b.Screen.Y)
	logFile := b.LogFile
	if logFile == "" {
		logFile = "none"
	}
	fmt.Fprintf(r.out, "  Target: (%d, %d) | Log: %s\n", b.Point.X, b.Point.Y, logFile)
	r.dim.Fprintln(r.out, "  Move the pointer into a screen corner to skip a click")
	fmt.Fprintln(r.out, "  Press Ctrl+C to stop")
	fmt.Fprintln(r.out, rule+"\n")
}

// Waiting redraws the status line while the loop is idle.
func (r *Renderer) Waiting(idle, timeout time.Duration, targetRunning bool) {
	state := r.missing.Sprint("not found")
	if targetRunning {
		state = r.running.Sprint("running")
	}
	fmt.Fprintf(r.out, "%s%s Waiting... Idle: %.1f/%ss | %s: %s [%s]",
		clearLine,
		r.Spinner(),
		idle.Seconds(),
		trimSeconds(timeout),
		r.banner.Target,
		state,
		Bar(Progress(idle, timeout), BarWidth))
}

// Clicked redraws the banner followed by a confirmation line.
func (r *Renderer) Clicked(idle time.Duration) {
	r.Banner()
	fmt.Fprintf(r.out, "%s%s Idle: %.1fs | %s: running [%s]",
		clearLine,
		r.ok.Sprint("✓ CLICKED!"),
		idle.Seconds(),
		r.banner.Target,
		Bar(1, BarWidth))
}

// FailSafe shows the fail-safe warning on the status line.
func (r *Renderer) FailSafe() {
	fmt.Fprintf(r.out, "%s%s", clearLine, r.warn.Sprintf("%-80s", "⚠ Fail-safe: move mouse away from corner and wait..."))
}

// Stopped ends the status line with a final message.
func (r *Renderer) Stopped(msg string) {
	fmt.Fprintf(r.out, "\n%s\n", msg)
}

func formatSeconds(d time.Duration) string {
	return trimSeconds(d) + " seconds"
}

func trimSeconds(d time.Duration) string {
	return strings.TrimSuffix(fmt.Sprintf("%g", d.Seconds()), ".0")
}
