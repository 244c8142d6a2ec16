package browser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/farmer"
)

// LogRecord is one per-window log event.
type LogRecord struct {
	Source   string
	Foldable string
	Level    string
	Message  string
}

// LogFilter selects which log records satisfy wait_for_log. A zero-value
// field means "don't filter on this dimension".
type LogFilter struct {
	Source   string
	Foldable string
	Level    string
	Substr   string
}

func (f LogFilter) matches(r LogRecord) bool {
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Foldable != "" && r.Foldable != f.Foldable {
		return false
	}
	if f.Level != "" && r.Level != f.Level {
		return false
	}
	if f.Substr != "" && !contains(r.Message, f.Substr) {
		return false
	}
	return true
}

func contains(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// Window is a per-window state record and state machine.
// Every field is mutated only from the Session's pump goroutine; there is
// no locking because there is no concurrency of mutation.
type Window struct {
	session *Session

	WinID  string
	CoreID string
	Alive  bool

	// Existing, IsNewTab, IsClone come from the WINDOW NEW event's
	// "existing", "newtab", and "clone" fields.
	Existing string
	IsNewTab bool
	IsClone  bool

	Width, Height               int
	Title                       string
	URL                         string
	Status                      string
	Pointer                     string
	Scale                       float64
	ScrollX, ScrollY            int
	ContentWidth, ContentHeight int

	Throbbing bool
	Plotting  bool
	Plotted   []PlotRecord

	PageInfoState string
	Log           []LogRecord

	waitStartLoading bool // not set anywhere; WaitLoaded tracks its phases locally
}

func newWindow(s *Session, winID string) *Window {
	return &Window{
		session: s,
		WinID:   winID,
		Alive:   true,
		Scale:   1.0,
	}
}

// send writes a WINDOW wire command scoped to this window's id.
func (w *Window) send(format string, args ...any) error {
	return w.session.pump.Send(fmt.Sprintf(format, args...))
}

// Go sends WINDOW GO without waiting for the load to complete.
func (w *Window) Go(url, referer string) error {
	if !w.Alive {
		return fmt.Errorf("%w: Go on dead window %s", ErrUsage, w.WinID)
	}
	if referer != "" {
		return w.send("WINDOW GO %s %s %s", w.WinID, url, referer)
	}
	return w.send("WINDOW GO %s %s", w.WinID, url)
}

// LoadPage sends GO then blocks until the resulting load completes
// go then wait_loaded, back to back.
func (w *Window) LoadPage(url, referer string, timeout time.Duration) error {
	if err := w.Go(url, referer); err != nil {
		return err
	}
	return w.WaitLoaded(timeout)
}

// Reload sends WINDOW RELOAD.
func (w *Window) Reload() error {
	if !w.Alive {
		return fmt.Errorf("%w: Reload on dead window %s", ErrUsage, w.WinID)
	}
	return w.send("WINDOW RELOAD %s", w.WinID)
}

// Stop sends WINDOW STOP.
func (w *Window) Stop() error {
	if !w.Alive {
		return fmt.Errorf("%w: Stop on dead window %s", ErrUsage, w.WinID)
	}
	return w.send("WINDOW STOP %s", w.WinID)
}

// Kill sends WINDOW DESTROY; it does not itself wait for the DESTROY event
// to arrive, see WaitUntilDead.
func (w *Window) Kill() error {
	if !w.Alive {
		return fmt.Errorf("%w: Kill on already-dead window %s", ErrUsage, w.WinID)
	}
	return w.send("WINDOW DESTROY %s", w.WinID)
}

// WaitUntilDead pumps until Alive observes false.
func (w *Window) WaitUntilDead(timeout time.Duration) error {
	return w.session.pump.PumpUntil(func() bool { return !w.Alive }, timeout)
}

// Redraw sends WINDOW REDRAW with optional clip coordinates and blocks
// until the matching REDRAW STOP, returning the plot records accumulated
// in between.
func (w *Window) Redraw(coords []int, timeout time.Duration) ([]PlotRecord, error) {
	if !w.Alive {
		return nil, fmt.Errorf("%w: Redraw on dead window %s", ErrUsage, w.WinID)
	}
	line := fmt.Sprintf("WINDOW REDRAW %s", w.WinID)
	for _, c := range coords {
		line += " " + strconv.Itoa(c)
	}
	if err := w.session.pump.Send(line); err != nil {
		return nil, err
	}

	wasPlotting := w.Plotting
	done := false
	for !done {
		if err := w.session.pump.PumpUntil(func() bool {
			return w.Plotting != wasPlotting
		}, timeout); err != nil {
			return nil, err
		}
		if w.Plotting {
			// Saw REDRAW START; keep the same wasPlotting baseline so the
			// next transition we wait for is START->STOP.
			wasPlotting = true
			continue
		}
		done = true
	}
	return w.Plotted, nil
}

// Click sends WINDOW CLICK.
func (w *Window) Click(x, y int, button, kind string) error {
	if !w.Alive {
		return fmt.Errorf("%w: Click on dead window %s", ErrUsage, w.WinID)
	}
	return w.send("WINDOW CLICK %s x %d y %d button %s kind %s", w.WinID, x, y, button, kind)
}

// JSExec sends WINDOW EXEC.
func (w *Window) JSExec(cmd string) error {
	if !w.Alive {
		return fmt.Errorf("%w: JSExec on dead window %s", ErrUsage, w.WinID)
	}
	return w.send("WINDOW EXEC %s %s", w.WinID, cmd)
}

// ClearLog truncates the local log buffer; it touches no wire state.
func (w *Window) ClearLog() {
	w.Log = nil
}

// appendLog records one LOG event, routed to this window by Session from
// the top-level "LOG <id> source <s> foldable <f> level <l> message <m...>"
// line.
func (w *Window) appendLog(fields map[string]string) {
	w.Log = append(w.Log, LogRecord{
		Source:   fields["source"],
		Foldable: fields["foldable"],
		Level:    fields["level"],
		Message:  fields["message"],
	})
}

// WaitForLog pumps until a log record arrives (after this call began)
// matching every non-zero field of filter. Records already present before
// the call began never satisfy the wait.
func (w *Window) WaitForLog(filter LogFilter, timeout time.Duration) (LogRecord, error) {
	start := len(w.Log)
	var found LogRecord
	err := w.session.pump.PumpUntil(func() bool {
		for _, r := range w.Log[start:] {
			if filter.matches(r) {
				found = r
				return true
			}
		}
		return false
	}, timeout)
	return found, err
}

// WaitStartLoading pumps until Throbbing observes true.
func (w *Window) WaitStartLoading(timeout time.Duration) error {
	return w.session.pump.PumpUntil(func() bool { return w.Throbbing }, timeout)
}

// WaitLoaded pumps until a full false->true->false throbber cycle is
// observed: if Throbbing is already true on entry the first phase is
// skipped. If the window dies before completion it fails with
// ErrWindowDied.
func (w *Window) WaitLoaded(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	if !w.Throbbing {
		if err := w.session.pump.PumpUntil(func() bool { return w.Throbbing || !w.Alive }, time.Until(deadline)); err != nil {
			return err
		}
		if !w.Alive {
			return fmt.Errorf("window %s: %w", w.WinID, ErrWindowDied)
		}
	}

	if err := w.session.pump.PumpUntil(func() bool { return !w.Throbbing || !w.Alive }, time.Until(deadline)); err != nil {
		return err
	}
	if !w.Alive {
		return fmt.Errorf("window %s: %w", w.WinID, ErrWindowDied)
	}
	return nil
}

// applyEvent mutates window state for a WINDOW sub-action already stripped
// of its "WINDOW <subtag> <id>" prefix. The owning Session (w.session) has
// its current_draw_target maintained on REDRAW brackets and DESTROY.
func (w *Window) applyEvent(subtag string, args []string) {
	fields := farmer.ParseFields(args)
	switch subtag {
	case "DESTROY":
		w.Alive = false
		if w.session.currentDrawTarget == w {
			w.session.currentDrawTarget = nil
		}
	case "SIZE":
		w.Width = atoiOr(fields["width"], w.Width)
		w.Height = atoiOr(fields["height"], w.Height)
	case "TITLE":
		w.Title = fields["str"]
	case "REDRAW":
		switch {
		case len(args) > 0 && args[0] == "START":
			w.Plotting = true
			w.Plotted = nil
			w.session.currentDrawTarget = w
		case len(args) > 0 && args[0] == "STOP":
			w.Plotting = false
			if w.session.currentDrawTarget == w {
				w.session.currentDrawTarget = nil
			}
		}
	case "GET_DIMENSIONS":
		w.Width = atoiOr(fields["width"], w.Width)
		w.Height = atoiOr(fields["height"], w.Height)
	case "NEW_CONTENT", "NEW_ICON", "GET_SCROLL", "SCROLL_START":
		// Observed but carry no state this controller tracks.
	case "START_THROBBER":
		w.Throbbing = true
	case "STOP_THROBBER":
		w.Throbbing = false
	case "SET_SCROLL":
		w.ScrollX = atoiOr(fields["x"], w.ScrollX)
		w.ScrollY = atoiOr(fields["y"], w.ScrollY)
	case "UPDATE_BOX":
		// Damage-rectangle notification; no persistent state to update.
	case "UPDATE_EXTENT":
		w.ContentWidth = atoiOr(fields["width"], w.ContentWidth)
		w.ContentHeight = atoiOr(fields["height"], w.ContentHeight)
	case "SET_STATUS":
		w.Status = fields["str"]
	case "SET_POINTER":
		w.Pointer = fields["pointer"]
	case "SET_SCALE":
		w.Scale = atofOr(fields["scale"], w.Scale)
	case "SET_URL":
		w.URL = fields["url"]
	default:
		w.session.log.Warn("monkeyctl: unhandled WINDOW sub-action", "subtag", subtag, "window", w.WinID)
	}
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func atofOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
