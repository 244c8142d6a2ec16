package planrunner

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/browser"
)

// DefaultStepTimeout bounds any step that waits on the browser child
// without its own explicit time budget.
const DefaultStepTimeout = 15 * time.Second

// Runner interprets a Plan's steps against one browser.Session, tracking
// window tags, repeat-loop current values, and named elapsed-time timers.
type Runner struct {
	session *browser.Session
	log     *slog.Logger

	windows map[string]*browser.Window
	repeats map[string]string
	timers  map[string]time.Time
}

// NewRunner wraps an already-launched Session (the plan's "launch" step is
// a no-op against it, kept only so the YAML schema matches
// original_source's driver).
func NewRunner(s *browser.Session, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		session: s,
		log:     log,
		windows: make(map[string]*browser.Window),
		repeats: make(map[string]string),
		timers:  make(map[string]time.Time),
	}
}

// Run executes every step of plan in order, stopping at the first error.
func (r *Runner) Run(plan *Plan) error {
	r.log.Info("monkeyctl: running plan", "group", plan.Group, "title", plan.Title)
	return r.runSteps(plan.Steps)
}

func (r *Runner) runSteps(steps []Step) error {
	for i, st := range steps {
		if err := r.runStep(st); err != nil {
			return fmt.Errorf("planrunner: step %d (%s): %w", i, st.Action, err)
		}
	}
	return nil
}

func (r *Runner) runStep(st Step) error {
	switch st.Action {
	case "launch":
		return nil

	case "window-new":
		w, err := r.session.NewWindow(st.URL, DefaultStepTimeout)
		if err != nil {
			return err
		}
		r.windows[st.Tag] = w
		return nil

	case "window-close":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		if err := w.Kill(); err != nil {
			return err
		}
		return w.WaitUntilDead(DefaultStepTimeout)

	case "navigate":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		url := st.URL
		if st.RepeatURL != "" {
			v, ok := r.repeats[st.RepeatURL]
			if !ok {
				return fmt.Errorf("navigate: unknown repeat tag %q", st.RepeatURL)
			}
			url = v
		}
		return w.LoadPage(url, "", DefaultStepTimeout)

	case "stop":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		return w.Stop()

	case "sleep-ms":
		return r.runSleepMS(st)

	case "block":
		return r.waitConditions(st.Conditions, DefaultStepTimeout)

	case "repeat":
		return r.runRepeat(st)

	case "timer-start":
		r.timers[st.Tag] = time.Now()
		return nil

	case "timer-stop":
		delete(r.timers, st.Tag)
		return nil

	case "timer-restart":
		r.timers[st.Tag] = time.Now()
		return nil

	case "timer-check":
		return r.runTimerCheck(st)

	case "plot-check":
		return r.runPlotCheck(st)

	case "add-auth":
		r.session.AddAuth(browser.AuthRecord{URL: st.URL, Realm: st.Realm, Username: st.Username, Password: st.Password})
		return nil

	case "remove-auth":
		r.session.RemoveAuth(browser.AuthRecord{URL: st.URL, Realm: st.Realm, Username: st.Username, Password: st.Password})
		return nil

	case "add-cert":
		r.session.AddCert(browser.CertRecord{URL: st.URL})
		return nil

	case "remove-cert":
		r.session.RemoveCert(browser.CertRecord{URL: st.URL})
		return nil

	case "clear-log":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		w.ClearLog()
		return nil

	case "wait-log":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		timeout := DefaultStepTimeout
		if st.TimeMS > 0 {
			timeout = time.Duration(st.TimeMS) * time.Millisecond
		}
		filter := browser.LogFilter{
			Source:   st.LogSource,
			Foldable: st.LogFoldable,
			Level:    st.LogLevel,
			Substr:   st.LogSubstr,
		}
		_, err = w.WaitForLog(filter, timeout)
		return err

	case "js-exec":
		w, err := r.window(st.Window)
		if err != nil {
			return err
		}
		return w.JSExec(st.JS)

	case "quit":
		ok, err := r.session.QuitAndWait(browser.DefaultQuitTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("quit: child did not exit cleanly")
		}
		return nil

	default:
		return fmt.Errorf("unimplemented action %q", st.Action)
	}
}

func (r *Runner) window(tag string) (*browser.Window, error) {
	w, ok := r.windows[tag]
	if !ok {
		return nil, fmt.Errorf("unknown window tag %q", tag)
	}
	return w, nil
}

// runSleepMS pauses for the step's time budget. Bare sleep-ms (no
// conditions) treats the timeout as success, since waiting out the full
// duration is the point; sleep-ms with conditions early-exits the moment
// any one condition is satisfied and fails if none are by the deadline.
func (r *Runner) runSleepMS(st Step) error {
	ms := st.TimeMS
	if st.TimeTag != "" {
		v, ok := r.repeats[st.TimeTag]
		if !ok {
			return fmt.Errorf("sleep-ms: unknown repeat tag %q", st.TimeTag)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("sleep-ms: repeat tag %q is not numeric: %w", st.TimeTag, err)
		}
		ms = n
	}
	budget := time.Duration(ms) * time.Millisecond

	if len(st.Conditions) == 0 {
		err := r.session.PumpUntilIdle(budget)
		if err == nil || err == browser.ErrSleepElapsed {
			return nil
		}
		return err
	}
	return r.waitConditions(st.Conditions, budget)
}

// waitConditions blocks until any one condition is satisfied (OR
// semantics across the list), or returns an error at timeout.
func (r *Runner) waitConditions(conds []Condition, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		for _, c := range conds {
			ok, err := r.conditionMet(c)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("conditions not met within timeout")
		}
		step := remaining
		if step > 20*time.Millisecond {
			step = 20 * time.Millisecond
		}
		if err := r.session.PumpUntilIdle(step); err != nil && err != browser.ErrSleepElapsed {
			return err
		}
	}
}

func (r *Runner) conditionMet(c Condition) (bool, error) {
	if c.Timer != "" {
		start, ok := r.timers[c.Timer]
		if !ok {
			return false, nil
		}
		return time.Since(start) >= time.Duration(c.Elapsed)*time.Millisecond, nil
	}
	if c.Window != "" {
		if c.Window == "*all*" {
			for _, w := range r.windows {
				if !windowStatusMatches(w, c.Status) {
					return false, nil
				}
			}
			return true, nil
		}
		w, err := r.window(c.Window)
		if err != nil {
			return false, err
		}
		return windowStatusMatches(w, c.Status), nil
	}
	return false, nil
}

func windowStatusMatches(w *browser.Window, status string) bool {
	switch status {
	case "complete":
		return w.Alive && !w.Throbbing
	default:
		return false
	}
}

// runRepeat iterates nested steps once per value. A values list is the
// well-defined case; a bare min/step form with no values has no natural
// termination without a second step elsewhere in the plan toggling it off,
// which is plan-authoring plumbing outside this runner's scope, so it runs
// for exactly one iteration, seeded at min.
func (r *Runner) runRepeat(st Step) error {
	if len(st.Values) > 0 {
		for _, v := range st.Values {
			r.repeats[st.Tag] = v
			if err := r.runSteps(st.Steps); err != nil {
				return err
			}
		}
		delete(r.repeats, st.Tag)
		return nil
	}
	r.repeats[st.Tag] = strconv.Itoa(st.RepeatMin)
	err := r.runSteps(st.Steps)
	delete(r.repeats, st.Tag)
	return err
}

func (r *Runner) runTimerCheck(st Step) error {
	start, ok := r.timers[st.Tag]
	if !ok {
		return fmt.Errorf("timer-check: unknown or unstarted timer %q", st.Tag)
	}
	elapsed := time.Since(start).Milliseconds()
	if st.Min != nil && elapsed < int64(*st.Min) {
		return fmt.Errorf("timer %q elapsed %dms, want >= %dms", st.Tag, elapsed, *st.Min)
	}
	if st.Max != nil && elapsed > int64(*st.Max) {
		return fmt.Errorf("timer %q elapsed %dms, want <= %dms", st.Tag, elapsed, *st.Max)
	}
	return nil
}

func (r *Runner) runPlotCheck(st Step) error {
	w, err := r.window(st.Window)
	if err != nil {
		return err
	}
	plotted, err := w.Redraw(nil, DefaultStepTimeout)
	if err != nil {
		return err
	}

	var allText string
	bitmapCount := 0
	for _, p := range plotted {
		allText += p.Text()
		if p.Tag == "BITMAP" {
			bitmapCount++
		}
	}

	for _, c := range st.Checks {
		if c.TextContains != "" && !containsSubstr(allText, c.TextContains) {
			return fmt.Errorf("plot-check: text %q not found in rendered output", c.TextContains)
		}
		if c.BitmapCount != nil && bitmapCount != *c.BitmapCount {
			return fmt.Errorf("plot-check: bitmap count = %d, want %d", bitmapCount, *c.BitmapCount)
		}
	}
	return nil
}

func containsSubstr(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return true
		}
	}
	return false
}
