package planrunner

import (
	"context"
	"testing"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/browser"
	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

func newScriptedRunner(t *testing.T, script string) *Runner {
	t.Helper()
	s, err := browser.NewSession(context.Background(), transport.LaunchOptions{
		MonkeyPath:    "/bin/sh",
		LaunchOptions: []string{"-c", script},
	}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return NewRunner(s, nil)
}

func TestRunPlanOpenLoadPlotCheckQuit(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "WINDOW START_THROBBER w1"
echo "WINDOW STOP_THROBBER w1"
read _
echo "WINDOW REDRAW w1 START"
echo "PLOT TEXT x 0 y 0 Hello, world"
echo "WINDOW REDRAW w1 STOP"
read _
exit 0
`
	r := newScriptedRunner(t, script)

	plan := &Plan{
		Group: "smoke",
		Title: "open and check",
		Steps: []Step{
			{Action: "window-new", Tag: "w1", URL: "file:///t/hello.html"},
			{Action: "plot-check", Window: "w1", Checks: []Check{{TextContains: "Hello, world"}}},
			{Action: "quit"},
		},
	}

	if err := r.Run(plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunPlanPlotCheckFailsOnMissingText(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
read _
echo "WINDOW REDRAW w1 START"
echo "PLOT TEXT x 0 y 0 Goodbye"
echo "WINDOW REDRAW w1 STOP"
sleep 5
`
	r := newScriptedRunner(t, script)
	t.Cleanup(func() { r.session.QuitAndWait(time.Second) })

	plan := &Plan{
		Steps: []Step{
			{Action: "window-new", Tag: "w1"},
			{Action: "plot-check", Window: "w1", Checks: []Check{{TextContains: "Hello, world"}}},
		},
	}

	if err := r.Run(plan); err == nil {
		t.Fatal("expected plot-check to fail")
	}
}

func TestRunPlanRepeatWithValuesIteratesEach(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
sleep 5
`
	r := newScriptedRunner(t, script)
	t.Cleanup(func() { r.session.QuitAndWait(time.Second) })

	plan := &Plan{
		Steps: []Step{
			{Action: "window-new", Tag: "w1"},
			{
				Action: "repeat",
				Tag:    "r1",
				Values: []string{"a", "b", "c"},
				Steps:  []Step{{Action: "sleep-ms", TimeMS: 5}},
			},
		},
	}

	// runStep doesn't expose the repeat tag's value to a test callback
	// directly, so assert indirectly: the repeat tag must be cleared
	// after Run and each nested sleep-ms must have resolved without
	// error across all 3 iterations.
	if err := r.Run(plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := r.repeats["r1"]; ok {
		t.Error("expected repeat tag to be cleared after the loop")
	}
}

func TestRunPlanAuthCertLogAndJSActions(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
read _
echo "LOG w1 source js foldable FALSE level info message ready"
sleep 5
`
	r := newScriptedRunner(t, script)
	t.Cleanup(func() { r.session.QuitAndWait(time.Second) })

	plan := &Plan{
		Steps: []Step{
			{Action: "window-new", Tag: "w1"},
			{Action: "add-auth", URL: "http://example/", Username: "alice", Password: "secret"},
			{Action: "remove-auth", URL: "http://example/", Username: "alice", Password: "secret"},
			{Action: "add-cert", URL: "https://example/"},
			{Action: "remove-cert", URL: "https://example/"},
			{Action: "clear-log", Window: "w1"},
			{Action: "js-exec", Window: "w1", JS: "document.title"},
			{Action: "wait-log", Window: "w1", LogSubstr: "ready", TimeMS: 1000},
			{Action: "timer-start", Tag: "t1"},
			{Action: "timer-restart", Tag: "t1"},
		},
	}

	if err := r.Run(plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.session.DroppedErrors()) != 0 {
		t.Errorf("DroppedErrors() = %v, want none", r.session.DroppedErrors())
	}
}

func TestWaitConditionsOrSemantics(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "WINDOW START_THROBBER w1"
sleep 5
`
	r := newScriptedRunner(t, script)
	t.Cleanup(func() { r.session.QuitAndWait(time.Second) })

	w, err := r.session.NewWindow("", time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if err := r.session.PumpUntilIdle(100 * time.Millisecond); err != nil && err != browser.ErrSleepElapsed {
		t.Fatalf("waiting for throbber start: %v", err)
	}
	r.windows["w1"] = w
	r.timers["t1"] = time.Now().Add(-time.Hour) // already long elapsed

	// Two conditions; only the timer one is satisfiable (w1 is still
	// throbbing, so "complete" never becomes true). OR semantics means
	// this must still succeed promptly.
	conds := []Condition{
		{Window: "w1", Status: "complete"},
		{Timer: "t1", Elapsed: 1},
	}
	if err := r.waitConditions(conds, time.Second); err != nil {
		t.Fatalf("waitConditions: %v", err)
	}
}
