package browser

import (
	"context"
	"testing"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/farmer"
	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

// newScriptedSession spawns /bin/sh -c script as the "browser child" so
// tests can drive a real Session against a real process, matching the
// transport/farmer package's own test idiom.
func newScriptedSession(t *testing.T, script string) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), transport.LaunchOptions{
		MonkeyPath:    "/bin/sh",
		LaunchOptions: []string{"-c", script},
	}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.transport.Close(2 * time.Second) })
	return s
}

// Scenario A: open, load, redraw, close.
func TestScenarioOpenLoadRedrawClose(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "WINDOW START_THROBBER w1"
echo "WINDOW SET_URL w1 url file:///t/index.html"
echo "WINDOW STOP_THROBBER w1"
read _
echo "WINDOW REDRAW w1 START"
echo "PLOT TEXT x 0 y 0 Hello"
echo "WINDOW REDRAW w1 STOP"
read _
echo "WINDOW DESTROY w1"
read _
exit 0
`
	s := newScriptedSession(t, script)

	w, err := s.NewWindow("file:///t/index.html", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	if err := w.WaitLoaded(2 * time.Second); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
	if w.URL != "file:///t/index.html" {
		t.Errorf("URL = %q, want file:///t/index.html", w.URL)
	}
	if w.Throbbing {
		t.Error("expected Throbbing == false after WaitLoaded")
	}

	plotted, err := w.Redraw(nil, 2*time.Second)
	if err != nil {
		t.Fatalf("Redraw: %v", err)
	}
	if len(plotted) < 1 {
		t.Errorf("plotted = %v, want at least one record", plotted)
	}

	if err := w.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if err := w.WaitUntilDead(5 * time.Second); err != nil {
		t.Fatalf("WaitUntilDead: %v", err)
	}
	if w.Alive {
		t.Error("expected Alive == false")
	}

	ok, err := s.QuitAndWait(5 * time.Second)
	if err != nil {
		t.Fatalf("QuitAndWait: %v", err)
	}
	if !ok {
		t.Error("expected clean QuitAndWait")
	}
}

// Scenario B: plot-check substring.
func TestScenarioPlotCheckSubstring(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
read _
echo "WINDOW REDRAW w1 START"
echo "PLOT TEXT x 10 y 20 Hello, world"
echo "WINDOW REDRAW w1 STOP"
sleep 5
`
	s := newScriptedSession(t, script)

	w, err := s.NewWindow("file:///t/hello.html", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	plotted, err := w.Redraw(nil, 2*time.Second)
	if err != nil {
		t.Fatalf("Redraw: %v", err)
	}

	var all string
	for _, p := range plotted {
		all += p.Text()
	}
	if !contains(all, "Hello, world") {
		t.Errorf("concatenated text = %q, want substring %q", all, "Hello, world")
	}
}

// Scenario C: auth prompt accepted from auth_db.
func TestScenarioAuthPromptAccepted(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "LOGIN READY l1 url http://example/ realm R username alice"
read line1
read line2
read line3
if [ "$line1" = "LOGIN USERNAME l1 alice" ] && [ "$line2" = "LOGIN PASSWORD l1 secret" ] && [ "$line3" = "LOGIN GO l1" ]; then
  echo "WINDOW START_THROBBER w1"
  echo "WINDOW STOP_THROBBER w1"
fi
read _
exit 0
`
	s := newScriptedSession(t, script)
	s.AddAuth(AuthRecord{Realm: "R", Username: "alice", Password: "secret"})

	w, err := s.NewWindow("http://example/", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	if err := w.WaitLoaded(2 * time.Second); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
}

// Scenario D: unknown auth cancels the prompt.
func TestScenarioUnknownAuthCancels(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "LOGIN READY l1 url http://example/ realm R username alice"
read line1
if [ "$line1" = "LOGIN DESTROY l1" ]; then
  echo "WINDOW START_THROBBER w1"
  echo "WINDOW STOP_THROBBER w1"
fi
read _
exit 0
`
	s := newScriptedSession(t, script)

	w, err := s.NewWindow("http://example/", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if err := w.WaitLoaded(2 * time.Second); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
	if len(s.loginWindows) != 0 {
		t.Errorf("expected login window to be cleared, got %v", s.loginWindows)
	}
}

// Scenario E: a WINDOW line addressed to an id the session never
// registered is logged and recorded rather than treated as fatal.
func TestScenarioUnknownWindowIDIsRecordedAndIgnored(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
echo "WINDOW SET_URL ghost url http://nowhere/"
echo "WINDOW START_THROBBER w1"
echo "WINDOW STOP_THROBBER w1"
read _
exit 0
`
	s := newScriptedSession(t, script)

	w, err := s.NewWindow("http://example/", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if err := w.WaitLoaded(2 * time.Second); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}

	dropped := s.DroppedErrors()
	if len(dropped) != 1 || dropped[0] != ErrUnknownWindow {
		t.Errorf("DroppedErrors() = %v, want exactly one ErrUnknownWindow", dropped)
	}
}

// Scenario F: child death mid-wait fails with ChildDied and QuitAndWait
// does not block.
func TestScenarioChildDeathMidWait(t *testing.T) {
	script := `
read _
echo "WINDOW NEW w1 for c1 existing NONE newtab FALSE clone FALSE"
exit 1
`
	s := newScriptedSession(t, script)

	w, err := s.NewWindow("http://example/", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	err = w.WaitLoaded(2 * time.Second)
	if err != farmer.ErrChildDied {
		t.Errorf("WaitLoaded err = %v, want ErrChildDied", err)
	}

	done := make(chan struct{})
	go func() {
		s.QuitAndWait(2 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("QuitAndWait blocked past the child's death")
	}
	if !s.Stopped() {
		t.Error("expected session to be stopped")
	}
}
