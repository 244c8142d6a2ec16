package farmer

import (
	"context"
	"testing"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

// scriptedChild spawns /bin/sh -c script as the "browser child" so tests
// can exercise the pump against a real process without a browser binary.
func scriptedChild(t *testing.T, script string) *Pump {
	t.Helper()
	tr, err := transport.Spawn(context.Background(), transport.LaunchOptions{
		MonkeyPath:    "/bin/sh",
		WrapperArgs:   nil,
		LaunchOptions: []string{"-c", script},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	p := New(tr, nil)
	t.Cleanup(func() { tr.Close(2 * time.Second) })
	return p
}

func TestLoopDeliversOneLinePerTick(t *testing.T) {
	p := scriptedChild(t, `echo ONE; echo TWO; sleep 5`)

	var seen []string
	p.Router().Register("ONE", func(tokens []string) { seen = append(seen, "ONE") })
	p.Router().Register("TWO", func(tokens []string) { seen = append(seen, "TWO") })

	if err := p.Loop(true); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if err := p.Loop(true); err != nil {
		t.Fatalf("Loop: %v", err)
	}

	if len(seen) != 2 || seen[0] != "ONE" || seen[1] != "TWO" {
		t.Errorf("seen = %v, want [ONE TWO] delivered in arrival order", seen)
	}
}

func TestLoopReturnsErrChildDiedOnExit(t *testing.T) {
	p := scriptedChild(t, `exit 0`)

	err := p.PumpUntil(func() bool { return false }, time.Second)
	if err != ErrChildDied {
		t.Errorf("err = %v, want ErrChildDied", err)
	}
}

func TestScheduleRunsTimerBeforeLaterLine(t *testing.T) {
	p := scriptedChild(t, `sleep 0.2; echo LATE; sleep 5`)

	var order []string
	p.Router().Register("LATE", func(tokens []string) { order = append(order, "line") })
	p.Schedule("timer", 10*time.Millisecond, func() { order = append(order, "timer") })

	if err := p.PumpUntil(func() bool { return len(order) >= 2 }, 2*time.Second); err != nil {
		t.Fatalf("PumpUntil: %v", err)
	}

	if len(order) < 2 || order[0] != "timer" || order[1] != "line" {
		t.Errorf("order = %v, want [timer line]", order)
	}
}

func TestUnscheduleRemovesTimer(t *testing.T) {
	p := scriptedChild(t, `sleep 5`)

	fired := false
	sentinel := false
	p.Schedule("t1", 5*time.Millisecond, func() { fired = true })
	p.Unschedule("t1")
	p.Schedule("t2", 20*time.Millisecond, func() { sentinel = true })

	if err := p.PumpUntil(func() bool { return sentinel }, time.Second); err != nil {
		t.Fatalf("PumpUntil: %v", err)
	}

	if fired {
		t.Error("expected unscheduled timer not to fire")
	}
}

func TestPumpUntilTimesOut(t *testing.T) {
	p := scriptedChild(t, `sleep 5`)

	err := p.PumpUntil(func() bool { return false }, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
