// Package farmer implements the cooperative, single-threaded event pump
// that multiplexes the browser child's inbound line stream with a min-heap
// of scheduled timer callbacks. It is the core of the session controller's
// concurrency model: one goroutine, no locks.
package farmer

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

// ErrChildDied is returned by Loop, and by any blocking predicate built on
// top of it, once the transport observes the child has exited.
var ErrChildDied = errors.New("farmer: browser child died")

// Pump drives one parsed line per iteration into its Router while also
// running due timers from its min-heap. There is no preemption: handlers
// run to completion before the next line or timer is considered.
type Pump struct {
	transport *transport.Transport
	router    *Router
	heap      timerHeap
	seq       uint64
	log       *slog.Logger
	quiet     bool
}

// New wraps t with an event pump. Callers register protocol handlers on
// Router() before the first call to Loop.
func New(t *transport.Transport, log *slog.Logger) *Pump {
	if log == nil {
		log = slog.Default()
	}
	return &Pump{
		transport: t,
		router:    NewRouter(),
		log:       log,
	}
}

// Router returns the dispatch table used to deliver inbound lines.
func (p *Pump) Router() *Router { return p.router }

// Send writes a protocol line to the child, logging it at debug level.
func (p *Pump) Send(line string) error {
	p.log.Debug("monkeyctl: sent line", "line", line)
	return p.transport.Send(line)
}

// Alive reports whether the underlying transport has not yet observed
// child death.
func (p *Pump) Alive() bool {
	return !p.transport.IsDead()
}

// Schedule appends (deadline, callback) to the timer heap, keyed by id for
// later Unschedule. Ties in deadline are broken by insertion order (FIFO).
func (p *Pump) Schedule(id any, delay time.Duration, callback func()) {
	heap.Push(&p.heap, &timerEntry{
		deadline: time.Now().Add(delay),
		seq:      p.nextSeq(),
		id:       id,
		callback: callback,
	})
}

// ScheduleAt is Schedule with an absolute deadline instead of a delay.
func (p *Pump) ScheduleAt(id any, deadline time.Time, callback func()) {
	heap.Push(&p.heap, &timerEntry{
		deadline: deadline,
		seq:      p.nextSeq(),
		id:       id,
		callback: callback,
	})
}

func (p *Pump) nextSeq() uint64 {
	p.seq++
	return p.seq
}

// Unschedule removes every heap entry whose id equals the given id.
func (p *Pump) Unschedule(id any) {
	kept := p.heap[:0]
	for _, e := range p.heap {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	p.heap = kept
	heap.Init(&p.heap)
}

// Loop runs the pump. With once=false it blocks until the child dies,
// delivering every inbound line to the Router and running every timer
// callback as it comes due, for as long as the child stays alive. With
// once=true it performs exactly one pump tick — running due
// timers, then waiting for either the next line or the next timer
// deadline, whichever comes first — and returns.
//
// Loop returns ErrChildDied once the transport's line stream closes,
// after delivering any lines that arrived before the close was observed.
func (p *Pump) Loop(once bool) error {
	for {
		p.runDueTimers()

		var timeoutCh <-chan time.Time
		var timer *time.Timer
		if len(p.heap) > 0 {
			wait := time.Until(p.heap[0].deadline)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timeoutCh = timer.C
		}

		select {
		case line, ok := <-p.transport.Lines():
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return p.drainAndReportDeath()
			}
			p.dispatch(line)
		case <-timeoutCh:
			// Timer deadline reached with no line ready; loop around to
			// run it (and any others now due) at the top.
		}

		if once {
			return nil
		}
	}
}

// drainAndReportDeath delivers any lines that raced in before the
// transport's line channel closed, then reports death.
func (p *Pump) drainAndReportDeath() error {
	for line := range p.transport.Lines() {
		p.dispatch(line)
	}
	p.log.Warn("monkeyctl: browser child died")
	return ErrChildDied
}

func (p *Pump) runDueTimers() {
	now := time.Now()
	for len(p.heap) > 0 && !p.heap[0].deadline.After(now) {
		entry := heap.Pop(&p.heap).(*timerEntry)
		entry.callback()
		now = time.Now()
	}
}

func (p *Pump) dispatch(line string) {
	p.log.Debug("monkeyctl: received line", "line", line)
	p.router.Dispatch(line)
}

// PumpUntil repeatedly calls Loop(once=true) until predicate returns true,
// the child dies, or timeout elapses. It is the shared implementation
// behind every blocking Window/Session verb: wait_loaded, wait_until_dead,
// redraw, wait_for_log, new_window, and quit_and_wait.
func (p *Pump) PumpUntil(predicate func() bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	// A Loop(true) tick only wakes for an inbound line or a scheduled
	// timer; with neither pending it would block past our own deadline.
	// A watchdog timer, rearmed every iteration, guarantees the tick
	// returns in time for this loop to notice the deadline has passed.
	watchdog := new(struct{})
	defer p.Unschedule(watchdog)

	for !predicate() {
		if !p.Alive() {
			return ErrChildDied
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("farmer: %w", ErrTimeout)
		}
		p.Schedule(watchdog, remaining, func() {})
		if err := p.Loop(true); err != nil {
			return err
		}
		p.Unschedule(watchdog)
	}
	return nil
}

// ErrTimeout is returned (wrapped) by PumpUntil when a blocking
// predicate's deadline expires before the predicate is satisfied.
var ErrTimeout = errors.New("timed out waiting for condition")
