package farmer

import (
	"container/heap"
	"testing"
	"time"
)

func TestTimerHeapOrdersByDeadlineThenFIFO(t *testing.T) {
	h := &timerHeap{}
	heap.Init(h)

	base := time.Now()
	heap.Push(h, &timerEntry{deadline: base.Add(100 * time.Millisecond), seq: 1, id: "f1"})
	heap.Push(h, &timerEntry{deadline: base.Add(50 * time.Millisecond), seq: 2, id: "f2"})
	heap.Push(h, &timerEntry{deadline: base.Add(50 * time.Millisecond), seq: 3, id: "f3"}) // tie with f2, later seq

	first := heap.Pop(h).(*timerEntry)
	if first.id != "f2" {
		t.Errorf("first popped id = %v, want f2 (earlier deadline)", first.id)
	}
	second := heap.Pop(h).(*timerEntry)
	if second.id != "f3" {
		t.Errorf("second popped id = %v, want f3 (tie broken by insertion order)", second.id)
	}
	third := heap.Pop(h).(*timerEntry)
	if third.id != "f1" {
		t.Errorf("third popped id = %v, want f1", third.id)
	}
}
