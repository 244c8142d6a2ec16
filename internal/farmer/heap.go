package farmer

import "time"

// timerEntry is one scheduled callback, ordered by deadline ascending,
// ties broken by insertion order (FIFO).
type timerEntry struct {
	deadline time.Time
	seq      uint64
	id       any
	callback func()
}

// timerHeap is a min-heap over timerEntry ordered by (deadline, seq).
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
