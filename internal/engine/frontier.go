package engine

import (
	"container/heap"
	"context"
	"sync"

	"github.com/IshaanNene/hotnews/internal/types"
)

// Frontier is a thread-safe priority queue of crawl requests. Requests of
// equal priority are served in the order they were pushed.
type Frontier struct {
	mu     sync.Mutex
	pq     priorityQueue
	seq    uint64
	closed bool
	notify chan struct{}
	done   chan struct{}
}

// NewFrontier creates a new Frontier.
func NewFrontier() *Frontier {
	f := &Frontier{
		pq:     make(priorityQueue, 0, 1024),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&f.pq)
	return f
}

// Push adds a request to the frontier.
func (f *Frontier) Push(req *types.Request) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return types.ErrFrontierClosed
	}
	f.seq++
	heap.Push(&f.pq, &pqItem{request: req, priority: req.Priority, seq: f.seq})
	f.mu.Unlock()

	f.signal()
	return nil
}

// Pop removes and returns the highest-priority request.
// Blocks until a request is available, the frontier is closed and empty, or
// ctx is done. Returns nil in the latter two cases.
func (f *Frontier) Pop(ctx context.Context) *types.Request {
	for {
		f.mu.Lock()
		if f.pq.Len() > 0 {
			item := heap.Pop(&f.pq).(*pqItem)
			more := f.pq.Len() > 0
			f.mu.Unlock()
			if more {
				f.signal()
			}
			return item.request
		}
		if f.closed {
			f.mu.Unlock()
			return nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-f.done:
		case <-f.notify:
		}
	}
}

// Len returns the number of requests in the frontier.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pq.Len()
}

// Close closes the frontier, unblocking any waiting Pop calls. Requests
// already queued can still be popped.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

// IsClosed returns true if the frontier has been closed.
func (f *Frontier) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// signal wakes one waiting Pop without blocking.
func (f *Frontier) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// --- Priority Queue Implementation ---

type pqItem struct {
	request  *types.Request
	priority int
	seq      uint64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	// Lower priority value = higher priority
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // GC
	item.index = -1
	*pq = old[:n-1]
	return item
}
