package scheduler

import (
	"context"
	"log/slog"
	"sync"
)

// laneQueueCap bounds how many tasks one conversation can have pending.
const laneQueueCap = 64

// Lanes serializes work per key while letting different keys run in
// parallel. One logical actor per conversation id: messages within a
// conversation process strictly in order, and a slow AI call on one
// conversation never stalls the others.
type Lanes struct {
	mu     sync.Mutex
	lanes  map[string][]func(context.Context)
	active map[string]bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLanes() *Lanes {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lanes{
		lanes:  make(map[string][]func(context.Context)),
		active: make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit queues task on the lane for key. Tasks on the same key run one at a
// time in submission order. Returns false if the lane's queue is full or the
// lanes are shut down.
func (l *Lanes) Submit(key string, task func(context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx.Err() != nil {
		return false
	}
	if len(l.lanes[key]) >= laneQueueCap {
		slog.Warn("lane queue full, dropping task", "key", key)
		return false
	}

	l.lanes[key] = append(l.lanes[key], task)
	if !l.active[key] {
		l.active[key] = true
		l.wg.Add(1)
		go l.drain(key)
	}
	return true
}

// drain runs the lane's queue to exhaustion, then retires the lane.
func (l *Lanes) drain(key string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		queue := l.lanes[key]
		if len(queue) == 0 || l.ctx.Err() != nil {
			delete(l.lanes, key)
			delete(l.active, key)
			l.mu.Unlock()
			return
		}
		task := queue[0]
		l.lanes[key] = queue[1:]
		l.mu.Unlock()

		task(l.ctx)
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones.
func (l *Lanes) Shutdown() {
	l.cancel()
	l.wg.Wait()
}
