package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Group tracks a set of periodic tasks, so they can be started and stopped
// together (used to bring up/tear down every Network Manager's periodic
// reaper and housekeeping ticks as one unit).
type Group struct {
	mu    sync.Mutex
	tasks []*groupTask
}

type groupTask struct {
	id    int
	f     Func
	sched Schedule
	stop  func(time.Duration) error
	reset func()
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers a task function with its schedule. The task does not run
// until Start is called. Returns the index assigned to this task, used to
// identify it in Stop's error message.
func (g *Group) Add(f Func, schedule Schedule) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := len(g.tasks)
	g.tasks = append(g.tasks, &groupTask{id: id, f: f, sched: schedule})
	return id
}

// Start launches every task added so far.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range g.tasks {
		t := t
		wrapped := func(ctx context.Context) { t.f(ctx) }
		t.stop, t.reset = Start(wrapped, t.sched)
	}
}

// Stop stops every task, waiting up to timeout for each to finish its
// current run. Returns an error naming the ids of any tasks still running
// after the timeout.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stuck []int
	for _, t := range g.tasks {
		if t.stop == nil {
			continue
		}

		if err := t.stop(timeout); err != nil {
			stuck = append(stuck, t.id)
		}
	}

	if len(stuck) > 0 {
		return fmt.Errorf("Task(s) still running: IDs %v", stuck)
	}

	return nil
}
