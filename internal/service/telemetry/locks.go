package telemetry

import "sync"

// routeLocks hands out one mutex per route so that read-modify-write cycles
// for the same route serialize while distinct routes proceed in parallel.
type routeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRouteLocks() *routeLocks {
	return &routeLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *routeLocks) get(route string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[route]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[route] = lock
	}
	return lock
}
