package scheduling

import (
	"sync"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

// localView holds the optimistic value of every move still being
// confirmed. Entries leave the view once the store has answered.
type localView struct {
	mu     sync.RWMutex
	moving map[string]calendar.Event
}

func newLocalView() *localView {
	return &localView{moving: make(map[string]calendar.Event)}
}

func (v *localView) get(id string) (calendar.Event, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ev, ok := v.moving[id]
	if !ok {
		return calendar.Event{}, false
	}
	return ev.Clone(), true
}

// pin publishes an optimistic value until release.
func (v *localView) pin(ev calendar.Event) {
	v.mu.Lock()
	v.moving[ev.ID] = ev.Clone()
	v.mu.Unlock()
}

func (v *localView) release(id string) {
	v.mu.Lock()
	delete(v.moving, id)
	v.mu.Unlock()
}

func (v *localView) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.moving)
}

// keyedMutex serialises work per event id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// lock blocks until id is free and returns the matching unlock.
func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
