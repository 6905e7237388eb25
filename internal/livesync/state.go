// Package livesync maintains the in-memory mirror of the remote collections.
// The mirror is mutated only by snapshot application from the subscription
// path; write-initiating code never touches it, so reads can never observe a
// write the store has not acknowledged and echoed back.
package livesync

import (
	"sync"

	"promptlib/api/internal/store"
)

// Change identifies which collection's mirror was replaced.
type Change struct {
	Collection string
}

type State struct {
	mu             sync.RWMutex
	categories     []store.Category
	prompts        []store.Prompt
	categoriesSeen bool
	promptsSeen    bool

	listenerMu sync.Mutex
	nextID     int
	listeners  map[int]chan Change
}

func NewState() *State {
	return &State{
		categories: []store.Category{},
		prompts:    []store.Prompt{},
		listeners:  make(map[int]chan Change),
	}
}

// ApplyCategorySnapshot replaces the categories mirror wholesale. The slice
// is expected in name-ascending order as delivered by the store.
func (s *State) ApplyCategorySnapshot(docs []store.Category) {
	s.mu.Lock()
	s.categories = append([]store.Category(nil), docs...)
	s.categoriesSeen = true
	s.mu.Unlock()
	s.broadcast(Change{Collection: store.CollectionCategories})
}

// ApplyPromptSnapshot replaces the prompts mirror wholesale. The slice is
// expected in created-date-descending order as delivered by the store.
func (s *State) ApplyPromptSnapshot(docs []store.Prompt) {
	s.mu.Lock()
	s.prompts = append([]store.Prompt(nil), docs...)
	s.promptsSeen = true
	s.mu.Unlock()
	s.broadcast(Change{Collection: store.CollectionPrompts})
}

func (s *State) Categories() []store.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Category(nil), s.categories...)
}

func (s *State) Prompts() []store.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Prompt(nil), s.prompts...)
}

func (s *State) PromptByID(id string) (store.Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.prompts {
		if p.ID == id {
			return p, true
		}
	}
	return store.Prompt{}, false
}

func (s *State) CategoryByID(id string) (store.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return store.Category{}, false
}

func (s *State) CategoryNameExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// IsEmpty reports whether both mirrors are empty. It is the sole trigger
// condition for seeding, so it is only meaningful once BothObserved is true.
func (s *State) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories) == 0 && len(s.prompts) == 0
}

// BothObserved reports whether each collection has delivered at least one
// snapshot. The two streams have no ordering guarantee between them.
func (s *State) BothObserved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoriesSeen && s.promptsSeen
}

// Listen registers a change listener for mirror replacements. Slow listeners
// miss intermediate changes rather than blocking snapshot application.
func (s *State) Listen() (int, <-chan Change) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.nextID++
	id := s.nextID
	ch := make(chan Change, 4)
	s.listeners[id] = ch
	return id, ch
}

func (s *State) Unlisten(id int) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if ch, ok := s.listeners[id]; ok {
		delete(s.listeners, id)
		close(ch)
	}
}

func (s *State) broadcast(change Change) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- change:
		default:
		}
	}
}
