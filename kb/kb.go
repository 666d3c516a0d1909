package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/impact-simulator/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventObjectAdded EventType = iota
	EventObjectUpdated
)

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type   EventType
	Object model.NEORecord
}

// KnowledgeBase is an in-memory, thread-safe catalog of near-Earth objects.
type KnowledgeBase struct {
	mu sync.RWMutex

	objects map[string]*model.NEORecord

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		objects: make(map[string]*model.NEORecord),
		subs:    make(map[int]func(Event)),
	}
}

// AddObject adds a new record. It returns an error if the ID is empty or
// already present.
func (kb *KnowledgeBase) AddObject(r model.NEORecord) error {
	if r.ID == "" {
		return fmt.Errorf("object %q has no ID", r.Name)
	}
	kb.mu.Lock()
	if _, exists := kb.objects[r.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("object with ID %q already exists", r.ID)
	}
	kb.objects[r.ID] = &r
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventObjectAdded, Object: r})
	return nil
}

// UpsertObjects merges a page of records, replacing any with the same ID.
// Records without an ID are skipped. It returns how many were new.
func (kb *KnowledgeBase) UpsertObjects(records []model.NEORecord) int {
	events := make([]Event, 0, len(records))

	kb.mu.Lock()
	added := 0
	for i := range records {
		r := records[i]
		if r.ID == "" {
			continue
		}
		typ := EventObjectUpdated
		if _, exists := kb.objects[r.ID]; !exists {
			typ = EventObjectAdded
			added++
		}
		kb.objects[r.ID] = &r
		events = append(events, Event{Type: typ, Object: r})
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	for _, ev := range events {
		notify(subs, ev)
	}
	return added
}

// GetObject returns a copy of the record with the given ID.
func (kb *KnowledgeBase) GetObject(id string) (model.NEORecord, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	r, ok := kb.objects[id]
	if !ok {
		return model.NEORecord{}, false
	}
	return *r, true
}

// ListObjects returns a snapshot of the catalog: potentially hazardous
// objects first, then by mean diameter, largest first. Ties sort by ID.
func (kb *KnowledgeBase) ListObjects() []model.NEORecord {
	kb.mu.RLock()
	res := make([]model.NEORecord, 0, len(kb.objects))
	for _, r := range kb.objects {
		res = append(res, *r)
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Hazardous != b.Hazardous {
			return a.Hazardous
		}
		da, db := a.MeanDiameterMeters(), b.MeanDiameterMeters()
		if da != db {
			return da > db
		}
		return a.ID < b.ID
	})
	return res
}

// Len returns the number of catalogued objects.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.objects)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for i := 0; i < kb.nextSub; i++ {
		if fn, ok := kb.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

// Subscribers run outside the lock to avoid deadlocks.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
