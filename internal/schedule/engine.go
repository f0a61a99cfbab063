package schedule

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/garden-pump/internal/intent"
)

// DefaultTickInterval is the evaluation period.
const DefaultTickInterval = 30 * time.Second

// persister receives write-through copies of schedule mutations. A nil
// persister keeps the collection in memory only.
type persister interface {
	SaveEntry(Entry) error
	DeleteEntry(id string) error
}

// Engine holds the schedule collection and evaluates it each tick.
// Entries are kept in insertion order; when windows overlap, the first
// match wins and the others are flagged as conflicts, not errors.
type Engine struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	store   persister
	now     func() time.Time

	// conflicts holds the ids shadowed by the first match during the
	// most recent evaluation, for operator visibility.
	conflicts []string
}

// NewEngine creates an engine. store may be nil.
func NewEngine(store persister) *Engine {
	return &Engine{
		entries: make(map[string]*Entry),
		store:   store,
		now:     time.Now,
	}
}

// Restore seeds the collection without writing back to the store.
// Used at startup with entries loaded from persistence.
func (g *Engine) Restore(entries []Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if _, ok := g.entries[e.ID]; !ok {
			g.order = append(g.order, e.ID)
		}
		g.entries[e.ID] = &e
	}
	log.Printf("schedule: restored %d entries", len(entries))
}

// Upsert validates and inserts or replaces an entry by id.
func (g *Engine) Upsert(e Entry) (Entry, error) {
	e.Days = normalizeDays(e.Days)
	if err := validate(e); err != nil {
		return Entry{}, err
	}

	g.mu.Lock()
	if prev, ok := g.entries[e.ID]; ok {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = prev.CreatedAt
		}
	} else {
		g.order = append(g.order, e.ID)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = g.now()
		}
	}
	g.entries[e.ID] = &e
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.SaveEntry(e); err != nil {
			log.Printf("schedule: persist %s failed: %v", e.ID, err)
		}
	}
	log.Printf("schedule: upserted %s: %s for %v", e.ID, e.StartString(), e.Duration)
	return e, nil
}

// Remove deletes an entry by id.
func (g *Engine) Remove(id string) error {
	g.mu.Lock()
	if _, ok := g.entries[id]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	delete(g.entries, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.DeleteEntry(id); err != nil {
			log.Printf("schedule: delete %s from store failed: %v", id, err)
		}
	}
	log.Printf("schedule: removed %s", id)
	return nil
}

// SetEnabled flips one entry's enabled flag.
func (g *Engine) SetEnabled(id string, enabled bool) error {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	e.Enabled = enabled
	snapshot := *e
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.SaveEntry(snapshot); err != nil {
			log.Printf("schedule: persist %s failed: %v", id, err)
		}
	}
	return nil
}

// ToggleEnabled flips an entry and returns the new value.
func (g *Engine) ToggleEnabled(id string) (bool, error) {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	e.Enabled = !e.Enabled
	enabled := e.Enabled
	snapshot := *e
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.SaveEntry(snapshot); err != nil {
			log.Printf("schedule: persist %s failed: %v", id, err)
		}
	}
	return enabled, nil
}

// List returns the entries in insertion order.
func (g *Engine) List() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.entries[id])
	}
	return out
}

// Conflicts returns the schedule ids shadowed by the winning entry in
// the most recent evaluation.
func (g *Engine) Conflicts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.conflicts))
	copy(out, g.conflicts)
	return out
}

// Evaluate computes the intent for the given instant. on and src
// describe the actuator's current state. The second return value is
// false when no action is needed: either nothing matches and the pump
// is not schedule-driven, or the matching schedule is already driving
// the activation (re-activating would re-arm the deadline and truncate
// the remaining run time).
func (g *Engine) Evaluate(now time.Time, on bool, src intent.Source) (intent.Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var winner *Entry
	var remaining time.Duration
	var shadowed []string

	for _, id := range g.order {
		e := g.entries[id]
		if !e.Enabled {
			continue
		}
		rem, active := e.activeAt(now)
		if !active {
			continue
		}
		if winner == nil {
			winner = e
			remaining = rem
		} else {
			shadowed = append(shadowed, e.ID)
		}
	}
	g.conflicts = shadowed

	if winner != nil {
		if on && src.Kind == intent.KindScheduled && src.Detail == winner.ID {
			return intent.Intent{}, false // already driving the activation
		}
		return intent.Activate(intent.Scheduled(winner.ID), remaining), true
	}

	if on && src.Kind == intent.KindScheduled {
		return intent.Deactivate(intent.Scheduled(src.Detail)), true
	}
	return intent.Intent{}, false
}

// activeAt reports whether now falls inside the entry's window and, if
// so, how much of the window remains. The window anchored to yesterday
// is also tested to catch the portion of a midnight-crossing window
// that began on the previous date.
func (e *Entry) activeAt(now time.Time) (time.Duration, bool) {
	for _, dayOffset := range []int{0, -1} {
		anchor := now.AddDate(0, 0, dayOffset)
		if !e.runsOn(Weekday(anchor)) {
			continue
		}
		start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(),
			e.StartHour, e.StartMinute, 0, 0, now.Location())
		end := start.Add(e.Duration)
		if !now.Before(start) && now.Before(end) {
			return end.Sub(now), true
		}
	}
	return 0, false
}

// Run drives the evaluation loop. Each tick reads the actuator state
// through status and submits at most one intent. It returns when stop
// is closed.
func (g *Engine) Run(stop <-chan struct{}, tick <-chan time.Time, status func() (bool, intent.Source), submit func(intent.Intent)) {
	for {
		select {
		case <-stop:
			return
		case now := <-tick:
			on, src := status()
			if it, ok := g.Evaluate(now, on, src); ok {
				submit(it)
			}
		}
	}
}
