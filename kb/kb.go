package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/icedrift/core"
	"github.com/signalsfoundry/icedrift/model"
)

// EventType indicates what kind of change happened in the Catalog.
type EventType int

const (
	EventGridAdded EventType = iota
	EventObservationAdded
)

// Event is emitted to subscribers when an entry is added.
type Event struct {
	Type        EventType
	Resolution  model.Resolution
	Observation string
}

// Catalog is an in-memory, thread-safe store of velocity grids keyed by
// resolution and buoy observations keyed by name.
type Catalog struct {
	mu sync.RWMutex

	grids        map[model.Resolution]*core.Grid
	observations map[string]*model.Observation

	subs   map[int]func(Event)
	nextID int
}

// NewCatalog constructs an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		grids:        make(map[model.Resolution]*core.Grid),
		observations: make(map[string]*model.Observation),
		subs:         make(map[int]func(Event)),
	}
}

// AddGrid stores a grid. There is at most one grid per resolution.
func (c *Catalog) AddGrid(g *core.Grid) error {
	if g == nil {
		return fmt.Errorf("grid is nil")
	}
	c.mu.Lock()
	if _, exists := c.grids[g.Resolution]; exists {
		c.mu.Unlock()
		return fmt.Errorf("grid for resolution %v already exists", g.Resolution)
	}
	c.grids[g.Resolution] = g
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventGridAdded, Resolution: g.Resolution})
	return nil
}

// AddObservation stores a validated buoy record.
func (c *Catalog) AddObservation(o *model.Observation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.observations[o.Name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("observation %q already exists", o.Name)
	}
	c.observations[o.Name] = o
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventObservationAdded, Observation: o.Name})
	return nil
}

// AddScenario stores every grid and observation of a loaded scenario,
// stopping at the first conflict.
func (c *Catalog) AddScenario(sc *core.Scenario) error {
	for _, g := range sc.Grids {
		if err := c.AddGrid(g); err != nil {
			return err
		}
	}
	for _, o := range sc.Observations {
		if err := c.AddObservation(o); err != nil {
			return err
		}
	}
	return nil
}

// Grid returns the grid of a resolution, or nil if not found.
func (c *Catalog) Grid(res model.Resolution) *core.Grid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grids[res]
}

// Observation returns the named observation, or nil if not found.
func (c *Catalog) Observation(name string) *model.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observations[name]
}

// ListGrids returns all grids ordered by resolution.
func (c *Catalog) ListGrids() []*core.Grid {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]*core.Grid, 0, len(c.grids))
	for _, g := range c.grids {
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Resolution < res[j].Resolution })
	return res
}

// ListObservations returns all observations ordered by name.
func (c *Catalog) ListObservations() []*model.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]*model.Observation, 0, len(c.observations))
	for _, o := range c.observations {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Subscribe registers a callback for Catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// snapshotSubs must be called with mu held.
func (c *Catalog) snapshotSubs() []func(Event) {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

// notify runs outside the lock so callbacks may query the Catalog.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
