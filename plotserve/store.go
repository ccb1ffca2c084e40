package plotserve

import (
	"sync"
	"time"

	"github.com/tsawler/wastenet/training"
)

// defaultStoreLimit bounds how many plots the viewer keeps in memory. A
// batch size sweep publishes a handful of plots per run, so this leaves
// generous headroom before old plots roll off.
const defaultStoreLimit = 512

// storedPlot is a received plot plus the bookkeeping needed to serve and
// list it
type storedPlot struct {
	ID         string
	BatchID    string
	ReceivedAt time.Time
	Data       training.PlotData
}

// plotStore holds received plots in memory in arrival order. Once the limit
// is reached the oldest plot is dropped, along with its batch membership.
type plotStore struct {
	mu      sync.RWMutex
	limit   int
	plots   map[string]*storedPlot
	order   []string
	batches map[string][]string
}

func newPlotStore(limit int) *plotStore {
	if limit < 1 {
		limit = defaultStoreLimit
	}
	return &plotStore{
		limit:   limit,
		plots:   make(map[string]*storedPlot),
		batches: make(map[string][]string),
	}
}

// add stores a plot under the given id. A non-empty batchID groups the plot
// with the rest of its batch for the dashboard page.
func (ps *plotStore) add(id, batchID string, data training.PlotData) *storedPlot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p := &storedPlot{
		ID:         id,
		BatchID:    batchID,
		ReceivedAt: time.Now(),
		Data:       data,
	}
	ps.plots[id] = p
	ps.order = append(ps.order, id)
	if batchID != "" {
		ps.batches[batchID] = append(ps.batches[batchID], id)
	}

	for len(ps.order) > ps.limit {
		ps.evictOldest()
	}
	return p
}

// evictOldest drops the oldest plot. Callers hold the write lock.
func (ps *plotStore) evictOldest() {
	id := ps.order[0]
	ps.order = ps.order[1:]

	p, ok := ps.plots[id]
	if !ok {
		return
	}
	delete(ps.plots, id)
	if p.BatchID == "" {
		return
	}

	ids := ps.batches[p.BatchID]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(ps.batches, p.BatchID)
	} else {
		ps.batches[p.BatchID] = ids
	}
}

func (ps *plotStore) get(id string) (*storedPlot, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.plots[id]
	return p, ok
}

// batch returns the batch's surviving plots in arrival order
func (ps *plotStore) batch(batchID string) []*storedPlot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	ids := ps.batches[batchID]
	out := make([]*storedPlot, 0, len(ids))
	for _, id := range ids {
		if p, ok := ps.plots[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// recent returns up to n plots, newest first
func (ps *plotStore) recent(n int) []*storedPlot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if n > len(ps.order) {
		n = len(ps.order)
	}
	out := make([]*storedPlot, 0, n)
	for i := len(ps.order) - 1; i >= 0 && len(out) < n; i-- {
		if p, ok := ps.plots[ps.order[i]]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (ps *plotStore) size() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.order)
}
