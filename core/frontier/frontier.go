package frontier

import (
	"container/heap"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/model"
)

// Frontier schedules the documents still to crawl. Entries are ordered by
// priority band, then by depth, then first in first out. A document that was
// ever queued or visited is never enqueued again.
type Frontier struct {
	mu       sync.Mutex
	maxDepth int
	queue    entryQueue
	queued   map[string]bool
	visited  map[string]bool
	seq      int
	closed   bool
}

// NewFrontier creates a frontier dropping links deeper than maxDepth.
func NewFrontier(maxDepth int) *Frontier {
	return &Frontier{
		maxDepth: maxDepth,
		queued:   map[string]bool{},
		visited:  map[string]bool{},
	}
}

// Seed enqueues the run's seed documents at depth zero and top priority. It
// returns the number of entries actually enqueued.
func (f *Frontier) Seed(targets []string) int {
	links := make([]model.Link, 0, len(targets))
	for _, target := range targets {
		links = append(links, model.Link{Target: target})
	}
	return f.Push(links, 0, uuid.Nil, model.BandConfirmed)
}

// Push enqueues the links discovered while processing a document. Visited and
// already queued targets are skipped, as are links beyond the depth bound. It
// returns the number of entries actually enqueued.
func (f *Frontier) Push(links []model.Link, depth int, discoveredBy uuid.UUID, band model.PriorityBand) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || depth > f.maxDepth {
		return 0
	}

	pushed := 0
	for _, link := range links {
		target := strings.TrimSpace(link.Target)
		key := normalizeTarget(target)
		if key == "" || f.queued[key] || f.visited[key] {
			continue
		}

		f.queued[key] = true
		f.seq++
		heap.Push(&f.queue, &queuedEntry{
			FrontierEntry: model.FrontierEntry{
				Target:       target,
				Depth:        depth,
				Band:         band,
				DiscoveredBy: discoveredBy,
				Relationship: link.Relationship,
			},
			seq: f.seq,
		})
		pushed++
	}
	return pushed
}

// Next pops the highest priority entry and marks it visited, so the same
// document can never be fetched twice. It reports false when the frontier is
// exhausted or closed.
func (f *Frontier) Next() (*model.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.queue.Len() == 0 {
		return nil, false
	}

	entry := heap.Pop(&f.queue).(*queuedEntry)
	key := normalizeTarget(entry.Target)
	delete(f.queued, key)
	f.visited[key] = true

	out := entry.FrontierEntry
	return &out, true
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// Visited reports whether the document was already popped for fetching.
func (f *Frontier) Visited(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[normalizeTarget(target)]
}

// Close stops the frontier. Next reports exhaustion from now on, the engine
// closes the frontier when the entity budget is reached.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// normalizeTarget folds a document title into its dedupe key. MediaWiki
// treats underscores and spaces as the same title.
func normalizeTarget(target string) string {
	target = strings.ReplaceAll(target, "_", " ")
	return strings.ToLower(strings.Join(strings.Fields(target), " "))
}

type queuedEntry struct {
	model.FrontierEntry
	seq int
}

type entryQueue []*queuedEntry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].Band != q[j].Band {
		return q[i].Band < q[j].Band
	}
	if q[i].Depth != q[j].Depth {
		return q[i].Depth < q[j].Depth
	}
	return q[i].seq < q[j].seq
}

func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *entryQueue) Push(x any) {
	*q = append(*q, x.(*queuedEntry))
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}
