package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/openfga/mpath/pkg/storage"
)

// nodeIterator pages over the nodes of a collection in (path, id) or id order.
// Each page is copied under the read lock, starting after the last node of the previous page,
// so writes made between pages are observed the way a paginated SQL cursor observes them.
type nodeIterator struct {
	backend    *MemoryBackend
	collection string
	filter     storage.NodeFilter
	sortByPath bool
	pageSize   int

	buffer []*storage.Node // GUARDED_BY(mu)
	last   *storage.Node   // GUARDED_BY(mu)
	done   bool            // GUARDED_BY(mu)
	mu     sync.Mutex
}

var _ storage.NodeIterator = (*nodeIterator)(nil)

func (it *nodeIterator) compare(a, b *storage.Node) int {
	if it.sortByPath {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}

func (it *nodeIterator) fetchPage() {
	it.backend.mu.RLock()
	defer it.backend.mu.RUnlock()

	var candidates []*storage.Node
	for _, n := range it.backend.collections[it.collection] {
		if it.last != nil && it.compare(n, it.last) <= 0 {
			continue
		}
		if storage.MatchNode(n, it.filter) {
			candidates = append(candidates, n)
		}
	}
	slices.SortFunc(candidates, it.compare)

	if len(candidates) <= it.pageSize {
		it.done = true
	} else {
		candidates = candidates[:it.pageSize]
	}

	page := make([]*storage.Node, 0, len(candidates))
	for _, n := range candidates {
		page = append(page, n.Clone())
	}
	it.buffer = page
	if len(page) > 0 {
		it.last = page[len(page)-1]
	}
}

// Next see [storage.Iterator].Next.
func (it *nodeIterator) Next(ctx context.Context) (*storage.Node, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if len(it.buffer) == 0 {
		if it.done {
			return nil, storage.ErrIteratorDone
		}
		it.fetchPage()
		if len(it.buffer) == 0 {
			return nil, storage.ErrIteratorDone
		}
	}

	next := it.buffer[0]
	it.buffer = it.buffer[1:]
	return next, nil
}

// Stop terminates iteration.
func (it *nodeIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.buffer = nil
	it.done = true
}
