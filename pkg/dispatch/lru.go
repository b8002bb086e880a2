package dispatch

import (
	"container/list"
	"sync"

	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
)

// CatalogueLRU is the process-wide bounded cache of open catalogues
// described in spec §5: "The open-catalogue LRU is process-wide;
// mutation is guarded by a single mutex." Default capacity is
// fdbMaxOpenDatabases (16), per spec §5's resource budgets.
type CatalogueLRU struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	key string
	cat *catalogue.Catalogue
}

// NewCatalogueLRU returns an LRU bounded to capacity entries. A
// non-positive capacity is replaced with the spec default of 16.
func NewCatalogueLRU(capacity int) *CatalogueLRU {
	if capacity <= 0 {
		capacity = 16
	}
	return &CatalogueLRU{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached catalogue for key, promoting it to
// most-recently-used, or (nil, false) if absent.
func (l *CatalogueLRU) Get(key string) (*catalogue.Catalogue, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[key]
	if !ok {
		return nil, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruEntry).cat, true
}

// Put inserts cat under key, evicting (and closing) the
// least-recently-used entry if the cache is at capacity. If key is
// already present its prior catalogue is closed and replaced.
func (l *CatalogueLRU) Put(key string, cat *catalogue.Catalogue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[key]; ok {
		l.order.MoveToFront(el)
		old := el.Value.(*lruEntry)
		if old.cat != cat {
			l.closeEvicted(key, old.cat)
			old.cat = cat
		}
		return
	}

	el := l.order.PushFront(&lruEntry{key: key, cat: cat})
	l.items[key] = el

	for l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*lruEntry)
		l.order.Remove(oldest)
		delete(l.items, entry.key)
		l.closeEvicted(entry.key, entry.cat)
	}
}

// closeEvicted runs the LRU's eviction callback: flush and release the
// catalogue's resources (spec §3: "Closing flushes and releases
// resources").
func (l *CatalogueLRU) closeEvicted(key string, cat *catalogue.Catalogue) {
	if err := cat.Close(); err != nil {
		logging.WithComponent("dispatch").Warn().Err(err).Str("database", key).Msg("error closing evicted catalogue")
	}
}

// CloseAll evicts and closes every cached catalogue.
func (l *CatalogueLRU) CloseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.order.Len() > 0 {
		oldest := l.order.Back()
		entry := oldest.Value.(*lruEntry)
		l.order.Remove(oldest)
		delete(l.items, entry.key)
		l.closeEvicted(entry.key, entry.cat)
	}
}

// Len returns the current number of cached entries.
func (l *CatalogueLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
