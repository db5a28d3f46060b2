package v2

import "container/list"

// negativeCache is a fixed-capacity LRU set used to remember "this primary
// key is known missing" during a full scan, so a directory with many range
// keys under one missing primary does not re-read the KV store for every
// one of them (spec.md §4.2: "checked via a 100-entry LRU negative cache to
// avoid quadratic lookups").
type negativeCache struct {
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

func newNegativeCache(capacity int) *negativeCache {
	return &negativeCache{capacity: capacity, ll: list.New(), index: make(map[string]*list.Element)}
}

func (c *negativeCache) Contains(key string) bool {
	el, ok := c.index[key]
	if !ok {
		return false
	}
	c.ll.MoveToFront(el)
	return true
}

func (c *negativeCache) Add(key string) {
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(key)
	c.index[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(string))
		}
	}
}
