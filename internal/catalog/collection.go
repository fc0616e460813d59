// internal/catalog/collection.go
package catalog

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"strings"
)

// Collection holds items in insertion order. It performs no uniqueness
// checks; that is the Index's job.
type Collection struct {
	items []Item
}

// NewCollection returns a collection holding a copy of items.
func NewCollection(items ...Item) *Collection {
	return &Collection{items: slices.Clone(items)}
}

// Len returns the number of items.
func (c *Collection) Len() int { return len(c.items) }

// Append adds item to the end. Nil items are ignored.
func (c *Collection) Append(item Item) {
	if item == nil || item.Record() == nil {
		return
	}
	c.items = append(c.items, item)
}

// Remove deletes the first occurrence of item, compared by identity.
func (c *Collection) Remove(item Item) bool {
	i := c.indexOf(item)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

// Contains reports whether this exact item is held.
func (c *Collection) Contains(item Item) bool {
	return c.indexOf(item) >= 0
}

func (c *Collection) indexOf(item Item) int {
	if item == nil || item.Record() == nil {
		return -1
	}
	return slices.IndexFunc(c.items, func(held Item) bool {
		return sameItem(held, item)
	})
}

// At returns the item at position i. Negative positions count from the end.
func (c *Collection) At(i int) (Item, bool) {
	if i < 0 {
		i += len(c.items)
	}
	if i < 0 || i >= len(c.items) {
		return nil, false
	}
	return c.items[i], true
}

// Slice returns a new collection over [start, end). Bounds behave like
// sequence slicing: negatives count from the end and out-of-range values clamp.
func (c *Collection) Slice(start, end int) *Collection {
	n := len(c.items)
	start = clampBound(start, n)
	end = clampBound(end, n)
	if start >= end {
		return NewCollection()
	}
	return NewCollection(c.items[start:end]...)
}

func clampBound(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
	}
	if i > n {
		return n
	}
	return i
}

// FindByGenre returns every item of genre in collection order.
func (c *Collection) FindByGenre(genre string) []Item {
	return c.Filter(func(item Item) bool {
		return item.Record().Genre == genre
	})
}

// Filter returns every item matching pred in collection order.
func (c *Collection) Filter(pred func(Item) bool) []Item {
	result := make([]Item, 0)
	for _, item := range c.items {
		if pred(item) {
			result = append(result, item)
		}
	}
	return result
}

// RandomPick returns a uniformly chosen item, or false when empty.
func (c *Collection) RandomPick(r *rand.Rand) (Item, bool) {
	if len(c.items) == 0 {
		return nil, false
	}
	return c.items[r.IntN(len(c.items))], true
}

// Items returns a copy of the underlying sequence.
func (c *Collection) Items() []Item {
	return slices.Clone(c.items)
}

// All iterates over the items in order.
func (c *Collection) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, item := range c.items {
			if !yield(item) {
				return
			}
		}
	}
}

func (c *Collection) String() string {
	titles := make([]string, 0, 4)
	for _, item := range c.items[:min(3, len(c.items))] {
		titles = append(titles, fmt.Sprintf("'%s'", item.Record().Title))
	}
	if len(c.items) > 3 {
		titles = append(titles, fmt.Sprintf("...(+%d)", len(c.items)-3))
	}
	return fmt.Sprintf("Collection([%s])", strings.Join(titles, ", "))
}
