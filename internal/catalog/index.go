// internal/catalog/index.go
package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// KeySpace names which mapping of the Index answered a lookup.
type KeySpace string

const (
	KeyISBN   KeySpace = "isbn"
	KeyAuthor KeySpace = "author"
	KeyYear   KeySpace = "year"
)

// Match is the result of Index.Lookup. For KeyISBN, Items holds exactly one item.
type Match struct {
	Space KeySpace
	Items []Item
}

// Index keeps three keyed views over the catalog: isbn -> item, and
// author/year -> items in insertion order. It is derived state; the
// Collection is the source of truth for membership.
type Index struct {
	byISBN   map[string]entry
	byAuthor map[string][]Item
	byYear   map[int][]Item
}

// entry remembers the keys an item was filed under, so removal still finds
// it if the item's fields change afterwards.
type entry struct {
	item   Item
	author string
	year   int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byISBN:   make(map[string]entry),
		byAuthor: make(map[string][]Item),
		byYear:   make(map[int][]Item),
	}
}

// Insert registers item under all three keys. It returns false without
// mutating anything when the key is empty or already present.
func (x *Index) Insert(item Item) bool {
	if item == nil || item.Record() == nil {
		return false
	}
	rec := item.Record()
	key := rec.ISBN()
	if strings.TrimSpace(key) == "" {
		return false
	}
	if _, exists := x.byISBN[key]; exists {
		return false
	}

	x.byISBN[key] = entry{item: item, author: rec.Author, year: rec.Year}
	x.byAuthor[rec.Author] = append(x.byAuthor[rec.Author], item)
	x.byYear[rec.Year] = append(x.byYear[rec.Year], item)
	return true
}

// Remove drops item from all three keys, deleting author and year keys whose
// lists become empty. The author and year lists are searched under the keys
// recorded at insert time. It returns false when the key is not indexed, or
// when the item was missing from one of its lists; in the latter case the
// unique key has already been dropped and the index needs a Rebuild.
func (x *Index) Remove(item Item) bool {
	if item == nil || item.Record() == nil {
		return false
	}
	key := item.Record().ISBN()
	e, exists := x.byISBN[key]
	if !exists {
		return false
	}
	delete(x.byISBN, key)

	list, inAuthor := removeFrom(x.byAuthor[e.author], key)
	if len(list) == 0 {
		delete(x.byAuthor, e.author)
	} else {
		x.byAuthor[e.author] = list
	}
	list, inYear := removeFrom(x.byYear[e.year], key)
	if len(list) == 0 {
		delete(x.byYear, e.year)
	} else {
		x.byYear[e.year] = list
	}
	return inAuthor && inYear
}

// removeFrom deletes the entry with the given unique key and reports whether
// it was there.
func removeFrom(list []Item, key string) ([]Item, bool) {
	i := slices.IndexFunc(list, func(held Item) bool {
		return held.Record().ISBN() == key
	})
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

// Lookup resolves key against the index. A string is tried as a unique key
// first, then as an author; an int is a year and always yields a (possibly
// empty) list.
func (x *Index) Lookup(key any) (Match, error) {
	switch k := key.(type) {
	case string:
		if e, ok := x.byISBN[k]; ok {
			return Match{Space: KeyISBN, Items: []Item{e.item}}, nil
		}
		if list, ok := x.byAuthor[k]; ok {
			return Match{Space: KeyAuthor, Items: slices.Clone(list)}, nil
		}
		return Match{}, fmt.Errorf("key %q: %w", k, ErrNotFound)
	case int:
		return Match{Space: KeyYear, Items: x.ByYear(k)}, nil
	default:
		return Match{}, fmt.Errorf("lookup key of type %T: %w", key, ErrInvalidIdentifier)
	}
}

// ByISBN returns the item registered under key.
func (x *Index) ByISBN(key string) (Item, bool) {
	e, ok := x.byISBN[key]
	return e.item, ok
}

// ByAuthor returns a copy of the author's list, empty when unknown.
func (x *Index) ByAuthor(author string) []Item {
	return cloneOrEmpty(x.byAuthor[author])
}

// ByYear returns a copy of the year's list, empty when unknown.
func (x *Index) ByYear(year int) []Item {
	return cloneOrEmpty(x.byYear[year])
}

func cloneOrEmpty(list []Item) []Item {
	if len(list) == 0 {
		return []Item{}
	}
	return slices.Clone(list)
}

// Contains reports whether key is registered.
func (x *Index) Contains(key string) bool {
	_, ok := x.byISBN[key]
	return ok
}

func (x *Index) Len() int         { return len(x.byISBN) }
func (x *Index) AuthorCount() int { return len(x.byAuthor) }
func (x *Index) YearCount() int   { return len(x.byYear) }

// Rebuild discards all mappings and re-indexes c in order.
func (x *Index) Rebuild(c *Collection) {
	clear(x.byISBN)
	clear(x.byAuthor)
	clear(x.byYear)
	for item := range c.All() {
		x.Insert(item)
	}
}

// Verify checks that every item of c is indexed exactly once under each key
// and that the index holds nothing else.
func (x *Index) Verify(c *Collection) error {
	if x.Len() != c.Len() {
		return fmt.Errorf("index holds %d keys, collection holds %d items: %w", x.Len(), c.Len(), ErrDesync)
	}
	for item := range c.All() {
		rec := item.Record()
		e, ok := x.byISBN[rec.ISBN()]
		if !ok || !sameItem(e.item, item) {
			return fmt.Errorf("isbn %q not indexed: %w", rec.ISBN(), ErrDesync)
		}
		if e.author != rec.Author || e.year != rec.Year {
			return fmt.Errorf("isbn %q filed under %q/%d but now %q/%d: %w",
				rec.ISBN(), e.author, e.year, rec.Author, rec.Year, ErrDesync)
		}
		if n := countOf(x.byAuthor[rec.Author], item); n != 1 {
			return fmt.Errorf("isbn %q listed %d times under author %q: %w", rec.ISBN(), n, rec.Author, ErrDesync)
		}
		if n := countOf(x.byYear[rec.Year], item); n != 1 {
			return fmt.Errorf("isbn %q listed %d times under year %d: %w", rec.ISBN(), n, rec.Year, ErrDesync)
		}
	}
	listed := 0
	for author, list := range x.byAuthor {
		if len(list) == 0 {
			return fmt.Errorf("empty list kept for author %q: %w", author, ErrDesync)
		}
		listed += len(list)
	}
	if listed != c.Len() {
		return fmt.Errorf("author lists hold %d entries for %d items: %w", listed, c.Len(), ErrDesync)
	}
	listed = 0
	for year, list := range x.byYear {
		if len(list) == 0 {
			return fmt.Errorf("empty list kept for year %d: %w", year, ErrDesync)
		}
		listed += len(list)
	}
	if listed != c.Len() {
		return fmt.Errorf("year lists hold %d entries for %d items: %w", listed, c.Len(), ErrDesync)
	}
	return nil
}

func countOf(list []Item, item Item) int {
	n := 0
	for _, held := range list {
		if sameItem(held, item) {
			n++
		}
	}
	return n
}
