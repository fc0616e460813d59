// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultName is used when a library is created without a name.
	DefaultName = "Main Library"

	instrumentationName = "libraindex/catalog"
)

// Library combines the ordered collection and the index behind one lock and
// counts every public catalog operation.
type Library struct {
	mu         sync.Mutex
	name       string
	books      *Collection
	index      *Index
	operations int
	rng        *rand.Rand

	logger    *slog.Logger
	tracer    trace.Tracer
	opCounter metric.Int64Counter
}

var _ Service = (*Library)(nil)

// Option configures a Library.
type Option func(*Library)

// WithRand sets the random source used by RandomPick. Sharing one seeded
// source with a driver makes whole runs reproducible.
func WithRand(r *rand.Rand) Option {
	return func(l *Library) {
		l.rng = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Library) {
		l.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(l *Library) {
		l.opCounter = newOpCounter(mp)
	}
}

// NewLibrary creates an empty library.
func NewLibrary(name string, opts ...Option) *Library {
	if name == "" {
		name = DefaultName
	}
	l := &Library{
		name:   name,
		books:  NewCollection(),
		index:  NewIndex(),
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if l.opCounter == nil {
		l.opCounter = newOpCounter(otel.GetMeterProvider())
	}
	return l
}

func newOpCounter(mp metric.MeterProvider) metric.Int64Counter {
	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"catalog.operations",
		metric.WithDescription("Catalog operations by name and outcome"),
	)
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}

// count must be called with l.mu held.
func (l *Library) count(ctx context.Context, op string, err error) {
	l.operations++
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrDesync):
		outcome = "desync"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "rejected"
	}
	l.opCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Name returns the library name.
func (l *Library) Name() string { return l.name }

// Len returns the number of items in the ordered collection.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.Len()
}

// Insert adds item unless its unique key is empty or already catalogued.
// The index is consulted first so a rejected item never reaches the collection.
func (l *Library) Insert(ctx context.Context, item Item) (err error) {
	ctx, span := l.tracer.Start(ctx, "catalog.insert")
	defer func() { endSpan(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.count(ctx, "insert", err) }()

	if item == nil || item.Record() == nil {
		return ErrInvalidItem
	}
	rec := item.Record()
	span.SetAttributes(attribute.String("isbn", rec.ISBN()), attribute.String("kind", string(item.Kind())))

	if strings.TrimSpace(rec.ISBN()) == "" {
		l.logger.WarnContext(ctx, "insert rejected", "reason", "empty key", "title", rec.Title)
		return fmt.Errorf("insert %q: %w", rec.Title, ErrEmptyKey)
	}
	if !l.index.Insert(item) {
		l.logger.WarnContext(ctx, "insert rejected", "reason", "duplicate key", "isbn", rec.ISBN())
		return fmt.Errorf("insert isbn %q: %w", rec.ISBN(), ErrDuplicateKey)
	}
	l.books.Append(item)

	l.logger.DebugContext(ctx, "item added", "library", l.name, "isbn", rec.ISBN(), "title", rec.Title)
	return nil
}

// Remove deletes an item given either the Item itself or its unique key.
// A *DesyncError is returned when only one of the collection and the index
// held the item; call Rebuild to recover.
func (l *Library) Remove(ctx context.Context, identifier any) (err error) {
	ctx, span := l.tracer.Start(ctx, "catalog.remove")
	defer func() { endSpan(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.count(ctx, "remove", err) }()

	var item Item
	switch id := identifier.(type) {
	case Item:
		if id.Record() == nil {
			return ErrInvalidItem
		}
		item = id
	case string:
		found, ok := l.index.ByISBN(id)
		if !ok {
			return fmt.Errorf("remove isbn %q: %w", id, ErrNotFound)
		}
		item = found
	default:
		return fmt.Errorf("remove by %T: %w", identifier, ErrInvalidIdentifier)
	}
	span.SetAttributes(attribute.String("isbn", item.Record().ISBN()))

	return l.removeItem(ctx, item)
}

// removeItem must be called with l.mu held.
func (l *Library) removeItem(ctx context.Context, item Item) error {
	rec := item.Record()

	// A different object that merely shares a catalogued key is not a member.
	if indexed, ok := l.index.ByISBN(rec.ISBN()); ok && !sameItem(indexed, item) && !l.books.Contains(item) {
		return fmt.Errorf("remove isbn %q: %w", rec.ISBN(), ErrNotFound)
	}

	inCollection := l.books.Remove(item)
	inIndex := l.index.Remove(item)

	switch {
	case inCollection && inIndex:
		l.logger.DebugContext(ctx, "item removed", "library", l.name, "isbn", rec.ISBN(), "title", rec.Title)
		return nil
	case !inCollection && !inIndex:
		return fmt.Errorf("remove isbn %q: %w", rec.ISBN(), ErrNotFound)
	default:
		desync := &DesyncError{ISBN: rec.ISBN(), InCollection: inCollection, InIndex: inIndex}
		l.logger.ErrorContext(ctx, "catalog desynchronized",
			"library", l.name,
			"isbn", rec.ISBN(),
			"in_collection", inCollection,
			"in_index", inIndex,
		)
		return desync
	}
}

// RemoveByGenre removes every item of genre present at call time and returns
// how many there were. Matches are collected before anything is removed.
func (l *Library) RemoveByGenre(ctx context.Context, genre string) (n int, err error) {
	ctx, span := l.tracer.Start(ctx, "catalog.remove_by_genre",
		trace.WithAttributes(attribute.String("genre", genre)))
	defer func() { endSpan(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.count(ctx, "remove_by_genre", err) }()

	matches := l.books.FindByGenre(genre)
	var errs []error
	for _, item := range matches {
		if rmErr := l.removeItem(ctx, item); rmErr != nil {
			errs = append(errs, rmErr)
		}
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return len(matches), errors.Join(errs...)
}

// SearchByAuthor returns the author's items in insertion order.
func (l *Library) SearchByAuthor(ctx context.Context, author string) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count(ctx, "search_by_author", nil)
	return l.index.ByAuthor(author)
}

// SearchByYear returns the year's items in insertion order.
func (l *Library) SearchByYear(ctx context.Context, year int) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count(ctx, "search_by_year", nil)
	return l.index.ByYear(year)
}

// SearchByISBN returns the single item registered under isbn.
func (l *Library) SearchByISBN(ctx context.Context, isbn string) (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.index.ByISBN(isbn)
	if !ok {
		l.count(ctx, "search_by_isbn", ErrNotFound)
		return nil, false
	}
	l.count(ctx, "search_by_isbn", nil)
	return item, true
}

// SearchByGenre scans the collection for genre.
func (l *Library) SearchByGenre(ctx context.Context, genre string) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count(ctx, "search_by_genre", nil)
	return l.books.FindByGenre(genre)
}

// SearchByTitle returns items whose title contains keyword, ignoring case.
func (l *Library) SearchByTitle(ctx context.Context, keyword string) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count(ctx, "search_by_title", nil)
	keyword = strings.ToLower(keyword)
	return l.books.Filter(func(item Item) bool {
		return strings.Contains(strings.ToLower(item.Record().Title), keyword)
	})
}

// RandomPick returns a uniformly chosen item, or false on an empty catalog.
func (l *Library) RandomPick(ctx context.Context) (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.books.RandomPick(l.rng)
	if !ok {
		l.count(ctx, "random_pick", ErrNotFound)
		return nil, false
	}
	l.count(ctx, "random_pick", nil)
	return item, true
}

// Stats returns a snapshot. It does not count as an operation.
func (l *Library) Stats(_ context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Name:            l.name,
		TotalBooks:      l.books.Len(),
		UniqueAuthors:   l.index.AuthorCount(),
		UniqueYears:     l.index.YearCount(),
		TotalOperations: l.operations,
	}
}

// Contains checks an Item against the collection and a key against the index.
func (l *Library) Contains(identifier any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch id := identifier.(type) {
	case Item:
		return id.Record() != nil && l.books.Contains(id)
	case string:
		return l.index.Contains(id)
	default:
		return false
	}
}

// Books returns a copy of the ordered collection.
func (l *Library) Books() *Collection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewCollection(l.books.Items()...)
}

// Index exposes the live index for diagnostics and fault injection. Callers
// that mutate it are expected to Rebuild afterwards.
func (l *Library) Index() *Index {
	return l.index
}

// Rebuild re-derives the index from the ordered collection, which is the
// source of truth.
func (l *Library) Rebuild(ctx context.Context) {
	ctx, span := l.tracer.Start(ctx, "catalog.rebuild")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.index.Rebuild(l.books)
	span.SetAttributes(attribute.Int("items", l.books.Len()))
	l.logger.InfoContext(ctx, "index rebuilt", "library", l.name, "items", l.books.Len())
}

// Verify reports whether the index agrees with the collection.
func (l *Library) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Verify(l.books)
}

func (l *Library) String() string {
	return fmt.Sprintf("Library(%q, books: %d)", l.name, l.Len())
}
