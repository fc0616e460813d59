// internal/simulation/simulation.go
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"libraindex/internal/catalog"
)

// Event is one of the six randomly chosen step actions.
type Event string

const (
	EventAddBook           Event = "add_book"
	EventRemoveBook        Event = "remove_book"
	EventSearchAuthor      Event = "search_author"
	EventSearchYear        Event = "search_year"
	EventSearchNonexistent Event = "search_nonexistent"
	EventCheckStats        Event = "check_stats"
)

// Events lists every step action; each step picks one uniformly.
var Events = []Event{
	EventAddBook,
	EventRemoveBook,
	EventSearchAuthor,
	EventSearchYear,
	EventSearchNonexistent,
	EventCheckStats,
}

// Outcome counters recorded by the step actions.
const (
	OutcomeAddBook           = "add_book"
	OutcomeAddBookFailed     = "add_book_failed"
	OutcomeRemoveBook        = "remove_book"
	OutcomeRemoveBookFailed  = "remove_book_failed"
	OutcomeRemoveBookEmpty   = "remove_book_empty"
	OutcomeSearchAuthor      = "search_author"
	OutcomeSearchYear        = "search_year"
	OutcomeSearchEmpty       = "search_empty"
	OutcomeSearchNonexistent = "search_nonexistent"
	OutcomeCheckStats        = "check_stats"
	OutcomeIndexRebuilt      = "index_rebuilt"
)

const instrumentationName = "libraindex/simulation"

// Entry is one line of the run journal.
type Entry struct {
	Step    int       `json:"step"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[step %3d | %s] %s", e.Step, e.Time.Format(time.TimeOnly), e.Message)
}

// Simulation drives a catalog through a seeded sequence of random events.
type Simulation struct {
	mu sync.Mutex

	cfg     Config
	runID   uuid.UUID
	seed    uint64
	rng     *rand.Rand
	lib     *catalog.Library
	limiter *rate.Limiter

	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	catalogOpts []catalog.Option

	step    int
	journal []Entry
	counts  map[string]int
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the structured logger for the simulation and its catalog.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulation) {
		s.logger = logger
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Simulation) {
		s.tracer = tp.Tracer(instrumentationName)
	}
}

// WithClock replaces time.Now for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulation) {
		s.now = now
	}
}

// WithCatalogOptions passes extra options to the simulated catalog. The
// simulation always supplies its own random source and logger first.
func WithCatalogOptions(opts ...catalog.Option) Option {
	return func(s *Simulation) {
		s.catalogOpts = append(s.catalogOpts, opts...)
	}
}

// New creates a simulation and stocks its catalog with the initial items.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}

	s := &Simulation{
		cfg:    cfg,
		runID:  uuid.New(),
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
		counts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Seed != nil {
		s.seed = *cfg.Seed
	} else {
		s.seed = rand.Uint64()
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed))

	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = DefaultBurst
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	s.logger = s.logger.With("run_id", s.runID.String())
	libOpts := append([]catalog.Option{
		catalog.WithRand(s.rng),
		catalog.WithLogger(s.logger),
	}, s.catalogOpts...)
	s.lib = catalog.NewLibrary(cfg.LibraryName, libOpts...)

	ctx := context.Background()
	initial := initialItems()
	for _, item := range initial {
		if err := s.lib.Insert(ctx, item); err != nil {
			return nil, fmt.Errorf("stock initial item %s: %w", item.Record().ISBN(), err)
		}
	}
	s.record("initialized: added %d starting items", len(initial))
	return s, nil
}

// Run executes exactly steps steps, waiting on the rate limiter between them
// when pacing is configured. It stops early only when ctx is done.
func (s *Simulation) Run(ctx context.Context, steps int) (err error) {
	ctx, span := s.tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("run.id", s.runID.String()),
		attribute.Int("steps", steps),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if steps < 0 {
		return fmt.Errorf("steps must not be negative, got %d", steps)
	}

	s.logger.InfoContext(ctx, "simulation started", "seed", s.seed, "steps", steps, "rate", s.cfg.Rate)
	for range steps {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("pacing step %d: %w", s.Steps()+1, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("simulation interrupted after %d steps: %w", s.Steps(), err)
		}
		s.Step(ctx)
	}
	s.logger.InfoContext(ctx, "simulation finished", "steps", s.Steps())
	return nil
}

// Step runs one uniformly chosen event and returns it.
func (s *Simulation) Step(ctx context.Context) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step++
	event := Events[s.rng.IntN(len(Events))]
	switch event {
	case EventAddBook:
		s.addBook(ctx)
	case EventRemoveBook:
		s.removeBook(ctx)
	case EventSearchAuthor:
		s.searchAuthor(ctx)
	case EventSearchYear:
		s.searchYear(ctx)
	case EventSearchNonexistent:
		s.searchNonexistent(ctx)
	case EventCheckStats:
		s.checkStats(ctx)
	}
	s.logger.InfoContext(ctx, "simulation step", "step", s.step, "event", string(event))
	return event
}

func (s *Simulation) addBook(ctx context.Context) {
	item := randomItem(s.rng)
	rec := item.Record()
	if err := s.lib.Insert(ctx, item); err != nil {
		reason := "rejected"
		if errors.Is(err, catalog.ErrDuplicateKey) {
			reason = "duplicate key " + rec.ISBN()
		}
		s.record("could not add '%s' (%s)", rec.Title, reason)
		s.counts[OutcomeAddBookFailed]++
		return
	}
	s.record("added '%s' (%s)", rec.Title, item.Kind())
	s.counts[OutcomeAddBook]++
}

func (s *Simulation) removeBook(ctx context.Context) {
	item, ok := s.lib.RandomPick(ctx)
	if !ok {
		s.record("nothing to remove (catalog is empty)")
		s.counts[OutcomeRemoveBookEmpty]++
		return
	}
	title := item.Record().Title
	err := s.lib.Remove(ctx, item)
	switch {
	case err == nil:
		s.record("removed '%s'", title)
		s.counts[OutcomeRemoveBook]++
	case errors.Is(err, catalog.ErrDesync):
		s.record("could not remove '%s': index out of sync, rebuilding", title)
		s.counts[OutcomeRemoveBookFailed]++
		s.lib.Rebuild(ctx)
		s.counts[OutcomeIndexRebuilt]++
	default:
		s.record("could not remove '%s'", title)
		s.counts[OutcomeRemoveBookFailed]++
	}
}

func (s *Simulation) searchAuthor(ctx context.Context) {
	item, ok := s.lib.Books().RandomPick(s.rng)
	if !ok {
		s.record("search impossible: catalog is empty")
		s.counts[OutcomeSearchEmpty]++
		return
	}
	author := item.Record().Author
	results := s.lib.SearchByAuthor(ctx, author)
	s.record("search by author '%s': found %d items", author, len(results))
	s.counts[OutcomeSearchAuthor]++
}

func (s *Simulation) searchYear(ctx context.Context) {
	item, ok := s.lib.Books().RandomPick(s.rng)
	if !ok {
		s.record("search impossible: catalog is empty")
		s.counts[OutcomeSearchEmpty]++
		return
	}
	year := item.Record().Year
	results := s.lib.SearchByYear(ctx, year)
	s.record("search by year %d: found %d items", year, len(results))
	s.counts[OutcomeSearchYear]++
}

func (s *Simulation) searchNonexistent(ctx context.Context) {
	author := choice(s.rng, fakeAuthors)
	results := s.lib.SearchByAuthor(ctx, author)
	s.record("search for nonexistent author '%s': found %d items", author, len(results))
	s.counts[OutcomeSearchNonexistent]++
}

func (s *Simulation) checkStats(ctx context.Context) {
	stats := s.lib.Stats(ctx)
	s.record("stats: %d items, %d authors, %d years", stats.TotalBooks, stats.UniqueAuthors, stats.UniqueYears)
	s.counts[OutcomeCheckStats]++
}

func (s *Simulation) record(format string, args ...any) {
	s.journal = append(s.journal, Entry{
		Step:    s.step,
		Time:    s.now(),
		Message: fmt.Sprintf(format, args...),
	})
}

// Library returns the simulated catalog.
func (s *Simulation) Library() *catalog.Library { return s.lib }

func (s *Simulation) RunID() uuid.UUID { return s.runID }

// Seed returns the seed in use, including one drawn at random.
func (s *Simulation) Seed() uint64 { return s.seed }

// Steps returns how many steps have executed.
func (s *Simulation) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Journal returns a copy of the journal entries.
func (s *Simulation) Journal() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.journal)
}

// Counts returns a copy of the outcome counters.
func (s *Simulation) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts)
}
