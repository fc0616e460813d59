package simulation

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraindex/internal/catalog"
)

func seed(v uint64) *uint64 { return &v }

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestSimulation(t *testing.T, cfg Config) *Simulation {
	t.Helper()
	sim, err := New(cfg, WithLogger(slog.New(slog.DiscardHandler)), WithClock(fixedClock))
	require.NoError(t, err)
	return sim
}

func TestNewStocksInitialItems(t *testing.T) {
	sim := newTestSimulation(t, Config{LibraryName: "Test Library", Seed: seed(1)})
	lib := sim.Library()

	assert.Equal(t, 4, lib.Len())
	for _, key := range []string{"SIM-001", "SIM-002", "SIM-003", "SIM-004"} {
		assert.True(t, lib.Contains(key), key)
	}
	item, ok := lib.SearchByISBN(context.Background(), "SIM-001")
	require.True(t, ok)
	assert.Equal(t, catalog.KindPhysical, item.Kind())
	item, ok = lib.SearchByISBN(context.Background(), "SIM-003")
	require.True(t, ok)
	assert.Equal(t, catalog.KindDigital, item.Kind())

	journal := sim.Journal()
	require.Len(t, journal, 1)
	assert.Equal(t, 0, journal[0].Step)
	assert.Equal(t, "[step   0 | 12:00:00] initialized: added 4 starting items", journal[0].String())
}

func TestRunExecutesExactlyRequestedSteps(t *testing.T) {
	for _, steps := range []int{0, 1, 5, 20, 137} {
		sim := newTestSimulation(t, Config{Seed: seed(42)})
		require.NoError(t, sim.Run(context.Background(), steps))

		assert.Equal(t, steps, sim.Steps())
		assert.Len(t, sim.Journal(), steps+1)

		total := 0
		for name, count := range sim.Counts() {
			if name != OutcomeIndexRebuilt {
				total += count
			}
		}
		assert.Equal(t, steps, total, "one outcome per step")
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	run := func() (*Simulation, []string) {
		sim := newTestSimulation(t, Config{Seed: seed(43)})
		require.NoError(t, sim.Run(context.Background(), 200))
		var lines []string
		for _, e := range sim.Journal() {
			lines = append(lines, e.String())
		}
		return sim, lines
	}

	first, firstLines := run()
	second, secondLines := run()

	assert.Equal(t, firstLines, secondLines)
	assert.Equal(t, first.Counts(), second.Counts())

	a, b := first.Summary(), second.Summary()
	assert.NotEqual(t, a.RunID, b.RunID)
	a.RunID, b.RunID = "", ""
	assert.Equal(t, a, b)

	var firstKeys, secondKeys []string
	for item := range first.Library().Books().All() {
		firstKeys = append(firstKeys, item.Record().ISBN())
	}
	for item := range second.Library().Books().All() {
		secondKeys = append(secondKeys, item.Record().ISBN())
	}
	assert.Equal(t, firstKeys, secondKeys)
}

func TestRandomSeedIsRecorded(t *testing.T) {
	sim := newTestSimulation(t, Config{})
	require.NoError(t, sim.Run(context.Background(), 10))

	replay := newTestSimulation(t, Config{Seed: seed(sim.Seed())})
	require.NoError(t, replay.Run(context.Background(), 10))

	assert.Equal(t, sim.Seed(), sim.Summary().Seed)
	assert.Equal(t, sim.Counts(), replay.Counts())
}

func TestStepCoversEveryEvent(t *testing.T) {
	sim := newTestSimulation(t, Config{Seed: seed(7)})
	seen := make(map[Event]int)
	for range 600 {
		seen[sim.Step(context.Background())]++
	}
	for _, e := range Events {
		assert.Positive(t, seen[e], string(e))
	}
	require.NoError(t, sim.Library().Verify())
}

func TestRunHonoursCancellation(t *testing.T) {
	sim := newTestSimulation(t, Config{Seed: seed(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sim.Run(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sim.Steps())
}

func TestRunIsPaced(t *testing.T) {
	sim := newTestSimulation(t, Config{Seed: seed(1), Rate: 1000, Burst: 5})
	require.NoError(t, sim.Run(context.Background(), 20))
	assert.Equal(t, 20, sim.Steps())

	slow := newTestSimulation(t, Config{Seed: seed(1), Rate: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.Error(t, slow.Run(ctx, 10))
	assert.Less(t, slow.Steps(), 10)
}

func TestRunRejectsNegativeSteps(t *testing.T) {
	sim := newTestSimulation(t, Config{Seed: seed(1)})
	assert.Error(t, sim.Run(context.Background(), -1))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Rate: -1}, WithLogger(slog.New(slog.DiscardHandler)))
	assert.Error(t, err)

	_, err = New(Config{Burst: -2}, WithLogger(slog.New(slog.DiscardHandler)))
	assert.Error(t, err)
}

func TestRemoveRebuildsOnDesync(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulation(t, Config{Seed: seed(5)})
	lib := sim.Library()

	lib.Index().Rebuild(catalog.NewCollection())
	require.ErrorIs(t, lib.Verify(), catalog.ErrDesync)

	sim.removeBook(ctx)

	counts := sim.Counts()
	assert.Equal(t, 1, counts[OutcomeRemoveBookFailed])
	assert.Equal(t, 1, counts[OutcomeIndexRebuilt])
	assert.Equal(t, 3, lib.Len())
	require.NoError(t, lib.Verify())
}

func TestRemoveOnEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulation(t, Config{Seed: seed(5)})
	for _, key := range []string{"SIM-001", "SIM-002", "SIM-003", "SIM-004"} {
		require.NoError(t, sim.Library().Remove(ctx, key))
	}

	sim.removeBook(ctx)
	sim.searchAuthor(ctx)
	sim.searchYear(ctx)

	counts := sim.Counts()
	assert.Equal(t, 1, counts[OutcomeRemoveBookEmpty])
	assert.Equal(t, 2, counts[OutcomeSearchEmpty])
}

func TestRandomItem(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	key := regexp.MustCompile(`^RND-\d{4}$`)
	kinds := make(map[catalog.Kind]int)

	for range 300 {
		item := randomItem(r)
		rec := item.Record()
		kinds[item.Kind()]++

		assert.Regexp(t, key, rec.ISBN())
		assert.GreaterOrEqual(t, rec.Year, minYear)
		assert.Less(t, rec.Year, maxYear)
		assert.Contains(t, authors, rec.Author)
		assert.Contains(t, genres, rec.Genre)
		assert.NotContains(t, fakeAuthors, rec.Author)

		switch v := item.(type) {
		case *catalog.DigitalCopy:
			assert.GreaterOrEqual(t, v.SizeMB, 1.0)
			assert.LessOrEqual(t, v.SizeMB, 10.0)
			assert.Contains(t, catalog.Formats, v.Format)
		case *catalog.PhysicalCopy:
			assert.Regexp(t, `^INV-\d{3}$`, v.InventoryTag)
			assert.Regexp(t, `^[ABCD]([1-9]|10)$`, v.ShelfLocation)
		}
	}
	assert.Len(t, kinds, 3)
}

func TestWriteSummary(t *testing.T) {
	sim := newTestSimulation(t, Config{LibraryName: "Summary Library", Seed: seed(42)})
	require.NoError(t, sim.Run(context.Background(), 30))

	var buf bytes.Buffer
	require.NoError(t, sim.WriteSummary(&buf))
	out := buf.String()

	assert.Contains(t, out, "SIMULATION SUMMARY")
	assert.Contains(t, out, "Seed: 42")
	assert.Contains(t, out, "Name:             Summary Library")
	assert.Contains(t, out, "Events (30 steps):")

	sum := sim.Summary()
	assert.Equal(t, 30, sum.Steps)
	assert.Equal(t, sim.Library().Len(), sum.CollectionSize)
	var percent float64
	for i, e := range sum.Events {
		if i > 0 {
			assert.Less(t, sum.Events[i-1].Name, e.Name)
		}
		percent += e.Percent
	}
	assert.InDelta(t, 100.0, percent, 0.001)
}
