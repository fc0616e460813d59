// internal/simulation/summary.go
package simulation

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"libraindex/internal/catalog"
)

// EventCount is one outcome counter with its share of executed steps.
type EventCount struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary is the end-of-run report.
type Summary struct {
	RunID          string        `json:"run_id"`
	Seed           uint64        `json:"seed"`
	Steps          int           `json:"steps"`
	Library        catalog.Stats `json:"library"`
	Events         []EventCount  `json:"events"`
	CollectionSize int           `json:"collection_size"`
	IndexedAuthors int           `json:"indexed_authors"`
}

// Summary reports catalog statistics and outcome counters sorted by name.
func (s *Simulation) Summary() Summary {
	stats := s.lib.Stats(context.Background())
	collectionSize := s.lib.Len()

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.counts))
	for name := range s.counts {
		names = append(names, name)
	}
	slices.Sort(names)

	events := make([]EventCount, 0, len(names))
	for _, name := range names {
		count := s.counts[name]
		var percent float64
		if s.step > 0 {
			percent = float64(count) / float64(s.step) * 100
		}
		events = append(events, EventCount{Name: name, Count: count, Percent: percent})
	}

	return Summary{
		RunID:          s.runID.String(),
		Seed:           s.seed,
		Steps:          s.step,
		Library:        stats,
		Events:         events,
		CollectionSize: collectionSize,
		IndexedAuthors: stats.UniqueAuthors,
	}
}

// WriteSummary renders the summary as a human-readable report.
func (s *Simulation) WriteSummary(w io.Writer) error {
	sum := s.Summary()
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "SIMULATION SUMMARY")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Run:  %s\n", sum.RunID)
	fmt.Fprintf(&b, "Seed: %d\n", sum.Seed)

	fmt.Fprintln(&b, "\nLibrary statistics:")
	fmt.Fprintf(&b, "  Name:             %s\n", sum.Library.Name)
	fmt.Fprintf(&b, "  Total items:      %d\n", sum.Library.TotalBooks)
	fmt.Fprintf(&b, "  Unique authors:   %d\n", sum.Library.UniqueAuthors)
	fmt.Fprintf(&b, "  Unique years:     %d\n", sum.Library.UniqueYears)
	fmt.Fprintf(&b, "  Total operations: %d\n", sum.Library.TotalOperations)

	fmt.Fprintf(&b, "\nEvents (%d steps):\n", sum.Steps)
	for _, e := range sum.Events {
		fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n", e.Name, e.Count, e.Percent)
	}

	fmt.Fprintln(&b, "\nStructures:")
	fmt.Fprintf(&b, "  Collection: %d items\n", sum.CollectionSize)
	fmt.Fprintf(&b, "  Index:      %d authors\n", sum.IndexedAuthors)
	fmt.Fprintln(&b, rule)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
