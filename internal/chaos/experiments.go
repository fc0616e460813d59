// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"libraindex/internal/catalog"
	"libraindex/internal/circulation"
	"libraindex/internal/simulation"
)

const experimentDuration = 50 * time.Millisecond

// RegisterExperiments registers all predefined experiments with the engine.
func (e *Engine) RegisterExperiments() {
	e.RegisterExperiment(e.StepCountExperiment(5, 42))
	e.RegisterExperiment(e.EmptyKeyExperiment())
	e.RegisterExperiment(e.GenreBatchRemovalExperiment())
	e.RegisterExperiment(e.TagIsolationExperiment())
	e.RegisterExperiment(e.IndexDesyncExperiment())
	e.RegisterExperiment(e.LoanAfterRemovalExperiment())
}

func (e *Engine) newLibrary(name string) *catalog.Library {
	return catalog.NewLibrary(name,
		catalog.WithLogger(e.logger),
		catalog.WithTracerProvider(e.tracerProvider),
	)
}

// StepCountExperiment checks that a simulation asked for steps events runs
// exactly that many.
func (e *Engine) StepCountExperiment(steps int, seed uint64) Experiment {
	var sim *simulation.Simulation

	drift := func(context.Context) (float64, error) {
		if sim == nil {
			return 0, nil
		}
		return math.Abs(float64(sim.Steps() - steps)), nil
	}
	outcomeDrift := func(context.Context) (float64, error) {
		if sim == nil {
			return 0, nil
		}
		total := 0
		for name, n := range sim.Counts() {
			if name != simulation.OutcomeIndexRebuilt {
				total += n
			}
		}
		return math.Abs(float64(total - steps)), nil
	}

	return Experiment{
		Name:       "step-count-accuracy",
		Hypothesis: fmt.Sprintf("A simulation asked for %d steps executes exactly %d events", steps, steps),
		SteadyState: []Metric{
			{Name: "step_drift", Query: drift, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "outcome_drift", Query: outcomeDrift, Threshold: Threshold{Operator: "==", Value: 0}},
		},
		Method: []Action{
			{
				Type:       "run-simulation",
				Target:     "simulation",
				Parameters: map[string]any{"steps": steps, "seed": seed},
				Execute: func(ctx context.Context) error {
					s, err := simulation.New(simulation.Config{LibraryName: "Step Count Library", Seed: &seed},
						simulation.WithLogger(e.logger),
						simulation.WithTracerProvider(e.tracerProvider),
					)
					if err != nil {
						return err
					}
					sim = s
					return sim.Run(ctx, steps)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "step_drift",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Executed steps should equal requested steps",
			},
			{
				Metric:    "outcome_drift",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Every step should record exactly one outcome",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.0,
	}
}

// EmptyKeyExperiment offers items with blank unique keys and checks none is
// catalogued.
func (e *Engine) EmptyKeyExperiment() Experiment {
	lib := e.newLibrary("Empty Key Library")
	baseline := 0

	emptyEntries := func(context.Context) (float64, error) {
		n := 0
		for item := range lib.Books().All() {
			if strings.TrimSpace(item.Record().ISBN()) == "" {
				n++
			}
		}
		return float64(n), nil
	}
	sizeDrift := func(context.Context) (float64, error) {
		return math.Abs(float64(lib.Len() - baseline)), nil
	}

	return Experiment{
		Name:       "empty-key-rejection",
		Hypothesis: "Items with an empty unique key are rejected and never enter the catalog",
		SteadyState: []Metric{
			{Name: "empty_key_entries", Query: emptyEntries, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "size_drift", Query: sizeDrift, Threshold: Threshold{Operator: "==", Value: 0}},
		},
		Method: []Action{
			{
				Type:   "seed-catalog",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					if err := lib.Insert(ctx, catalog.NewBook("Control", "Control Author", 2024, "Novel", "CTRL-1")); err != nil {
						return err
					}
					baseline = lib.Len()
					return nil
				},
			},
			{
				Type:       "insert-empty-key",
				Target:     "catalog",
				Parameters: map[string]any{"keys": []string{"", "   "}},
				Execute: func(ctx context.Context) error {
					for _, key := range []string{"", "   "} {
						err := lib.Insert(ctx, catalog.NewBook("Test Book", "Test Author", 2024, "Novel", key))
						if !errors.Is(err, catalog.ErrEmptyKey) {
							return fmt.Errorf("insert with key %q: expected empty key rejection, got %v", key, err)
						}
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "empty_key_entries",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No item with an empty key should be catalogued",
			},
			{
				Metric:    "size_drift",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Rejected inserts should not change the catalog size",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.0,
	}
}

// GenreBatchRemovalExperiment removes a whole genre and checks that no
// member survives and nothing else is touched.
func (e *Engine) GenreBatchRemovalExperiment() Experiment {
	const genre = "Novel"
	lib := e.newLibrary("Genre Removal Library")
	removalIssued := false
	others := 0

	missed := func(context.Context) (float64, error) {
		if !removalIssued {
			return 0, nil
		}
		return float64(len(lib.Books().FindByGenre(genre))), nil
	}
	collateral := func(context.Context) (float64, error) {
		if !removalIssued {
			return 0, nil
		}
		remaining := lib.Len() - len(lib.Books().FindByGenre(genre))
		return math.Abs(float64(others - remaining)), nil
	}

	return Experiment{
		Name:       "genre-batch-removal",
		Hypothesis: "Removing a genre removes every matching item and nothing else",
		SteadyState: []Metric{
			{Name: "missed_removals", Query: missed, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "collateral_removals", Query: collateral, Threshold: Threshold{Operator: "==", Value: 0}},
		},
		Method: []Action{
			{
				Type:   "seed-catalog",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					items := []catalog.Item{
						catalog.NewBook("Novel 1", "Author 1", 2020, genre, "R1"),
						catalog.NewBook("Novel 2", "Author 2", 2021, genre, "R2"),
						catalog.NewBook("Novel 3", "Author 3", 2022, genre, "R3"),
						catalog.NewBook("Detective", "Author 4", 2023, "Mystery", "D1"),
					}
					for _, item := range items {
						if err := lib.Insert(ctx, item); err != nil {
							return err
						}
					}
					others = lib.Len() - len(lib.Books().FindByGenre(genre))
					return nil
				},
			},
			{
				Type:       "remove-genre",
				Target:     "catalog",
				Parameters: map[string]any{"genre": genre},
				Execute: func(ctx context.Context) error {
					removalIssued = true
					removed, err := lib.RemoveByGenre(ctx, genre)
					if err != nil {
						return err
					}
					if removed != 3 {
						return fmt.Errorf("removed %d %s items, want 3", removed, genre)
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "missed_removals",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No item of the removed genre should remain",
			},
			{
				Metric:    "collateral_removals",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Items of other genres should remain",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.75,
	}
}

// TagIsolationExperiment tags one item and checks that sibling items created
// without tags stay untagged.
func (e *Engine) TagIsolationExperiment() Experiment {
	first := catalog.NewPhysicalCopy("Book 1", "Author 1", 2020, "Novel", "B1", "INV-1", "A1")
	second := catalog.NewPhysicalCopy("Book 2", "Author 2", 2021, "Novel", "B2", "INV-2", "A2")
	third := catalog.NewDigitalCopy("Book 3", "Author 3", 2022, "Novel", "B3", 1.2, catalog.FormatPDF)

	shared := func(context.Context) (float64, error) {
		return float64(len(second.Tags) + len(third.Tags)), nil
	}
	tagged := func(context.Context) (float64, error) {
		return float64(len(first.Tags)), nil
	}

	return Experiment{
		Name:       "independent-tag-lists",
		Hypothesis: "Tagging one item never changes another item's tags",
		SteadyState: []Metric{
			{Name: "shared_tags", Query: shared, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "tagged_item_tags", Query: tagged, Threshold: Threshold{Operator: "<=", Value: 1}},
		},
		Method: []Action{
			{
				Type:       "add-tag",
				Target:     first.ISBN(),
				Parameters: map[string]any{"tag": "classic"},
				Execute: func(context.Context) error {
					first.AddTag("classic")
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "shared_tags",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Untagged items should have no tags",
			},
			{
				Metric:    "tagged_item_tags",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "The tagged item should carry exactly its own tag",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.33,
	}
}

// IndexDesyncExperiment corrupts the index behind the catalog's back and
// checks that the next removal reports the desync and a rebuild repairs it.
func (e *Engine) IndexDesyncExperiment() Experiment {
	lib := e.newLibrary("Desync Library")
	victim := catalog.NewBook("Victim", "Author V", 1999, "Novel", "V1")
	detected := 0

	inconsistencies := func(context.Context) (float64, error) {
		if err := lib.Verify(); err != nil {
			return 1, nil
		}
		return 0, nil
	}
	desyncs := func(context.Context) (float64, error) {
		return float64(detected), nil
	}

	return Experiment{
		Name:       "index-desync-recovery",
		Hypothesis: "A corrupted index is detected on removal and repaired by a rebuild",
		SteadyState: []Metric{
			{Name: "index_inconsistencies", Query: inconsistencies, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "desync_detected", Query: desyncs, Threshold: Threshold{Operator: ">=", Value: 0}},
		},
		Method: []Action{
			{
				Type:   "seed-catalog",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					items := []catalog.Item{
						victim,
						catalog.NewBook("Bystander 1", "Author V", 2001, "Novel", "V2"),
						catalog.NewDigitalCopy("Bystander 2", "Author W", 1999, "History", "V3", 4.0, catalog.FormatFB2),
					}
					for _, item := range items {
						if err := lib.Insert(ctx, item); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Type:       "corrupt-index",
				Target:     "index",
				Parameters: map[string]any{"isbn": victim.ISBN()},
				Execute: func(context.Context) error {
					if !lib.Index().Remove(victim) {
						return fmt.Errorf("victim %s was not indexed", victim.ISBN())
					}
					return nil
				},
			},
			{
				Type:   "remove-and-recover",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					err := lib.Remove(ctx, victim)
					if !errors.Is(err, catalog.ErrDesync) {
						return fmt.Errorf("removal of corrupted entry: expected desync, got %v", err)
					}
					detected++
					lib.Rebuild(ctx)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "index_inconsistencies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Index should agree with the collection after rebuild",
			},
			{
				Metric:    "desync_detected",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "The removal should have reported exactly one desync",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.33,
	}
}

// LoanAfterRemovalExperiment lends a copy, drops it from the catalog while
// it is out and checks the loan can still be closed.
func (e *Engine) LoanAfterRemovalExperiment() Experiment {
	lib := e.newLibrary("Circulation Library")
	desk := circulation.NewService(lib,
		circulation.WithLogger(e.logger),
		circulation.WithTracerProvider(e.tracerProvider),
	)
	lent := catalog.NewPhysicalCopy("Loaned Copy", "Author L", 1990, "Novel", "L1", "INV-L1", "C3")

	openLoans := func(context.Context) (float64, error) {
		return float64(len(desk.ActiveCheckouts())), nil
	}
	stranded := func(context.Context) (float64, error) {
		if lent.Borrowed() {
			return 1, nil
		}
		return 0, nil
	}
	recorded := func(context.Context) (float64, error) {
		return float64(len(desk.History(lent.ISBN()))), nil
	}

	return Experiment{
		Name:       "loan-after-removal",
		Hypothesis: "A copy removed from the catalog while lent can still be returned",
		SteadyState: []Metric{
			{Name: "open_loans", Query: openLoans, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "stranded_copies", Query: stranded, Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "recorded_events", Query: recorded, Threshold: Threshold{Operator: ">=", Value: 0}},
		},
		Method: []Action{
			{
				Type:       "checkout",
				Target:     lent.ISBN(),
				Parameters: map[string]any{"borrower": "patron-1"},
				Execute: func(ctx context.Context) error {
					if err := lib.Insert(ctx, lent); err != nil {
						return err
					}
					_, err := desk.CheckoutItem(ctx, lent.ISBN(), "patron-1")
					return err
				},
			},
			{
				Type:   "remove-while-lent",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					return lib.Remove(ctx, lent.ISBN())
				},
			},
			{
				Type:   "return",
				Target: lent.ISBN(),
				Execute: func(ctx context.Context) error {
					_, err := desk.ReturnItem(ctx, lent.ISBN())
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "open_loans",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "The loan should be closed",
			},
			{
				Metric:    "stranded_copies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "The returned copy should no longer be marked as lent",
			},
			{
				Metric:    "recorded_events",
				Condition: func(v float64) bool { return v == 2 },
				Message:   "Checkout and return should both be recorded",
			},
		},
		Duration:    experimentDuration,
		BlastRadius: 0.0,
	}
}
