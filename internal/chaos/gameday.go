// internal/chaos/gameday.go
package chaos

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GameDay is a scheduled series of experiments.
type GameDay struct {
	Name         string
	Date         time.Time
	Scenarios    []Experiment
	Participants []string
	Runbooks     map[string]string
}

// ExecuteGameDay runs every scenario in order, writing a report for each to
// the engine output. An aborted experiment is reported and skipped. It stops
// early only when ctx is done.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) ([]*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(
			attribute.String("gameday.name", gameDay.Name),
			attribute.Int("gameday.scenarios", len(gameDay.Scenarios)),
		),
	)
	defer span.End()

	fmt.Fprintf(e.out, "🎮 Starting Game Day: %s\n", gameDay.Name)
	fmt.Fprintf(e.out, "📅 Date: %s\n", gameDay.Date.Format(time.DateOnly))
	if len(gameDay.Participants) > 0 {
		fmt.Fprintf(e.out, "👥 Participants: %v\n", gameDay.Participants)
	}

	results := make([]*Result, 0, len(gameDay.Scenarios))
	for i, scenario := range gameDay.Scenarios {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("game day %s interrupted: %w", gameDay.Name, err)
		}
		fmt.Fprintf(e.out, "\n🔬 Experiment %d/%d: %s\n", i+1, len(gameDay.Scenarios), scenario.Name)
		fmt.Fprintf(e.out, "💡 Hypothesis: %s\n", scenario.Hypothesis)

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			fmt.Fprintf(e.out, "❌ Experiment aborted: %v\n", err)
			continue
		}
		results = append(results, result)
		printResult(e.out, result)
		if runbook, ok := gameDay.Runbooks[scenario.Name]; ok && !result.HypothesisHeld {
			fmt.Fprintf(e.out, "📖 Runbook: %s\n", runbook)
		}

		if i < len(gameDay.Scenarios)-1 && e.pause > 0 {
			select {
			case <-ctx.Done():
				return results, fmt.Errorf("game day %s interrupted: %w", gameDay.Name, ctx.Err())
			case <-time.After(e.pause):
			}
		}
	}

	held := 0
	for _, r := range results {
		if r.HypothesisHeld {
			held++
		}
	}
	fmt.Fprintf(e.out, "\n🏁 Game Day complete: %d/%d hypotheses held\n", held, len(gameDay.Scenarios))
	span.SetAttributes(attribute.Int("gameday.held", held))
	return results, nil
}

func printResult(w io.Writer, result *Result) {
	if result.HypothesisHeld {
		fmt.Fprintf(w, "✅ Hypothesis held - catalog behaved as expected\n")
	} else {
		fmt.Fprintf(w, "❌ Hypothesis violated - unexpected behaviour observed\n")
	}

	if len(result.Violations) > 0 {
		fmt.Fprintf(w, "⚠️  Violations detected: %d\n", len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(w, "   - %s: expected %.2f, got %.2f\n", v.MetricName, v.Expected, v.Actual)
		}
	}
	for _, msg := range result.FailedAssertions {
		fmt.Fprintf(w, "   - assertion failed: %s\n", msg)
	}
	for _, ev := range result.ErrorEvents {
		fmt.Fprintf(w, "   - error in %s: %s\n", ev.Component, ev.Error)
	}

	if result.MTTR != nil {
		fmt.Fprintf(w, "⏱️  MTTR: %s\n", *result.MTTR)
	}

	fmt.Fprintf(w, "📊 Duration: %s\n", result.Duration.Round(time.Millisecond))
}
