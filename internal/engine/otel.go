package engine

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/botroyale/gridroyale/internal/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	ticksResolved    metric.Int64Counter
	matchesCompleted metric.Int64Counter
	resolveDuration  metric.Float64Histogram
}

func newInstruments() (instruments, error) {
	m := meter()
	var (
		ins instruments
		err error
	)

	ins.ticksResolved, err = m.Int64Counter(
		"engine.ticks.resolved",
		metric.WithDescription("Total ticks resolved"),
	)
	if err != nil {
		return ins, fmt.Errorf("creating ticks counter: %w", err)
	}

	ins.matchesCompleted, err = m.Int64Counter(
		"engine.matches.completed",
		metric.WithDescription("Total matches completed"),
	)
	if err != nil {
		return ins, fmt.Errorf("creating matches counter: %w", err)
	}

	ins.resolveDuration, err = m.Float64Histogram(
		"engine.resolve.duration",
		metric.WithDescription("Time spent resolving one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return ins, fmt.Errorf("creating resolve histogram: %w", err)
	}

	return ins, nil
}
