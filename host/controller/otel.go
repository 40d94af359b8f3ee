package controller

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "scara/host/controller"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type linkMetrics struct {
	commands metric.Int64Counter
	failures metric.Int64Counter
}

// newLinkMetrics falls back to no-op counters if the provider refuses them
func newLinkMetrics() (linkMetrics, error) {
	m := meter()
	lm := linkMetrics{commands: noop.Int64Counter{}, failures: noop.Int64Counter{}}

	commands, err := m.Int64Counter(
		"scara.link.commands",
		metric.WithDescription("Commands written to the controller"),
	)
	if err != nil {
		return lm, err
	}
	lm.commands = commands

	failures, err := m.Int64Counter(
		"scara.link.errors",
		metric.WithDescription("Failed writes to the controller"),
	)
	if err != nil {
		return lm, err
	}
	lm.failures = failures

	return lm, nil
}
