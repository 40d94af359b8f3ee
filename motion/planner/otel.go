package planner

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "scara/motion/planner"

type playbackMetrics struct {
	sent     metric.Int64Counter
	skipped  metric.Int64Counter
	failed   metric.Int64Counter
	sessions metric.Int64Counter
}

func newPlaybackMetrics() (playbackMetrics, error) {
	m := otel.Meter(instrumentationName)
	pm := playbackMetrics{
		sent:     noop.Int64Counter{},
		skipped:  noop.Int64Counter{},
		failed:   noop.Int64Counter{},
		sessions: noop.Int64Counter{},
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&pm.sent, "scara.playback.sent", "Targets sent during playback"},
		{&pm.skipped, "scara.playback.skipped", "Unreachable targets skipped during playback"},
		{&pm.failed, "scara.playback.failed", "Targets whose send failed during playback"},
		{&pm.sessions, "scara.playback.sessions", "Playback sessions finished"},
	}

	for _, c := range counters {
		counter, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return pm, err
		}
		*c.dst = counter
	}

	return pm, nil
}
