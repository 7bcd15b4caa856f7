package metrics

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name used when none is configured.
const DefaultJob = "controls"

// Push sends every collector of gatherer to the Pushgateway at url, grouped
// by job and the given labels (typically the partition fields). A nil
// gatherer means prometheus.DefaultGatherer.
func Push(url, job string, grouping map[string]string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return fmt.Errorf("push metrics: empty pushgateway url")
	}
	if job == "" {
		job = DefaultJob
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	p := push.New(url, job).Gatherer(gatherer)

	names := make([]string, 0, len(grouping))
	for name := range grouping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p = p.Grouping(name, grouping[name])
	}

	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	slog.Debug("metrics pushed", "url", url, "job", job)
	return nil
}
