package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push replaces the job's metric group on the Pushgateway with everything in
// the default registry. Short-lived commands exit before any scrape, so this
// is the only way their counters reach Prometheus.
func Push(url, job, instance string) error {
	return pushFrom(prometheus.DefaultGatherer, url, job, instance)
}

func pushFrom(g prometheus.Gatherer, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(g)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
