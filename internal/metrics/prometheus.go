package metrics

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	eventsMetric = "roomrelay_events_total"
	gaugeMetric  = "roomrelay_state"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
// Counters share one metric with an `event` label; gauges share another with
// a `name` label.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		counters := m.Snapshot()
		gauges := m.Gauges()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		_, _ = fmt.Fprintf(w, "# HELP %s Relay event counters.\n", eventsMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsMetric)
		for _, k := range sortedNames(counters) {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventsMetric, labelEscaper.Replace(k), counters[k])
		}

		if len(gauges) == 0 {
			return
		}
		_, _ = fmt.Fprintf(w, "# HELP %s Live relay state.\n", gaugeMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", gaugeMetric)
		for _, k := range sortedNames(gauges) {
			_, _ = fmt.Fprintf(w, "%s{name=\"%s\"} %g\n", gaugeMetric, labelEscaper.Replace(k), gauges[k])
		}
	})
}
