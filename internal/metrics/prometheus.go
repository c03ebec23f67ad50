package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	eventsMetric = "aero_room_signaling_events_total"
	roomsMetric  = "aero_room_signaling_rooms"
	peersMetric  = "aero_room_signaling_peers"
)

// Gauges reports the live room and peer counts at scrape time.
type Gauges interface {
	Totals() (rooms, peers int)
}

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// All counters share a single metric with an `event` label. gauges may be nil.
func PrometheusHandler(m *Metrics, gauges Gauges) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", eventsMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsMetric)
		escaper := strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventsMetric, escaper.Replace(k), snap[k])
		}

		if gauges == nil {
			return
		}
		rooms, peers := gauges.Totals()
		_, _ = fmt.Fprintf(w, "# HELP %s Rooms with at least one registered peer.\n", roomsMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", roomsMetric)
		_, _ = fmt.Fprintf(w, "%s %d\n", roomsMetric, rooms)
		_, _ = fmt.Fprintf(w, "# HELP %s Registered peers across all rooms.\n", peersMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", peersMetric)
		_, _ = fmt.Fprintf(w, "%s %d\n", peersMetric, peers)
	})
}
