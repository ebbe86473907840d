// Package metrics provides Prometheus metrics for feverd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeverRequestsTotal counts Fever API responses by format and auth status.
	FeverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feverd",
			Name:      "fever_requests_total",
			Help:      "Total number of Fever API responses",
		},
		[]string{"format", "auth"},
	)

	// FeverMarkTotal counts applied mark commands by action.
	FeverMarkTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feverd",
			Name:      "fever_mark_total",
			Help:      "Total number of Fever mark commands applied",
		},
		[]string{"action"},
	)

	// FeedFetchTotal counts feed fetch attempts by result.
	FeedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feverd",
			Name:      "feed_fetch_total",
			Help:      "Total number of feed fetches",
		},
		[]string{"result"},
	)

	// FeedItemsAddedTotal counts items stored by the fetcher.
	FeedItemsAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feverd",
			Name:      "feed_items_added_total",
			Help:      "Total number of new items stored",
		},
	)
)

// RecordFeverRequest records one Fever API response.
func RecordFeverRequest(format string, authenticated bool) {
	auth := "0"
	if authenticated {
		auth = "1"
	}
	FeverRequestsTotal.WithLabelValues(format, auth).Inc()
}

// RecordMark records an applied mark command.
func RecordMark(action string) {
	FeverMarkTotal.WithLabelValues(action).Inc()
}

// RecordFetch records a feed fetch and the number of new items it stored.
func RecordFetch(err error, newItems int) {
	if err != nil {
		FeedFetchTotal.WithLabelValues("error").Inc()
		return
	}
	FeedFetchTotal.WithLabelValues("ok").Inc()
	FeedItemsAddedTotal.Add(float64(newItems))
}
