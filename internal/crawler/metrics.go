package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by every engine in a process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	pagesFetched   *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	linksCollected *prometheus.CounterVec
	outstanding    *prometheus.GaugeVec
	fetchDuration  *prometheus.HistogramVec
	crawlsFinished *prometheus.CounterVec
}

// NewMetrics registers the crawler collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcrawler_pages_fetched_total",
			Help: "Pages fetched successfully",
		}, []string{"domain"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcrawler_fetch_errors_total",
			Help: "Fetches that failed with a transport error or non-2xx status",
		}, []string{"domain"}),
		linksCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcrawler_links_collected_total",
			Help: "Distinct links added to the result set",
		}, []string{"domain"}),
		outstanding: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkcrawler_outstanding_tasks",
			Help: "Dispatched tasks that have not finished yet",
		}, []string{"domain"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcrawler_fetch_duration_seconds",
			Help:    "Latency of page fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		crawlsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcrawler_crawls_finished_total",
			Help: "Crawls finished by outcome (complete, timeout, cancelled)",
		}, []string{"domain", "outcome"}),
	}
}

func (m *Metrics) observeFetch(domain string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(domain).Observe(took.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(domain).Inc()
		return
	}
	m.pagesFetched.WithLabelValues(domain).Inc()
}

func (m *Metrics) linkCollected(domain string) {
	if m == nil {
		return
	}
	m.linksCollected.WithLabelValues(domain).Inc()
}

func (m *Metrics) setOutstanding(domain string, n int64) {
	if m == nil {
		return
	}
	m.outstanding.WithLabelValues(domain).Set(float64(n))
}

func (m *Metrics) crawlFinished(domain, outcome string) {
	if m == nil {
		return
	}
	m.crawlsFinished.WithLabelValues(domain, outcome).Inc()
}
