package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DeviceFlowsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credsvc_device_flows_started_total",
		Help: "Total number of device authorization flows started",
	})
	// Poll outcomes by category. Cardinality is bounded: pending, slow_down,
	// expired, denied, success, upstream_error.
	PollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credsvc_polls_total",
		Help: "Total number of device-flow polls relayed, by outcome",
	}, []string{"outcome"})
	InstallationTokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credsvc_installation_tokens_issued_total",
		Help: "Total number of installation tokens successfully minted",
	})
	InstallationTokensFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credsvc_installation_tokens_failed_total",
		Help: "Total number of installation token requests that failed, by reason",
	}, []string{"reason"})
	InstallationListRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credsvc_installation_list_refreshes_total",
		Help: "Total number of installation list refreshes served",
	})
	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credsvc_upstream_request_duration_seconds",
		Help:    "Latency of requests to the upstream platform, by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(DeviceFlowsStarted)
	prometheus.MustRegister(PollsTotal)
	prometheus.MustRegister(InstallationTokensIssued)
	prometheus.MustRegister(InstallationTokensFailed)
	prometheus.MustRegister(InstallationListRefreshes)
	prometheus.MustRegister(UpstreamRequestDuration)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
