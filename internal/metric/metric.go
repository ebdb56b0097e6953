package metric

import (
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	relaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenrelay_relays_total",
			Help: "Total relay attempts by chain, kind and outcome",
		},
		[]string{"chain", "kind", "outcome"},
	)

	relayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenrelay_relay_duration_seconds",
			Help:    "End-to-end relay execution time",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"chain", "kind"},
	)

	fundingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenrelay_fundings_total",
			Help: "Total gas sponsorship top-ups sent",
		},
		[]string{"chain"},
	)

	depositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenrelay_deposits_total",
			Help: "Total native deposits credited for swaps",
		},
		[]string{"chain"},
	)

	partialCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenrelay_partial_completions_total",
			Help: "Relays that pulled user funds but failed a later step",
		},
		[]string{"chain", "kind"},
	)

	relayerBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenrelay_relayer_balance_wei",
			Help: "Relayer native balance per chain",
		},
		[]string{"chain"},
	)
)

// Config is the metric server configuration
type Config struct {
	Port int `default:"9090"`
}

// Server exposes the Prometheus metrics endpoint
type Server struct {
	port int
}

// New creates a metric server. Passing nil loads the configuration from
// METRIC_* environment variables.
func New(conf *Config) *Server {
	if conf == nil {
		conf = &Config{}
		envconfig.MustProcess("metric", conf)
	}
	return &Server{port: conf.Port}
}

// Start serves /metrics and blocks
func (s *Server) Start() error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), nil)
}

// RecordRelay records one completed relay attempt
func RecordRelay(chain, kind, outcome string, duration time.Duration) {
	relaysTotal.WithLabelValues(chain, kind, outcome).Inc()
	relayDuration.WithLabelValues(chain, kind).Observe(duration.Seconds())
}

// RecordFunding records one gas sponsorship top-up
func RecordFunding(chain string) {
	fundingsTotal.WithLabelValues(chain).Inc()
}

// RecordDeposit records one credited native deposit
func RecordDeposit(chain string) {
	depositsTotal.WithLabelValues(chain).Inc()
}

// RecordPartialCompletion records a relay that needs manual reconciliation
func RecordPartialCompletion(chain, kind string) {
	partialCompletionsTotal.WithLabelValues(chain, kind).Inc()
}

// RecordRelayerBalance updates the relayer balance gauge for a chain
func RecordRelayerBalance(chain string, wei *big.Int) {
	value, _ := new(big.Float).SetInt(wei).Float64()
	relayerBalance.WithLabelValues(chain).Set(value)
}
