// Package metrics exposes the engine's Prometheus counters as package-level
// collectors plus a Register function.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Match outcome labels for [MatchResultsTotal].
const (
	ResultBlocked     = "blocked"
	ResultExcepted    = "excepted"
	ResultRedirected  = "redirected"
	ResultRemoveParam = "removeparam"
	ResultUnmatched   = "unmatched"
)

// MatchResultsTotal counts [blocker.Blocker.Check] calls by their outcome.
// Calls on a blocker built with network filters disabled are not counted.
var MatchResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "netfilter_match_results_total",
	Help: "Total number of request checks by outcome",
}, []string{"result"})

// RegexCompilesTotal counts every pattern the regex manager compiles.
var RegexCompilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "netfilter_regex_compiles_total",
	Help: "Total number of filter patterns compiled to regular expressions",
})

// RegexEvictionsTotal counts every compiled regex the manager's LRU/TTL
// cache evicts.
var RegexEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "netfilter_regex_evictions_total",
	Help: "Total number of compiled regular expressions evicted from the cache",
})

// Register registers every metric in this package with registry.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(MatchResultsTotal, RegexCompilesTotal, RegexEvictionsTotal)
}

// IncrementMatchResult increments the counter for the given outcome.
func IncrementMatchResult(result string) {
	MatchResultsTotal.WithLabelValues(result).Inc()
}

// IncrementRegexCompile increments the regex compile counter.
func IncrementRegexCompile() {
	RegexCompilesTotal.Inc()
}

// IncrementRegexEviction increments the regex eviction counter.
func IncrementRegexEviction() {
	RegexEvictionsTotal.Inc()
}
