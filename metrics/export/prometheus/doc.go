// Package prometheus exposes rolecalc engine metrics in the Prometheus text
// format. Counters are named rolecalc_*_total; Calculate latency is
// rolecalc_calculate_latency_seconds and only appears when latency
// histograms are enabled.
//
// Nothing is registered globally; callers mount Handler where they like.
package prometheus
