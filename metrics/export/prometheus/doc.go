// Package prometheus exposes goMFA engine metrics in the Prometheus text
// format.
//
// [NewPrometheusExporter] wraps an [goMFA.Engine] and serves an
// [http.Handler]. Counters are named gomfa_*_total and the verification
// latency histogram is gomfa_verify_latency_seconds. Nothing is registered
// globally; callers mount the Handler where they like.
package prometheus
